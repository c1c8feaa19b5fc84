// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the reserved-handle registry: a
// data-driven catalog of values forbidden from user assignment, seeded at
// startup and queried through a single lookup.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parfive/go-handle-backend/internal/domain"
)

// DefaultReservedHandles returns the built-in reservation catalog: route
// segments the API claims, system words, and support/brand names. Callers
// may extend the list from configuration before seeding.
func DefaultReservedHandles() []domain.ReservedHandle {
	const (
		reasonRoute   = "conflicts with an application route"
		reasonSystem  = "reserved system word"
		reasonSupport = "reserved for official accounts"
	)
	return []domain.ReservedHandle{
		{Handle: "admin", Reason: reasonSystem},
		{Handle: "administrator", Reason: reasonSystem},
		{Handle: "root", Reason: reasonSystem},
		{Handle: "system", Reason: reasonSystem},
		{Handle: "null", Reason: reasonSystem},
		{Handle: "undefined", Reason: reasonSystem},
		{Handle: "anonymous", Reason: reasonSystem},
		{Handle: "everyone", Reason: reasonSystem},
		{Handle: "api", Reason: reasonRoute},
		{Handle: "auth", Reason: reasonRoute},
		{Handle: "login", Reason: reasonRoute},
		{Handle: "logout", Reason: reasonRoute},
		{Handle: "signup", Reason: reasonRoute},
		{Handle: "settings", Reason: reasonRoute},
		{Handle: "profile", Reason: reasonRoute},
		{Handle: "profiles", Reason: reasonRoute},
		{Handle: "search", Reason: reasonRoute},
		{Handle: "explore", Reason: reasonRoute},
		{Handle: "notifications", Reason: reasonRoute},
		{Handle: "health", Reason: reasonRoute},
		{Handle: "metrics", Reason: reasonRoute},
		{Handle: "swagger", Reason: reasonRoute},
		{Handle: "support", Reason: reasonSupport},
		{Handle: "help", Reason: reasonSupport},
		{Handle: "official", Reason: reasonSupport},
		{Handle: "moderator", Reason: reasonSupport},
	}
}

// SeedReservedHandles upserts the given catalog. Handles are stored
// lower-cased; existing rows keep their reason, so re-seeding on every
// startup is safe.
func SeedReservedHandles(ctx context.Context, db *gorm.DB, entries []domain.ReservedHandle) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]domain.ReservedHandle, 0, len(entries))
	for _, e := range entries {
		h := strings.ToLower(strings.TrimSpace(e.Handle))
		if h == "" {
			continue
		}
		rows = append(rows, domain.ReservedHandle{Handle: h, Reason: e.Reason})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// ReservedReason returns the reservation reason for a normalized handle.
// The boolean reports whether the handle is reserved at all.
func ReservedReason(ctx context.Context, db *gorm.DB, lower string) (string, bool, error) {
	var r domain.ReservedHandle
	err := db.WithContext(ctx).Where("handle = ?", lower).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return r.Reason, true, nil
}
