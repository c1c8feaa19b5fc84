// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the handle
// columns of the Profile model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - The unique index on profiles.handle_lower is the final arbiter of
//     handle uniqueness. A lost race surfaces as a constraint violation,
//     which callers detect via IsUniqueViolation and translate into a
//     business-level "taken" result.
//   - On other DB errors (connectivity issues, etc.), the raw gorm error
//     is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parfive/go-handle-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// IsUniqueViolation reports whether err is a unique-constraint violation.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations,
// so the check matches on message text in addition to gorm's sentinel.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// GetProfile fetches a single profile by ID. If the record does not exist,
// it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// HandleExists reports whether any profile other than excludeID currently
// holds the given normalized (lower-cased) handle. An empty excludeID
// checks all profiles.
func HandleExists(ctx context.Context, db *gorm.DB, lower, excludeID string) (bool, error) {
	q := db.WithContext(ctx).Model(&domain.Profile{}).Where("handle_lower = ?", lower)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByHandleLower returns the profile currently holding the normalized
// handle, or ErrNotFound.
func FindByHandleLower(ctx context.Context, db *gorm.DB, lower string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("handle_lower = ?", lower).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateHandleCasing replaces only the display casing of a profile's
// handle. The canonical handle_lower column is untouched, so the update
// cannot collide with any other row and does not count as a rename.
func UpdateHandleCasing(ctx context.Context, db *gorm.DB, id, display string) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Update("handle", display)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CommitRename applies a counted rename: display and canonical handle
// columns, the rate-limit timestamp, and the change counter, in one
// UPDATE. Run it inside the rename transaction; a lost uniqueness race
// surfaces here as a constraint violation (see IsUniqueViolation).
func CommitRename(ctx context.Context, db *gorm.DB, id, display, lower string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"handle":              display,
			"handle_lower":        lower,
			"handle_updated_at":   now,
			"handle_change_count": gorm.Expr("handle_change_count + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AssignHandle sets the handle columns of a profile that has none, leaving
// handle_updated_at and handle_change_count untouched. Used by the
// backfill generator: an initial assignment is not a rename and must not
// start the rate-limit clock.
func AssignHandle(ctx context.Context, db *gorm.DB, id, display, lower string) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND handle_lower IS NULL", id).
		Updates(map[string]any{
			"handle":       display,
			"handle_lower": lower,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListProfilesMissingHandle returns a page of profiles without a handle in
// the stable backfill order: creation time ascending, ties broken by ID.
// A deterministic order keeps collision resolution reproducible across
// re-runs.
func ListProfilesMissingHandle(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).
		Where("handle_lower IS NULL").
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchByHandle returns up to limit profiles whose normalized handle
// contains queryLower as a substring, ranked in SQL: exact match first,
// then prefix matches, then shorter handles, then lexicographic order.
// Profiles without a handle never match.
func SearchByHandle(ctx context.Context, db *gorm.DB, queryLower string, limit int) ([]domain.Profile, error) {
	esc := escapeLike(queryLower)
	var out []domain.Profile
	err := db.WithContext(ctx).
		Where("handle_lower IS NOT NULL").
		Where(`handle_lower LIKE ? ESCAPE '\'`, "%"+esc+"%").
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL: `CASE WHEN handle_lower = ? THEN 0 WHEN handle_lower LIKE ? ESCAPE '\' THEN 1 ELSE 2 END, LENGTH(handle_lower), handle_lower`,
			Vars: []any{queryLower, esc + "%"},
		}}).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// escapeLike escapes LIKE wildcards in a user-supplied query. Handles may
// legitimately contain "_", which is a single-character wildcard in LIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
