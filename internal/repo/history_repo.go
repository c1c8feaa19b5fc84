// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// HandleHistory model.
//
// The history table is append-only from this service's point of view:
// rows are inserted by the rename transaction and read for the audit
// surface and for former-handle redirects. Nothing here updates or
// deletes rows.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parfive/go-handle-backend/internal/domain"
)

// CreateHandleHistory inserts the audit record for a counted rename. Run
// it inside the rename transaction so the record and the handle update
// commit or roll back together; a record without the matching handle
// update (or vice versa) is forbidden.
func CreateHandleHistory(ctx context.Context, db *gorm.DB, profileID, oldHandle, newHandle string, changedAt time.Time) error {
	h := &domain.HandleHistory{
		ID:             uuid.NewString(),
		ProfileID:      profileID,
		OldHandle:      oldHandle,
		NewHandle:      newHandle,
		OldHandleLower: strings.ToLower(oldHandle),
		ChangedAt:      changedAt,
	}
	return db.WithContext(ctx).Create(h).Error
}

// ListHandleHistory returns up to limit history records for a profile,
// newest first. It returns an empty slice when the profile has never
// completed a counted rename.
func ListHandleHistory(ctx context.Context, db *gorm.DB, profileID string, limit int) ([]domain.HandleHistory, error) {
	var out []domain.HandleHistory
	err := db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("changed_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FindFormerOwner returns the most recent history record whose old handle
// equals the given normalized handle, or ErrNotFound. External routing
// uses this to redirect a former handle to its current owner; the index
// on old_handle_lower exists for exactly this lookup.
func FindFormerOwner(ctx context.Context, db *gorm.DB, oldLower string) (*domain.HandleHistory, error) {
	var h domain.HandleHistory
	err := db.WithContext(ctx).
		Where("old_handle_lower = ?", oldLower).
		Order("changed_at desc").
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}
