// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer. Each function
// is context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/parfive/go-handle-backend/internal/domain"
)

// HandlesStats returns aggregate metadata over assigned handles: the total
// number of profiles with a handle and the greatest UpdatedAt among them.
// The search endpoint folds both into its ETag so clients can revalidate
// cheaply; staleness only affects suggestion freshness, never uniqueness.
//
// When no handles are assigned, count is 0 and maxUpdatedAt is nil.
func HandlesStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Profile{}).Where("handle_lower IS NOT NULL")

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// HistoryStats returns the number of history records for a profile and the
// timestamp of the most recent one, for conditional responses on the
// history endpoint. When the profile has no history, count is 0 and
// lastChangedAt is nil.
func HistoryStats(ctx context.Context, db *gorm.DB, profileID string) (count int64, lastChangedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.HandleHistory{}).Where("profile_id = ?", profileID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		ChangedAt time.Time
	}
	if err = q.Select("changed_at").Order("changed_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.ChangedAt, nil
}
