// Package services – rename events.
//
// A successful counted rename is announced to an optional publisher so
// collaborators (mention re-resolution, notification fan-out) can react
// without being called directly from the transaction path. Publishing is
// strictly best-effort: failures are logged by the caller and never fail
// the rename itself.
package services

import (
	"context"
	"time"
)

// RenameEvent describes a committed counted rename.
type RenameEvent struct {
	ProfileID string    `json:"profile_id"`
	OldHandle string    `json:"old_handle,omitempty"`
	NewHandle string    `json:"new_handle"`
	ChangedAt time.Time `json:"changed_at"`
}

// RenamePublisher delivers rename events to interested parties. A nil
// publisher disables publishing altogether.
type RenamePublisher interface {
	PublishRename(ctx context.Context, ev RenameEvent) error
}
