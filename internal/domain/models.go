// Package domain defines the persistence models for profiles, handle
// history, and the reserved-handle registry. These types are mapped with
// GORM and form the core data layer of the handle service.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Profile represents an account row. Only the handle columns are mutated by
// this service; the name and email columns are read by the backfill
// generator to derive an initial handle for accounts that predate handles.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - FirstName / LastName / DisplayName / Email: backfill source fields,
//     owned by the wider account store.
//   - Handle: the display-cased handle as the user typed it, or nil when
//     the profile has never been assigned one.
//   - HandleLower: lower-cased form of Handle, kept in lockstep by the
//     repository layer. The unique index on this column is the authority
//     for case-insensitive uniqueness; application-level availability
//     checks are advisory on top of it.
//   - HandleUpdatedAt: timestamp of the last counted rename; nil until the
//     first one. Case-only renames do not touch it.
//   - HandleChangeCount: number of counted renames, monotonically
//     non-decreasing.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Profile struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	FirstName   string `json:"first_name"   gorm:"type:varchar(128)"`
	LastName    string `json:"last_name"    gorm:"type:varchar(128)"`
	DisplayName string `json:"display_name" gorm:"type:varchar(128)"`
	Email       string `json:"email"        gorm:"type:varchar(255)"`

	Handle            *string    `json:"handle,omitempty" gorm:"type:varchar(20)"`
	HandleLower       *string    `json:"-"                gorm:"type:varchar(20);uniqueIndex:ux_profiles_handle_lower"`
	HandleUpdatedAt   *time.Time `json:"handle_updated_at,omitempty"`
	HandleChangeCount int        `json:"handle_change_count" gorm:"not null;default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// HandleHistory is an append-only audit record of a counted handle rename.
// One row is written per full rename; case-only renames and initial
// assignments produce none. Rows are never updated or deleted by this
// service.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ProfileID: owner reference (indexed; a profile accumulates rows).
//   - OldHandle / NewHandle: display-cased values at transition time.
//   - OldHandleLower: lower-cased OldHandle, indexed so external routing
//     can redirect a former handle to its current owner.
//   - ChangedAt: transition timestamp; strictly increasing per profile.
type HandleHistory struct {
	ID             string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ProfileID      string    `json:"profile_id" gorm:"type:char(36);not null;index:idx_handle_history_profile"`
	OldHandle      string    `json:"old_handle" gorm:"type:varchar(20);not null"`
	NewHandle      string    `json:"new_handle" gorm:"type:varchar(20);not null"`
	OldHandleLower string    `json:"-"          gorm:"type:varchar(20);not null;index:idx_handle_history_old_lower"`
	ChangedAt      time.Time `json:"changed_at" gorm:"not null"`

	// Profile is the owning account. History is cascade-deleted when the
	// account row is removed by the account store.
	Profile Profile `json:"-" gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for HandleHistory.
func (HandleHistory) TableName() string { return "handle_history" }

// ReservedHandle is a catalog row forbidding a handle from user assignment
// (system words, brand names, route segments). The table is seeded at
// startup and read-only afterwards. Handles are stored lower-cased.
type ReservedHandle struct {
	Handle string `json:"handle" gorm:"type:varchar(20);primaryKey"`
	Reason string `json:"reason" gorm:"type:varchar(255);not null"`
}

// TableName returns the database table name for ReservedHandle.
func (ReservedHandle) TableName() string { return "reserved_handles" }
