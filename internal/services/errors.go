// Package services defines the business logic of the handle subsystem.
// This file centralizes the service-level error taxonomy so that every
// failure mode of availability checks, renames, and backfill is returned
// as a typed, checkable value.
//
// All of these represent business-level rejections that the HTTP layer
// renders as structured responses (success flag, message, suggestions);
// none of them is a 5xx condition. Only raw storage errors propagate
// untyped and are treated as infrastructure failures by the caller.
package services

import (
	"errors"
	"fmt"
	"time"
)

// ErrProfileNotFound indicates that the profile making the request does
// not exist in the account store.
var ErrProfileNotFound = errors.New("profile not found")

// ValidationError reports that a requested handle failed the format
// grammar. Reason is human-readable and safe to display. Format errors
// never carry suggestions: the shape itself is wrong, so appending
// characters would not help.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return e.Reason }

// ReservedError reports that a requested handle is in the reserved
// registry. It carries the three deterministic alternatives.
type ReservedError struct {
	Reason      string
	Suggestions []string
}

// Error implements the error interface.
func (e *ReservedError) Error() string { return e.Reason }

// TakenError reports that a requested handle is already held by another
// profile, whether detected by the availability pre-check or by losing a
// uniqueness race at commit time. It carries four alternatives, the last
// of which includes a random tag.
type TakenError struct {
	Suggestions []string
}

// Error implements the error interface.
func (e *TakenError) Error() string { return "this handle is already taken" }

// RateLimitedError reports that the profile's previous counted rename is
// still inside the cooldown window. NextAllowedAt is the first instant at
// which a rename will be accepted again.
type RateLimitedError struct {
	NextAllowedAt time.Time
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("handle was changed recently; next change allowed at %s",
		e.NextAllowedAt.UTC().Format(time.RFC3339))
}
