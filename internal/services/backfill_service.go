// Package services – BackfillService
//
// This file implements the one-time migration that derives a handle for
// every profile created before handles existed. Derivation is pure (see
// the handle package); this service owns the iteration order, the
// collision-resolution loop, and the atomic assignment discipline.
//
// The generator iterates profiles in a stable order (creation time
// ascending, ties by ID) so the fallback-suffix sequence is reproducible
// across re-runs. It is written as a single-writer process: each
// candidate assignment still goes through the uniqueness index, so a
// concurrent user-initiated rename losing or winning a race is handled
// the same way a rename-vs-rename race is.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/parfive/go-handle-backend/internal/handle"
	"github.com/parfive/go-handle-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultBackfillBatchSize bounds how many handle-less profiles are
// loaded per page.
const DefaultBackfillBatchSize = 200

// BackfillService assigns handles to profiles that lack one.
type BackfillService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// BatchSize is the page size for scanning handle-less profiles.
	// Zero means DefaultBackfillBatchSize.
	BatchSize int
}

// Run assigns a handle to every profile currently lacking one and
// returns the number of profiles assigned. Profiles that already have a
// handle are never touched, so a second run immediately after a first is
// a no-op returning zero.
//
// Initial assignment deliberately leaves handle_updated_at and
// handle_change_count alone: backfill is not a rename and must not start
// the cooldown clock before the user's first own change.
func (s *BackfillService) Run(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/BackfillService")
	ctx, span := tr.Start(ctx, "Run")
	defer span.End()

	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultBackfillBatchSize
	}

	assigned := 0
	for {
		// Assigned rows leave the predicate, so each page starts at zero.
		page, err := repo.ListProfilesMissingHandle(ctx, s.DB, 0, batch)
		if err != nil {
			return assigned, err
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return assigned, err
			}
			if err := s.assignOne(ctx, p.ID, handle.Derive(p.DisplayName, p.FirstName, p.LastName, p.Email)); err != nil {
				return assigned, err
			}
			assigned++
			backfillAssigned.Inc()
		}
	}
	span.SetAttributes(attribute.Int("backfill.assigned", assigned))
	return assigned, nil
}

// assignOne runs the collision loop for a single profile: while the
// candidate is reserved or held, append an increasing counter (the base
// is re-truncated so the suffix fits) and try again. The uniqueness
// index backs the final insert, so losing a race to a concurrent writer
// just advances the counter.
func (s *BackfillService) assignOne(ctx context.Context, profileID, base string) error {
	candidate := base
	for n := 0; ; n++ {
		if n > 0 {
			candidate = handle.WithCounter(base, n)
			backfillCollisions.Inc()
		}

		_, reserved, err := repo.ReservedReason(ctx, s.DB, candidate)
		if err != nil {
			return err
		}
		if reserved {
			continue
		}
		exists, err := repo.HandleExists(ctx, s.DB, candidate, "")
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		err = repo.AssignHandle(ctx, s.DB, profileID, candidate, candidate)
		if err == nil {
			return nil
		}
		if repo.IsUniqueViolation(err) {
			continue
		}
		return err
	}
}
