// Package services – HandleService
//
// This file implements HandleService, the stateful core of the handle
// subsystem. It owns availability decisions, the rename transaction
// (cooldown enforcement, case-only shortcut, history write, atomic
// commit with lost-race retry), handle search, rename history, and
// former-handle resolution.
//
// Concurrency model: availability checks and searches are plain reads and
// never block a rename. The rename itself runs inside a single database
// transaction; the unique index on profiles.handle_lower is the final
// arbiter when two writers race past the advisory availability check, and
// the loser's constraint violation is translated into a business-level
// "taken" result after one transparent retry.
//
// Observability: public methods are OpenTelemetry-instrumented; spans
// carry the profile identifier and the normalized handle where relevant.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/parfive/go-handle-backend/internal/domain"
	"github.com/parfive/go-handle-backend/internal/handle"
	"github.com/parfive/go-handle-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCooldown is the rename rate limit: one counted rename per
// profile per window.
const DefaultCooldown = 7 * 24 * time.Hour

// errLostRace signals that the rename transaction lost a uniqueness race
// at commit time and may be retried once with fresh state.
var errLostRace = errors.New("lost uniqueness race")

// Availability is the outcome of an availability check. It is returned as
// data rather than as an error: an unavailable handle is a normal answer,
// not a failure.
type Availability struct {
	Available   bool     `json:"available"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RenameResult reports a successful rename.
type RenameResult struct {
	Handle   string `json:"handle"`
	Message  string `json:"message"`
	CaseOnly bool   `json:"case_only,omitempty"`
}

// Resolution is the outcome of resolving a handle to its current owner,
// possibly through the rename history.
type Resolution struct {
	Profile    *domain.Profile `json:"profile"`
	Handle     string          `json:"handle"`
	Redirected bool            `json:"redirected"`
}

// HandleService coordinates handle availability, renames, search,
// history, and resolution over the account store.
type HandleService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Cooldown is the minimum interval between counted renames.
	// Zero means DefaultCooldown.
	Cooldown time.Duration

	// Tags supplies random tags for the non-deterministic suggestion
	// variant. Nil means the math/rand-backed default.
	Tags handle.TagSource
	// TagLen is the random tag length; values <= 0 default to 4.
	TagLen int

	// SearchMaxLimit caps search result counts. Zero means 20.
	SearchMaxLimit int

	// Publisher receives rename events; nil disables publishing.
	Publisher RenamePublisher

	// Now is a test seam for the clock; nil means time.Now().UTC.
	Now func() time.Time
}

// NewHandleService constructs a HandleService with default tuning.
func NewHandleService(db *gorm.DB) *HandleService {
	return &HandleService{
		DB:             db,
		Cooldown:       DefaultCooldown,
		Tags:           handle.NewTagSource(),
		TagLen:         4,
		SearchMaxLimit: 20,
	}
}

func (s *HandleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *HandleService) cooldown() time.Duration {
	if s.Cooldown > 0 {
		return s.Cooldown
	}
	return DefaultCooldown
}

// CheckAvailability decides whether raw may be assigned, excluding
// excludeProfileID (the caller's own row) from the uniqueness lookup when
// non-empty. It performs no writes and may be called arbitrarily often.
//
// Decision order matters: a malformed handle reports a format error (no
// suggestions), reservation is only consulted for well-formed handles,
// and the uniqueness lookup runs last.
func (s *HandleService) CheckAvailability(ctx context.Context, raw, excludeProfileID string) (Availability, error) {
	tr := otel.Tracer("services/HandleService")
	ctx, span := tr.Start(ctx, "CheckAvailability")
	defer span.End()

	normalized, err := handle.Validate(raw)
	if err != nil {
		var ie *handle.InvalidError
		if errors.As(err, &ie) {
			return Availability{Available: false, Reason: ie.Reason}, nil
		}
		return Availability{}, err
	}
	span.SetAttributes(attribute.String("handle.normalized", normalized))

	av, _, err := s.decide(ctx, s.DB, normalized, excludeProfileID)
	return av, err
}

// availabilityKind distinguishes why a handle is unavailable, for callers
// that need to raise the matching typed error.
type availabilityKind int

const (
	availFree availabilityKind = iota
	availReserved
	availTaken
)

// decide runs the reserved and uniqueness checks for an already-validated
// handle against the given DB handle (so the rename transaction can
// re-validate on its own tx).
func (s *HandleService) decide(ctx context.Context, db *gorm.DB, normalized, excludeProfileID string) (Availability, availabilityKind, error) {
	reason, reserved, err := repo.ReservedReason(ctx, db, normalized)
	if err != nil {
		return Availability{}, availFree, err
	}
	if reserved {
		return Availability{
			Available:   false,
			Reason:      fmt.Sprintf("this handle is reserved (%s)", reason),
			Suggestions: handle.SuggestReserved(normalized),
		}, availReserved, nil
	}

	exists, err := repo.HandleExists(ctx, db, normalized, excludeProfileID)
	if err != nil {
		return Availability{}, availFree, err
	}
	if exists {
		return Availability{
			Available:   false,
			Reason:      "this handle is already taken",
			Suggestions: handle.SuggestTaken(normalized, s.Tags, s.TagLen),
		}, availTaken, nil
	}

	return Availability{Available: true}, availFree, nil
}

// Rename changes the handle of profileID to raw, preserving the caller's
// casing while enforcing the grammar, the reserved registry, global
// case-insensitive uniqueness, and the cooldown between counted renames.
//
// A case-only change (same normalized value, different casing) is exempt
// from the cooldown, writes no history, and leaves the change counter
// untouched: it cannot collide with any other profile's canonical handle.
// This mirrors the long-standing product behavior and is intentional.
//
// Business rejections are returned as typed errors (ValidationError,
// ReservedError, TakenError, RateLimitedError, ErrProfileNotFound); any
// other error is a storage failure.
func (s *HandleService) Rename(ctx context.Context, profileID, raw string) (*RenameResult, error) {
	tr := otel.Tracer("services/HandleService")
	ctx, span := tr.Start(ctx, "Rename",
		trace.WithAttributes(attribute.String("profile.id", profileID)),
	)
	defer span.End()

	display := handle.Clean(raw)
	normalized, err := handle.Validate(raw)
	if err != nil {
		var ie *handle.InvalidError
		if errors.As(err, &ie) {
			renameOutcomes.WithLabelValues(outcomeRejected).Inc()
			return nil, &ValidationError{Reason: ie.Reason}
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("handle.normalized", normalized))

	res, ev, err := s.renameTx(ctx, profileID, display, normalized)
	if errors.Is(err, errLostRace) {
		// The advisory check passed but another writer committed the same
		// canonical handle first. Retry the whole transaction once; a
		// second loss is reported as taken.
		renameOutcomes.WithLabelValues(outcomeConflict).Inc()
		res, ev, err = s.renameTx(ctx, profileID, display, normalized)
		if errors.Is(err, errLostRace) {
			return nil, &TakenError{Suggestions: handle.SuggestTaken(normalized, s.Tags, s.TagLen)}
		}
	}
	if err != nil {
		if isBusinessRejection(err) {
			renameOutcomes.WithLabelValues(outcomeRejected).Inc()
		}
		return nil, err
	}

	if res.CaseOnly {
		renameOutcomes.WithLabelValues(outcomeCaseOnly).Inc()
	} else {
		renameOutcomes.WithLabelValues(outcomeCommitted).Inc()
		s.publish(ctx, ev)
	}
	return res, nil
}

// renameTx runs one attempt of the rename transaction. It returns
// errLostRace when the commit hit the uniqueness index.
func (s *HandleService) renameTx(ctx context.Context, profileID, display, normalized string) (*RenameResult, RenameEvent, error) {
	var (
		res RenameResult
		ev  RenameEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetProfile(ctx, tx, profileID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		now := s.now()

		// Case-only shortcut: the canonical value is unchanged, so no
		// rate limit, no history, no counter.
		if p.HandleLower != nil && *p.HandleLower == normalized {
			if p.Handle != nil && *p.Handle == display {
				res = RenameResult{Handle: display, Message: "handle unchanged", CaseOnly: true}
				return nil
			}
			if err := repo.UpdateHandleCasing(ctx, tx, profileID, display); err != nil {
				return err
			}
			res = RenameResult{
				Handle:   display,
				Message:  fmt.Sprintf("handle casing updated to @%s", display),
				CaseOnly: true,
			}
			return nil
		}

		if p.HandleUpdatedAt != nil {
			if next := p.HandleUpdatedAt.Add(s.cooldown()); now.Before(next) {
				return &RateLimitedError{NextAllowedAt: next}
			}
		}

		av, kind, err := s.decide(ctx, tx, normalized, profileID)
		if err != nil {
			return err
		}
		switch kind {
		case availReserved:
			return &ReservedError{Reason: av.Reason, Suggestions: av.Suggestions}
		case availTaken:
			return &TakenError{Suggestions: av.Suggestions}
		}

		// Only a transition between two handles is documented; the very
		// first assignment has no old handle to record.
		var oldHandle string
		if p.Handle != nil {
			oldHandle = *p.Handle
			if err := repo.CreateHandleHistory(ctx, tx, profileID, oldHandle, display, now); err != nil {
				return err
			}
		}

		if err := repo.CommitRename(ctx, tx, profileID, display, normalized, now); err != nil {
			if repo.IsUniqueViolation(err) {
				return errLostRace
			}
			return err
		}

		res = RenameResult{Handle: display, Message: fmt.Sprintf("handle updated to @%s", display)}
		ev = RenameEvent{ProfileID: profileID, OldHandle: oldHandle, NewHandle: display, ChangedAt: now}
		return nil
	})
	if err != nil {
		return nil, RenameEvent{}, err
	}
	return &res, ev, nil
}

// publish hands the rename event to the configured publisher. Failures
// are logged and swallowed: the rename has already committed.
func (s *HandleService) publish(ctx context.Context, ev RenameEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishRename(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("profile_id", ev.ProfileID).
			Str("new_handle", ev.NewHandle).
			Msg("rename event publish failed")
	}
}

// Search returns profiles whose handle contains the normalized query as a
// substring, ranked exact-first, then prefix, then shorter, then
// lexicographic. It is a plain read and may be served from a replica.
func (s *HandleService) Search(ctx context.Context, rawQuery string, limit int) ([]domain.Profile, error) {
	tr := otel.Tracer("services/HandleService")
	ctx, span := tr.Start(ctx, "Search")
	defer span.End()

	q := handle.Normalize(rawQuery)
	if q == "" {
		return []domain.Profile{}, nil
	}
	max := s.SearchMaxLimit
	if max <= 0 {
		max = 20
	}
	if limit <= 0 || limit > max {
		limit = max
	}
	return repo.SearchByHandle(ctx, s.DB, q, limit)
}

// History returns the rename audit trail of a profile, newest first. The
// profile must exist.
func (s *HandleService) History(ctx context.Context, profileID string, limit int) ([]domain.HandleHistory, error) {
	tr := otel.Tracer("services/HandleService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(attribute.String("profile.id", profileID)),
	)
	defer span.End()

	if _, err := repo.GetProfile(ctx, s.DB, profileID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return repo.ListHandleHistory(ctx, s.DB, profileID, limit)
}

// Resolve maps a handle to its current owner. A handle that is nobody's
// current handle falls back to the rename history: the most recent
// profile to relinquish it wins, and the result is flagged as redirected
// so routing can issue a permanent redirect to the owner's current
// handle.
func (s *HandleService) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	tr := otel.Tracer("services/HandleService")
	ctx, span := tr.Start(ctx, "Resolve")
	defer span.End()

	normalized := handle.Normalize(raw)
	if normalized == "" {
		return nil, ErrProfileNotFound
	}

	p, err := repo.FindByHandleLower(ctx, s.DB, normalized)
	if err == nil {
		return &Resolution{Profile: p, Handle: deref(p.Handle)}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	h, err := repo.FindFormerOwner(ctx, s.DB, normalized)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	p, err = repo.GetProfile(ctx, s.DB, h.ProfileID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &Resolution{Profile: p, Handle: deref(p.Handle), Redirected: true}, nil
}

// isBusinessRejection reports whether err belongs to the recoverable
// business taxonomy rather than the storage failure class.
func isBusinessRejection(err error) bool {
	var (
		ve *ValidationError
		re *ReservedError
		te *TakenError
		rl *RateLimitedError
	)
	return errors.Is(err, ErrProfileNotFound) ||
		errors.As(err, &ve) || errors.As(err, &re) ||
		errors.As(err, &te) || errors.As(err, &rl)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
