// Handle HTTP handlers.
//
// This file exposes REST endpoints for the handle subsystem:
//   - GET  /handles/availability        (check a candidate handle)
//   - PUT  /profiles/handle             (rename the caller's handle)
//   - GET  /handles/search              (substring search, ranked, ETag support)
//   - GET  /profiles/handle/history     (the caller's rename audit trail)
//   - GET  /handles/resolve/{handle}    (map a handle to its owner, via history)
//   - POST /admin/handles/backfill      (assign handles to profiles missing one)
//
// Handlers are transport-thin: they validate and normalize inputs, delegate
// to application services (HandleService, BackfillService), and translate
// typed business rejections into HTTP responses.
//
// Idempotency:
// If the client supplies an Idempotency-Key header on a rename and a previous
// successful result exists for (profile, key), the handler returns that
// recorded handle and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parfive/go-handle-backend/internal/domain"
	"github.com/parfive/go-handle-backend/internal/http/middleware"
	"github.com/parfive/go-handle-backend/internal/repo"
	"github.com/parfive/go-handle-backend/internal/services"
	"github.com/parfive/go-handle-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// HandleService defines the handle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type HandleService interface {
	// CheckAvailability decides whether raw may be assigned, excluding
	// excludeProfileID from the uniqueness lookup when non-empty.
	CheckAvailability(ctx context.Context, raw, excludeProfileID string) (services.Availability, error)
	// Rename changes the handle of profileID to raw.
	Rename(ctx context.Context, profileID, raw string) (*services.RenameResult, error)
	// Search returns profiles whose handle contains the query, ranked.
	Search(ctx context.Context, query string, limit int) ([]domain.Profile, error)
	// History returns the rename audit trail of a profile, newest first.
	History(ctx context.Context, profileID string, limit int) ([]domain.HandleHistory, error)
	// Resolve maps a handle to its current owner, falling back to history.
	Resolve(ctx context.Context, raw string) (*services.Resolution, error)
}

// BackfillService defines the one-shot handle assignment pass for profiles
// that predate handles.
type BackfillService interface {
	// Run assigns a handle to every profile missing one and reports how
	// many rows it touched.
	Run(ctx context.Context) (int, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the handle subsystem. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	handleSvc   HandleService
	backfillSvc BackfillService

	// IdempotencyTTL bounds how long a stored rename outcome can be
	// replayed; zero falls back to 24h.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(handleSvc HandleService, backfillSvc BackfillService) *Handlers {
	return &Handlers{handleSvc: handleSvc, backfillSvc: backfillSvc}
}

// profileID extracts the authenticated profile id from Gin context (set by
// upstream middleware). If absent, it falls back to "X-Profile-ID" header
// (tests use it), and finally to "demo-profile". It never touches c.Request
// if it's nil.
func profileID(c *gin.Context) string {
	if v, ok := c.Get("profileID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Profile-ID")); h != "" {
			return h
		}
	}
	return "demo-profile"
}

//
// DTOs
//

// UpdateHandleRequest is the JSON payload for changing the caller's handle.
type UpdateHandleRequest struct {
	// Handle is the requested handle; a leading "@" is tolerated and the
	// submitted casing is preserved for display.
	Handle string `json:"handle" binding:"required,min=1,max=64" example:"TomK"`
}

// ProfileSummary is the public projection of a profile returned by search
// and resolution endpoints. It deliberately omits private fields.
type ProfileSummary struct {
	ID          string `json:"id" example:"4f4fd94f-45fd-4161-83ba-3a9d2b432a4f"`
	Handle      string `json:"handle" example:"TomK"`
	DisplayName string `json:"display_name,omitempty" example:"Tom K."`
}

// SearchHandlesResponse contains ranked search results.
type SearchHandlesResponse struct {
	Profiles []ProfileSummary `json:"profiles"`
}

// HandleHistoryResponse contains a profile's rename audit trail, newest first.
type HandleHistoryResponse struct {
	Entries []domain.HandleHistory `json:"entries"`
}

// ResolveHandleResponse reports the owner of a handle. Redirected is true
// when the match came from the rename history rather than a current handle,
// in which case Handle carries the owner's current handle.
type ResolveHandleResponse struct {
	Profile    ProfileSummary `json:"profile"`
	Handle     string         `json:"handle" example:"tomk2"`
	Redirected bool           `json:"redirected"`
}

// BackfillResponse reports how many profiles received a handle.
type BackfillResponse struct {
	Assigned int `json:"assigned" example:"42"`
}

func summarize(p *domain.Profile) ProfileSummary {
	s := ProfileSummary{ID: p.ID, DisplayName: p.DisplayName}
	if p.Handle != nil {
		s.Handle = *p.Handle
	}
	return s
}

//
// Handlers
//

// CheckAvailability godoc
// @ID          checkHandleAvailability
// @Summary     Check handle availability
// @Description Reports whether the given handle could be assigned right now.
// @Description Unavailability is a normal 200 answer carrying a reason and,
// @Description for reserved or taken handles, alternative suggestions.
// @Tags        Handles
// @Produce     json
//
// @Param       handle   query   string  true   "Candidate handle (leading @ tolerated)"  example(TomK)
// @Param       X-Profile-ID  header  string  false  "Profile whose own handle is excluded from the uniqueness check"
//
// @Success     200  {object}  services.Availability
// @Failure     400  {object}  handlers.ErrorResponse  "Missing handle parameter"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /handles/availability [get]
func (h *Handlers) CheckAvailability(c *gin.Context) {
	ctx := c.Request.Context()

	raw := c.Query("handle")
	if strings.TrimSpace(raw) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "handle parameter required")
		return
	}

	av, err := h.handleSvc.CheckAvailability(ctx, raw, profileID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, av)
}

// UpdateHandle godoc
// @ID          updateHandle
// @Summary     Change the caller's handle
// @Description Renames the calling profile's handle, preserving the submitted
// @Description casing. Enforces the handle grammar, the reserved registry,
// @Description case-insensitive uniqueness, and a cooldown between renames.
// @Description Case-only changes bypass the cooldown and write no history.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Handles
// @Accept      json
// @Produce     json
//
// @Param       X-Profile-ID     header  string  true   "Calling profile ID"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.UpdateHandleRequest  true  "Requested handle"
//
// @Success     200  {object}  services.RenameResult
// @Failure     400  {object}  handlers.RenameRejection  "Malformed handle"
// @Failure     404  {object}  handlers.ErrorResponse    "Profile not found"
// @Failure     409  {object}  handlers.RenameRejection  "Handle reserved or taken"
// @Failure     429  {object}  handlers.RenameRejection  "Rename cooldown active"
// @Failure     500  {object}  handlers.ErrorResponse    "Internal error"
// @Router      /profiles/handle [put]
func (h *Handlers) UpdateHandle(c *gin.Context) {
	ctx := c.Request.Context()
	pid := profileID(c)

	var req UpdateHandleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "handle required")
		return
	}

	// Idempotency (replay path) – prefer the key stashed by the validator
	// middleware; fall back to the raw header when the route is mounted
	// without it. When the validator ran and found no stored outcome, the
	// replay lookup is skipped.
	idemKey, fromValidator := middleware.GetIdempotencyKey(c)
	if !fromValidator {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" && (!fromValidator || middleware.IsReplay(c)) {
		if db := h.serviceDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, pid, idemKey, time.Now().UTC()); err == nil && rec != nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, services.RenameResult{
					Handle:  rec.Handle,
					Message: fmt.Sprintf("handle updated to @%s", rec.Handle),
				})
				return
			}
		}
	}

	res, err := h.handleSvc.Rename(ctx, pid, req.Handle)
	if err != nil {
		h.rejectRename(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			ttl := h.IdempotencyTTL
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			_, _ = repo.CreateIdempotency(ctx, db, pid, idemKey, res.Handle, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, res)
}

// rejectRename translates a typed business rejection from the rename path
// into the matching HTTP response; anything untyped is a storage failure.
func (h *Handlers) rejectRename(c *gin.Context, err error) {
	var (
		ve *services.ValidationError
		re *services.ReservedError
		te *services.TakenError
		rl *services.RateLimitedError
	)
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
	case errors.As(err, &ve):
		reject(c, http.StatusBadRequest, ErrCodeInvalidHandle, ve.Reason, nil, nil)
	case errors.As(err, &re):
		reject(c, http.StatusConflict, ErrCodeHandleReserved, re.Reason, re.Suggestions, nil)
	case errors.As(err, &te):
		reject(c, http.StatusConflict, ErrCodeHandleTaken, te.Error(), te.Suggestions, nil)
	case errors.As(err, &rl):
		next := rl.NextAllowedAt.UTC()
		if retry := time.Until(next); retry > 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retry.Seconds())+1))
		}
		reject(c, http.StatusTooManyRequests, ErrCodeRateLimited, rl.Error(), nil, &next)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeRenameFailed, err.Error())
	}
}

// serviceDB exposes the concrete service's DB for the idempotency
// side-channel; nil when the handler is wired with a pure fake.
func (h *Handlers) serviceDB() *gorm.DB {
	if svc, ok := h.handleSvc.(*services.HandleService); ok {
		return svc.DB
	}
	return nil
}

// SearchHandles godoc
// @ID          searchHandles
// @Summary     Search handles
// @Description Case-insensitive substring search over assigned handles,
// @Description ranked exact match first, then prefix matches, then shorter
// @Description handles. Supports conditional requests via ETag.
// @Tags        Handles
// @Produce     json
//
// @Param       q      query  string  true   "Search query"  example(tom)
// @Param       limit  query  int     false  "Maximum results"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.SearchHandlesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing query"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /handles/search [get]
func (h *Handlers) SearchHandles(c *gin.Context) {
	ctx := c.Request.Context()

	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q parameter required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	// ETag pre-check (best effort): the result set can only change when a
	// handle is assigned or renamed, so count+max(updated_at) is a valid
	// validator for any query.
	if db := h.serviceDB(); db != nil {
		count, maxTS, err := repo.HandlesStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"handles:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.handleSvc.Search(ctx, q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}
	out := make([]ProfileSummary, 0, len(items))
	for i := range items {
		out = append(out, summarize(&items[i]))
	}
	ok(c, http.StatusOK, SearchHandlesResponse{Profiles: out})
}

// HandleHistory godoc
// @ID          handleHistory
// @Summary     The caller's rename history
// @Description Returns the calling profile's handle changes, newest first.
// @Description The very first handle assignment is not a change and does not
// @Description appear here. Supports conditional requests via ETag.
// @Tags        Handles
// @Produce     json
//
// @Param       X-Profile-ID  header  string  true   "Calling profile ID"
// @Param       limit         query   int     false  "Maximum entries"  minimum(1) maximum(100) default(100)
//
// @Success     200  {object}  handlers.HandleHistoryResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /profiles/handle/history [get]
func (h *Handlers) HandleHistory(c *gin.Context) {
	ctx := c.Request.Context()
	pid := profileID(c)
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	// ETag pre-check (best effort): history is append-only, so the record
	// count plus the newest changed_at validates any limit.
	if db := h.serviceDB(); db != nil {
		count, last, err := repo.HistoryStats(ctx, db, pid)
		if err == nil {
			var ts int64
			if last != nil {
				ts = last.Unix()
			}
			etag := fmt.Sprintf(`W/"history:%s:%d:%d"`, pid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	entries, err := h.handleSvc.History(ctx, pid, limit)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, HandleHistoryResponse{Entries: entries})
}

// ResolveHandle godoc
// @ID          resolveHandle
// @Summary     Resolve a handle to its owner
// @Description Maps a handle to the profile that currently holds it. A handle
// @Description nobody currently holds falls back to the rename history: the
// @Description most recent profile to relinquish it wins and the response is
// @Description flagged redirected, carrying the owner's current handle.
// @Tags        Handles
// @Produce     json
//
// @Param       handle  path  string  true  "Handle to resolve (leading @ tolerated)"  example(tomk)
//
// @Success     200  {object}  handlers.ResolveHandleResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No current or former owner"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /handles/resolve/{handle} [get]
func (h *Handlers) ResolveHandle(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := h.handleSvc.Resolve(ctx, c.Param("handle"))
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "handle not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ResolveHandleResponse{
		Profile:    summarize(res.Profile),
		Handle:     res.Handle,
		Redirected: res.Redirected,
	})
}

// RunBackfill godoc
// @ID          runHandleBackfill
// @Summary     Assign handles to profiles missing one
// @Description One-shot administrative pass that derives a handle for every
// @Description profile without one, in profile creation order, resolving
// @Description collisions with numeric suffixes. Safe to re-run; a second
// @Description pass assigns nothing.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object}  handlers.BackfillResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/handles/backfill [post]
func (h *Handlers) RunBackfill(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.backfillSvc.Run(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeBackfillFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, BackfillResponse{Assigned: n})
}
