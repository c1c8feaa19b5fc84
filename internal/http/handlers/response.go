// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, consistent JSON serialization, and
// helpers for common HTTP patterns. The goal is to guarantee uniform responses
// for both success and failure cases, making the API predictable and
// machine-friendly.
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - Rejections of a rename that carry follow-up data (alternative handles,
//     the end of a cooldown window) use RenameRejection, which extends the
//     base envelope without changing its shape.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `ok()` simplifies writing success responses in a consistent shape.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "handle_taken",
//	  "message": "this handle is already taken",
//	  "suggestions": ["tomk1", "tomk_", "tomk2", "tomk.x7k2"]
//	}
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parfive/go-handle-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
//
// This struct is used in OpenAPI documentation via Swagger annotations.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// RenameRejection extends ErrorResponse for business rejections of a
// rename request. Suggestions lists alternative handles when the target is
// reserved or taken; NextAllowedAt is set when the rename hit the cooldown.
type RenameRejection struct {
	ErrorResponse
	// Alternative handles offered when the target is reserved or taken
	Suggestions []string `json:"suggestions,omitempty" example:"tomk1,tomk_,tomk2"`
	// End of the cooldown window, for too_many_requests rejections
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// It constructs an ErrorResponse, writes it as JSON with the given HTTP status,
// and calls gin.Context.AbortWithStatusJSON to stop further processing.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// reject aborts the request with a RenameRejection. Business rejections are
// client-side outcomes and are never logged as errors.
func reject(c *gin.Context, status int, code, msg string, suggestions []string, nextAllowedAt *time.Time) {
	c.AbortWithStatusJSON(status, RenameRejection{
		ErrorResponse: ErrorResponse{
			RequestID: c.Writer.Header().Get("X-Request-ID"),
			Code:      code,
			Message:   msg,
		},
		Suggestions:   suggestions,
		NextAllowedAt: nextAllowedAt,
	})
}

// ok writes a success JSON response.
//
// It serializes `body` as JSON with the given HTTP status code.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
