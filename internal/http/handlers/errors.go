// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` and `reject()` helpers in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., invalid_handle, handle_reserved, handle_taken)
//     distinguish the three rejection classes of a rename, which clients render
//     differently (format hint vs. suggestion chips vs. retry-later banner).
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "handle_taken",
//	  "message": "this handle is already taken",
//	  "suggestions": ["tomk1", "tomk_", "tomk2", "tomk.x7k2"]
//	}
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeInvalidHandle    = "invalid_handle"
	ErrCodeHandleReserved   = "handle_reserved"
	ErrCodeHandleTaken      = "handle_taken"
	ErrCodeRenameFailed     = "rename_failed"
	ErrCodeSearchFailed     = "search_failed"
	ErrCodeBackfillFailed   = "backfill_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
