package domain

import "errors"

// Error taxonomy shared by every layer. Managers return these wrapped with
// context; the HTTP gateway maps them to status codes at the boundary.
var (
	// ErrNotFound means the entity is missing — or that its existence is
	// intentionally hidden from a principal holding no role on it.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the entity is visible to the principal but the
	// held roles are insufficient for the requested operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized means no principal could be resolved for the request.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal covers storage/transaction failures, hook rejections and
	// post-condition violations. Opaque to callers, logged with full context.
	ErrInternal = errors.New("internal error")

	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
)
