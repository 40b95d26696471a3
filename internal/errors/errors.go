package errors

import (
	"errors"
)

// Sentinel errors. Callers match with errors.Is; wrapped messages add context.
var (
	// ErrUnauthenticated - missing, malformed or mismatched signature (fail closed)
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrExpired - signed timestamp outside the accepted window
	ErrExpired = errors.New("request expired")

	// ErrReplayed - nonce already seen for this service within the window
	ErrReplayed = errors.New("request replayed")

	// ErrForbidden - valid signer that is not on the route's allow-list
	ErrForbidden = errors.New("forbidden")

	// ErrNoMatch - registry miss; a routing signal, never surfaced to callers
	ErrNoMatch = errors.New("no matching skill")

	// ErrCollaboratorUnavailable - retrieval, inference, search or creation backend down
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrApprovalTimeout - approval not resolved within the maximum wait
	ErrApprovalTimeout = errors.New("approval timeout")

	// ErrApprovalNotFound - unknown approval id
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrAlreadyResolved - approval is no longer pending (resolved or expired)
	ErrAlreadyResolved = errors.New("approval already resolved")

	// ErrDuplicateName - a skill with this name is already registered
	ErrDuplicateName = errors.New("duplicate skill name")

	// ErrInvalidInput - malformed request or definition
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited - caller exceeded its submission rate
	ErrRateLimited = errors.New("rate limited")

	// ErrInternal - anything else
	ErrInternal = errors.New("internal error")
)
