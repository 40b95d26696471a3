package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorMapper maps errors from collaborators and transports onto the taxonomy.
type ErrorMapper interface {
	MapError(err error) error
	Category(err error) string
}

type DefaultErrorMapper struct{}

func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError keeps taxonomy errors and context cancellation intact and folds
// transport failures into ErrCollaboratorUnavailable.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if Code(err) != "internal" || errors.Is(err, ErrInternal) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("collaborator timed out: %w", ErrCollaboratorUnavailable)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("network error: %v: %w", err, ErrCollaboratorUnavailable)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "unreachable"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "status 5"):
		return fmt.Errorf("%v: %w", err, ErrCollaboratorUnavailable)
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("%v: %w", err, ErrRateLimited)
	default:
		return fmt.Errorf("%v: %w", err, ErrInternal)
	}
}

func (m *DefaultErrorMapper) Category(err error) string {
	return Code(err)
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrReplayed):
		return "replayed"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "collaborator_unavailable"
	case errors.Is(err, ErrApprovalTimeout):
		return "approval_timeout"
	case errors.Is(err, ErrApprovalNotFound):
		return "approval_not_found"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

// HTTPStatus is the response status for err. All authentication failures
// share 401 except Forbidden.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "unauthenticated", "expired", "replayed":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "no_match", "approval_not_found":
		return http.StatusNotFound
	case "collaborator_unavailable":
		return http.StatusServiceUnavailable
	case "approval_timeout":
		return http.StatusRequestTimeout
	case "already_resolved", "duplicate_name":
		return http.StatusConflict
	case "invalid_input":
		return http.StatusBadRequest
	case "rate_limited":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsAuthFailure reports whether err must terminate the request with no
// retry or fallback.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrReplayed) || errors.Is(err, ErrForbidden)
}

func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func Unavailable(message string) error {
	return fmt.Errorf("%s: %w", message, ErrCollaboratorUnavailable)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func NotFound(id string) error {
	return fmt.Errorf("approval %s: %w", id, ErrApprovalNotFound)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
