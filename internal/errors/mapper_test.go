package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrUnauthenticated:         http.StatusUnauthorized,
		ErrExpired:                 http.StatusUnauthorized,
		ErrReplayed:                http.StatusUnauthorized,
		ErrForbidden:               http.StatusForbidden,
		ErrApprovalNotFound:        http.StatusNotFound,
		ErrAlreadyResolved:         http.StatusConflict,
		ErrDuplicateName:           http.StatusConflict,
		ErrCollaboratorUnavailable: http.StatusServiceUnavailable,
		ErrRateLimited:             http.StatusTooManyRequests,
		errors.New("boom"):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
}

func TestMapError(t *testing.T) {
	m := NewDefaultErrorMapper()

	assert.Nil(t, m.MapError(nil))
	assert.ErrorIs(t, m.MapError(context.Canceled), context.Canceled)
	assert.ErrorIs(t, m.MapError(context.DeadlineExceeded), ErrCollaboratorUnavailable)
	assert.ErrorIs(t, m.MapError(errors.New("dial tcp: connection refused")), ErrCollaboratorUnavailable)
	assert.ErrorIs(t, m.MapError(errors.New("429 too many requests")), ErrRateLimited)
	assert.ErrorIs(t, m.MapError(errors.New("odd")), ErrInternal)

	kept := fmt.Errorf("ctx: %w", ErrReplayed)
	assert.Same(t, kept, m.MapError(kept))
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure(Wrap(ErrForbidden, "x")))
	assert.True(t, IsAuthFailure(ErrExpired))
	assert.False(t, IsAuthFailure(ErrCollaboratorUnavailable))
	assert.Equal(t, "approval_not_found", Code(NotFound("abc")))
}
