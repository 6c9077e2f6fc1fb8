package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hugh/go-identity/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"bad request", errs.BadRequest("missing email"), http.StatusBadRequest},
		{"unauthorized", errs.Unauthorized("bad password"), http.StatusUnauthorized},
		{"forbidden", errs.Forbidden("inactive"), http.StatusForbidden},
		{"not found", errs.NotFound("no user"), http.StatusNotFound},
		{"wrapped", fmt.Errorf("loading: %w", errs.NotFound("no user")), http.StatusNotFound},
		{"plain error", errors.New("db exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errs.HTTPStatus(tt.err))
		})
	}
}

func TestIs_MatchesKindSentinel(t *testing.T) {
	err := errs.Forbidden("Account is not active")

	assert.True(t, errors.Is(err, errs.ErrForbidden))
	assert.False(t, errors.Is(err, errs.ErrUnauthorized))
	assert.False(t, errors.Is(err, errs.ErrNotFound))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("record not found")
	err := errs.Wrap(errs.KindNotFound, "Requested user has not been found", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, "Requested user has not been found", err.Error())
}

func TestMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "Internal server error", errs.Message(errors.New("pq: connection refused")))
	assert.Equal(t, "Account is not active", errs.Message(errs.Forbidden("Account is not active")))
}
