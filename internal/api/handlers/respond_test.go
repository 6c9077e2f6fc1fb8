package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hugh/go-identity/internal/api/middleware"
	"github.com/hugh/go-identity/internal/errs"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteError(t *testing.T) {
	r := httptest.NewRequest("GET", "/users/1", nil)

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"bad request", errs.BadRequest("Email is already in use"), http.StatusBadRequest, "Email is already in use"},
		{"forbidden", errs.Forbidden("User is not active"), http.StatusForbidden, "User is not active"},
		{"not found", errs.NotFound("Requested user has not been found"), http.StatusNotFound, "Requested user has not been found"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, r, discardLogger(), tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.body)
			assert.NotContains(t, rr.Body.String(), "pq:")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	rr := httptest.NewRecorder()
	ok := decodeJSON(rr, httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a"}`)), &v)
	assert.True(t, ok)
	assert.Equal(t, "a", v.Name)

	rr = httptest.NewRecorder()
	ok = decodeJSON(rr, httptest.NewRequest("POST", "/", strings.NewReader(`{`)), &v)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCaller(t *testing.T) {
	rr := httptest.NewRecorder()
	_, ok := caller(rr, httptest.NewRequest("GET", "/", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	want := middleware.Identity{UserID: "u1", Role: "admin"}
	r := httptest.NewRequest("GET", "/", nil)
	r = r.WithContext(middleware.WithIdentity(r.Context(), want))

	rr = httptest.NewRecorder()
	got, ok := caller(rr, r)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
