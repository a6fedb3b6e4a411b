package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialgate/internal/auth"
	apierrors "serialgate/internal/errors"
	"serialgate/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthority(t *testing.T, opts ...auth.Option) *auth.Authority {
	t.Helper()

	mem := store.NewMemoryStore()
	hash, err := auth.HashPassword("hunter2", 4)
	require.NoError(t, err)
	_, err = mem.CreateUser(context.Background(), "admin", hash)
	require.NoError(t, err)

	authority, err := auth.NewAuthority(mem, []byte("test-secret"), discardLogger(), opts...)
	require.NoError(t, err)
	return authority
}

func protectedEndpoint(t *testing.T, authority *auth.Authority) http.Handler {
	t.Helper()

	bearer := NewBearerAuth(authority, discardLogger())
	return bearer.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(identity.Username))
	}))
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	authority := newAuthority(t)
	handler := protectedEndpoint(t, authority)

	token, err := authority.Authenticate(context.Background(), "admin", "hunter2")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestBearerAuthRejections(t *testing.T) {
	authority := newAuthority(t)
	handler := protectedEndpoint(t, authority)

	tests := []struct {
		name     string
		header   string
		wantType string
	}{
		{
			name:     "no header",
			header:   "",
			wantType: apierrors.TypeUnauthorized,
		},
		{
			name:     "wrong scheme",
			header:   "Basic YWRtaW46aHVudGVyMg==",
			wantType: apierrors.TypeUnauthorized,
		},
		{
			name:     "empty bearer",
			header:   "Bearer ",
			wantType: apierrors.TypeUnauthorized,
		},
		{
			name:     "garbage token",
			header:   "Bearer not.a.jwt",
			wantType: apierrors.TypeTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)

			var problem map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantType, problem["type"])
		})
	}
}

func TestBearerAuthExpiredTokenIsDistinct(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	authority := newAuthority(t, auth.WithClock(func() time.Time { return clock }))
	handler := protectedEndpoint(t, authority)

	token, err := authority.Authenticate(context.Background(), "admin", "hunter2")
	require.NoError(t, err)

	clock = issued.Add(2 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, apierrors.TypeTokenExpired, problem["type"])
}
