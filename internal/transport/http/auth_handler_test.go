package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "admin", "hunter2")

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{
			name:     "valid credentials",
			body:     LoginRequest{Username: "admin", Password: "hunter2"},
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			body:     LoginRequest{Username: "admin", Password: "wrong"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown user",
			body:     LoginRequest{Username: "ghost", Password: "hunter2"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing password",
			body:     map[string]string{"username": "admin"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing username",
			body:     map[string]string{"password": "hunter2"},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp LoginResponse
			var rec *httptest.ResponseRecorder
			if tt.wantCode == http.StatusOK {
				rec = env.do(t, http.MethodPost, "/login", "", tt.body, &resp)
				assert.NotEmpty(t, resp.Token)
			} else {
				rec = env.do(t, http.MethodPost, "/login", "", tt.body, nil)
			}
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestLoginMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRejectionIsProblemJSON(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "admin", "hunter2")

	var body map[string]any
	rec := env.do(t, http.MethodPost, "/login", "",
		LoginRequest{Username: "admin", Password: "wrong"}, &body)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/errors/auth/bad-credentials", body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
}
