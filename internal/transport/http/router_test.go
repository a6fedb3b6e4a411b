package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/require"

	"serialgate/internal/activation"
	"serialgate/internal/auth"
	"serialgate/internal/inventory"
	"serialgate/internal/middleware"
	"serialgate/internal/store"
	"serialgate/internal/version"
)

// testEnv wires the full handler surface over a memory store, the same
// shape the application router uses.
type testEnv struct {
	store     *store.MemoryStore
	authority *auth.Authority
	router    *chi.Mux
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	mem := store.NewMemoryStore()

	engine := activation.NewEngine(mem, logger)
	gate := version.NewGate(mem, logger)
	manager := inventory.NewManager(mem, logger)

	authority, err := auth.NewAuthority(mem, []byte("test-secret"), logger)
	require.NoError(t, err)

	activationHandler := NewActivationHandler(engine, gate, logger)
	authHandler := NewAuthHandler(authority, logger)
	inventoryHandler := NewInventoryHandler(manager, logger)
	healthHandler := NewHealthHandler(mem, "test", logger)

	r := chi.NewRouter()
	r.Post("/login", authHandler.Login)
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/verify_serial", activationHandler.VerifySerial)
		r.Get("/version", activationHandler.Version)
		r.Get("/computer_usage", activationHandler.ComputerUsage)

		r.Group(func(r chi.Router) {
			bearer := middleware.NewBearerAuth(authority, logger)
			r.Use(bearer.Handler)

			r.Post("/adddata", inventoryHandler.AddSerial)
			r.Put("/updatedata/{id}", inventoryHandler.UpdateSerial)
			r.Delete("/deletedata/{id}", inventoryHandler.DeleteSerial)
			r.Get("/getdata", inventoryHandler.GetData)
			r.Get("/getused", inventoryHandler.GetUsed)
		})
	})

	return &testEnv{store: mem, authority: authority, router: r}
}

// seedAdmin creates an administrator and returns a fresh bearer token.
func (e *testEnv) seedAdmin(t *testing.T, username, password string) string {
	t.Helper()

	hash, err := auth.HashPassword(password, 4)
	require.NoError(t, err)
	_, err = e.store.CreateUser(context.Background(), username, hash)
	require.NoError(t, err)

	token, err := e.authority.Authenticate(context.Background(), username, password)
	require.NoError(t, err)
	return token
}

// do executes a request against the test router and decodes the JSON
// response body into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, target, token string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
			"body: %s", rec.Body.String())
	}
	return rec
}

// verify executes the client activation request for a serial/device
// pair.
func (e *testEnv) verify(t *testing.T, serial, device string) (int, activationResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/verify_serial?serial="+serial, nil)
	if device != "" {
		req.Header.Set("mac_address", device)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp activationResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}
