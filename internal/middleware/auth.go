package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"serialgate/internal/auth"
	apierrors "serialgate/internal/errors"
)

// identityKey is the context key for the authenticated identity.
type identityKey struct{}

// TokenValidator is the part of the session authority the middleware
// needs.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Identity, error)
}

// BearerAuth gates admin routes on a valid bearer token. Expired and
// malformed tokens get distinct problem types so clients can tell "log
// in again" from "broken token".
type BearerAuth struct {
	authority TokenValidator
	logger    *slog.Logger
}

// NewBearerAuth creates the bearer-token middleware.
func NewBearerAuth(authority TokenValidator, logger *slog.Logger) *BearerAuth {
	return &BearerAuth{
		authority: authority,
		logger:    logger.With(slog.String("component", "bearer_auth")),
	}
}

// Handler validates the Authorization header and stores the identity
// in the request context.
func (b *BearerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			b.reject(w, r, apierrors.TypeUnauthorized, "Authentication Required",
				"A bearer token is required to access this resource")
			return
		}

		identity, err := b.authority.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				b.logger.InfoContext(ctx, "token rejected", slog.String("reason", "expired"))
				b.reject(w, r, apierrors.TypeTokenExpired, "Token Expired",
					"The token has expired, log in again")
			default:
				b.logger.InfoContext(ctx, "token rejected", slog.String("reason", "invalid"))
				b.reject(w, r, apierrors.TypeTokenInvalid, "Token Invalid",
					"The token signature or format is invalid")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey{}, identity)))
	})
}

func (b *BearerAuth) reject(w http.ResponseWriter, r *http.Request, problemType, title, detail string) {
	problem := apierrors.NewProblemDetails(http.StatusUnauthorized, problemType, title, detail, r.URL.Path).
		WithExtension("trace_id", GetReqID(r.Context()))
	render.Render(w, r, problem)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*auth.Identity)
	return identity, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
