// Package auth implements the session authority for the admin API:
// credential verification and stateless bearer tokens.
//
// Tokens are HS256-signed JWTs carrying the administrator's id and
// username with a fixed expiry. There is no revocation list; expiry is
// the only deactivation mechanism, so validation never touches shared
// state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"serialgate/internal/store"
)

// Sentinel errors. ErrTokenExpired and ErrTokenInvalid are distinct so
// callers can tell "log in again" from "tampered or garbage token".
var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
)

// DefaultTokenTTL is the fixed token lifetime.
const DefaultTokenTTL = time.Hour

// Identity is the authenticated administrator encoded in a token.
type Identity struct {
	UserID   int64
	Username string
}

// Store is the subset of the credential store the authority reads.
type Store interface {
	UserByUsername(ctx context.Context, username string) (store.User, error)
}

type sessionClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authority issues and validates bearer tokens for administrative
// identities.
type Authority struct {
	store  Store
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authority) { a.ttl = ttl }
}

// WithClock overrides the time source. Tests use this to walk tokens
// past their expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// NewAuthority creates a session authority signing with the given
// secret.
func NewAuthority(s Store, secret []byte, logger *slog.Logger, opts ...Option) (*Authority, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	a := &Authority{
		store:  s,
		secret: secret,
		ttl:    DefaultTokenTTL,
		logger: logger.With(slog.String("component", "session_authority")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate verifies a username/password pair against the stored
// bcrypt hash and issues a signed token on success. Unknown users and
// wrong passwords both return ErrBadCredentials; the caller learns
// nothing about which half failed.
func (a *Authority) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := a.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison anyway so response timing does not
			// reveal whether the username exists.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			a.logger.InfoContext(ctx, "login rejected", slog.String("username", username))
			return "", ErrBadCredentials
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		a.logger.InfoContext(ctx, "login rejected", slog.String("username", username))
		return "", ErrBadCredentials
	}

	token, err := a.issue(user)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	a.logger.InfoContext(ctx, "login succeeded",
		slog.String("username", username),
		slog.Int64("user_id", user.ID))
	return token, nil
}

func (a *Authority) issue(user store.User) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	return token.SignedString(a.secret)
}

// ValidateToken verifies signature and expiry and returns the encoded
// identity. Expired tokens yield ErrTokenExpired; everything else
// wrong with the token yields ErrTokenInvalid.
func (a *Authority) ValidateToken(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return &Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// HashPassword produces a bcrypt hash for storing new administrator
// credentials.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummyHash is compared against when the username is unknown. Cost
// matches bcrypt.DefaultCost.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("serialgate-dummy"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()
