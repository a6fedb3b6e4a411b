// Package version gates client access by build version.
package version

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"serialgate/internal/store"
)

// Store is the subset of the credential store the gate reads from.
type Store interface {
	CurrentVersion(ctx context.Context) (string, error)
}

// Gate compares a client-declared version against the single
// authoritative version record.
type Gate struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewGate creates a version gate over the given store.
func NewGate(s Store, logger *slog.Logger) *Gate {
	return &Gate{
		store:   s,
		logger:  logger.With(slog.String("component", "version_gate")),
		timeout: 5 * time.Second,
	}
}

// CheckVersion returns true only on an exact match against the stored
// version. The gate fails closed: an empty client version, a missing
// record, or an unreachable store all mean "update required". Nothing
// is mutated.
func (g *Gate) CheckVersion(ctx context.Context, clientVersion string) bool {
	if clientVersion == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	current, err := g.store.CurrentVersion(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.ErrorContext(ctx, "version lookup failed",
				slog.String("error", err.Error()))
		}
		return false
	}

	ok := current == clientVersion
	g.logger.InfoContext(ctx, "version checked",
		slog.String("client_version", clientVersion),
		slog.Bool("supported", ok))
	return ok
}
