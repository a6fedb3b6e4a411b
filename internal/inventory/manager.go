// Package inventory is the administrative CRUD surface over the serial
// inventory and its usage bindings. Every operation assumes the caller
// was already authorized by the session authority.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"serialgate/internal/store"
)

// Sentinel errors surfaced to the transport layer.
var (
	ErrNotFound  = errors.New("serial not found")
	ErrDuplicate = errors.New("serial already exists")
)

// Store is the subset of the credential store the manager needs.
type Store interface {
	CreateSerial(ctx context.Context, value string) (int64, error)
	UpdateSerial(ctx context.Context, id int64, value string, status bool) error
	DeleteSerial(ctx context.Context, id int64) error
	ListSerials(ctx context.Context) ([]store.Serial, error)
	ListBindings(ctx context.Context) ([]store.UsageBinding, error)
}

// Manager exposes serial inventory management to authenticated
// administrators.
type Manager struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewManager creates an inventory manager over the given store.
func NewManager(s Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:   s,
		logger:  logger.With(slog.String("component", "inventory_manager")),
		timeout: 10 * time.Second,
	}
}

// AddSerial inserts a new unconsumed serial and returns its id.
func (m *Manager) AddSerial(ctx context.Context, value string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	id, err := m.store.CreateSerial(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("create serial: %w", err)
	}

	m.logger.InfoContext(ctx, "serial added", slog.Int64("serial_id", id))
	return id, nil
}

// UpdateSerial rewrites a serial. A changed value or status deletes
// the serial's usage binding in the same transaction, re-opening the
// serial for activation by a corrected device.
func (m *Manager) UpdateSerial(ctx context.Context, id int64, value string, status bool) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.UpdateSerial(ctx, id, value, status); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, store.ErrDuplicate):
			return ErrDuplicate
		}
		return fmt.Errorf("update serial: %w", err)
	}

	m.logger.InfoContext(ctx, "serial updated",
		slog.Int64("serial_id", id),
		slog.Bool("status", status))
	return nil
}

// DeleteSerial removes a serial from the inventory. Bindings that
// referenced it are left in place as a usage audit trail; they no
// longer resolve to a serial.
func (m *Manager) DeleteSerial(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.DeleteSerial(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete serial: %w", err)
	}

	m.logger.InfoContext(ctx, "serial deleted", slog.Int64("serial_id", id))
	return nil
}

// ListSerials returns a snapshot of the serial inventory.
func (m *Manager) ListSerials(ctx context.Context) ([]store.Serial, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.ListSerials(ctx)
}

// ListBindings returns a snapshot of the usage bindings.
func (m *Manager) ListBindings(ctx context.Context) ([]store.UsageBinding, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.ListBindings(ctx)
}
