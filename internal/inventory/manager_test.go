package inventory

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialgate/internal/activation"
	"serialgate/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddSerial(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(store.NewMemoryStore(), testLogger())

	id, err := manager.AddSerial(ctx, "NEW-1")
	require.NoError(t, err)
	assert.NotZero(t, id)

	// Re-inserting the same value is a duplicate.
	_, err = manager.AddSerial(ctx, "NEW-1")
	assert.ErrorIs(t, err, ErrDuplicate)

	serials, err := manager.ListSerials(ctx)
	require.NoError(t, err)
	require.Len(t, serials, 1)
	assert.Equal(t, "NEW-1", serials[0].Value)
	assert.False(t, serials[0].Status)
}

func TestUpdateSerialDuplicateValue(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(store.NewMemoryStore(), testLogger())

	_, err := manager.AddSerial(ctx, "DUP-A")
	require.NoError(t, err)
	idB, err := manager.AddSerial(ctx, "DUP-B")
	require.NoError(t, err)

	// Renaming one serial onto another's value is a conflict, not a
	// storage failure.
	assert.ErrorIs(t, manager.UpdateSerial(ctx, idB, "DUP-A", false), ErrDuplicate)
}

func TestUpdateSerialUnknownID(t *testing.T) {
	manager := NewManager(store.NewMemoryStore(), testLogger())

	err := manager.UpdateSerial(context.Background(), 999, "X", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestUpdateSerialReleasesBinding covers the correction flow: editing a
// consumed serial drops its usage binding so a corrected device can
// activate it.
func TestUpdateSerialReleasesBinding(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	manager := NewManager(mem, testLogger())
	engine := activation.NewEngine(mem, testLogger())

	id, err := manager.AddSerial(ctx, "TYPO-1")
	require.NoError(t, err)

	result, err := engine.Activate(ctx, "TYPO-1", "wrong-device")
	require.NoError(t, err)
	require.Equal(t, activation.Activated, result)

	// Reset the serial back to unconsumed.
	require.NoError(t, manager.UpdateSerial(ctx, id, "TYPO-1", false))

	bindings, err := manager.ListBindings(ctx)
	require.NoError(t, err)
	assert.Empty(t, bindings)

	// The right device can now take it.
	result, err = engine.Activate(ctx, "TYPO-1", "right-device")
	require.NoError(t, err)
	assert.Equal(t, activation.Activated, result)
}

func TestUpdateSerialSameFieldsKeepsBinding(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	manager := NewManager(mem, testLogger())
	engine := activation.NewEngine(mem, testLogger())

	id, err := manager.AddSerial(ctx, "KEEP-1")
	require.NoError(t, err)

	_, err = engine.Activate(ctx, "KEEP-1", "device-a")
	require.NoError(t, err)

	// No-op rewrite: value and status unchanged.
	require.NoError(t, manager.UpdateSerial(ctx, id, "KEEP-1", true))

	bindings, err := manager.ListBindings(ctx)
	require.NoError(t, err)
	assert.Len(t, bindings, 1)
}

func TestDeleteSerial(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	manager := NewManager(mem, testLogger())
	engine := activation.NewEngine(mem, testLogger())

	id, err := manager.AddSerial(ctx, "GONE-1")
	require.NoError(t, err)

	_, err = engine.Activate(ctx, "GONE-1", "device-a")
	require.NoError(t, err)

	require.NoError(t, manager.DeleteSerial(ctx, id))

	serials, err := manager.ListSerials(ctx)
	require.NoError(t, err)
	assert.Empty(t, serials)

	// Bindings survive as an audit trail.
	bindings, err := manager.ListBindings(ctx)
	require.NoError(t, err)
	assert.Len(t, bindings, 1)

	// Deleting again reports the miss.
	assert.ErrorIs(t, manager.DeleteSerial(ctx, id), ErrNotFound)
}
