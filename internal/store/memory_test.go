package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMemoryStoreSerialLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	id, err := mem.CreateSerial(ctx, "LIFE-1")
	require.NoError(t, err)

	_, err = mem.CreateSerial(ctx, "LIFE-1")
	assert.ErrorIs(t, err, ErrDuplicate)

	serial, err := mem.SerialByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "LIFE-1", serial.Value)
	assert.False(t, serial.Status)

	serial, err = mem.SerialByValue(ctx, "LIFE-1")
	require.NoError(t, err)
	assert.Equal(t, id, serial.ID)

	require.NoError(t, mem.DeleteSerial(ctx, id))
	assert.ErrorIs(t, mem.DeleteSerial(ctx, id), ErrNotFound)

	_, err = mem.SerialByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreBindDevice(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	_, err := mem.CreateSerial(ctx, "BIND-1")
	require.NoError(t, err)
	_, err = mem.CreateSerial(ctx, "BIND-2")
	require.NoError(t, err)

	require.NoError(t, mem.BindDevice(ctx, "mac-a", "BIND-1"))

	// The flip is visible.
	serial, err := mem.SerialByValue(ctx, "BIND-1")
	require.NoError(t, err)
	assert.True(t, serial.Status)

	// A bound device cannot take another serial.
	assert.ErrorIs(t, mem.BindDevice(ctx, "mac-a", "BIND-2"), ErrDeviceBound)

	// A consumed serial cannot be taken by another device.
	assert.ErrorIs(t, mem.BindDevice(ctx, "mac-b", "BIND-1"), ErrSerialConsumed)

	// Unknown serial.
	assert.ErrorIs(t, mem.BindDevice(ctx, "mac-c", "GHOST"), ErrNotFound)

	// The losing serial stayed open.
	serial, err = mem.SerialByValue(ctx, "BIND-2")
	require.NoError(t, err)
	assert.False(t, serial.Status)
}

func TestMemoryStoreBindDeviceConcurrent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	_, err := mem.CreateSerial(ctx, "RACE-1")
	require.NoError(t, err)

	const racers = 24
	wins := make(chan string, racers)

	g := new(errgroup.Group)
	for i := 0; i < racers; i++ {
		mac := fmt.Sprintf("mac-%02d", i)
		g.Go(func() error {
			switch err := mem.BindDevice(ctx, mac, "RACE-1"); err {
			case nil:
				wins <- mac
				return nil
			case ErrSerialConsumed:
				return nil
			default:
				return fmt.Errorf("unexpected error for %s: %w", mac, err)
			}
		})
	}
	require.NoError(t, g.Wait())
	close(wins)

	var winners []string
	for mac := range wins {
		winners = append(winners, mac)
	}
	require.Len(t, winners, 1)

	binding, err := mem.BindingByDevice(ctx, winners[0])
	require.NoError(t, err)
	assert.Equal(t, "RACE-1", binding.Serial)

	bindings, err := mem.ListBindings(ctx)
	require.NoError(t, err)
	assert.Len(t, bindings, 1)
}

func TestMemoryStoreUpdateSerialReleasesBinding(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	id, err := mem.CreateSerial(ctx, "REL-1")
	require.NoError(t, err)
	require.NoError(t, mem.BindDevice(ctx, "mac-a", "REL-1"))

	// Status change drops the binding.
	require.NoError(t, mem.UpdateSerial(ctx, id, "REL-1", false))

	_, err = mem.BindingByDevice(ctx, "mac-a")
	assert.ErrorIs(t, err, ErrNotFound)

	// No-op update keeps a fresh binding in place.
	require.NoError(t, mem.BindDevice(ctx, "mac-b", "REL-1"))
	require.NoError(t, mem.UpdateSerial(ctx, id, "REL-1", true))

	_, err = mem.BindingByDevice(ctx, "mac-b")
	assert.NoError(t, err)
}

func TestMemoryStoreUpdateSerialRejectsValueCollision(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	idA, err := mem.CreateSerial(ctx, "VAL-A")
	require.NoError(t, err)
	idB, err := mem.CreateSerial(ctx, "VAL-B")
	require.NoError(t, err)

	// Renaming B onto A's value must fail like the unique index would.
	assert.ErrorIs(t, mem.UpdateSerial(ctx, idB, "VAL-A", false), ErrDuplicate)

	// B is untouched and each value still resolves to one row.
	serialB, err := mem.SerialByID(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, "VAL-B", serialB.Value)

	serialA, err := mem.SerialByValue(ctx, "VAL-A")
	require.NoError(t, err)
	assert.Equal(t, idA, serialA.ID)

	// Consuming VAL-A still consumes the only row holding it.
	require.NoError(t, mem.BindDevice(ctx, "mac-a", "VAL-A"))
	assert.ErrorIs(t, mem.BindDevice(ctx, "mac-b", "VAL-A"), ErrSerialConsumed)

	// Keeping a serial's own value is not a collision.
	assert.NoError(t, mem.UpdateSerial(ctx, idA, "VAL-A", false))
}

func TestMemoryStoreVersion(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	_, err := mem.CurrentVersion(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	mem.SeedVersion("1.2.3")
	v, err := mem.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	count, err := mem.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = mem.CreateUser(ctx, "admin", "hash")
	require.NoError(t, err)

	_, err = mem.CreateUser(ctx, "admin", "other-hash")
	assert.ErrorIs(t, err, ErrDuplicate)

	user, err := mem.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", user.PasswordHash)

	count, err = mem.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStoreListOrdering(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	for i := 0; i < 5; i++ {
		_, err := mem.CreateSerial(ctx, fmt.Sprintf("ORD-%d", i))
		require.NoError(t, err)
	}

	serials, err := mem.ListSerials(ctx)
	require.NoError(t, err)
	require.Len(t, serials, 5)
	for i := 1; i < len(serials); i++ {
		assert.Less(t, serials[i-1].ID, serials[i].ID)
	}
}
