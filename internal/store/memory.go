package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used for development and tests.
// A single mutex serializes every operation, which gives the same
// all-or-nothing behavior for BindDevice and UpdateSerial that the
// Postgres implementation gets from transactions.
type MemoryStore struct {
	mu       sync.Mutex
	serials  map[int64]*Serial
	bindings map[string]*UsageBinding
	users    map[string]*User
	version  string
	hasVer   bool
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		serials:  make(map[int64]*Serial),
		bindings: make(map[string]*UsageBinding),
		users:    make(map[string]*User),
		nextID:   1,
	}
}

// SeedVersion sets the authoritative version record. Used by the
// memory driver at startup and by tests.
func (m *MemoryStore) SeedVersion(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	m.hasVer = version != ""
}

func (m *MemoryStore) alloc() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *MemoryStore) SerialByValue(ctx context.Context, value string) (Serial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.serials {
		if s.Value == value {
			return *s, nil
		}
	}
	return Serial{}, ErrNotFound
}

func (m *MemoryStore) SerialByID(ctx context.Context, id int64) (Serial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.serials[id]; ok {
		return *s, nil
	}
	return Serial{}, ErrNotFound
}

func (m *MemoryStore) CreateSerial(ctx context.Context, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.serials {
		if s.Value == value {
			return 0, ErrDuplicate
		}
	}
	id := m.alloc()
	m.serials[id] = &Serial{ID: id, Value: value, Status: false}
	return id, nil
}

func (m *MemoryStore) UpdateSerial(ctx context.Context, id int64, value string, status bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.serials[id]
	if !ok {
		return ErrNotFound
	}
	// Renaming onto another serial's value would leave two rows
	// sharing one value, same as the unique index forbids in Postgres.
	for otherID, other := range m.serials {
		if otherID != id && other.Value == value {
			return ErrDuplicate
		}
	}
	if s.Value != value || s.Status != status {
		for mac, b := range m.bindings {
			if b.Serial == s.Value {
				delete(m.bindings, mac)
			}
		}
	}
	s.Value = value
	s.Status = status
	return nil
}

func (m *MemoryStore) DeleteSerial(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.serials[id]; !ok {
		return ErrNotFound
	}
	delete(m.serials, id)
	return nil
}

func (m *MemoryStore) ListSerials(ctx context.Context) ([]Serial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Serial, 0, len(m.serials))
	for _, s := range m.serials {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) BindingByDevice(ctx context.Context, macAddress string) (UsageBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bindings[macAddress]; ok {
		return *b, nil
	}
	return UsageBinding{}, ErrNotFound
}

func (m *MemoryStore) ListBindings(ctx context.Context) ([]UsageBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UsageBinding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) BindDevice(ctx context.Context, macAddress, serialValue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bindings[macAddress]; ok {
		return ErrDeviceBound
	}

	var target *Serial
	for _, s := range m.serials {
		if s.Value == serialValue {
			target = s
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}
	if target.Status {
		return ErrSerialConsumed
	}

	target.Status = true
	id := m.alloc()
	m.bindings[macAddress] = &UsageBinding{ID: id, MACAddress: macAddress, Serial: serialValue}
	return nil
}

func (m *MemoryStore) CurrentVersion(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasVer {
		return "", ErrNotFound
	}
	return m.version, nil
}

func (m *MemoryStore) UserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		return *u, nil
	}
	return User{}, ErrNotFound
}

func (m *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return 0, ErrDuplicate
	}
	id := m.alloc()
	m.users[username] = &User{ID: id, Username: username, PasswordHash: passwordHash}
	return id, nil
}

func (m *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
