// Package store provides durable storage for the serial inventory,
// device usage bindings, version records and administrative users.
//
// Two implementations exist: a Postgres-backed store built on gorm
// (the production path) and a mutex-guarded in-memory store used for
// development and tests. Both provide the same atomicity guarantees
// for the multi-write operations BindDevice and UpdateSerial.
package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. Callers decide
// business outcomes from these; anything else is a storage failure.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSerialConsumed indicates the serial's status was already true
	// when a conditional consume was attempted.
	ErrSerialConsumed = errors.New("serial already consumed")

	// ErrDeviceBound indicates a usage binding already exists for the
	// device's MAC address.
	ErrDeviceBound = errors.New("device already bound")

	// ErrDuplicate indicates a uniqueness constraint was violated on
	// insert, e.g. adding a serial value that already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// Serial is a license string that can be consumed by exactly one device.
// Status flips to true once some device activates it.
type Serial struct {
	ID     int64  `json:"id"`
	Value  string `json:"serial"`
	Status bool   `json:"status"`
}

// UsageBinding pairs a device MAC address with the serial it consumed.
// At most one binding exists per MAC address.
type UsageBinding struct {
	ID         int64  `json:"id"`
	MACAddress string `json:"mac_address"`
	Serial     string `json:"serial"`
}

// User is an administrative identity. Passwords are stored as bcrypt
// hashes, never plaintext.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// Store is the persistence contract shared by the Postgres and
// in-memory implementations.
type Store interface {
	// SerialByValue looks up a serial by its exact license string.
	SerialByValue(ctx context.Context, value string) (Serial, error)

	// SerialByID looks up a serial by primary key.
	SerialByID(ctx context.Context, id int64) (Serial, error)

	// CreateSerial inserts a new unconsumed serial and returns its id.
	// Returns ErrDuplicate if the value already exists.
	CreateSerial(ctx context.Context, value string) (int64, error)

	// UpdateSerial rewrites a serial's value and status. When either
	// field differs from the stored row, any usage binding referencing
	// the serial is deleted in the same transaction, re-opening the
	// serial for activation. Returns ErrNotFound for an unknown id and
	// ErrDuplicate when the new value collides with another serial.
	UpdateSerial(ctx context.Context, id int64, value string, status bool) error

	// DeleteSerial removes a serial row. Returns ErrNotFound for an
	// unknown id. Usage bindings referencing the serial are left in
	// place as an audit trail.
	DeleteSerial(ctx context.Context, id int64) error

	// ListSerials returns all serials ordered by id.
	ListSerials(ctx context.Context) ([]Serial, error)

	// BindingByDevice looks up the usage binding for a MAC address.
	BindingByDevice(ctx context.Context, macAddress string) (UsageBinding, error)

	// ListBindings returns all usage bindings ordered by id.
	ListBindings(ctx context.Context) ([]UsageBinding, error)

	// BindDevice atomically consumes a serial on behalf of a device:
	// it flips the serial's status from false to true and inserts the
	// usage binding in a single transaction. The status flip is a
	// conditional update, so a concurrent winner leaves the loser with
	// ErrSerialConsumed rather than corrupt state; the unique index on
	// mac_address turns a concurrent double-bind into ErrDeviceBound.
	// ErrNotFound is returned when the serial does not exist at commit
	// time. Either both writes apply or neither does.
	BindDevice(ctx context.Context, macAddress, serialValue string) error

	// CurrentVersion returns the authoritative client version string,
	// or ErrNotFound when no version record exists.
	CurrentVersion(ctx context.Context) (string, error)

	// UserByUsername looks up an administrative user.
	UserByUsername(ctx context.Context, username string) (User, error)

	// CreateUser inserts an administrative user with a pre-hashed
	// password and returns its id.
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)

	// CountUsers reports the number of administrative users.
	CountUsers(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
