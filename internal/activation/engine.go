// Package activation implements the serial activation and
// device-binding decision engine.
//
// An activation consumes a serial on behalf of a device, identified by
// its MAC address. A serial can be consumed at most once and a device
// can hold at most one binding for its lifetime. The engine returns
// business outcomes as values; the only error condition is storage
// unavailability.
package activation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"serialgate/internal/store"
)

// Result is the outcome of an activation attempt. Every value except
// StorageUnavailable is a terminal business decision; only
// StorageUnavailable is retryable.
type Result int

const (
	// Activated means the serial was consumed and the binding created.
	Activated Result = iota

	// AlreadyBoundSame means the device already holds a binding for
	// this exact serial. Upstream treats this as success.
	AlreadyBoundSame

	// DeviceAlreadyBound means the device holds a binding for a
	// different serial. One device, one serial.
	DeviceAlreadyBound

	// SerialAlreadyConsumed means another device activated this serial
	// first.
	SerialAlreadyConsumed

	// InvalidSerial means no serial with this value exists.
	InvalidSerial

	// StorageUnavailable means the credential store could not answer.
	StorageUnavailable
)

// String returns the snake_case name used in logs and metrics.
func (r Result) String() string {
	switch r {
	case Activated:
		return "activated"
	case AlreadyBoundSame:
		return "already_bound_same"
	case DeviceAlreadyBound:
		return "device_already_bound"
	case SerialAlreadyConsumed:
		return "serial_already_consumed"
	case InvalidSerial:
		return "invalid_serial"
	case StorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// Store is the subset of the credential store the engine needs.
type Store interface {
	BindingByDevice(ctx context.Context, macAddress string) (store.UsageBinding, error)
	SerialByValue(ctx context.Context, value string) (store.Serial, error)
	BindDevice(ctx context.Context, macAddress, serialValue string) error
}

// Engine decides whether a presented serial may be consumed by a
// device. The read-decide-write sequence is safe under concurrency
// because the commit step (Store.BindDevice) is a single atomic
// conditional operation: the loser of a race re-surfaces here as
// SerialAlreadyConsumed or DeviceAlreadyBound, never as corrupt state.
type Engine struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewEngine creates an activation engine over the given store.
func NewEngine(s Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		logger:  logger.With(slog.String("component", "activation_engine")),
		timeout: 10 * time.Second,
	}
}

// Activate runs the activation protocol for one serial/device pair.
//
//  1. A device that already holds a binding gets AlreadyBoundSame or
//     DeviceAlreadyBound depending on whether the bound serial matches.
//  2. An unknown serial is InvalidSerial; a consumed one is
//     SerialAlreadyConsumed.
//  3. Otherwise the serial is consumed and the binding written in one
//     atomic store operation.
//
// The returned error is non-nil only alongside StorageUnavailable.
func (e *Engine) Activate(ctx context.Context, serial, deviceID string) (Result, error) {
	tracer := otel.Tracer("activation-engine")
	ctx, span := tracer.Start(ctx, "activation.activate",
		trace.WithAttributes(
			attribute.String("activation.device_id", deviceID),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.activate(ctx, serial, deviceID)

	span.SetAttributes(attribute.String("activation.result", result.String()))
	if err != nil {
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "activation storage failure",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()))
		return result, err
	}

	// Business rejections are expected outcomes, logged at info only.
	e.logger.InfoContext(ctx, "activation decided",
		slog.String("device_id", deviceID),
		slog.String("result", result.String()))
	return result, nil
}

func (e *Engine) activate(ctx context.Context, serial, deviceID string) (Result, error) {
	binding, err := e.store.BindingByDevice(ctx, deviceID)
	switch {
	case err == nil:
		if binding.Serial == serial {
			return AlreadyBoundSame, nil
		}
		return DeviceAlreadyBound, nil
	case !errors.Is(err, store.ErrNotFound):
		return StorageUnavailable, err
	}

	rec, err := e.store.SerialByValue(ctx, serial)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return InvalidSerial, nil
	case err != nil:
		return StorageUnavailable, err
	case rec.Status:
		return SerialAlreadyConsumed, nil
	}

	// Commit. The store's conditional flip plus the mac_address unique
	// index decide races that happened after the reads above.
	switch err := e.store.BindDevice(ctx, deviceID, serial); {
	case err == nil:
		return Activated, nil
	case errors.Is(err, store.ErrSerialConsumed):
		return SerialAlreadyConsumed, nil
	case errors.Is(err, store.ErrDeviceBound):
		return DeviceAlreadyBound, nil
	case errors.Is(err, store.ErrNotFound):
		// Serial deleted between read and commit.
		return InvalidSerial, nil
	default:
		return StorageUnavailable, err
	}
}

// DeviceUsage reports whether a device already holds a usage binding.
func (e *Engine) DeviceUsage(ctx context.Context, deviceID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	_, err := e.store.BindingByDevice(ctx, deviceID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
