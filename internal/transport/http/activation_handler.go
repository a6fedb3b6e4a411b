// Package http contains the chi handlers for the public activation
// surface and the authenticated inventory API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"serialgate/internal/activation"
	apierrors "serialgate/internal/errors"
	"serialgate/internal/middleware"
)

// ActivationService is the engine surface the handler depends on.
type ActivationService interface {
	Activate(ctx context.Context, serial, deviceID string) (activation.Result, error)
	DeviceUsage(ctx context.Context, deviceID string) (bool, error)
}

// VersionService is the version gate surface the handler depends on.
type VersionService interface {
	CheckVersion(ctx context.Context, clientVersion string) bool
}

// ActivationHandler serves the unauthenticated client endpoints:
// serial verification, version gating and device-usage lookup.
type ActivationHandler struct {
	engine ActivationService
	gate   VersionService
	logger *slog.Logger
}

// NewActivationHandler creates a new activation handler.
func NewActivationHandler(engine ActivationService, gate VersionService, logger *slog.Logger) *ActivationHandler {
	return &ActivationHandler{
		engine: engine,
		gate:   gate,
		logger: logger.With(slog.String("handler", "activation")),
	}
}

// activationResponse is the payload shape the desktop client expects:
// outcome travels in "message" or "error", not the HTTP status.
type activationResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Result  string `json:"result,omitempty"`
}

// VerifySerial handles GET /api/verify_serial?serial=<s> with the
// device MAC address in the mac_address header.
func (h *ActivationHandler) VerifySerial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("activation-handler")
	start := time.Now()

	ctx, span := tracer.Start(ctx, "activation_handler.verify_serial",
		trace.WithAttributes(
			attribute.String("http.route", "/api/verify_serial"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	serial := r.URL.Query().Get("serial")
	deviceID := r.Header.Get("mac_address")

	if serial == "" {
		render.Render(w, r, apierrors.MissingParameter("serial"))
		return
	}
	if deviceID == "" {
		render.Render(w, r, apierrors.MissingParameter("mac_address"))
		return
	}

	result, err := h.engine.Activate(ctx, serial, deviceID)
	span.SetAttributes(
		attribute.String("activation.result", result.String()),
		attribute.Int64("request.latency_ms", time.Since(start).Milliseconds()),
	)

	if err != nil {
		span.RecordError(err)
		h.logger.ErrorContext(ctx, "activation failed on storage",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	msg, isError := activationMessage(result)
	resp := activationResponse{Result: result.String()}
	if isError {
		resp.Error = msg
	} else {
		resp.Message = msg
	}
	render.JSON(w, r, resp)
}

// Version handles GET /api/version with the client build version in
// the version header. Fail-closed: anything but an exact match means
// update required.
func (h *ActivationHandler) Version(w http.ResponseWriter, r *http.Request) {
	clientVersion := r.Header.Get("version")

	if h.gate.CheckVersion(r.Context(), clientVersion) {
		render.JSON(w, r, activationResponse{Message: msgVersionOK})
		return
	}
	render.JSON(w, r, activationResponse{Error: msgUpdateRequired})
}

// ComputerUsage handles GET /api/computer_usage with the device MAC
// address in the mac_address header. Reports whether the device
// already holds a usage binding.
func (h *ActivationHandler) ComputerUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.Header.Get("mac_address")

	if deviceID == "" {
		render.Render(w, r, apierrors.MissingParameter("mac_address"))
		return
	}

	used, err := h.engine.DeviceUsage(ctx, deviceID)
	if err != nil {
		h.logger.ErrorContext(ctx, "device usage lookup failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	if used {
		render.JSON(w, r, activationResponse{Message: msgAlreadyBoundSame})
		return
	}
	render.JSON(w, r, activationResponse{Error: msgNoUsageYet})
}
