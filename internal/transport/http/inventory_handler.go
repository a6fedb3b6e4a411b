package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "serialgate/internal/errors"
	"serialgate/internal/inventory"
	"serialgate/internal/store"
)

// InventoryService is the inventory manager surface the handler needs.
type InventoryService interface {
	AddSerial(ctx context.Context, value string) (int64, error)
	UpdateSerial(ctx context.Context, id int64, value string, status bool) error
	DeleteSerial(ctx context.Context, id int64) error
	ListSerials(ctx context.Context) ([]store.Serial, error)
	ListBindings(ctx context.Context) ([]store.UsageBinding, error)
}

// InventoryHandler serves the bearer-gated admin CRUD surface over the
// serial inventory.
type InventoryHandler struct {
	manager InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(manager InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		manager: manager,
		logger:  logger.With(slog.String("handler", "inventory")),
	}
}

// AddSerialRequest is the payload for POST /api/adddata.
type AddSerialRequest struct {
	Serial string `json:"serial" validate:"required"`
}

// UpdateSerialRequest is the payload for PUT /api/updatedata/{id}.
type UpdateSerialRequest struct {
	Serial string `json:"serial" validate:"required"`
	Status bool   `json:"status"`
}

// AddSerial handles POST /api/adddata.
func (h *InventoryHandler) AddSerial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AddSerialRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := validate.Struct(req); err != nil {
		render.Render(w, r, apierrors.ErrValidation("serial", "serial is required"))
		return
	}

	id, err := h.manager.AddSerial(ctx, req.Serial)
	if err != nil {
		if errors.Is(err, inventory.ErrDuplicate) {
			render.Render(w, r, apierrors.ErrConflict)
			return
		}
		h.logger.ErrorContext(ctx, "add serial failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	render.JSON(w, r, map[string]any{
		"message": "Serial added.",
		"id":      id,
	})
}

// UpdateSerial handles PUT /api/updatedata/{id}. Changing the value or
// status releases any usage binding so the serial can be re-activated.
func (h *InventoryHandler) UpdateSerial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Render(w, r, apierrors.ErrValidation("id", "id must be an integer"))
		return
	}

	var req UpdateSerialRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := validate.Struct(req); err != nil {
		render.Render(w, r, apierrors.ErrValidation("serial", "serial is required"))
		return
	}

	if err := h.manager.UpdateSerial(ctx, id, req.Serial, req.Status); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			render.Render(w, r, apierrors.ErrSerialNotFound)
			return
		}
		if errors.Is(err, inventory.ErrDuplicate) {
			render.Render(w, r, apierrors.ErrConflict)
			return
		}
		h.logger.ErrorContext(ctx, "update serial failed",
			slog.Int64("serial_id", id),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	render.JSON(w, r, map[string]any{"message": "Serial updated."})
}

// DeleteSerial handles DELETE /api/deletedata/{id}.
func (h *InventoryHandler) DeleteSerial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Render(w, r, apierrors.ErrValidation("id", "id must be an integer"))
		return
	}

	if err := h.manager.DeleteSerial(ctx, id); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			render.Render(w, r, apierrors.ErrSerialNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "delete serial failed",
			slog.Int64("serial_id", id),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	render.JSON(w, r, map[string]any{"message": "Serial deleted."})
}

// GetData handles GET /api/getdata with an optional dataselect query
// of dataserials or dataused; without it both projections return.
func (h *InventoryHandler) GetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.URL.Query().Get("dataselect") {
	case "dataserials":
		serials, err := h.manager.ListSerials(ctx)
		if err != nil {
			render.Render(w, r, apierrors.StorageError(err))
			return
		}
		render.JSON(w, r, map[string]any{"serials": serials})

	case "dataused":
		used, err := h.manager.ListBindings(ctx)
		if err != nil {
			render.Render(w, r, apierrors.StorageError(err))
			return
		}
		render.JSON(w, r, map[string]any{"used": used})

	case "":
		serials, err := h.manager.ListSerials(ctx)
		if err != nil {
			render.Render(w, r, apierrors.StorageError(err))
			return
		}
		used, err := h.manager.ListBindings(ctx)
		if err != nil {
			render.Render(w, r, apierrors.StorageError(err))
			return
		}
		render.JSON(w, r, map[string]any{"serials": serials, "used": used})

	default:
		render.Render(w, r, apierrors.ErrValidation("dataselect", "must be dataserials or dataused"))
	}
}

// GetUsed handles GET /api/getused.
func (h *InventoryHandler) GetUsed(w http.ResponseWriter, r *http.Request) {
	used, err := h.manager.ListBindings(r.Context())
	if err != nil {
		render.Render(w, r, apierrors.StorageError(err))
		return
	}
	render.JSON(w, r, map[string]any{"used": used})
}
