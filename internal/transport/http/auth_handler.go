package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"serialgate/internal/auth"
	apierrors "serialgate/internal/errors"
	"serialgate/internal/middleware"
)

var validate = validator.New()

// SessionService is the session authority surface the handler needs.
type SessionService interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// AuthHandler serves administrator login.
type AuthHandler struct {
	authority SessionService
	logger    *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authority SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authority: authority,
		logger:    logger.With(slog.String("handler", "auth")),
	}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := validate.Struct(req); err != nil {
		render.Render(w, r, apierrors.ErrValidation("credentials", "username and password are required"))
		return
	}

	token, err := h.authority.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			problem := apierrors.NewProblemDetails(
				http.StatusUnauthorized,
				apierrors.TypeBadCredentials,
				"Authentication Failed",
				"Invalid username or password",
				r.URL.Path,
			).WithExtension("trace_id", middleware.GetReqID(ctx))
			render.Render(w, r, problem)
			return
		}

		h.logger.ErrorContext(ctx, "login failed on storage",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.StorageError(err))
		return
	}

	render.JSON(w, r, LoginResponse{Token: token})
}
