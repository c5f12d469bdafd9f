package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/handler/dto"
	"github.com/spotshare/spotshare/internal/middleware"
	"github.com/spotshare/spotshare/internal/service"
)

// UserHandler handles signup, login and user listing.
type UserHandler struct {
	svc          *service.UserService
	logger       *slog.Logger
	maxImageSize int64
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger, maxImageSize int64) *UserHandler {
	if maxImageSize <= 0 {
		maxImageSize = service.DefaultMaxImageSize
	}
	return &UserHandler{
		svc:          svc,
		logger:       logger,
		maxImageSize: maxImageSize,
	}
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserList(users))
}

// Signup handles POST /api/users/signup (multipart).
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	image, err := parseForm(r, h.maxImageSize)
	if err != nil {
		h.invalidInput(w, r, err)
		return
	}

	name, _ := formValue(r, "name")
	email, _ := formValue(r, "email")
	password, _ := formValue(r, "password")
	if !middleware.WithinLength(name, middleware.MaxNameLength) ||
		!middleware.WithinLength(email, middleware.MaxEmailLength) ||
		!middleware.WithinLength(password, middleware.MaxPasswordLength) {
		writeError(w, http.StatusUnprocessableEntity, string(apperror.KindValidation), msgInvalidInputs)
		return
	}

	result, err := h.svc.Signup(r.Context(), service.SignupInput{
		Name:     name,
		Email:    email,
		Password: password,
		Image:    image,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Login handles POST /api/users/login (JSON).
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.invalidInput(w, r, err)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *UserHandler) invalidInput(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("invalid request body",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusUnprocessableEntity, string(apperror.KindValidation), msgInvalidInputs)
}
