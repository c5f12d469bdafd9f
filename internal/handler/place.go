package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/handler/dto"
	"github.com/spotshare/spotshare/internal/middleware"
	"github.com/spotshare/spotshare/internal/service"
)

const (
	msgInvalidInputs = "Invalid inputs passed, please check your data."
	msgPlaceDeleted  = "Deleted place."
)

// PlaceHandler handles HTTP requests for place operations.
type PlaceHandler struct {
	svc          *service.PlaceService
	logger       *slog.Logger
	maxImageSize int64
}

// NewPlaceHandler creates a new PlaceHandler.
func NewPlaceHandler(svc *service.PlaceService, logger *slog.Logger, maxImageSize int64) *PlaceHandler {
	if maxImageSize <= 0 {
		maxImageSize = service.DefaultMaxImageSize
	}
	return &PlaceHandler{
		svc:          svc,
		logger:       logger,
		maxImageSize: maxImageSize,
	}
}

// Get handles GET /api/places/{pid}.
func (h *PlaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	place, err := h.svc.Get(r.Context(), chi.URLParam(r, "pid"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PlaceEnvelope{Place: dto.ToPlaceResponse(place)})
}

// ListByUser handles GET /api/places/user/{uid}.
func (h *PlaceHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	places, err := h.svc.ListByUser(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToPlaceList(places))
}

// Create handles POST /api/places (multipart).
func (h *PlaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	image, err := parseForm(r, h.maxImageSize)
	if err != nil {
		h.invalidInput(w, r, err)
		return
	}

	title, _ := formValue(r, "title")
	description, _ := formValue(r, "description")
	address, _ := formValue(r, "address")
	if !middleware.WithinLength(title, middleware.MaxTitleLength) ||
		!middleware.WithinLength(description, middleware.MaxDescriptionLength) ||
		!middleware.WithinLength(address, middleware.MaxAddressLength) {
		writeError(w, http.StatusUnprocessableEntity, string(apperror.KindValidation), msgInvalidInputs)
		return
	}

	place, err := h.svc.Create(r.Context(), auth.UserIDFromContext(r.Context()), service.CreatePlaceInput{
		Title:       title,
		Description: description,
		Address:     address,
		Image:       image,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlaceEnvelope{Place: dto.ToPlaceResponse(place)})
}

// Update handles PATCH /api/places/{pid}. The body is either multipart,
// which may carry a replacement image, or JSON with text fields only.
func (h *PlaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdatePlaceInput

	if isMultipart(r) {
		image, err := parseForm(r, h.maxImageSize)
		if err != nil {
			h.invalidInput(w, r, err)
			return
		}
		in.Image = image
		if title, ok := formValue(r, "title"); ok {
			in.Title = &title
		}
		if description, ok := formValue(r, "description"); ok {
			in.Description = &description
		}
	} else {
		var req dto.UpdatePlaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.invalidInput(w, r, err)
			return
		}
		in.Title = req.Title
		in.Description = req.Description
	}

	if (in.Title != nil && !middleware.WithinLength(*in.Title, middleware.MaxTitleLength)) ||
		(in.Description != nil && !middleware.WithinLength(*in.Description, middleware.MaxDescriptionLength)) {
		writeError(w, http.StatusUnprocessableEntity, string(apperror.KindValidation), msgInvalidInputs)
		return
	}

	place, err := h.svc.Update(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "pid"), in)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PlaceEnvelope{Place: dto.ToPlaceResponse(place)})
}

// Delete handles DELETE /api/places/{pid}.
func (h *PlaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pid")

	if err := h.svc.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: msgPlaceDeleted})
}

func (h *PlaceHandler) invalidInput(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("invalid request body",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusUnprocessableEntity, string(apperror.KindValidation), msgInvalidInputs)
}
