package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atelier-erp/atelier-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/references", h.handleList)
	r.Put("/references", h.handleUpsert)
	r.Get("/references/{externalCode}", h.handleResolve)
}

type upsertRequest struct {
	ExternalCode    string `json:"external_code" validate:"required"`
	InternalCode    string `json:"internal_code" validate:"required"`
	Category        string `json:"category" validate:"required"`
	DefaultSupplier string `json:"default_supplier"`
}

type referenceResponse struct {
	ExternalCode    string    `json:"external_code"`
	InternalCode    string    `json:"internal_code"`
	Category        string    `json:"category"`
	DefaultSupplier string    `json:"default_supplier"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toReferenceResponse(ref Reference) referenceResponse {
	return referenceResponse{
		ExternalCode:    ref.ExternalCode,
		InternalCode:    ref.InternalCode,
		Category:        ref.Category,
		DefaultSupplier: ref.DefaultSupplier,
		UpdatedAt:       ref.UpdatedAt,
	}
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ref, err := h.service.Resolve(r.Context(), chi.URLParam(r, "externalCode"))
	if err != nil {
		h.respondError(w, r, "resolve reference", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReferenceResponse(ref))
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.ValidationProblem(w, fields)
		return
	}
	ref, err := h.service.Upsert(r.Context(), UpsertInput{
		ExternalCode:    req.ExternalCode,
		InternalCode:    req.InternalCode,
		Category:        req.Category,
		DefaultSupplier: req.DefaultSupplier,
	})
	if err != nil {
		h.respondError(w, r, "upsert reference", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReferenceResponse(ref))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Category: r.URL.Query().Get("category")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httpx.ValidationProblem(w, map[string]string{"limit": "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	refs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list references", err)
		return
	}
	out := make([]referenceResponse, 0, len(refs))
	for _, ref := range refs {
		out = append(out, toReferenceResponse(ref))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"references": out})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrReferenceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidReference):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
