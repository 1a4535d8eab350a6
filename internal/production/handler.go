package production

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atelier-erp/atelier-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the production module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.handleCreateItem)
	r.Get("/items", h.handleListItems)
	r.Post("/stages/{stage}/start", h.handleStartStage)
	r.Post("/stages/{stage}/complete", h.handleCompleteStage)
	r.Get("/history", h.handleHistory)
}

type createItemRequest struct {
	ClientName string `json:"client_name" validate:"required"`
	ProductRef string `json:"product_ref" validate:"required"`
	Category   string `json:"category" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
}

type startStageRequest struct {
	ProductRefs []string `json:"product_refs" validate:"required,min=1"`
}

type completeStageRequest struct {
	ProductRefs     []string `json:"product_refs" validate:"required,min=1"`
	DurationMinutes int      `json:"duration_minutes" validate:"gte=0"`
	HasCutting      bool     `json:"has_cutting"`
}

type itemResponse struct {
	ID         int64     `json:"id"`
	ClientName string    `json:"client_name"`
	ProductRef string    `json:"product_ref"`
	Category   string    `json:"category"`
	Quantity   int       `json:"quantity"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type stageResultResponse struct {
	Updated []itemResponse `json:"updated"`
	Skipped []string       `json:"skipped"`
}

type historyEntryResponse struct {
	ID              int64     `json:"id"`
	ItemID          int64     `json:"item_id"`
	ProductRef      string    `json:"product_ref"`
	Stage           Stage     `json:"stage"`
	FromStatus      Status    `json:"from_status"`
	ToStatus        Status    `json:"to_status"`
	DurationMinutes int       `json:"duration_minutes"`
	Origin          string    `json:"origin"`
	CreatedAt       time.Time `json:"created_at"`
}

func toHistoryEntryResponse(e HistoryEntry) historyEntryResponse {
	return historyEntryResponse{
		ID:              e.ID,
		ItemID:          e.ItemID,
		ProductRef:      e.ProductRef,
		Stage:           e.Stage,
		FromStatus:      e.FromStatus,
		ToStatus:        e.ToStatus,
		DurationMinutes: e.DurationMinutes,
		Origin:          e.Origin,
		CreatedAt:       e.CreatedAt,
	}
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:         item.ID,
		ClientName: item.ClientName,
		ProductRef: item.ProductRef,
		Category:   item.Category,
		Quantity:   item.Quantity,
		Status:     item.Status,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func toStageResultResponse(result StageResult) stageResultResponse {
	out := stageResultResponse{Updated: []itemResponse{}, Skipped: result.Skipped}
	if out.Skipped == nil {
		out.Skipped = []string{}
	}
	for _, item := range result.Updated {
		out.Updated = append(out.Updated, toItemResponse(item))
	}
	return out
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		ClientName: req.ClientName,
		ProductRef: req.ProductRef,
		Category:   strings.ToUpper(req.Category),
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.respondError(w, r, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

// defaultListLimit bounds HTTP listings when the client sends no limit
// parameter. The service and repository honour whatever limit they are given.
const defaultListLimit = 100

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ItemFilter{
		ClientName: q.Get("client"),
		ProductRef: q.Get("product_ref"),
		Status:     Status(q.Get("status")),
	}
	filter.Limit = defaultListLimit
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			httpx.ValidationProblem(w, map[string]string{"limit": "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list items", err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleStartStage(w http.ResponseWriter, r *http.Request) {
	var req startStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	result, err := h.service.StartStage(r.Context(), StartStageInput{
		Stage:       stageParam(r),
		ProductRefs: req.ProductRefs,
	})
	if err != nil {
		h.respondError(w, r, "start stage", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStageResultResponse(result))
}

func (h *Handler) handleCompleteStage(w http.ResponseWriter, r *http.Request) {
	var req completeStageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	result, err := h.service.CompleteStage(r.Context(), CompleteStageInput{
		Stage:           stageParam(r),
		ProductRefs:     req.ProductRefs,
		DurationMinutes: req.DurationMinutes,
		HasCutting:      req.HasCutting,
	})
	if err != nil {
		h.respondError(w, r, "complete stage", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStageResultResponse(result))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{
		ProductRef: q.Get("product_ref"),
		Stage:      Stage(strings.ToUpper(q.Get("stage"))),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"from": "invalid date"})
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"to": "invalid date"})
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Limit = defaultListLimit
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			httpx.ValidationProblem(w, map[string]string{"limit": "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	entries, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list history", err)
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": out})
}

func stageParam(r *http.Request) Stage {
	return Stage(strings.ToUpper(chi.URLParam(r, "stage")))
}

func (h *Handler) validate(req any) map[string]string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
	} else {
		fields["payload"] = err.Error()
	}
	return fields
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStage),
		errors.Is(err, ErrUnknownStatus),
		errors.Is(err, ErrInvalidDuration):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
