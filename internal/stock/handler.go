package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier-erp/internal/platform/httpx"
	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.handleReceive)
	r.Post("/consumptions", h.handleConsume)
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/width-reductions", h.handleSplitWidth)
	r.Get("/movements", h.handleMovements)
	r.Get("/batches/{batchKey}", h.handleGetBatch)
}

type receiveRequest struct {
	MaterialExternalCode string          `json:"material_external_code" validate:"required"`
	BatchKey             string          `json:"batch_key"`
	SupplierBatchCode    string          `json:"supplier_batch_code"`
	Supplier             string          `json:"supplier"`
	Quantity             decimal.Decimal `json:"quantity"`
	Unit                 string          `json:"unit" validate:"required"`
	WidthMM              decimal.Decimal `json:"width_mm"`
	Location             string          `json:"location"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	Note                 string          `json:"note"`
	RefID                string          `json:"ref_id"`
}

type consumeRequest struct {
	BatchKey string          `json:"batch_key" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Kind     string          `json:"kind" validate:"required,oneof=EXIT CONSUMPTION"`
	Note     string          `json:"note"`
	Origin   string          `json:"origin"`
	RefID    string          `json:"ref_id"`
}

type adjustRequest struct {
	BatchKey  string           `json:"batch_key" validate:"required"`
	Location  *string          `json:"location"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Unit      *string          `json:"unit"`
	Note      string           `json:"note"`
}

type splitWidthRequest struct {
	BatchKey        string          `json:"batch_key" validate:"required"`
	WidthToRemoveMM decimal.Decimal `json:"width_to_remove_mm"`
	Note            string          `json:"note"`
}

type batchResponse struct {
	MaterialRef       string          `json:"material_ref"`
	BatchKey          string          `json:"batch_key"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              Unit            `json:"unit"`
	WidthMM           decimal.Decimal `json:"width_mm"`
	Location          string          `json:"location"`
	SupplierBatchCode string          `json:"supplier_batch_code"`
	Supplier          string          `json:"supplier"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type movementResponse struct {
	ID          int64           `json:"id"`
	Kind        MovementKind    `json:"kind"`
	MaterialRef string          `json:"material_ref"`
	BatchKey    string          `json:"batch_key"`
	QtyBefore   decimal.Decimal `json:"qty_before"`
	QtyDelta    decimal.Decimal `json:"qty_delta"`
	QtyAfter    decimal.Decimal `json:"qty_after"`
	Unit        Unit            `json:"unit"`
	Origin      string          `json:"origin"`
	Note        string          `json:"note,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toBatchResponse(b Batch) batchResponse {
	return batchResponse{
		MaterialRef:       b.MaterialRef,
		BatchKey:          b.BatchKey,
		Quantity:          b.Quantity,
		Unit:              b.Unit,
		WidthMM:           b.WidthMM,
		Location:          b.Location,
		SupplierBatchCode: b.SupplierBatchCode,
		Supplier:          b.Supplier,
		UnitPrice:         b.UnitPrice,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		Kind:        m.Kind,
		MaterialRef: m.MaterialRef,
		BatchKey:    m.BatchKey,
		QtyBefore:   m.QtyBefore,
		QtyDelta:    m.QtyDelta,
		QtyAfter:    m.QtyAfter,
		Unit:        m.Unit,
		Origin:      m.Origin,
		Note:        m.Note,
		RefID:       m.RefID,
		CreatedAt:   m.CreatedAt,
	}
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	batch, movement, err := h.service.Receive(r.Context(), ReceiveInput{
		MaterialExternalCode: req.MaterialExternalCode,
		BatchKey:             req.BatchKey,
		SupplierBatchCode:    req.SupplierBatchCode,
		Supplier:             req.Supplier,
		Quantity:             req.Quantity,
		Unit:                 Unit(req.Unit),
		WidthMM:              req.WidthMM,
		Location:             req.Location,
		UnitPrice:            req.UnitPrice,
		Note:                 req.Note,
		Origin:               OriginReceiving,
		RefID:                req.RefID,
	})
	if err != nil {
		h.respondError(w, r, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"batch":    toBatchResponse(batch),
		"movement": toMovementResponse(movement),
	})
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	batch, movement, err := h.service.Consume(r.Context(), ConsumeInput{
		BatchKey: req.BatchKey,
		Quantity: req.Quantity,
		Kind:     MovementKind(req.Kind),
		Note:     req.Note,
		Origin:   req.Origin,
		RefID:    req.RefID,
	})
	if err != nil {
		h.respondError(w, r, "consume stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"batch":    toBatchResponse(batch),
		"movement": toMovementResponse(movement),
	})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	input := AdjustInput{
		BatchKey:  req.BatchKey,
		Location:  req.Location,
		UnitPrice: req.UnitPrice,
		Note:      req.Note,
	}
	if req.Unit != nil {
		unit := Unit(*req.Unit)
		input.Unit = &unit
	}
	batch, movement, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "adjust batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"batch":    toBatchResponse(batch),
		"movement": toMovementResponse(movement),
	})
}

func (h *Handler) handleSplitWidth(w http.ResponseWriter, r *http.Request) {
	var req splitWidthRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if fields := h.validate(req); fields != nil {
		httpx.ValidationProblem(w, fields)
		return
	}
	result, err := h.service.SplitWidth(r.Context(), SplitWidthInput{
		BatchKey:        req.BatchKey,
		WidthToRemoveMM: req.WidthToRemoveMM,
		Note:            req.Note,
	})
	if err != nil {
		h.respondError(w, r, "split width", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"source":   toBatchResponse(result.Source),
		"derived":  toBatchResponse(result.Derived),
		"movement": toMovementResponse(result.Movement),
	})
}

// defaultListLimit bounds HTTP listings when the client sends no limit
// parameter. The service and repository honour whatever limit they are given.
const defaultListLimit = 100

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		MaterialRef: q.Get("material_ref"),
		BatchKey:    q.Get("batch_key"),
		Kind:        MovementKind(q.Get("kind")),
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
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "batchKey"))
	if err != nil {
		h.respondError(w, r, "get batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
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
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusBadRequest, httpx.ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusBadRequest,
			Detail: insufficient.Error(),
			Fields: map[string]string{"available": insufficient.Available.String()},
		})
	case errors.Is(err, ErrDuplicateBatch), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnit),
		errors.Is(err, ErrInvalidAttribute),
		errors.Is(err, ErrInvalidMovementKind),
		errors.Is(err, ErrNoOpAdjustment),
		errors.Is(err, ErrInvalidWidthReduction):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
