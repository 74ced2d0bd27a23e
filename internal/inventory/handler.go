package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for stock movements and the document
// lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	costing  *ledger.Costing
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, costing *ledger.Costing) *Handler {
	return &Handler{logger: logger, service: service, costing: costing, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receives", h.handleReceive)
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/counts", h.handleCount)

	r.Post("/documents", h.handleCreateDraft)
	r.Post("/documents/{id}/approve", h.handleApprove)
	r.Post("/documents/{id}/post", h.handlePost)
	r.Delete("/documents/{id}", h.handleDeleteDraft)

	r.Get("/stock/{productID}/on-hand", h.handleOnHand)
	r.Get("/stock/{productID}/cost", h.handleCost)
}

type receiveRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	Quantity      int64  `json:"quantity" validate:"required,gt=0"`
	UnitCostCents int64  `json:"unit_cost_cents" validate:"gte=0"`
	OccurredAt    string `json:"occurred_at,omitempty"`
	Note          string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	occurredAt, ok := h.parseTime(w, req.OccurredAt)
	if !ok {
		return
	}
	row, err := h.service.Receive(r.Context(), ReceiveInput{
		StoreID:       id.StoreID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		UnitCostCents: req.UnitCostCents,
		OccurredAt:    occurredAt,
		ActorID:       id.ActorID,
		Note:          req.Note,
	})
	if err != nil {
		h.logger.Error("receive failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

type adjustRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	QuantityDelta int64  `json:"quantity_delta" validate:"required"`
	OccurredAt    string `json:"occurred_at,omitempty"`
	Note          string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	occurredAt, ok := h.parseTime(w, req.OccurredAt)
	if !ok {
		return
	}
	row, err := h.service.Adjust(r.Context(), AdjustInput{
		StoreID:       id.StoreID,
		ProductID:     req.ProductID,
		QuantityDelta: req.QuantityDelta,
		OccurredAt:    occurredAt,
		ActorID:       id.ActorID,
		Note:          req.Note,
	})
	if err != nil {
		h.logger.Error("adjustment failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

type transferRequest struct {
	DstStoreID int64  `json:"dst_store_id" validate:"required,gt=0"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	OccurredAt string `json:"occurred_at,omitempty"`
	Note       string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	occurredAt, ok := h.parseTime(w, req.OccurredAt)
	if !ok {
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		SrcStoreID: id.StoreID,
		DstStoreID: req.DstStoreID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		OccurredAt: occurredAt,
		ActorID:    id.ActorID,
		Note:       req.Note,
	})
	if err != nil {
		h.logger.Error("transfer failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]ledger.Transaction{"outbound": out, "inbound": in})
}

type countRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	CountedQty int64  `json:"counted_qty" validate:"gte=0"`
	OccurredAt string `json:"occurred_at,omitempty"`
	Note       string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	occurredAt, ok := h.parseTime(w, req.OccurredAt)
	if !ok {
		return
	}
	row, err := h.service.PostCount(r.Context(), CountInput{
		StoreID:    id.StoreID,
		ProductID:  req.ProductID,
		CountedQty: req.CountedQty,
		OccurredAt: occurredAt,
		ActorID:    id.ActorID,
		Note:       req.Note,
	})
	if err != nil {
		h.logger.Error("count failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	if row == nil {
		// count matched on-hand, nothing was written
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

type draftRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	Type          string `json:"tx_type" validate:"required,oneof=RECEIVE ADJUST"`
	QuantityDelta int64  `json:"quantity_delta" validate:"required"`
	UnitCostCents *int64 `json:"unit_cost_cents,omitempty"`
	OccurredAt    string `json:"occurred_at,omitempty"`
	Note          string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	occurredAt, ok := h.parseTime(w, req.OccurredAt)
	if !ok {
		return
	}
	row, err := h.service.CreateDraft(r.Context(), DraftInput{
		StoreID:       id.StoreID,
		ProductID:     req.ProductID,
		Type:          req.Type,
		QuantityDelta: req.QuantityDelta,
		UnitCostCents: req.UnitCostCents,
		OccurredAt:    occurredAt,
		ActorID:       id.ActorID,
		Note:          req.Note,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	txID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	row, err := h.service.Approve(r.Context(), id.StoreID, txID, id.ActorID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	txID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	row, err := h.service.Post(r.Context(), id.StoreID, txID, id.ActorID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	txID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id.StoreID, txID); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOnHand(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	asOf, ok := h.parseTime(w, r.URL.Query().Get("as_of"))
	if !ok {
		return
	}
	qty, err := h.costing.OnHand(r.Context(), id.StoreID, productID, asOf)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"on_hand": qty})
}

type costResponse struct {
	WACCents             *int64 `json:"wac_cents"`
	LastReceiveCostCents *int64 `json:"last_receive_cost_cents"`
}

func (h *Handler) handleCost(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	asOf, ok := h.parseTime(w, r.URL.Query().Get("as_of"))
	if !ok {
		return
	}
	var resp costResponse
	wac, found, err := h.costing.WeightedAverageCost(r.Context(), id.StoreID, productID, asOf)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if found {
		resp.WACCents = &wac
	}
	last, found, err := h.costing.MostRecentReceiveCost(r.Context(), id.StoreID, productID, asOf)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if found {
		resp.LastReceiveCostCents = &last
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid path parameter", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) parseTime(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid timestamp", "timestamps must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}
