package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for sales and payments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	payments *PaymentService
	catalog  *catalog.Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service, payments *PaymentService, catalogSvc *catalog.Service) *Handler {
	return &Handler{logger: logger, service: service, payments: payments, catalog: catalogSvc, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreateDraft)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/post", h.handlePost)
	r.Post("/{id}/void", h.handleVoid)
	r.Get("/{id}/receipt", h.handleReceipt)
	r.Post("/{id}/payments", h.handleAddPayment)
	r.Get("/{id}/payments", h.handleListPayments)
}

// MountPaymentRoutes registers payment-scoped routes.
func (h *Handler) MountPaymentRoutes(r chi.Router) {
	r.Post("/{id}/void", h.handleVoidPayment)
	r.Post("/{id}/refund", h.handleRefund)
}

type draftLineRequest struct {
	ProductID      int64 `json:"product_id" validate:"required,gt=0"`
	Quantity       int64 `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents int64 `json:"unit_price_cents" validate:"gte=0"`
}

type draftSaleRequest struct {
	RegisterSessionID *int64             `json:"register_session_id,omitempty"`
	Lines             []draftLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req draftSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	in := DraftSaleInput{StoreID: id.StoreID, RegisterSessionID: req.RegisterSessionID, ActorID: id.ActorID}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, DraftLineInput{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	sale, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		h.logger.Error("sale draft failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	saleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), id.StoreID, saleID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type postSaleRequest struct {
	OccurredAt string `json:"occurred_at,omitempty"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	saleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req postSaleRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	var occurredAt time.Time
	if req.OccurredAt != "" {
		var err error
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid timestamp", "occurred_at must be RFC 3339")
			return
		}
	}
	sale, err := h.service.PostSale(r.Context(), id.StoreID, saleID, id.ActorID, occurredAt)
	if err != nil {
		h.logger.Error("sale post failed", slog.Int64("sale_id", saleID), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	saleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	sale, err := h.service.VoidSale(r.Context(), id.StoreID, saleID, id.ActorID, req.Reason)
	if err != nil {
		h.logger.Error("sale void failed", slog.Int64("sale_id", saleID), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	saleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), id.StoreID, saleID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	payments, err := h.payments.ListPayments(r.Context(), id.StoreID, saleID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	names := make(map[int64]string, len(sale.Lines))
	for _, line := range sale.Lines {
		if product, err := h.catalog.Lookup(r.Context(), id.StoreID, line.ProductID); err == nil {
			names[line.ProductID] = product.Name
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Receipt(sale, payments, names)))
}

type addPaymentRequest struct {
	RegisterSessionID *int64 `json:"register_session_id,omitempty"`
	Tender            string `json:"tender_type" validate:"required,oneof=CASH CARD BANK_TRANSFER"`
	AmountCents       int64  `json:"amount_cents" validate:"required,gt=0"`
	Reference         string `json:"reference,omitempty" validate:"max=200"`
}

type addPaymentResponse struct {
	Payment Payment `json:"payment"`
	Sale    Sale    `json:"sale"`
}

func (h *Handler) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	saleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req addPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	payment, sale, err := h.payments.AddPayment(r.Context(), AddPaymentInput{
		StoreID:           id.StoreID,
		SaleID:            saleID,
		RegisterSessionID: req.RegisterSessionID,
		Tender:            TenderType(req.Tender),
		AmountCents:       req.AmountCents,
		Reference:         req.Reference,
		ActorID:           id.ActorID,
	})
	if err != nil {
		h.logger.Error("payment failed", slog.Int64("sale_id", saleID), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, addPaymentResponse{Payment: payment, Sale: sale})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	saleID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payments, err := h.payments.ListPayments(r.Context(), id.StoreID, saleID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) handleVoidPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	paymentID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	sale, err := h.payments.VoidPayment(r.Context(), id.StoreID, paymentID, id.ActorID, req.Reason)
	if err != nil {
		h.logger.Error("payment void failed", slog.Int64("payment_id", paymentID), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	paymentID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	sale, err := h.payments.RefundPayment(r.Context(), RefundInput{
		StoreID:     id.StoreID,
		PaymentID:   paymentID,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
		ActorID:     id.ActorID,
	})
	if err != nil {
		h.logger.Error("refund failed", slog.Int64("payment_id", paymentID), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid path parameter", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
