package registers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for register sessions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	tenders  TenderPort
	validate *validator.Validate
}

// NewHandler constructs registers handler.
func NewHandler(logger *slog.Logger, service *Service, tenders TenderPort) *Handler {
	return &Handler{logger: logger, service: service, tenders: tenders, validate: validator.New()}
}

// MountRoutes registers session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.handleOpen)
	r.Get("/sessions/{id}", h.handleGet)
	r.Post("/sessions/{id}/close", h.handleClose)
	r.Get("/sessions/{id}/tenders", h.handleTenders)
}

type openRequest struct {
	RegisterID        int64 `json:"register_id" validate:"required,gt=0"`
	OpeningFloatCents int64 `json:"opening_float_cents" validate:"gte=0"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	session, err := h.service.Open(r.Context(), OpenInput{
		StoreID:           id.StoreID,
		RegisterID:        req.RegisterID,
		OpeningFloatCents: req.OpeningFloatCents,
		ActorID:           id.ActorID,
	})
	if err != nil {
		h.logger.Error("session open failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), id.StoreID, sessionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type closeRequest struct {
	CountedCashCents int64  `json:"counted_cash_cents" validate:"gte=0"`
	Note             string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, err)
		return
	}
	session, err := h.service.Close(r.Context(), CloseInput{
		StoreID:          id.StoreID,
		SessionID:        sessionID,
		CountedCashCents: req.CountedCashCents,
		ActorID:          id.ActorID,
		Note:             req.Note,
	})
	if err != nil {
		h.logger.Error("session close failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleTenders(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	totals, err := h.tenders.TenderSummary(r.Context(), id.StoreID, sessionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid path parameter", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
