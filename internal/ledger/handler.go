package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler exposes read-only ledger listings for audit and reporting.
type Handler struct {
	logger *slog.Logger
	store  *Store
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/transactions", h.handleListTransactions)
	r.Get("/events", h.handleListEvents)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filter := TransactionFilter{StoreID: id.StoreID, Type: TxType(q.Get("tx_type"))}
	if filter.Type != "" && !filter.Type.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "unknown tx_type")
		return
	}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	var ok bool
	if filter.From, ok = parseQueryTime(w, q.Get("from")); !ok {
		return
	}
	if filter.To, ok = parseQueryTime(w, q.Get("to")); !ok {
		return
	}
	rows, err := h.store.ListTransactions(r.Context(), filter)
	if err != nil {
		h.logger.Error("ledger listing failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filter := EventFilter{
		StoreID:    id.StoreID,
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	events, err := h.store.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("event listing failed", slog.Any("error", err))
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, events)
}

func parseQueryTime(w http.ResponseWriter, raw string) (time.Time, bool) {
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
