package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/inventory"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/registers"
	"github.com/meridian-retail/meridian/internal/sales"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CatalogHandler   *catalog.Handler
	InventoryHandler *inventory.Handler
	LedgerHandler    *ledger.Handler
	SalesHandler     *sales.Handler
	RegisterHandler  *registers.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(params.Logger))
		r.Route("/products", params.CatalogHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
		r.Route("/sales", params.SalesHandler.MountRoutes)
		r.Route("/payments", params.SalesHandler.MountPaymentRoutes)
		r.Route("/registers", params.RegisterHandler.MountRoutes)
	})

	return r
}
