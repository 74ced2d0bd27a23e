package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// IdentityMiddleware resolves the (org, store, actor) triple the upstream
// tenant gateway injects as headers. Requests without a store scope are
// rejected before they reach any handler.
func IdentityMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err1 := strconv.ParseInt(r.Header.Get("X-Org-ID"), 10, 64)
			storeID, err2 := strconv.ParseInt(r.Header.Get("X-Store-ID"), 10, 64)
			actorID, err3 := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
			if err1 != nil || err2 != nil || err3 != nil {
				logger.Warn("request missing identity headers", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusUnauthorized, "Missing identity", "X-Org-ID, X-Store-ID and X-Actor-ID headers are required")
				return
			}
			ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{
				OrgID:   orgID,
				StoreID: storeID,
				ActorID: actorID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MiddlewareStack installs the Meridian middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}
