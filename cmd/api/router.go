package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/handler"
	"github.com/fileforge/fileforge/internal/metrics"
	"github.com/fileforge/fileforge/internal/middleware"
)

// uploadBodyOverhead covers multipart boundaries and headers on top of the
// file itself.
const uploadBodyOverhead = 1 << 20

// routes bundles everything the router mounts.
type routes struct {
	health      *handler.HealthHandler
	auth        *handler.AuthHandler
	account     *handler.AccountHandler
	merge       *handler.MergeHandler
	upload      *handler.UploadHandler
	conversion  *handler.ConversionHandler
	format      *handler.FormatHandler
	stats       *handler.StatsHandler
	metrics     http.Handler // nil when metrics are disabled
	sessions    middleware.SessionAuthenticator
	rateLimiter middleware.RateLimiter
}

// newRoutes builds the handlers over the app's services.
func newRoutes(a *app) *routes {
	rt := &routes{
		health: handler.NewHealthHandler(a.repo, a.cache),
		auth: handler.NewAuthHandler(a.auth, handler.AuthHandlerConfig{
			FrontendURL:  a.cfg.FrontendURL,
			CookieSecure: a.cfg.SessionCookieSecure,
		}, a.logger),
		account:     handler.NewAccountHandler(a.accounts, a.logger),
		merge:       handler.NewMergeHandler(a.merges, a.logger),
		upload:      handler.NewUploadHandler(a.uploads, a.logger),
		conversion:  handler.NewConversionHandler(a.conversions, a.logger),
		format:      handler.NewFormatHandler(),
		stats:       handler.NewStatsHandler(a.uploads, a.accounts, a.logger),
		sessions:    a.auth,
		rateLimiter: a.cache,
	}
	if a.registry != nil {
		rt.metrics = metrics.Handler(a.registry)
	}
	return rt
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt *routes, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))

	sessionCfg := middleware.SessionConfig{
		Logger:        logger,
		Authenticator: rt.sessions,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:          logger,
		Limiter:         rt.rateLimiter,
		Enabled:         cfg.RateLimitEnabled,
		RedeemPerMinute: cfg.RateLimitRedeemPerMinute,
		RedeemBurst:     cfg.RateLimitRedeemBurst,
		AuthPerSecond:   cfg.RateLimitAuthPerSecond,
		AuthBurst:       cfg.RateLimitAuthBurst,
	}

	// Health endpoints (no auth required)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}

	// Public stats
	r.Get("/api/stats", rt.stats.Public)

	// OAuth
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Use(middleware.LoadSession(sessionCfg))

		r.Get("/{provider}/login", rt.auth.Login)
		r.Get("/{provider}/callback", rt.auth.Callback)
		r.Post("/logout", rt.auth.Logout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Format catalog is public
		r.Route("/formats", func(r chi.Router) {
			r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
			r.Get("/", rt.format.List)
			r.Get("/{ext}/targets", rt.format.Targets)
			r.Post("/validate", rt.format.Validate)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(sessionCfg))

			// Uploads carry their own larger limit
			r.With(middleware.MaxBodySize(cfg.MaxUploadSize+uploadBodyOverhead)).
				Post("/uploads", rt.upload.Create)

			r.Group(func(r chi.Router) {
				r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

				r.Get("/uploads", rt.upload.List)
				r.Delete("/uploads/{id}", rt.upload.Delete)

				r.Get("/conversions", rt.conversion.List)
				r.Post("/conversions", rt.conversion.Create)

				r.Get("/stats/storage", rt.stats.Storage)

				r.Route("/account", func(r chi.Router) {
					r.Get("/", rt.account.Get)
					r.Delete("/identities/{provider}", rt.account.UnlinkIdentity)

					r.Post("/merge-code", rt.merge.GenerateCode)
					r.With(middleware.RateLimitRedeem(rateLimitCfg)).
						Post("/use-merge-code", rt.merge.UseCode)
					r.Post("/check-existing", rt.merge.CheckExisting)
					r.Post("/merge", rt.merge.Merge)
					r.Post("/delete-existing", rt.merge.DeleteExisting)
					r.Get("/merge-jobs/{id}", rt.merge.GetJob)
					r.Post("/merge-jobs/{id}/resume", rt.merge.ResumeJob)
				})
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
