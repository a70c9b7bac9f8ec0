package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/console"
	"github.com/technosupport/ts-console/internal/middleware"
	"github.com/technosupport/ts-console/internal/ratelimit"
)

type RouterConfig struct {
	Registry       *console.Registry
	RateLimit      *middleware.RateLimitMiddleware
	CORSOrigins    []string
	SpoolDir       string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewRouter mounts the console API plus /healthz and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	consoles := &ConsoleHandler{
		Registry:       cfg.Registry,
		SpoolDir:       cfg.SpoolDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	}
	stream := NewStateStreamHandler(cfg.Registry, log, cfg.CORSOrigins)
	limits := cfg.RateLimit

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/consoles", func(r chi.Router) {
		r.Use(limits.Limit(ratelimit.ScopeGlobalIP))
		r.Post("/", consoles.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", consoles.Get)
			r.Delete("/", consoles.Delete)

			r.With(limits.Limit(ratelimit.ScopeUpload)).Post("/upload", consoles.Upload)
			r.Delete("/upload", consoles.ResetUpload)
			r.With(limits.Limit(ratelimit.ScopeSearch)).Post("/search/{facet}", consoles.Search)

			r.Get("/alerts", consoles.Alerts)
			r.Post("/alerts/{alertID}/expand", consoles.ExpandAlert)
			r.Delete("/alerts/expanded", consoles.CollapseAlert)

			r.Get("/ws", stream.ServeWS)
		})
	})

	return r
}
