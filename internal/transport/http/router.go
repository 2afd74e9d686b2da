package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"racepass/internal/lifecycle/handler"
	"racepass/internal/platform/health"
	"racepass/pkg/platform/middleware/admin"
	"racepass/pkg/platform/middleware/auth"
	"racepass/pkg/platform/middleware/request"
	"racepass/pkg/platform/middleware/requesttime"
	"racepass/pkg/platform/validation"
)

const requestTimeout = 30 * time.Second

// Config carries everything the router needs from main.
type Config struct {
	Logger         *slog.Logger
	Lifecycle      *handler.Handler
	Health         *health.Handler
	Scanner        auth.ScannerValidator
	AdminTokenHash string
	Gatherer       prometheus.Gatherer
	Metrics        *request.Metrics
	TrustedProxies []netip.Prefix
}

// NewRouter wires the public, scanner and admin surfaces with middleware.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.ClientIP(cfg.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(request.AccessLog(logger, cfg.Metrics))
	r.Use(request.Timeout(requestTimeout))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	cfg.Lifecycle.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireScanner(cfg.Scanner, logger))
		cfg.Lifecycle.RegisterScanner(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminTokenHash, logger))
		cfg.Lifecycle.RegisterAdmin(r)
	})

	return r
}
