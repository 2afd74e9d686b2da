package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"

	"github.com/prometheus/client_golang/prometheus"

	"racepass/internal/anchor"
	"racepass/internal/anchor/memory"
	"racepass/internal/audit"
	"racepass/internal/credential"
	"racepass/internal/issuer"
	jwttoken "racepass/internal/jwt_token"
	"racepass/internal/lifecycle"
	"racepass/internal/lifecycle/handler"
	lifecyclemetrics "racepass/internal/lifecycle/metrics"
	"racepass/internal/lifecycle/store"
	"racepass/internal/platform/config"
	"racepass/internal/platform/health"
	"racepass/internal/ratelimit"
	httptransport "racepass/internal/transport/http"
	"racepass/pkg/platform/middleware/request"
	"racepass/pkg/secrets"
)

const e2eAdminToken = "e2e-admin-token"

// inProcessServer runs the full router over in-memory stores.
type inProcessServer struct {
	http       *httptest.Server
	dispatcher *anchor.Dispatcher
	auditor    *audit.Publisher

	adminToken   string
	scannerToken string
}

func startInProcessServer() (*inProcessServer, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	keys := issuer.NewKeyService()
	if err := keys.InitializeDemo(); err != nil {
		return nil, err
	}
	cfg := config.Server{
		Environment: "test",
		Credential: config.Credential{
			MACSecret:      config.DefaultMACSecret,
			TTL:            credential.DefaultTTL,
			DefaultCountry: "IN",
		},
	}
	core, err := lifecycle.NewCore(cfg, keys, ratelimit.NewInMemoryLimiter(ratelimit.DefaultPolicy))
	if err != nil {
		return nil, err
	}

	m := lifecyclemetrics.New(reg)
	dispatcher := anchor.NewDispatcher([]anchor.Named{{Name: "memory", Writer: memory.New()}},
		anchor.WithLogger(logger),
		anchor.WithObserver(m),
	)
	dispatcher.Start()
	auditor := audit.NewPublisher(audit.NewInMemoryStore())

	svc, err := lifecycle.New(core, store.NewInMemory(),
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(m),
		lifecycle.WithAuditor(auditor),
		lifecycle.WithAnchors(dispatcher),
		lifecycle.WithCatalog(store.NewInMemoryEventCatalog()),
	)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	jwtService := jwttoken.NewJWTService(config.DefaultJWTSecret, "racepass", config.DefaultScannerTTL)
	scannerToken, _, err := jwtService.GenerateScannerToken(context.Background(), "e2e-scanner", "e2e-venue")
	if err != nil {
		dispatcher.Close()
		return nil, fmt.Errorf("mint scanner token: %w", err)
	}
	adminHash, err := secrets.Hash(e2eAdminToken)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         logger,
		Lifecycle:      handler.New(svc, logger),
		Health:         health.New(cfg.Environment, nil),
		Scanner:        jwtService,
		AdminTokenHash: adminHash,
		Gatherer:       reg,
		Metrics:        request.NewMetrics(reg),
	})

	return &inProcessServer{
		http:         httptest.NewServer(router),
		dispatcher:   dispatcher,
		auditor:      auditor,
		adminToken:   e2eAdminToken,
		scannerToken: scannerToken,
	}, nil
}

func (s *inProcessServer) URL() string {
	return s.http.URL
}

func (s *inProcessServer) Close() {
	s.http.Close()
	s.dispatcher.Close()
	s.auditor.Close()
}
