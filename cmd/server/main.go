package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"racepass/internal/anchor"
	anchorkafka "racepass/internal/anchor/kafka"
	anchormemory "racepass/internal/anchor/memory"
	anchorredis "racepass/internal/anchor/redis"
	"racepass/internal/audit"
	"racepass/internal/issuer"
	jwttoken "racepass/internal/jwt_token"
	"racepass/internal/lifecycle"
	"racepass/internal/lifecycle/handler"
	lifecyclemetrics "racepass/internal/lifecycle/metrics"
	"racepass/internal/lifecycle/store"
	"racepass/internal/platform/config"
	"racepass/internal/platform/database"
	"racepass/internal/platform/health"
	"racepass/internal/platform/kafka/consumer"
	"racepass/internal/platform/kafka/producer"
	"racepass/internal/platform/logger"
	"racepass/internal/platform/redis"
	"racepass/internal/platform/tracer"
	"racepass/internal/ratelimit"
	httptransport "racepass/internal/transport/http"
	"racepass/pkg/platform/middleware/request"
	"racepass/pkg/platform/validation"
	"racepass/pkg/secrets"
)

const (
	shutdownTimeout    = 10 * time.Second
	auditBufferSize    = 1024
	anchorRedisKey     = "racepass:anchors"
	poolStatsInterval  = 15 * time.Second
	readHeaderTimeout  = 5 * time.Second
	serverReadTimeout  = 15 * time.Second
	serverWriteTimeout = 35 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional external clients. Any of them may be nil.
type infra struct {
	redis    *redis.Client
	db       *database.Pool
	producer *producer.Producer
}

func (i *infra) close(log *slog.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			log.Warn("kafka producer close failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}

// samplers lists the connected pools that export statistics.
func (i *infra) samplers() []poolSampler {
	var out []poolSampler
	if i.redis != nil {
		out = append(out, i.redis)
	}
	if i.db != nil {
		out = append(out, i.db)
	}
	return out
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing racepass",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"store_backend", cfg.Store.Backend,
		"anchor_adapters", cfg.Anchor.Adapters,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	keys, err := initIssuer(cfg, log)
	if err != nil {
		return err
	}

	deps, err := connectInfra(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	stateStore, err := buildStore(cfg, deps)
	if err != nil {
		return err
	}

	policy := ratelimit.Policy{Window: cfg.RateLimit.Window, Max: cfg.RateLimit.Max}
	var limiter ratelimit.Limiter = ratelimit.NewInMemoryLimiter(policy)
	if deps.redis != nil {
		limiter = ratelimit.NewRedisLimiter(deps.redis.Client, policy)
	}

	lifecycleMetrics := lifecyclemetrics.New(reg)

	writers, err := buildAnchorWriters(cfg, deps)
	if err != nil {
		return err
	}
	dispatcher := anchor.NewDispatcher(writers,
		anchor.WithLogger(log),
		anchor.WithObserver(lifecycleMetrics),
		anchor.WithTimeout(cfg.Anchor.Timeout),
	)
	dispatcher.Start()
	defer dispatcher.Close()

	replay, err := startAnchorReplay(cfg, writers, log)
	if err != nil {
		return err
	}
	if replay != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := replay.Stop(stopCtx); err != nil {
				log.Warn("anchor replay stop failed", "error", err)
			}
		}()
	}

	var auditStore audit.Store = audit.NewInMemoryStore()
	if deps.db != nil {
		auditStore = audit.NewPostgresStore(deps.db.DB())
	}
	auditor := audit.NewPublisher(auditStore,
		audit.WithBuffer(auditBufferSize),
		audit.WithLogger(log),
	)
	defer auditor.Close()

	core, err := lifecycle.NewCore(cfg, keys, limiter)
	if err != nil {
		return fmt.Errorf("build lifecycle core: %w", err)
	}
	svc, err := lifecycle.New(core, stateStore,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithTracer(tracer.NewOTel()),
		lifecycle.WithAuditor(auditor),
		lifecycle.WithAnchors(dispatcher),
		lifecycle.WithCatalog(store.NewInMemoryEventCatalog()),
	)
	if err != nil {
		return fmt.Errorf("build lifecycle service: %w", err)
	}
	if err := svc.Restore(ctx); err != nil {
		return fmt.Errorf("restore attendance log: %w", err)
	}

	healthHandler := health.New(cfg.Environment, statusProvider{keys: keys, svc: svc})
	if deps.redis != nil {
		healthHandler.RegisterCheck("redis", deps.redis.Health)
	}
	if deps.db != nil {
		healthHandler.RegisterCheck("postgres", deps.db.Health)
	}
	if deps.producer != nil {
		healthHandler.RegisterCheck("kafka", deps.producer.Health)
	}

	jwtService := jwttoken.NewJWTService(cfg.Scanner.JWTSecret, cfg.Scanner.Issuer, cfg.Scanner.TokenTTL)
	jwtService.SetEnv(cfg.Environment)

	adminHash, err := secrets.Hash(cfg.AdminToken)
	if err != nil {
		return fmt.Errorf("hash admin token: %w", err)
	}

	trusted, err := parsePrefixes(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Lifecycle:      handler.New(svc, log),
		Health:         healthHandler,
		Scanner:        jwtService,
		AdminTokenHash: adminHash,
		Gatherer:       reg,
		Metrics:        request.NewMetrics(reg),
		TrustedProxies: trusted,
	})

	go recordPoolStats(ctx, deps.samplers())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// initIssuer loads the configured key. The demo key is refused in production.
func initIssuer(cfg config.Server, log *slog.Logger) (*issuer.KeyService, error) {
	keys := issuer.NewKeyService()
	if cfg.Issuer.PrivateKey != "" {
		if err := keys.Initialize(cfg.Issuer.PrivateKey); err != nil {
			return nil, err
		}
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("ISSUER_PRIVATE_KEY is required in production")
		}
		if err := keys.InitializeDemo(); err != nil {
			return nil, err
		}
		log.Warn("using demo issuer key; do not use in production")
	}
	addr, err := keys.Address()
	if err != nil {
		return nil, err
	}
	log.Info("issuer key loaded", "issuer", addr.Hex(), "demo", keys.IsDemo())
	return keys, nil
}

func connectInfra(ctx context.Context, cfg config.Server, reg prometheus.Registerer, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	client, err := redis.New(ctx, cfg.Redis, redis.NewPoolMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	deps.redis = client

	pool, err := database.New(ctx, cfg.Database, database.NewPoolMetrics(reg))
	if err != nil {
		deps.close(log)
		return nil, fmt.Errorf("connect database: %w", err)
	}
	deps.db = pool

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := producer.New(cfg.Kafka, log, producer.WithDeliveryTimeout(cfg.Anchor.Timeout))
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		deps.producer = p
	}
	return deps, nil
}

func buildStore(cfg config.Server, deps *infra) (lifecycle.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return store.NewInMemory(), nil
	case "redis":
		if deps.redis == nil {
			return nil, errors.New("STORE_BACKEND=redis requires REDIS_URL")
		}
		return store.NewRedis(deps.redis.Client), nil
	case "postgres":
		if deps.db == nil {
			return nil, errors.New("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		return store.NewPostgres(deps.db.DB()), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
}

// buildAnchorWriters returns the writers in configured call order.
func buildAnchorWriters(cfg config.Server, deps *infra) ([]anchor.Named, error) {
	if err := validation.CheckSliceCount("anchor adapters", len(cfg.Anchor.Adapters), validation.MaxAnchorAdapters); err != nil {
		return nil, err
	}
	writers := make([]anchor.Named, 0, len(cfg.Anchor.Adapters))
	for _, name := range cfg.Anchor.Adapters {
		var w anchor.Writer
		switch name {
		case "memory":
			w = anchormemory.New()
		case "kafka":
			if deps.producer == nil {
				return nil, errors.New("anchor adapter kafka requires KAFKA_BROKERS")
			}
			w = anchorkafka.New(deps.producer, cfg.Anchor.Topic)
		case "redis":
			if deps.redis == nil {
				return nil, errors.New("anchor adapter redis requires REDIS_URL")
			}
			w = anchorredis.New(deps.redis.Client, anchorRedisKey)
		default:
			return nil, fmt.Errorf("unknown anchor adapter %q", name)
		}
		writers = append(writers, anchor.Named{Name: name, Writer: w})
	}
	return writers, nil
}

// startAnchorReplay rebuilds the kafka writer's published index from the
// anchor topic. It has no consumer group, so every start reads from offset 0.
func startAnchorReplay(cfg config.Server, writers []anchor.Named, log *slog.Logger) (*consumer.Consumer, error) {
	for _, n := range writers {
		w, ok := n.Writer.(*anchorkafka.Writer)
		if !ok {
			continue
		}
		c, err := consumer.New(cfg.Kafka, "", []string{cfg.Anchor.Topic}, w, log)
		if err != nil {
			return nil, fmt.Errorf("start anchor replay: %w", err)
		}
		c.Start()
		log.Info("anchor replay started", "topic", cfg.Anchor.Topic)
		return c, nil
	}
	return nil, nil
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

type poolSampler interface {
	RecordPoolStats()
}

func recordPoolStats(ctx context.Context, samplers []poolSampler) {
	if len(samplers) == 0 {
		return
	}
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range samplers {
				s.RecordPoolStats()
			}
		}
	}
}

// statusProvider exposes issuer and log state to the health handler.
type statusProvider struct {
	keys *issuer.KeyService
	svc  *lifecycle.Service
}

func (p statusProvider) IssuerAddress() string {
	addr, err := p.keys.Address()
	if err != nil {
		return ""
	}
	return addr.Hex()
}

func (p statusProvider) MerkleStatus() (string, int) {
	root, leaves := p.svc.MerkleRoot()
	return root.Hex(), leaves
}
