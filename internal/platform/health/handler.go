// Package health serves liveness, readiness and status probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"racepass/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const checkTimeout = 2 * time.Second

// CheckFunc reports nil when the dependency is reachable.
type CheckFunc func(ctx context.Context) error

// StatusProvider supplies issuer and attendance-log state for /health.
type StatusProvider interface {
	IssuerAddress() string
	MerkleStatus() (root string, leaves int)
}

type Handler struct {
	started     time.Time
	environment string
	status      StatusProvider
	now         func() time.Time

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func New(environment string, status StatusProvider) *Handler {
	return &Handler{
		started:     time.Now(),
		environment: environment,
		status:      status,
		now:         time.Now,
		checks:      make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a named readiness check. A nil check is ignored and a
// repeated name replaces the earlier check.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HandleStatus)
		r.Get("/live", h.HandleLiveness)
		r.Get("/ready", h.HandleReadiness)
	})
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs the registered checks in parallel under one deadline
// and answers 503 if any of them fails.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	results := h.runChecks(r.Context())

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(results))}
	for name, err := range results {
		if err != nil {
			resp.Status = "not_ready"
			resp.Checks[name] = "down: " + err.Error()
			continue
		}
		resp.Checks[name] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]error, len(h.checks))
	)
	for name, check := range h.checks {
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	Issuer        string `json:"issuer,omitempty"`
	MerkleRoot    string `json:"merkle_root,omitempty"`
	MerkleLeaves  int    `json:"merkle_leaves"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus reports "healthy" once the issuer key is loaded and
// "uninitialized" before that.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	resp := StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	if h.status != nil {
		resp.Issuer = h.status.IssuerAddress()
		resp.MerkleRoot, resp.MerkleLeaves = h.status.MerkleStatus()
		if resp.Issuer == "" {
			resp.Status = "uninitialized"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
