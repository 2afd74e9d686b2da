package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"racepass/internal/attestation"
	"racepass/internal/eligibility"
	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	"racepass/pkg/platform/httputil"
	"racepass/pkg/platform/middleware/admin"
	"racepass/pkg/requestcontext"
)

// Service is the lifecycle surface exposed over HTTP. Openings is
// deliberately absent: commitment secrets never leave the process this way.
type Service interface {
	Submit(ctx context.Context, app models.Application) (*models.IssuanceReceipt, error)
	Fetch(ctx context.Context, subject domain.SubjectID) (*models.CredentialView, error)
	Revoke(ctx context.Context, subject domain.SubjectID) (*models.CredentialView, error)
	Register(ctx context.Context, subject domain.SubjectID, eventID domain.EventID, req *eligibility.Requirements) (*models.RegistrationReceipt, error)
	Scan(ctx context.Context, qrToken string) (*models.ScanReceipt, error)
	Reputation(ctx context.Context, subject domain.SubjectID) (*models.ReputationView, error)
	Check(ctx context.Context, subject domain.SubjectID, minAge int, eventType string) (*models.CheckResult, error)
	SetScore(ctx context.Context, subject domain.SubjectID, score int) (*models.Reputation, error)
	IsAnchored(ctx context.Context, subject domain.SubjectID) map[string]bool
	VerifyAttestation(a attestation.Attestation) (bool, error)
	VerifyProof(leaf common.Hash, proof []common.Hash, root common.Hash) bool
	MerkleRoot() (common.Hash, int)
	Registrations(ctx context.Context, eventID domain.EventID) ([]models.Registration, error)
	UpsertEvent(ctx context.Context, event models.Event) error
	ListEvents(ctx context.Context) ([]models.Event, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleSubmit)
	r.Get("/credentials/{subject}", h.HandleFetch)
	r.Get("/credentials/{subject}/anchors", h.HandleAnchors)
	r.Get("/reputation/{subject}", h.HandleReputation)
	r.Post("/registrations", h.HandleRegister)
	r.Post("/checks", h.HandleCheck)
	r.Post("/verify/attestation", h.HandleVerifyAttestation)
	r.Post("/verify/proof", h.HandleVerifyProof)
	r.Get("/merkle/root", h.HandleMerkleRoot)
	r.Get("/events", h.HandleListEvents)
}

// RegisterAdmin mounts routes that must sit behind the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/credentials/{subject}/revoke", h.HandleRevoke)
	r.Put("/admin/credentials/{subject}/score", h.HandleSetScore)
	r.Put("/admin/events/{eventID}", h.HandleUpsertEvent)
	r.Get("/admin/events/{eventID}/registrations", h.HandleRegistrations)
}

// RegisterScanner mounts routes that require a venue scanner token.
func (h *Handler) RegisterScanner(r chi.Router) {
	r.Post("/scan", h.HandleScan)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}

	receipt, err := h.service.Submit(ctx, req.ToApplication())
	if err != nil {
		h.logger.WarnContext(ctx, "issuance failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.Fetch(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleAnchors(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &AnchorStatusResponse{
		Subject:  subject,
		Anchored: h.service.IsAnchored(r.Context(), subject),
	})
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.Revoke(ctx, subject)
	if err != nil {
		h.logger.WarnContext(ctx, "revoke failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "admin revoked credential",
		"subject", subject.Hex(),
		"actor", admin.GetAdminActorID(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleSetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ScoreRequest](w, r, h.logger)
	if !ok {
		return
	}

	rep, err := h.service.SetScore(ctx, subject, *req.Score)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "admin overrode score",
		"subject", subject.Hex(),
		"score", rep.Score,
		"actor", admin.GetAdminActorID(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, toReputationResponse(rep))
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger)
	if !ok {
		return
	}
	subject, err := domain.ParseSubjectID(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.service.Register(ctx, subject, domain.EventID(req.EventID), req.Requirements)
	if err != nil {
		h.logger.InfoContext(ctx, "registration rejected", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger)
	if !ok {
		return
	}

	receipt, err := h.service.Scan(ctx, req.QRToken)
	if err != nil {
		h.logger.InfoContext(ctx, "scan rejected",
			"error", err,
			"scanner", requestcontext.Scanner(ctx),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) HandleReputation(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subjectParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.Reputation(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.Check(ctx, req.subject, req.MinAge, req.EventType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleVerifyAttestation(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[attestation.Attestation](w, r, h.logger)
	if !ok {
		return
	}
	valid, err := h.service.VerifyAttestation(*req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ValidResponse{Valid: valid})
}

func (h *Handler) HandleVerifyProof(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[VerifyProofRequest](w, r, h.logger)
	if !ok {
		return
	}
	leaf, proof, root := req.Hashes()
	httputil.WriteJSON(w, http.StatusOK, &ValidResponse{Valid: h.service.VerifyProof(leaf, proof, root)})
}

func (h *Handler) HandleMerkleRoot(w http.ResponseWriter, _ *http.Request) {
	root, leaves := h.service.MerkleRoot()
	httputil.WriteJSON(w, http.StatusOK, &MerkleRootResponse{Root: root, Leaves: leaves})
}

func (h *Handler) HandleUpsertEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	eventID, err := domain.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpsertEventRequest](w, r, h.logger)
	if !ok {
		return
	}

	event := req.ToEvent(eventID)
	if err := h.service.UpsertEvent(ctx, event); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "event upserted",
		"event_id", string(eventID),
		"actor", admin.GetAdminActorID(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, &event)
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &EventListResponse{Events: events})
}

func (h *Handler) HandleRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := domain.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	regs, err := h.service.Registrations(ctx, eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistrationListResponse(eventID, regs))
}

func (h *Handler) subjectParam(w http.ResponseWriter, r *http.Request) (domain.SubjectID, bool) {
	subject, err := domain.ParseSubjectID(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.SubjectID{}, false
	}
	return subject, true
}
