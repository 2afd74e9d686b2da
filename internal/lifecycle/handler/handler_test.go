package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"racepass/internal/anchor"
	"racepass/internal/anchor/memory"
	"racepass/internal/credential"
	"racepass/internal/issuer"
	"racepass/internal/lifecycle"
	"racepass/internal/lifecycle/models"
	"racepass/internal/lifecycle/store"
	"racepass/internal/platform/config"
	"racepass/internal/ratelimit"
	adminmw "racepass/pkg/platform/middleware/admin"
	"racepass/pkg/secrets"
)

const (
	adminToken = "secret-token"
	subject    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	keys := issuer.NewKeyService()
	s.Require().NoError(keys.InitializeDemo())
	core, err := lifecycle.NewCore(config.Server{
		Credential: config.Credential{MACSecret: config.DefaultMACSecret, TTL: credential.DefaultTTL},
	}, keys, ratelimit.NewInMemoryLimiter(ratelimit.DefaultPolicy))
	s.Require().NoError(err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	d := anchor.NewDispatcher([]anchor.Named{{Name: "memory", Writer: memory.New()}}, anchor.WithClock(clock))
	d.Start()
	s.T().Cleanup(d.Close)

	svc, err := lifecycle.New(core, store.NewInMemory(),
		lifecycle.WithClock(clock),
		lifecycle.WithAnchors(d),
		lifecycle.WithCatalog(store.NewInMemoryEventCatalog()),
	)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hash, err := secrets.Hash(adminToken)
	s.Require().NoError(err)

	h := New(svc, logger)
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterScanner(r)
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(hash, logger))
		h.RegisterAdmin(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(out))
}

func (s *HandlerSuite) submit() {
	rec := s.do(http.MethodPost, "/credentials",
		`{"subject":"`+subject+`","application":{"name":"Asha","dob":"2000-05-10","id":"123456789012"}}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestSubmitAndFetch() {
	rec := s.do(http.MethodPost, "/credentials",
		`{"subject":"`+subject+`","application":{"name":"Asha","dob":"2000-05-10","id":"123456789012"}}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var receipt models.IssuanceReceipt
	s.decode(rec, &receipt)
	s.True(receipt.IsAdult)
	s.Equal("21+", receipt.AgeCategory)
	s.Len(receipt.CryptoProofs.AttestationTypes, 4)

	rec = s.do(http.MethodGet, "/credentials/"+subject, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), `"secret"`)
	s.NotContains(rec.Body.String(), "Asha")

	var view models.CredentialView
	s.decode(rec, &view)
	s.Equal(receipt.Fingerprint, view.Fingerprint)

	rec = s.do(http.MethodGet, "/credentials/"+subject+"/anchors", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"subject":"`+subject+`","anchored":{"memory":true}}`, rec.Body.String())
}

func (s *HandlerSuite) TestErrorsCarryDomainCodes() {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad subject", http.MethodPost, "/credentials", `{"subject":"0x12","application":{"name":"A","dob":"2000-01-01","id":"123456789012"}}`, http.StatusBadRequest, "invalid_subject"},
		{"bad id", http.MethodPost, "/credentials", `{"subject":"` + subject + `","application":{"name":"A","dob":"2000-01-01","id":"12345"}}`, http.StatusBadRequest, "invalid_id"},
		{"missing application", http.MethodPost, "/credentials", `{"subject":"` + subject + `"}`, http.StatusBadRequest, "bad_request"},
		{"malformed json", http.MethodPost, "/credentials", `{`, http.StatusBadRequest, "bad_request"},
		{"unknown subject", http.MethodGet, "/credentials/" + subject, "", http.StatusNotFound, "no_credential"},
		{"unknown ticket", http.MethodPost, "/scan", `{"qrToken":"RP-000000000000000000000000"}`, http.StatusNotFound, "invalid_ticket"},
		{"empty ticket", http.MethodPost, "/scan", `{"qrToken":"  "}`, http.StatusNotFound, "invalid_ticket"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(tc.method, tc.path, tc.body)
			s.Equal(tc.status, rec.Code, rec.Body.String())
			var body map[string]string
			s.decode(rec, &body)
			s.Equal(tc.code, body["error"])
		})
	}
}

func (s *HandlerSuite) TestRegisterScanAndProve() {
	s.submit()

	rec := s.do(http.MethodPost, "/registrations",
		`{"subject":"`+subject+`","eventId":"berlin-10k","requirements":{"minAge":18,"requireAge":true}}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var reg models.RegistrationReceipt
	s.decode(rec, &reg)
	s.True(strings.HasPrefix(reg.QRToken, "RP-"))

	rec = s.do(http.MethodPost, "/scan", `{"qrToken":"`+reg.QRToken+`"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var scan models.ScanReceipt
	s.decode(rec, &scan)
	s.True(scan.SignatureVerified)
	s.Equal(reg.CryptoProofs.TicketHash, scan.TicketHash)

	rec = s.do(http.MethodPost, "/scan", `{"qrToken":"`+reg.QRToken+`"}`)
	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), `"already_used"`)

	rec = s.do(http.MethodGet, "/reputation/"+subject, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var rep models.ReputationView
	s.decode(rec, &rep)
	s.Equal(55, rep.Score)
	s.Equal("Bronze", rep.Tier)
	s.Require().NotNil(rep.Merkle.Leaf)

	proof, err := json.Marshal(map[string]any{"leaf": rep.Merkle.Leaf, "proof": rep.Merkle.Proof, "root": rep.Merkle.Root})
	s.Require().NoError(err)
	rec = s.do(http.MethodPost, "/verify/proof", string(proof))
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"valid":true}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/verify/proof", `{"leaf":"0x12","proof":[],"root":"0x12"}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/merkle/root", "")
	var root MerkleRootResponse
	s.decode(rec, &root)
	s.Equal(1, root.Leaves)
	s.Equal(rep.Merkle.Root, root.Root)
}

func (s *HandlerSuite) TestVerifyAttestationFromFetchedState() {
	s.submit()
	rec := s.do(http.MethodGet, "/credentials/"+subject, "")
	var view models.CredentialView
	s.decode(rec, &view)
	s.Require().NotEmpty(view.Attestations)

	body, err := json.Marshal(view.Attestations[0])
	s.Require().NoError(err)
	rec = s.do(http.MethodPost, "/verify/attestation", string(body))
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"valid":true}`, rec.Body.String())

	tampered := view.Attestations[0]
	tampered.Nonce++
	body, err = json.Marshal(tampered)
	s.Require().NoError(err)
	rec = s.do(http.MethodPost, "/verify/attestation", string(body))
	s.JSONEq(`{"valid":false}`, rec.Body.String())
}

func (s *HandlerSuite) TestThirdPartyCheck() {
	rec := s.do(http.MethodPost, "/checks", `{"subject":"`+subject+`","minAge":18,"eventType":"concert"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"verified":false,"reason":"no_credential"}`, rec.Body.String())

	s.submit()
	rec = s.do(http.MethodPost, "/checks", `{"subject":"`+subject+`","minAge":18,"eventType":"concert"}`)
	s.JSONEq(`{"verified":true}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/checks", `{"subject":"nope","minAge":18}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestAdminRoutesRequireToken() {
	s.submit()

	rec := s.do(http.MethodPost, "/admin/credentials/"+subject+"/revoke", "")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/admin/credentials/"+subject+"/revoke", "", "X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var view models.CredentialView
	s.decode(rec, &view)
	s.True(view.Revoked)

	rec = s.do(http.MethodPost, "/checks", `{"subject":"`+subject+`","minAge":0}`)
	s.JSONEq(`{"verified":false,"reason":"revoked"}`, rec.Body.String())
}

func (s *HandlerSuite) TestScoreOverride() {
	s.submit()

	rec := s.do(http.MethodPut, "/admin/credentials/"+subject+"/score", `{"score":85}`, "X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.JSONEq(`{"score":85,"attendance":0,"tier":"Gold"}`, rec.Body.String())

	rec = s.do(http.MethodPut, "/admin/credentials/"+subject+"/score", `{"score":10}`, "X-Admin-Token", adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/admin/credentials/"+subject+"/score", `{}`, "X-Admin-Token", adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "score is required")
}

func (s *HandlerSuite) TestEventCatalog() {
	s.submit()

	rec := s.do(http.MethodPut, "/admin/events/tiny-gig", `{"name":"Tiny Gig","capacity":1,"requirements":{"minAge":21,"requireAge":true}}`,
		"X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/events", "")
	var list EventListResponse
	s.decode(rec, &list)
	s.Require().Len(list.Events, 1)
	s.Equal("Tiny Gig", list.Events[0].Name)

	rec = s.do(http.MethodPost, "/registrations", `{"subject":"`+subject+`","eventId":"tiny-gig"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `ageAbove:21`)

	rec = s.do(http.MethodGet, "/admin/events/tiny-gig/registrations", "", "X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	var regs RegistrationListResponse
	s.decode(rec, &regs)
	s.Equal(1, regs.Count)

	rec = s.do(http.MethodPut, "/admin/events/bad", `{"name":"Bad","capacity":-1}`, "X-Admin-Token", adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)
}
