package admin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"racepass/pkg/secrets"
)

// AdminMiddlewareSuite checks that a wrong token never reaches the handler.
type AdminMiddlewareSuite struct {
	suite.Suite
	logger    *slog.Logger
	tokenHash string
}

func TestAdminMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AdminMiddlewareSuite))
}

func (s *AdminMiddlewareSuite) SetupSuite() {
	s.logger = slog.Default()
	hash, err := secrets.Hash("secret-admin-token")
	s.Require().NoError(err)
	s.tokenHash = hash
}

func (s *AdminMiddlewareSuite) serve(token, actor string) (*httptest.ResponseRecorder, bool, string) {
	called := false
	var capturedActor string
	handler := RequireAdminToken(s.tokenHash, s.logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			capturedActor = GetAdminActorID(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/credentials/0xaa/revoke", nil)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	if actor != "" {
		req.Header.Set("X-Admin-Actor-ID", actor)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, called, capturedActor
}

func (s *AdminMiddlewareSuite) TestTokenValidation() {
	s.Run("correct token passes to next handler", func() {
		w, called, _ := s.serve("secret-admin-token", "")
		s.True(called)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("wrong token returns 401 and blocks handler", func() {
		w, called, _ := s.serve("wrong-token", "")
		s.False(called)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "unauthorized")
	})

	s.Run("missing token returns 401", func() {
		w, called, _ := s.serve("", "")
		s.False(called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *AdminMiddlewareSuite) TestActorIDContextInjection() {
	_, called, actor := s.serve("secret-admin-token", "ops-alice")
	s.True(called)
	s.Equal("ops-alice", actor)

	_, _, actor = s.serve("secret-admin-token", "")
	s.Empty(actor)
}
