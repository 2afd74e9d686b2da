package jwttoken

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/middleware/auth"
	"racepass/pkg/requestcontext"
)

const scannerAudience = "racepass-scan"

// ScannerClaims are carried by venue staff tokens. The registered subject is
// the scanner device id.
type ScannerClaims struct {
	Venue string `json:"venue,omitempty"`
	Env   string `json:"env,omitempty"`
	jwt.RegisteredClaims
}

// JWTService mints and validates scanner bearer tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	env        string
}

func NewJWTService(signingKey string, issuer string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// SetEnv annotates issued tokens with an environment string (e.g., "demo").
func (s *JWTService) SetEnv(env string) {
	s.env = env
}

// GenerateScannerToken returns a signed token and its jti.
func (s *JWTService) GenerateScannerToken(ctx context.Context, scannerID, venue string) (string, string, error) {
	scannerID = strings.TrimSpace(scannerID)
	if scannerID == "" {
		return "", "", dErrors.New(dErrors.CodeInvalidInput, "scanner id cannot be empty")
	}

	now := requestcontext.Now(ctx)
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ScannerClaims{
		Venue: strings.TrimSpace(venue),
		Env:   s.env,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   scannerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{scannerAudience},
			ID:        jti,
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign scanner token")
	}
	return signed, jti, nil
}

// ValidateToken checks signature, algorithm, expiry, issuer and audience.
func (s *JWTService) ValidateToken(tokenString string) (*ScannerClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &ScannerClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(scannerAudience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*ScannerClaims)
	if !ok || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateScannerToken lets JWTService back auth.RequireScanner directly.
func (s *JWTService) ValidateScannerToken(tokenString string) (*auth.ScannerClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.ScannerClaims{
		ScannerID: claims.Subject,
		Venue:     claims.Venue,
		JTI:       claims.ID,
	}, nil
}
