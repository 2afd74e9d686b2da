// Package lifecycle owns per-subject credential state: issuance, revocation,
// event registration, ticket scans and the attendance reputation record.
package lifecycle

import (
	"fmt"
	"strings"

	"racepass/internal/attestation"
	"racepass/internal/credential"
	"racepass/internal/issuer"
	"racepass/internal/platform/config"
	"racepass/internal/ratelimit"
	"racepass/internal/ticket"
	dErrors "racepass/pkg/domain-errors"
)

// Core is the process-wide context built once at startup and passed
// explicitly: issuer key, credential builder, signing services and the
// issuance rate limiter.
type Core struct {
	Keys           *issuer.KeyService
	Credentials    *credential.Builder
	Attestations   *attestation.Service
	Tickets        *ticket.Service
	Limiter        ratelimit.Limiter
	DefaultCountry string
}

// NewCore wires a Core from configuration. keys must already be initialized
// so the issuer address can seed the default credential issuer id.
func NewCore(cfg config.Server, keys *issuer.KeyService, limiter ratelimit.Limiter) (*Core, error) {
	if keys == nil || !keys.Initialized() {
		return nil, dErrors.New(dErrors.CodeNotInitialized, "issuer key not initialized")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	addr, err := keys.Address()
	if err != nil {
		return nil, err
	}
	issuerID := cfg.Credential.IssuerID
	if issuerID == "" {
		issuerID = "did:racepass:" + strings.ToLower(addr.Hex())
	}
	country := strings.ToUpper(strings.TrimSpace(cfg.Credential.DefaultCountry))
	if country == "" {
		country = "IN"
	}
	return &Core{
		Keys:           keys,
		Credentials:    credential.NewBuilder([]byte(cfg.Credential.MACSecret), issuerID, cfg.Credential.TTL),
		Attestations:   attestation.NewService(keys),
		Tickets:        ticket.NewService(keys),
		Limiter:        limiter,
		DefaultCountry: country,
	}, nil
}
