package handler

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/eligibility"
	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	strutil "racepass/pkg/platform/strings"
	"racepass/pkg/platform/validation"
	v "racepass/pkg/validation"
)

// HTTP Request DTOs. Field-level rules for identity data (subject format,
// dob, national id) are enforced by the lifecycle so their domain codes
// reach the caller unchanged; these types only bound sizes and shapes.

type ApplicationRequest struct {
	Name       string `json:"name"`
	DOB        string `json:"dob"`
	NationalID string `json:"id"`
	Country    string `json:"country,omitempty"`
}

type SubmitRequest struct {
	Subject     string              `json:"subject"`
	Application *ApplicationRequest `json:"application"`
}

func (r *SubmitRequest) Normalize() {
	if r == nil || r.Application == nil {
		return
	}
	strutil.TrimStrings(&r.Subject, &r.Application.DOB, &r.Application.NationalID, &r.Application.Country)
}

func (r *SubmitRequest) Validate() error {
	if r == nil || r.Application == nil {
		return dErrors.New(dErrors.CodeBadRequest, "application is required")
	}
	return nil
}

func (r *SubmitRequest) ToApplication() models.Application {
	return models.Application{
		Subject:    r.Subject,
		Name:       r.Application.Name,
		DOB:        r.Application.DOB,
		NationalID: r.Application.NationalID,
		Country:    r.Application.Country,
	}
}

type RegisterRequest struct {
	Subject      string                    `json:"subject"`
	EventID      string                    `json:"eventId"`
	Requirements *eligibility.Requirements `json:"requirements,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	strutil.TrimStrings(&r.Subject, &r.EventID)
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.CheckStringLength("event_id", r.EventID, validation.MaxEventIDLength)
}

type ScanRequest struct {
	QRToken string `json:"qrToken"`
}

func (r *ScanRequest) Normalize() {
	if r == nil {
		return
	}
	r.QRToken = strings.TrimSpace(r.QRToken)
}

func (r *ScanRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.QRToken == "" {
		return dErrors.New(dErrors.CodeInvalidTicket, "unknown ticket")
	}
	return validation.CheckStringLength("qr_token", r.QRToken, validation.MaxQRTokenLength)
}

type CheckRequest struct {
	Subject   string `json:"subject"`
	MinAge    int    `json:"minAge"`
	EventType string `json:"eventType"`

	subject domain.SubjectID
}

func (r *CheckRequest) Normalize() {
	if r == nil {
		return
	}
	strutil.TrimStrings(&r.Subject, &r.EventType)
}

func (r *CheckRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	subject, err := domain.ParseSubjectID(r.Subject)
	if err != nil {
		return err
	}
	r.subject = subject
	return validation.CheckStringLength("event_type", r.EventType, validation.MaxEventTypeLength)
}

type ScoreRequest struct {
	Score *int `json:"score" validate:"required"`
}

func (r *ScoreRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return v.Validate(r)
}

type VerifyProofRequest struct {
	Leaf  string   `json:"leaf" validate:"required,hash32"`
	Proof []string `json:"proof" validate:"dive,hash32"`
	Root  string   `json:"root" validate:"required,hash32"`
}

func (r *VerifyProofRequest) Normalize() {
	if r == nil {
		return
	}
	strutil.TrimStrings(&r.Leaf, &r.Root)
	strutil.TrimSlice(r.Proof)
}

func (r *VerifyProofRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckSliceCount("proof steps", len(r.Proof), validation.MaxProofSteps); err != nil {
		return err
	}
	return v.Validate(r)
}

func (r *VerifyProofRequest) Hashes() (leaf common.Hash, proof []common.Hash, root common.Hash) {
	proof = make([]common.Hash, 0, len(r.Proof))
	for _, p := range r.Proof {
		proof = append(proof, common.HexToHash(p))
	}
	return common.HexToHash(r.Leaf), proof, common.HexToHash(r.Root)
}

type UpsertEventRequest struct {
	Name         string                   `json:"name"`
	Capacity     int                      `json:"capacity" validate:"min=0"`
	Requirements eligibility.Requirements `json:"requirements"`
	StartsAt     *time.Time               `json:"startsAt,omitempty"`
}

func (r *UpsertEventRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
}

func (r *UpsertEventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckStringLength("name", r.Name, validation.MaxEventNameLength); err != nil {
		return err
	}
	return v.Validate(r)
}

func (r *UpsertEventRequest) ToEvent(id domain.EventID) models.Event {
	return models.Event{
		ID:           id,
		Name:         r.Name,
		Capacity:     r.Capacity,
		Requirements: r.Requirements,
		StartsAt:     r.StartsAt,
	}
}
