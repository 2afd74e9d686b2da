package handler

import (
	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
)

type ValidResponse struct {
	Valid bool `json:"valid"`
}

type AnchorStatusResponse struct {
	Subject  domain.SubjectID `json:"subject"`
	Anchored map[string]bool  `json:"anchored"`
}

type MerkleRootResponse struct {
	Root   common.Hash `json:"root"`
	Leaves int         `json:"leaves"`
}

type EventListResponse struct {
	Events []models.Event `json:"events"`
}

type ReputationResponse struct {
	Score      int    `json:"score"`
	Attendance int    `json:"attendance"`
	Tier       string `json:"tier"`
}

func toReputationResponse(rep *models.Reputation) *ReputationResponse {
	return &ReputationResponse{
		Score:      rep.Score,
		Attendance: rep.Attendance,
		Tier:       models.Tier(rep.Score),
	}
}

type RegistrationListResponse struct {
	EventID       domain.EventID        `json:"eventId"`
	Count         int                   `json:"count"`
	Registrations []models.Registration `json:"registrations"`
}

func toRegistrationListResponse(eventID domain.EventID, regs []models.Registration) *RegistrationListResponse {
	if regs == nil {
		regs = []models.Registration{}
	}
	return &RegistrationListResponse{EventID: eventID, Count: len(regs), Registrations: regs}
}
