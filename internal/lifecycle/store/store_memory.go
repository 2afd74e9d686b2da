package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	"racepass/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return ErrConflict when a write would break single registration or single use
// - Return wrapped errors for encoding failures

// InMemoryStore keeps subject records in their persisted encoding so every
// read hands out an independent copy.
type InMemoryStore struct {
	mu            sync.RWMutex
	subjects      map[domain.SubjectID][]byte
	tickets       map[string][]byte
	registrations map[domain.EventID][]models.Registration
	registered    map[domain.EventID]map[domain.SubjectID]int
	attendance    []models.AttendanceRecord
}

// NewInMemory constructs an empty in-memory lifecycle store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		subjects:      make(map[domain.SubjectID][]byte),
		tickets:       make(map[string][]byte),
		registrations: make(map[domain.EventID][]models.Registration),
		registered:    make(map[domain.EventID]map[domain.SubjectID]int),
	}
}

func (s *InMemoryStore) FindSubject(_ context.Context, subject domain.SubjectID) (*models.SubjectState, error) {
	s.mu.RLock()
	data, ok := s.subjects[subject]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return models.UnmarshalRecord(data)
}

func (s *InMemoryStore) SaveSubject(_ context.Context, state *models.SubjectState) error {
	if state == nil {
		return fmt.Errorf("subject state is required")
	}
	data, err := models.MarshalRecord(state)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[state.Subject] = data
	return nil
}

func (s *InMemoryStore) FindTicket(_ context.Context, qrToken string) (*models.TicketRecord, error) {
	s.mu.RLock()
	data, ok := s.tickets[qrToken]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	var rec models.TicketRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &rec, nil
}

func (s *InMemoryStore) FindRegistration(_ context.Context, subject domain.SubjectID, eventID domain.EventID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.registered[eventID][subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	reg := s.registrations[eventID][idx]
	return &reg, nil
}

func (s *InMemoryStore) CountRegistrations(_ context.Context, eventID domain.EventID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registrations[eventID]), nil
}

func (s *InMemoryStore) ListRegistrations(_ context.Context, eventID domain.EventID) ([]models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Registration, len(s.registrations[eventID]))
	copy(out, s.registrations[eventID])
	return out, nil
}

func (s *InMemoryStore) RecordRegistration(_ context.Context, reg models.Registration, ticket models.TicketRecord) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byEvent, ok := s.registered[reg.EventID]
	if !ok {
		byEvent = make(map[domain.SubjectID]int)
		s.registered[reg.EventID] = byEvent
	}
	if _, exists := byEvent[reg.Subject]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.tickets[ticket.QRToken]; exists {
		return sentinel.ErrConflict
	}
	byEvent[reg.Subject] = len(s.registrations[reg.EventID])
	s.registrations[reg.EventID] = append(s.registrations[reg.EventID], reg)
	s.tickets[ticket.QRToken] = data
	return nil
}

func (s *InMemoryStore) RecordScan(_ context.Context, ticket models.TicketRecord, attendance models.AttendanceRecord, state *models.SubjectState) error {
	ticketData, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	stateData, err := models.MarshalRecord(state)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tickets[ticket.QRToken]
	if !ok {
		return sentinel.ErrNotFound
	}
	var stored models.TicketRecord
	if err := json.Unmarshal(current, &stored); err != nil {
		return fmt.Errorf("decode ticket: %w", err)
	}
	if stored.Ticket.Used() {
		return sentinel.ErrConflict
	}
	s.tickets[ticket.QRToken] = ticketData
	s.attendance = append(s.attendance, attendance)
	s.subjects[state.Subject] = stateData
	return nil
}

func (s *InMemoryStore) ListAttendance(_ context.Context) ([]models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AttendanceRecord, len(s.attendance))
	copy(out, s.attendance)
	return out, nil
}
