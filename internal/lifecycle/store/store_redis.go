package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	"racepass/pkg/platform/sentinel"
)

const (
	subjectKeyPrefix      = "racepass:subject:"
	ticketKeyPrefix       = "racepass:ticket:"
	registrationKeyPrefix = "racepass:registrations:"
	registeredKeyPrefix   = "racepass:registered:"
	attendanceKey         = "racepass:attendance"
)

// RedisStore keeps lifecycle state in Redis. Multi-key writes use WATCH plus
// MULTI so a concurrent writer aborts the transaction instead of interleaving.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func subjectKey(subject domain.SubjectID) string { return subjectKeyPrefix + subject.Hex() }
func ticketKey(qr string) string                  { return ticketKeyPrefix + qr }
func registrationsKey(e domain.EventID) string    { return registrationKeyPrefix + string(e) }
func registeredKey(e domain.EventID) string       { return registeredKeyPrefix + string(e) }

func (s *RedisStore) FindSubject(ctx context.Context, subject domain.SubjectID) (*models.SubjectState, error) {
	data, err := s.client.Get(ctx, subjectKey(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return models.UnmarshalRecord(data)
}

func (s *RedisStore) SaveSubject(ctx context.Context, state *models.SubjectState) error {
	if state == nil {
		return fmt.Errorf("subject state is required")
	}
	data, err := models.MarshalRecord(state)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	if err := s.client.Set(ctx, subjectKey(state.Subject), data, 0).Err(); err != nil {
		return fmt.Errorf("set subject: %w", err)
	}
	return nil
}

func (s *RedisStore) FindTicket(ctx context.Context, qrToken string) (*models.TicketRecord, error) {
	return getTicket(ctx, s.client, qrToken)
}

func getTicket(ctx context.Context, c redis.Cmdable, qrToken string) (*models.TicketRecord, error) {
	data, err := c.Get(ctx, ticketKey(qrToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	var rec models.TicketRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) FindRegistration(ctx context.Context, subject domain.SubjectID, eventID domain.EventID) (*models.Registration, error) {
	data, err := s.client.HGet(ctx, registeredKey(eventID), subject.Hex()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	var reg models.Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return &reg, nil
}

func (s *RedisStore) CountRegistrations(ctx context.Context, eventID domain.EventID) (int, error) {
	n, err := s.client.LLen(ctx, registrationsKey(eventID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) ListRegistrations(ctx context.Context, eventID domain.EventID) ([]models.Registration, error) {
	raw, err := s.client.LRange(ctx, registrationsKey(eventID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]models.Registration, 0, len(raw))
	for _, item := range raw {
		var reg models.Registration
		if err := json.Unmarshal([]byte(item), &reg); err != nil {
			return nil, fmt.Errorf("decode registration: %w", err)
		}
		out = append(out, reg)
	}
	return out, nil
}

func (s *RedisStore) RecordRegistration(ctx context.Context, reg models.Registration, ticket models.TicketRecord) error {
	regData, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	ticketData, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	setKey := registeredKey(reg.EventID)
	tKey := ticketKey(ticket.QRToken)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, setKey, reg.Subject.Hex()).Result()
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if exists {
			return sentinel.ErrConflict
		}
		taken, err := tx.Exists(ctx, tKey).Result()
		if err != nil {
			return fmt.Errorf("check ticket: %w", err)
		}
		if taken > 0 {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, setKey, reg.Subject.Hex(), regData)
			pipe.RPush(ctx, registrationsKey(reg.EventID), regData)
			pipe.Set(ctx, tKey, ticketData, 0)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("record registration: %w", err)
		}
		return nil
	}, setKey, tKey)
}

func (s *RedisStore) RecordScan(ctx context.Context, ticket models.TicketRecord, attendance models.AttendanceRecord, state *models.SubjectState) error {
	ticketData, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	attendanceData, err := json.Marshal(attendance)
	if err != nil {
		return fmt.Errorf("encode attendance: %w", err)
	}
	stateData, err := models.MarshalRecord(state)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	tKey := ticketKey(ticket.QRToken)
	sKey := subjectKey(state.Subject)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := getTicket(ctx, tx, ticket.QRToken)
		if err != nil {
			return err
		}
		if stored.Ticket.Used() {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tKey, ticketData, 0)
			pipe.RPush(ctx, attendanceKey, attendanceData)
			pipe.Set(ctx, sKey, stateData, 0)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("record scan: %w", err)
		}
		return nil
	}, tKey, sKey)
}

func (s *RedisStore) ListAttendance(ctx context.Context) ([]models.AttendanceRecord, error) {
	raw, err := s.client.LRange(ctx, attendanceKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	out := make([]models.AttendanceRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.AttendanceRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode attendance: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
