package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	"racepass/pkg/platform/sentinel"
)

// PostgresStore persists lifecycle state in PostgreSQL. Subject states are
// stored as their versioned record; tickets as JSON documents.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed lifecycle store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to an existing transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// inTx runs fn inside the bound transaction, or a fresh one.
func (s *PostgresStore) inTx(ctx context.Context, fn func(dbExecutor) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSubject(ctx context.Context, subject domain.SubjectID) (*models.SubjectState, error) {
	var data []byte
	err := s.execer().QueryRowContext(ctx,
		`SELECT record FROM subject_states WHERE subject = $1`, subject.Hex(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return models.UnmarshalRecord(data)
}

func (s *PostgresStore) SaveSubject(ctx context.Context, state *models.SubjectState) error {
	if state == nil {
		return fmt.Errorf("subject state is required")
	}
	return saveSubject(ctx, s.execer(), state)
}

func saveSubject(ctx context.Context, exec dbExecutor, state *models.SubjectState) error {
	data, err := models.MarshalRecord(state)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	query := `
		INSERT INTO subject_states (subject, record, revoked, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (subject) DO UPDATE
		SET record = EXCLUDED.record,
		    revoked = EXCLUDED.revoked,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
	`
	if _, err := exec.ExecContext(ctx, query, state.Subject.Hex(), data, state.Revoked, state.ExpiresAt); err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTicket(ctx context.Context, qrToken string) (*models.TicketRecord, error) {
	return findTicket(ctx, s.execer(), qrToken, false)
}

func findTicket(ctx context.Context, exec dbExecutor, qrToken string, forUpdate bool) (*models.TicketRecord, error) {
	query := `SELECT ticket FROM tickets WHERE qr_token = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var data []byte
	if err := exec.QueryRowContext(ctx, query, qrToken).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	var rec models.TicketRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) FindRegistration(ctx context.Context, subject domain.SubjectID, eventID domain.EventID) (*models.Registration, error) {
	query := `
		SELECT subject, event_id, qr_token, ticket_hash, registered_at
		FROM registrations
		WHERE subject = $1 AND event_id = $2
	`
	reg, err := scanRegistration(s.execer().QueryRowContext(ctx, query, subject.Hex(), string(eventID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) CountRegistrations(ctx context.Context, eventID domain.EventID) (int, error) {
	var n int
	err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, string(eventID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListRegistrations(ctx context.Context, eventID domain.EventID) ([]models.Registration, error) {
	query := `
		SELECT subject, event_id, qr_token, ticket_hash, registered_at
		FROM registrations
		WHERE event_id = $1
		ORDER BY seq
	`
	rows, err := s.execer().QueryContext(ctx, query, string(eventID))
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordRegistration(ctx context.Context, reg models.Registration, ticket models.TicketRecord) error {
	ticketData, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	return s.inTx(ctx, func(exec dbExecutor) error {
		var token string
		err := exec.QueryRowContext(ctx, `
			INSERT INTO tickets (qr_token, subject, event_id, ticket, used_at)
			VALUES ($1, $2, $3, $4, NULL)
			ON CONFLICT (qr_token) DO NOTHING
			RETURNING qr_token
		`, ticket.QRToken, reg.Subject.Hex(), string(reg.EventID), ticketData).Scan(&token)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert ticket: %w", err)
		}

		var subject string
		err = exec.QueryRowContext(ctx, `
			INSERT INTO registrations (subject, event_id, qr_token, ticket_hash, registered_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (subject, event_id) DO NOTHING
			RETURNING subject
		`, reg.Subject.Hex(), string(reg.EventID), reg.QRToken, reg.TicketHash.Hex(), reg.RegisteredAt).Scan(&subject)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) RecordScan(ctx context.Context, ticket models.TicketRecord, attendance models.AttendanceRecord, state *models.SubjectState) error {
	ticketData, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	return s.inTx(ctx, func(exec dbExecutor) error {
		stored, err := findTicket(ctx, exec, ticket.QRToken, true)
		if err != nil {
			return err
		}
		if stored.Ticket.Used() {
			return sentinel.ErrConflict
		}
		if _, err := exec.ExecContext(ctx,
			`UPDATE tickets SET ticket = $2, used_at = $3 WHERE qr_token = $1`,
			ticket.QRToken, ticketData, ticket.Ticket.UsedAt,
		); err != nil {
			return fmt.Errorf("mark ticket used: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO attendance (subject, event_id, leaf, attended_at)
			VALUES ($1, $2, $3, $4)
		`, attendance.Subject.Hex(), string(attendance.EventID), attendance.Leaf.Hex(), attendance.AttendedAt); err != nil {
			return fmt.Errorf("append attendance: %w", err)
		}
		return saveSubject(ctx, exec, state)
	})
}

func (s *PostgresStore) ListAttendance(ctx context.Context) ([]models.AttendanceRecord, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT subject, event_id, leaf, attended_at
		FROM attendance
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []models.AttendanceRecord
	for rows.Next() {
		var (
			subject, eventID, leaf string
			attendedAt             time.Time
		)
		if err := rows.Scan(&subject, &eventID, &leaf, &attendedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		sid, err := domain.ParseSubjectID(subject)
		if err != nil {
			return nil, fmt.Errorf("parse attendance subject: %w", err)
		}
		out = append(out, models.AttendanceRecord{
			Subject:    sid,
			EventID:    domain.EventID(eventID),
			Leaf:       common.HexToHash(leaf),
			AttendedAt: attendedAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		subject, eventID, qr, ticketHash string
		registeredAt                     time.Time
	)
	if err := row.Scan(&subject, &eventID, &qr, &ticketHash, &registeredAt); err != nil {
		return nil, err
	}
	sid, err := domain.ParseSubjectID(subject)
	if err != nil {
		return nil, err
	}
	return &models.Registration{
		Subject:      sid,
		EventID:      domain.EventID(eventID),
		QRToken:      qr,
		TicketHash:   common.HexToHash(ticketHash),
		RegisteredAt: registeredAt.UTC(),
	}, nil
}
