package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends activity-log entries to the activity_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (subject, event_id, action, decision, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.Subject, event.EventID, string(event.Action), event.Decision, event.Reason, event.RequestID, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, event_id, action, decision, reason, request_id, created_at
		FROM activity_log
		WHERE subject = $1
		ORDER BY id
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e      Event
			action string
		)
		if err := rows.Scan(&e.Subject, &e.EventID, &action, &e.Decision, &e.Reason, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.Action = Action(action)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}
