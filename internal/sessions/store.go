// Package sessions stores broadcast session records and the latest
// presentation state relayed through each session.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/mghextreme/blu-presenter-sub000/internal/sanitize"
)

var ErrNotFound = errors.New("sessions: not found")

// Record is one session with the last state an operator sent through it.
type Record struct {
	content.BroadcastSession
	Schedule     []content.ScheduleItem
	ScheduleItem *content.ScheduleItem
	Selection    content.Selection
	UpdatedAt    time.Time
}

type Store interface {
	Get(ctx context.Context, orgID, sessionID string) (*Record, error)
	SaveSchedule(ctx context.Context, orgID, sessionID string, schedule []content.ScheduleItem) error
	SaveScheduleItem(ctx context.Context, orgID, sessionID string, item *content.ScheduleItem) error
	SaveSelection(ctx context.Context, orgID, sessionID string, sel content.Selection) error
}

// DB is implemented by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func AutoMigrate(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS presentation_sessions (
          id            TEXT PRIMARY KEY,
          org_id        TEXT NOT NULL,
          secret        TEXT NOT NULL,
          schedule      JSONB NOT NULL DEFAULT '[]'::jsonb,
          schedule_item JSONB NOT NULL DEFAULT 'null'::jsonb,
          selection     JSONB NOT NULL DEFAULT '{}'::jsonb,
          updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `)
	if err != nil {
		log.Printf("sessions: migrate: %v", err)
		return err
	}
	if _, err := db.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS presentation_sessions_org_idx ON presentation_sessions(org_id)
    `); err != nil {
		return err
	}
	return nil
}

// Get loads a session of orgID. Stored state is sanitized on the way out, so a
// damaged row still yields a usable record.
func (s *PostgresStore) Get(ctx context.Context, orgID, sessionID string) (*Record, error) {
	var rec Record
	var schedule, item, selection []byte
	err := s.db.QueryRow(ctx, `
        SELECT id, org_id, secret, schedule, schedule_item, selection, updated_at
        FROM presentation_sessions WHERE id=$1 AND org_id=$2
    `, sessionID, orgID).Scan(
		&rec.ID, &rec.OrgID, &rec.Secret, &schedule, &item, &selection, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get %s: %w", sessionID, err)
	}
	rec.Schedule = sanitize.Schedule(json.RawMessage(schedule))
	rec.ScheduleItem = sanitize.ScheduleItem(json.RawMessage(item))
	rec.Selection = sanitize.Selection(json.RawMessage(selection))
	return &rec, nil
}

func (s *PostgresStore) SaveSchedule(ctx context.Context, orgID, sessionID string, schedule []content.ScheduleItem) error {
	if schedule == nil {
		schedule = []content.ScheduleItem{}
	}
	return s.update(ctx, "schedule", orgID, sessionID, schedule)
}

func (s *PostgresStore) SaveScheduleItem(ctx context.Context, orgID, sessionID string, item *content.ScheduleItem) error {
	return s.update(ctx, "schedule_item", orgID, sessionID, item)
}

func (s *PostgresStore) SaveSelection(ctx context.Context, orgID, sessionID string, sel content.Selection) error {
	return s.update(ctx, "selection", orgID, sessionID, sel)
}

// column is always one of the literals above.
func (s *PostgresStore) update(ctx context.Context, column, orgID, sessionID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sessions: encode %s: %w", column, err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE presentation_sessions SET `+column+`=$3, updated_at=now() WHERE id=$1 AND org_id=$2`,
		sessionID, orgID, b)
	if err != nil {
		return fmt.Errorf("sessions: save %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
