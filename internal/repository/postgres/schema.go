package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates the call record tables if they do not exist
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			call_id UUID PRIMARY KEY,
			room_id TEXT NOT NULL UNIQUE,
			patient_id UUID NOT NULL,
			clinician_id UUID NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			scheduled_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NULL,
			ended_at TIMESTAMPTZ NULL,
			duration_seconds INT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_patient ON calls (patient_id, scheduled_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_clinician ON calls (clinician_id, scheduled_at DESC);`,
		`CREATE TABLE IF NOT EXISTS call_participants (
			call_id UUID NOT NULL REFERENCES calls(call_id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			role TEXT NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL,
			left_at TIMESTAMPTZ NULL,
			audio_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			video_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (call_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS call_messages (
			message_id UUID PRIMARY KEY,
			call_id UUID NOT NULL REFERENCES calls(call_id) ON DELETE CASCADE,
			sender_id UUID NOT NULL,
			body TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_messages_call_sent ON call_messages (call_id, sent_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init call schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}
