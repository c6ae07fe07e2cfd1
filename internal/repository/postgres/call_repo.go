package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slganesh1/lume-telehealth/internal/domain"
)

var (
	// ErrCallNotFound is returned when no call record exists for the lookup key
	ErrCallNotFound = errors.New("call not found")
	// ErrDuplicateRoom is returned when a room key is already scheduled
	ErrDuplicateRoom = errors.New("room already scheduled")
)

// CallRepository handles call record persistence
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create inserts a new scheduled call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, room_id, patient_id, clinician_id, status, scheduled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_id) DO NOTHING
	`

	ct, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.RoomID,
		call.PatientID,
		call.ClinicianID,
		call.Status,
		call.ScheduledAt,
		call.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicateRoom
	}

	return nil
}

// GetByRoom retrieves the call record for a room key
func (r *CallRepository) GetByRoom(ctx context.Context, roomID string) (*domain.Call, error) {
	query := `
		SELECT call_id, room_id, patient_id, clinician_id, status,
		       scheduled_at, started_at, ended_at, duration_seconds, created_at
		FROM calls
		WHERE room_id = $1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, roomID).Scan(
		&call.CallID,
		&call.RoomID,
		&call.PatientID,
		&call.ClinicianID,
		&call.Status,
		&call.ScheduledAt,
		&call.StartedAt,
		&call.EndedAt,
		&call.DurationSeconds,
		&call.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// MarkStarted transitions a scheduled call to active. A second join against
// an already active call matches no rows and is a no-op.
func (r *CallRepository) MarkStarted(ctx context.Context, callID uuid.UUID, startedAt time.Time) error {
	query := `
		UPDATE calls
		SET status = 'active', started_at = $2
		WHERE call_id = $1 AND status = 'scheduled'
	`

	_, err := r.pool.Exec(ctx, query, callID, startedAt)
	if err != nil {
		return fmt.Errorf("failed to mark call started: %w", err)
	}

	return nil
}

// MarkEnded transitions a call to ended and records duration. The COALESCE
// repairs a started_at lost to an earlier failed write-through.
func (r *CallRepository) MarkEnded(ctx context.Context, callID uuid.UUID, startedAt, endedAt time.Time, durationSeconds int) error {
	query := `
		UPDATE calls
		SET status = 'ended',
		    ended_at = $2,
		    duration_seconds = $3,
		    started_at = COALESCE(started_at, $4)
		WHERE call_id = $1 AND status <> 'ended'
	`

	_, err := r.pool.Exec(ctx, query, callID, endedAt, durationSeconds, startedAt)
	if err != nil {
		return fmt.Errorf("failed to mark call ended: %w", err)
	}

	return nil
}

// UpsertParticipant records a participant joining, or refreshes the row when
// the same user rejoins the call
func (r *CallRepository) UpsertParticipant(ctx context.Context, p *domain.CallParticipant) error {
	query := `
		INSERT INTO call_participants (call_id, user_id, role, joined_at, audio_enabled, video_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (call_id, user_id) DO UPDATE
		SET role = EXCLUDED.role,
		    joined_at = EXCLUDED.joined_at,
		    left_at = NULL,
		    audio_enabled = EXCLUDED.audio_enabled,
		    video_enabled = EXCLUDED.video_enabled
	`

	_, err := r.pool.Exec(ctx, query,
		p.CallID,
		p.UserID,
		p.Role,
		p.JoinedAt,
		p.AudioEnabled,
		p.VideoEnabled,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}

	return nil
}

// MarkParticipantLeft stamps the participant's departure time
func (r *CallRepository) MarkParticipantLeft(ctx context.Context, callID, userID uuid.UUID, leftAt time.Time) error {
	query := `
		UPDATE call_participants
		SET left_at = $3
		WHERE call_id = $1 AND user_id = $2 AND left_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, callID, userID, leftAt)
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}

	return nil
}

// UpdateParticipantMedia updates the participant's last known media state
func (r *CallRepository) UpdateParticipantMedia(ctx context.Context, callID, userID uuid.UUID, audioEnabled, videoEnabled bool) error {
	query := `
		UPDATE call_participants
		SET audio_enabled = $3, video_enabled = $4
		WHERE call_id = $1 AND user_id = $2
	`

	_, err := r.pool.Exec(ctx, query, callID, userID, audioEnabled, videoEnabled)
	if err != nil {
		return fmt.Errorf("failed to update participant media: %w", err)
	}

	return nil
}

// GetParticipants retrieves all participants in a call
func (r *CallRepository) GetParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	query := `
		SELECT call_id, user_id, role, joined_at, left_at, audio_enabled, video_enabled
		FROM call_participants
		WHERE call_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.CallParticipant
	for rows.Next() {
		p := &domain.CallParticipant{}
		err := rows.Scan(
			&p.CallID,
			&p.UserID,
			&p.Role,
			&p.JoinedAt,
			&p.LeftAt,
			&p.AudioEnabled,
			&p.VideoEnabled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, nil
}

// AppendMessage persists a chat message, assigning its id and timestamp
func (r *CallRepository) AppendMessage(ctx context.Context, callID, senderID uuid.UUID, body string) (*domain.CallMessage, error) {
	query := `
		INSERT INTO call_messages (message_id, call_id, sender_id, body, sent_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING sent_at
	`

	msg := &domain.CallMessage{
		MessageID: uuid.New(),
		CallID:    callID,
		SenderID:  senderID,
		Body:      body,
	}

	err := r.pool.QueryRow(ctx, query, msg.MessageID, callID, senderID, body).Scan(&msg.SentAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}

// GetMessages retrieves the chat transcript for a call in send order
func (r *CallRepository) GetMessages(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CallMessage, error) {
	query := `
		SELECT message_id, call_id, sender_id, body, sent_at
		FROM call_messages
		WHERE call_id = $1
		ORDER BY sent_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, callID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.CallMessage
	for rows.Next() {
		msg := &domain.CallMessage{}
		err := rows.Scan(
			&msg.MessageID,
			&msg.CallID,
			&msg.SenderID,
			&msg.Body,
			&msg.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// GetUserCalls retrieves call history for a user, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT call_id, room_id, patient_id, clinician_id, status,
		       scheduled_at, started_at, ended_at, duration_seconds, created_at
		FROM calls
		WHERE patient_id = $1 OR clinician_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.CallID,
			&call.RoomID,
			&call.PatientID,
			&call.ClinicianID,
			&call.Status,
			&call.ScheduledAt,
			&call.StartedAt,
			&call.EndedAt,
			&call.DurationSeconds,
			&call.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, nil
}
