package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slganesh1/lume-telehealth/internal/domain"
	"github.com/slganesh1/lume-telehealth/internal/protocol"
	"github.com/slganesh1/lume-telehealth/internal/repository/postgres"
	"github.com/slganesh1/lume-telehealth/pkg/constants"
	apperrors "github.com/slganesh1/lume-telehealth/pkg/errors"
)

// CallRepository is the persistence surface the scheduling API needs.
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByRoom(ctx context.Context, roomID string) (*domain.Call, error)
	GetParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error)
	GetMessages(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CallMessage, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
}

// Snapshotter exposes the live roster of a room, satisfied by the session
// manager.
type Snapshotter interface {
	Snapshot(roomID string) ([]protocol.ParticipantInfo, bool)
}

// Service handles call scheduling and inspection
type Service struct {
	repo     CallRepository
	sessions Snapshotter
}

// NewService creates a new call service
func NewService(repo CallRepository, sessions Snapshotter) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
	}
}

// ScheduleCallInput contains the data needed to schedule a call
type ScheduleCallInput struct {
	PatientID   uuid.UUID
	ClinicianID uuid.UUID
	RoomID      string
	ScheduledAt time.Time
}

// CallDetail pairs a call record with its persisted participant rows
type CallDetail struct {
	Call         *domain.Call
	Participants []*domain.CallParticipant
}

// Schedule creates the call record a session is later joined against. The
// room key is generated when the caller does not supply one.
func (s *Service) Schedule(ctx context.Context, input *ScheduleCallInput) (*domain.Call, error) {
	if input.PatientID == uuid.Nil || input.ClinicianID == uuid.Nil {
		return nil, apperrors.ValidationError("patient_id and clinician_id are required")
	}
	if input.PatientID == input.ClinicianID {
		return nil, apperrors.ValidationError("patient and clinician must be different users")
	}

	roomID := input.RoomID
	if roomID == "" {
		roomID = "call_" + uuid.New().String()
	}
	scheduledAt := input.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	record := &domain.Call{
		CallID:      uuid.New(),
		RoomID:      roomID,
		PatientID:   input.PatientID,
		ClinicianID: input.ClinicianID,
		Status:      domain.CallStatusScheduled,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, postgres.ErrDuplicateRoom) {
			return nil, apperrors.ConflictError(fmt.Sprintf("room %s is already scheduled", roomID))
		}
		return nil, fmt.Errorf("failed to create call record: %w", err)
	}
	return record, nil
}

// GetByRoom returns the persisted record and participant rows for a room
func (s *Service) GetByRoom(ctx context.Context, roomID string) (*CallDetail, error) {
	record, err := s.resolveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	participants, err := s.repo.GetParticipants(ctx, record.CallID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return &CallDetail{Call: record, Participants: participants}, nil
}

// LiveSession returns the in-memory roster of a room with a connected
// session. An idle room reports not found.
func (s *Service) LiveSession(ctx context.Context, roomID string) ([]protocol.ParticipantInfo, error) {
	roster, ok := s.sessions.Snapshot(roomID)
	if !ok {
		return nil, apperrors.NotFoundError("active session")
	}
	return roster, nil
}

// Transcript returns the chat messages of a call in send order
func (s *Service) Transcript(ctx context.Context, roomID string, limit, offset int) ([]*domain.CallMessage, error) {
	record, err := s.resolveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	messages, err := s.repo.GetMessages(ctx, record.CallID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return messages, nil
}

// History returns the calls a user is a party to, most recent first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	calls, err := s.repo.GetUserCalls(ctx, userID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load call history: %w", err)
	}
	return calls, nil
}

func (s *Service) resolveRoom(ctx context.Context, roomID string) (*domain.Call, error) {
	record, err := s.repo.GetByRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, postgres.ErrCallNotFound) {
			return nil, apperrors.RoomNotFoundError(roomID)
		}
		return nil, fmt.Errorf("failed to load call record: %w", err)
	}
	return record, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		return constants.MaxPageSize
	}
	return limit
}
