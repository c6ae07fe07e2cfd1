package call

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/slganesh1/lume-telehealth/internal/domain"
	"github.com/slganesh1/lume-telehealth/internal/protocol"
	"github.com/slganesh1/lume-telehealth/internal/repository/postgres"
	apperrors "github.com/slganesh1/lume-telehealth/pkg/errors"
)

// MockCallRepository is a mock implementation of CallRepository
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) GetByRoom(ctx context.Context, roomID string) (*domain.Call, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallParticipant), args.Error(1)
}

func (m *MockCallRepository) GetMessages(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CallMessage, error) {
	args := m.Called(ctx, callID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallMessage), args.Error(1)
}

func (m *MockCallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

// fakeSnapshotter returns a fixed roster
type fakeSnapshotter struct {
	roster []protocol.ParticipantInfo
	ok     bool
}

func (f *fakeSnapshotter) Snapshot(roomID string) ([]protocol.ParticipantInfo, bool) {
	return f.roster, f.ok
}

// TestSchedule tests scheduling with a generated room key
func TestSchedule(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	patientID := uuid.New()
	clinicianID := uuid.New()
	scheduledAt := time.Now().Add(24 * time.Hour)

	// Setup expectations
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	// Execute
	record, err := service.Schedule(context.Background(), &ScheduleCallInput{
		PatientID:   patientID,
		ClinicianID: clinicianID,
		ScheduledAt: scheduledAt,
	})

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, record)
	assert.True(t, strings.HasPrefix(record.RoomID, "call_"))
	assert.Equal(t, domain.CallStatusScheduled, record.Status)
	assert.Equal(t, patientID, record.PatientID)
	assert.Equal(t, clinicianID, record.ClinicianID)
	assert.Equal(t, scheduledAt, record.ScheduledAt)
	mockRepo.AssertExpectations(t)
}

// TestScheduleCustomRoomKey tests that a caller-supplied room key is kept
func TestScheduleCustomRoomKey(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	// Setup expectations
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	// Execute
	record, err := service.Schedule(context.Background(), &ScheduleCallInput{
		PatientID:   uuid.New(),
		ClinicianID: uuid.New(),
		RoomID:      "call_intake-review",
	})

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "call_intake-review", record.RoomID)
}

// TestScheduleDuplicateRoom tests the conflict on an already used room key
func TestScheduleDuplicateRoom(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	// Setup expectations
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(postgres.ErrDuplicateRoom)

	// Execute
	_, err := service.Schedule(context.Background(), &ScheduleCallInput{
		PatientID:   uuid.New(),
		ClinicianID: uuid.New(),
		RoomID:      "call_intake-review",
	})

	// Assert
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetAppError(err).Code)
}

// TestScheduleSamePartyRejected tests that a call needs two distinct users
func TestScheduleSamePartyRejected(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	userID := uuid.New()

	// Execute
	_, err := service.Schedule(context.Background(), &ScheduleCallInput{
		PatientID:   userID,
		ClinicianID: userID,
	})

	// Assert
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetAppError(err).Code)
	mockRepo.AssertNotCalled(t, "Create")
}

// TestScheduleMissingParty tests validation of the required identifiers
func TestScheduleMissingParty(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	// Execute
	_, err := service.Schedule(context.Background(), &ScheduleCallInput{
		PatientID: uuid.New(),
	})

	// Assert
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetAppError(err).Code)
	mockRepo.AssertNotCalled(t, "Create")
}

// TestGetByRoom tests loading a record with its participant rows
func TestGetByRoom(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	record := &domain.Call{
		CallID:    uuid.New(),
		RoomID:    "call_9d3b",
		PatientID: uuid.New(),
		Status:    domain.CallStatusActive,
	}
	rows := []*domain.CallParticipant{
		{CallID: record.CallID, UserID: record.PatientID, Role: domain.RolePatient},
	}

	// Setup expectations
	mockRepo.On("GetByRoom", mock.Anything, "call_9d3b").Return(record, nil)
	mockRepo.On("GetParticipants", mock.Anything, record.CallID).Return(rows, nil)

	// Execute
	detail, err := service.GetByRoom(context.Background(), "call_9d3b")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, record, detail.Call)
	assert.Len(t, detail.Participants, 1)
	mockRepo.AssertExpectations(t)
}

// TestGetByRoomUnknown tests the not found mapping
func TestGetByRoomUnknown(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	// Setup expectations
	mockRepo.On("GetByRoom", mock.Anything, "call_missing").Return(nil, postgres.ErrCallNotFound)

	// Execute
	_, err := service.GetByRoom(context.Background(), "call_missing")

	// Assert
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRoomNotFound, apperrors.GetAppError(err).Code)
}

// TestLiveSession tests the live roster passthrough
func TestLiveSession(t *testing.T) {
	mockRepo := new(MockCallRepository)
	roster := []protocol.ParticipantInfo{
		{UserID: uuid.New(), Role: "patient", AudioEnabled: true, VideoEnabled: true},
	}
	service := NewService(mockRepo, &fakeSnapshotter{roster: roster, ok: true})

	// Execute
	got, err := service.LiveSession(context.Background(), "call_9d3b")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, roster, got)
}

// TestLiveSessionIdleRoom tests that an idle room reports not found
func TestLiveSessionIdleRoom(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	// Execute
	_, err := service.LiveSession(context.Background(), "call_9d3b")

	// Assert
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetAppError(err).Code)
}

// TestTranscript tests transcript paging with the default limit
func TestTranscript(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	record := &domain.Call{CallID: uuid.New(), RoomID: "call_9d3b"}
	messages := []*domain.CallMessage{
		{MessageID: uuid.New(), CallID: record.CallID, Body: "hello"},
	}

	// Setup expectations
	mockRepo.On("GetByRoom", mock.Anything, "call_9d3b").Return(record, nil)
	mockRepo.On("GetMessages", mock.Anything, record.CallID, 20, 0).Return(messages, nil)

	// Execute
	got, err := service.Transcript(context.Background(), "call_9d3b", 0, 0)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	mockRepo.AssertExpectations(t)
}

// TestHistoryClampsLimit tests that oversized page requests are capped
func TestHistoryClampsLimit(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	userID := uuid.New()

	// Setup expectations
	mockRepo.On("GetUserCalls", mock.Anything, userID, 100, 0).Return([]*domain.Call{}, nil)

	// Execute
	_, err := service.History(context.Background(), userID, 500, 0)

	// Assert
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

// TestHistoryRepoFailure tests that repo errors surface wrapped
func TestHistoryRepoFailure(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, &fakeSnapshotter{})

	userID := uuid.New()

	// Setup expectations
	mockRepo.On("GetUserCalls", mock.Anything, userID, 20, 0).Return(nil, errors.New("connection refused"))

	// Execute
	_, err := service.History(context.Background(), userID, 0, 0)

	// Assert
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load call history")
}
