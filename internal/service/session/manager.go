package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slganesh1/lume-telehealth/internal/domain"
	"github.com/slganesh1/lume-telehealth/internal/protocol"
	"github.com/slganesh1/lume-telehealth/internal/repository/postgres"
	apperrors "github.com/slganesh1/lume-telehealth/pkg/errors"
	"github.com/slganesh1/lume-telehealth/pkg/logger"
	"github.com/slganesh1/lume-telehealth/pkg/metrics"
)

// CallStore is the persistence contract consumed by the session manager.
// Every write is a write-through mirror of in-memory state: failures are
// logged and never roll a live session back.
type CallStore interface {
	GetByRoom(ctx context.Context, roomID string) (*domain.Call, error)
	MarkStarted(ctx context.Context, callID uuid.UUID, startedAt time.Time) error
	MarkEnded(ctx context.Context, callID uuid.UUID, startedAt, endedAt time.Time, durationSeconds int) error
	UpsertParticipant(ctx context.Context, p *domain.CallParticipant) error
	MarkParticipantLeft(ctx context.Context, callID, userID uuid.UUID, leftAt time.Time) error
	UpdateParticipantMedia(ctx context.Context, callID, userID uuid.UUID, audioEnabled, videoEnabled bool) error
	AppendMessage(ctx context.Context, callID, senderID uuid.UUID, body string) (*domain.CallMessage, error)
}

// Manager orchestrates live call sessions: joins and leaves, media state
// toggles, chat relay, directed signaling relay and disconnect cleanup.
// It exclusively owns the room state table and the connection registry;
// per-room mutation is serialized by the room's lock, and outbound frames
// are enqueued under that lock so per-room delivery order matches the
// order operations were processed.
type Manager struct {
	registry  *Registry
	table     *Table
	store     CallStore
	directory Directory
	metrics   *metrics.Metrics
}

// NewManager creates a session manager. metrics may be nil in tests.
func NewManager(store CallStore, directory Directory, m *metrics.Metrics) *Manager {
	return &Manager{
		registry:  NewRegistry(),
		table:     NewTable(),
		store:     store,
		directory: directory,
		metrics:   m,
	}
}

// Join admits a user into a room. The call record must exist and not be
// ended, and the directory must name the user for the requested role;
// violations reject the join without touching any state. On success the
// joiner is inserted with audio and video enabled, every other participant
// receives participant_joined, and the joiner receives a call_joined
// snapshot taken after its own insertion. The first join also transitions
// the call record to active.
func (m *Manager) Join(ctx context.Context, roomID string, userID uuid.UUID, role domain.Role, conn Sender) error {
	record, err := m.store.GetByRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, postgres.ErrCallNotFound) {
			return apperrors.RoomNotFoundError(roomID)
		}
		return apperrors.StoreUnavailableError(err)
	}
	if !record.Joinable() {
		return apperrors.CallEndedError(roomID)
	}
	if !m.directory.CanJoin(ctx, record, userID, role) {
		return apperrors.NotAuthorizedError("user is not a party to this call")
	}

	now := time.Now()

	var call *ActiveCall
	for {
		call = m.table.GetOrCreate(roomID, record.CallID)
		call.mu.Lock()
		if !call.defunct {
			break
		}
		call.mu.Unlock()
		// the room emptied under us; clear the dead entry and take a fresh one
		m.table.Remove(roomID, call)
	}

	firstJoin := len(call.participants) == 0
	call.participants[userID] = &participantState{
		userID:       userID,
		role:         role,
		conn:         conn,
		audioEnabled: true,
		videoEnabled: true,
		joinedAt:     now,
	}
	m.registry.Register(userID, conn)

	snapshot := call.snapshotLocked()
	count := len(call.participants)

	if b, ok := m.encode(protocol.ParticipantJoined{
		Type:             protocol.TypeParticipantJoined,
		RoomID:           roomID,
		Timestamp:        now,
		UserID:           userID,
		Role:             string(role),
		ParticipantCount: count,
	}); ok {
		for id := range call.participants {
			if id == userID {
				continue
			}
			m.registry.Send(id, b)
		}
	}
	if b, ok := m.encode(protocol.CallJoined{
		Type:         protocol.TypeCallJoined,
		RoomID:       roomID,
		Timestamp:    now,
		Participants: snapshot,
	}); ok {
		m.registry.Send(userID, b)
	}
	startedAt := call.StartedAt
	call.mu.Unlock()

	// write-throughs happen outside the room lock
	if err := m.store.UpsertParticipant(ctx, &domain.CallParticipant{
		CallID:       record.CallID,
		UserID:       userID,
		Role:         role,
		JoinedAt:     now,
		AudioEnabled: true,
		VideoEnabled: true,
	}); err != nil {
		m.storeWriteFailed("upsert_participant", roomID, err)
	}
	if firstJoin {
		if err := m.store.MarkStarted(ctx, record.CallID, startedAt); err != nil {
			m.storeWriteFailed("mark_started", roomID, err)
		}
		if m.metrics != nil {
			m.metrics.IncrementActiveCalls()
		}
	}
	if m.metrics != nil {
		m.metrics.RecordJoin(string(role))
	}

	logger.Info("Participant joined call",
		zap.String("room_id", roomID),
		zap.String("user_id", userID.String()),
		zap.String("role", string(role)),
		zap.Int("participant_count", count))

	return nil
}

// Leave removes a user from a room. Removing an absent user is a no-op,
// which makes explicit leave and disconnect cleanup safely idempotent.
func (m *Manager) Leave(ctx context.Context, roomID string, userID uuid.UUID) {
	m.leave(ctx, roomID, userID, "left")
}

func (m *Manager) leave(ctx context.Context, roomID string, userID uuid.UUID, cause string) {
	call, ok := m.table.Get(roomID)
	if !ok {
		return
	}

	call.mu.Lock()
	ps, ok := call.participants[userID]
	if !ok {
		call.mu.Unlock()
		return
	}
	delete(call.participants, userID)
	// identity-checked so a leave racing a rejoin on a fresh connection
	// cannot unregister the replacement
	m.registry.Unregister(userID, ps.conn)

	now := time.Now()
	count := len(call.participants)
	lastLeave := count == 0
	if lastLeave {
		call.defunct = true
	}

	if b, ok := m.encode(protocol.ParticipantLeft{
		Type:             protocol.TypeParticipantLeft,
		RoomID:           roomID,
		Timestamp:        now,
		UserID:           userID,
		ParticipantCount: count,
	}); ok {
		for id := range call.participants {
			m.registry.Send(id, b)
		}
	}
	startedAt := call.StartedAt
	call.mu.Unlock()

	if lastLeave {
		m.table.Remove(roomID, call)
	}

	// write-throughs happen outside the room lock
	if err := m.store.MarkParticipantLeft(ctx, call.CallID, userID, now); err != nil {
		m.storeWriteFailed("mark_participant_left", roomID, err)
	}
	if lastLeave {
		duration := int(now.Sub(startedAt).Seconds())
		if err := m.store.MarkEnded(ctx, call.CallID, startedAt, now, duration); err != nil {
			m.storeWriteFailed("mark_ended", roomID, err)
		}
		if m.metrics != nil {
			m.metrics.DecrementActiveCalls()
			m.metrics.RecordCallDuration(now.Sub(startedAt))
		}
		logger.Info("Call ended",
			zap.String("room_id", roomID),
			zap.Int("duration_seconds", duration))
	}

	logger.Info("Participant left call",
		zap.String("room_id", roomID),
		zap.String("user_id", userID.String()),
		zap.String("cause", cause),
		zap.Int("participant_count", count))
}

// ToggleAudio updates a participant's audio flag and notifies every other
// participant. Unknown rooms and non-participants are silent no-ops.
func (m *Manager) ToggleAudio(ctx context.Context, roomID string, userID uuid.UUID, enabled bool) {
	m.toggleMedia(ctx, roomID, userID, protocol.TypeAudioToggled, enabled)
}

// ToggleVideo updates a participant's video flag and notifies every other
// participant. Unknown rooms and non-participants are silent no-ops.
func (m *Manager) ToggleVideo(ctx context.Context, roomID string, userID uuid.UUID, enabled bool) {
	m.toggleMedia(ctx, roomID, userID, protocol.TypeVideoToggled, enabled)
}

func (m *Manager) toggleMedia(ctx context.Context, roomID string, userID uuid.UUID, outType protocol.MessageType, enabled bool) {
	call, ok := m.table.Get(roomID)
	if !ok {
		return
	}

	call.mu.Lock()
	ps, ok := call.participants[userID]
	if !ok {
		call.mu.Unlock()
		return
	}
	if outType == protocol.TypeAudioToggled {
		ps.audioEnabled = enabled
	} else {
		ps.videoEnabled = enabled
	}
	audioNow, videoNow := ps.audioEnabled, ps.videoEnabled

	// the originator already knows its own state; notify everyone else
	if b, ok := m.encode(protocol.MediaToggled{
		Type:      outType,
		RoomID:    roomID,
		Timestamp: time.Now(),
		UserID:    userID,
		Enabled:   enabled,
	}); ok {
		for id := range call.participants {
			if id == userID {
				continue
			}
			m.registry.Send(id, b)
		}
	}
	call.mu.Unlock()

	if err := m.store.UpdateParticipantMedia(ctx, call.CallID, userID, audioNow, videoNow); err != nil {
		m.storeWriteFailed("update_participant_media", roomID, err)
	}
}

// Chat persists a message and broadcasts it to every participant including
// the sender, carrying the store-assigned id and timestamp so client UIs
// reconcile against server truth instead of their local echo. If the store
// is unreachable the broadcast still goes out with a locally assigned id.
func (m *Manager) Chat(ctx context.Context, roomID string, userID uuid.UUID, body string) {
	call, ok := m.table.Get(roomID)
	if !ok {
		return
	}

	call.mu.Lock()
	_, member := call.participants[userID]
	call.mu.Unlock()
	if !member {
		return
	}

	msg, err := m.store.AppendMessage(ctx, call.CallID, userID, body)
	if err != nil {
		m.storeWriteFailed("append_message", roomID, err)
		msg = &domain.CallMessage{
			MessageID: uuid.New(),
			CallID:    call.CallID,
			SenderID:  userID,
			Body:      body,
			SentAt:    time.Now(),
		}
	}

	call.mu.Lock()
	if b, ok := m.encode(protocol.ChatBroadcast{
		Type:      protocol.TypeChatMessage,
		RoomID:    roomID,
		Timestamp: time.Now(),
		MessageID: msg.MessageID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		SentAt:    msg.SentAt,
	}); ok {
		for id := range call.participants {
			m.registry.Send(id, b)
		}
	}
	call.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordChatMessage()
	}
}

// Signal relays an opaque negotiation payload to a single recipient. The
// payload is never inspected. When either end is not a participant the
// message is dropped silently; the far side may have already left and
// signaling is fire-and-forget.
func (m *Manager) Signal(ctx context.Context, roomID string, fromUserID, toUserID uuid.UUID, kind protocol.MessageType, payload json.RawMessage) {
	call, ok := m.table.Get(roomID)
	if !ok {
		return
	}

	call.mu.Lock()
	_, fromMember := call.participants[fromUserID]
	_, toMember := call.participants[toUserID]
	if !fromMember || !toMember {
		call.mu.Unlock()
		return
	}
	if b, ok := m.encode(protocol.SignalRelay{
		Type:       kind,
		RoomID:     roomID,
		Timestamp:  time.Now(),
		FromUserID: fromUserID,
		Payload:    payload,
	}); ok {
		m.registry.Send(toUserID, b)
	}
	call.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSignalRelayed(protocol.SignalKind(kind))
	}
}

// Disconnect unwinds a closed connection. The connection is resolved back
// to its user through the registry, so a connection superseded by a newer
// one resolves to nothing and cannot tear down the replacement's session.
// The user is removed from every room that still contains them. It reports
// the resolved user and whether cleanup ran, so the transport knows if
// this was the user's live connection.
func (m *Manager) Disconnect(ctx context.Context, conn Sender) (uuid.UUID, bool) {
	userID, ok := m.registry.Owner(conn)
	if !ok {
		return uuid.Nil, false
	}

	for _, roomID := range m.table.RoomsFor(userID) {
		m.leave(ctx, roomID, userID, "disconnected")
	}
	m.registry.Unregister(userID, conn)
	return userID, true
}

// Snapshot returns the live roster for a room, or false when the room has
// no connected participants.
func (m *Manager) Snapshot(roomID string) ([]protocol.ParticipantInfo, bool) {
	call, ok := m.table.Get(roomID)
	if !ok {
		return nil, false
	}

	call.mu.Lock()
	defer call.mu.Unlock()
	if call.defunct {
		return nil, false
	}
	return call.snapshotLocked(), true
}

// ActiveRooms reports the number of rooms with live state
func (m *Manager) ActiveRooms() int {
	return m.table.Len()
}

func (m *Manager) encode(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode outbound frame", zap.Error(err))
		return nil, false
	}
	return b, true
}

func (m *Manager) storeWriteFailed(operation, roomID string, err error) {
	logger.Error("Call record write-through failed",
		zap.String("operation", operation),
		zap.String("room_id", roomID),
		zap.Error(err))
	if m.metrics != nil {
		m.metrics.RecordStoreWriteFailure(operation)
	}
}
