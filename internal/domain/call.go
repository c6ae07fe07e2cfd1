package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call record. Transitions are
// monotonic: scheduled -> active -> ended.
type CallStatus string

const (
	CallStatusScheduled CallStatus = "scheduled"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
)

// Role identifies which side of a clinical call a participant is on.
type Role string

const (
	RolePatient   Role = "patient"
	RoleClinician Role = "clinician"
)

// Valid reports whether r is one of the two recognized roles.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleClinician
}

// Call represents one scheduled or completed telehealth call.
// The room ID is the caller-visible correlation key; the call ID is
// store-assigned and used for all foreign keys.
type Call struct {
	CallID          uuid.UUID  `json:"call_id"`
	RoomID          string     `json:"room_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ClinicianID     uuid.UUID  `json:"clinician_id"`
	Status          CallStatus `json:"status"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Joinable reports whether a participant may still connect to this call.
func (c *Call) Joinable() bool {
	return c.Status == CallStatusScheduled || c.Status == CallStatusActive
}

// CallParticipant is the persisted mirror of a participant's room
// membership. The in-memory session state is authoritative while the
// participant is connected; this row trails it by write-through.
type CallParticipant struct {
	CallID       uuid.UUID  `json:"call_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Role         Role       `json:"role"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	AudioEnabled bool       `json:"audio_enabled"`
	VideoEnabled bool       `json:"video_enabled"`
}

// CallMessage is one chat line exchanged during a call. Rows are
// append-only; SentAt is the server-assigned timestamp clients reconcile
// their local echo against.
type CallMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	CallID    uuid.UUID `json:"call_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}
