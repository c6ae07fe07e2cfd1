package call

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	redisrepo "github.com/slganesh1/lume-telehealth/internal/repository/redis"
	"github.com/slganesh1/lume-telehealth/internal/service/call"
	apperrors "github.com/slganesh1/lume-telehealth/pkg/errors"
	"github.com/slganesh1/lume-telehealth/pkg/pagination"
	"github.com/slganesh1/lume-telehealth/pkg/response"
)

// Handler handles call scheduling and inspection HTTP requests
type Handler struct {
	callService *call.Service
	presence    *redisrepo.PresenceRepository
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service, presence *redisrepo.PresenceRepository) *Handler {
	return &Handler{
		callService: callService,
		presence:    presence,
	}
}

// ScheduleCallRequest represents a call scheduling request
type ScheduleCallRequest struct {
	PatientID   string    `json:"patient_id" binding:"required,uuid"`
	ClinicianID string    `json:"clinician_id" binding:"required,uuid"`
	RoomID      string    `json:"room_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// PresenceResponse reports a user's online marker
type PresenceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Online bool      `json:"online"`
	RoomID string    `json:"room_id,omitempty"`
}

// ScheduleCall creates the call record a session is later joined against
// POST /v1/calls
func (h *Handler) ScheduleCall(c *gin.Context) {
	var req ScheduleCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		response.ValidationError(c, "Invalid patient ID")
		return
	}
	clinicianID, err := uuid.Parse(req.ClinicianID)
	if err != nil {
		response.ValidationError(c, "Invalid clinician ID")
		return
	}

	record, err := h.callService.Schedule(c.Request.Context(), &call.ScheduleCallInput{
		PatientID:   patientID,
		ClinicianID: clinicianID,
		RoomID:      req.RoomID,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, record)
}

// GetCall retrieves the persisted record with its participant rows
// GET /v1/calls/:roomID
func (h *Handler) GetCall(c *gin.Context) {
	detail, err := h.callService.GetByRoom(c.Request.Context(), c.Param("roomID"))
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call":         detail.Call,
		"participants": detail.Participants,
	})
}

// GetSession retrieves the live in-memory roster of a room
// GET /v1/calls/:roomID/session
func (h *Handler) GetSession(c *gin.Context) {
	roomID := c.Param("roomID")

	roster, err := h.callService.LiveSession(c.Request.Context(), roomID)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"room_id":      roomID,
		"participants": roster,
	})
}

// GetTranscript retrieves the chat transcript of a call
// GET /v1/calls/:roomID/messages
func (h *Handler) GetTranscript(c *gin.Context) {
	params, ok := pageParams(c)
	if !ok {
		return
	}

	messages, err := h.callService.Transcript(c.Request.Context(), c.Param("roomID"), params.Limit, params.Offset)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"messages": messages})
}

// GetHistory retrieves the authenticated user's calls, most recent first
// GET /v1/calls
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	params, pok := pageParams(c)
	if !pok {
		return
	}

	calls, err := h.callService.History(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		response.FromAppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": calls})
}

// GetPresence reports whether a user currently holds a signaling connection
// GET /v1/users/:id/presence
func (h *Handler) GetPresence(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	online, roomID, err := h.presence.Get(c.Request.Context(), userID)
	if err != nil {
		response.FromAppError(c, apperrors.WrapWithStatus(
			apperrors.ErrCodeStoreUnavailable, "presence unavailable",
			http.StatusServiceUnavailable, err))
		return
	}

	response.Success(c, http.StatusOK, PresenceResponse{
		UserID: userID,
		Online: online,
		RoomID: roomID,
	})
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

func pageParams(c *gin.Context) (*pagination.Params, bool) {
	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return nil, false
	}
	return params, true
}
