package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

// TestServeWSRejectsWrongPurpose tests the transport discriminator
func TestServeWSRejectsWrongPurpose(t *testing.T) {
	handler := NewSessionHandler(nil, nil, nil, nil)

	c, w := newTestContext("/v1/calls/ws?purpose=chat&room_id=call_2f9c")
	handler.ServeWS(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "call-signaling")
}

// TestServeWSRequiresRoom tests that room_id is mandatory before upgrade
func TestServeWSRequiresRoom(t *testing.T) {
	handler := NewSessionHandler(nil, nil, nil, nil)

	c, w := newTestContext("/v1/calls/ws?purpose=call-signaling")
	handler.ServeWS(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "room_id")
}

// TestServeWSRequiresAuthenticatedUser tests the identity requirement
func TestServeWSRequiresAuthenticatedUser(t *testing.T) {
	handler := NewSessionHandler(nil, nil, nil, nil)

	c, w := newTestContext("/v1/calls/ws?purpose=call-signaling&room_id=call_2f9c")
	handler.ServeWS(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestServeWSRejectsPlainHTTP tests that a non-upgrade request fails
func TestServeWSRejectsPlainHTTP(t *testing.T) {
	handler := NewSessionHandler(nil, nil, nil, nil)

	c, w := newTestContext("/v1/calls/ws?purpose=call-signaling&room_id=call_2f9c")
	c.Set("user_id", uuid.New())
	handler.ServeWS(c)

	// gorilla answers the failed handshake itself
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
