package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/slganesh1/lume-telehealth/internal/database"
	"github.com/slganesh1/lume-telehealth/pkg/constants"
)

// PresenceRepository tracks which users currently hold a signaling socket.
// Keys carry a TTL so a crashed service instance cannot leave users
// permanently marked online.
type PresenceRepository struct {
	client *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// SetOnline marks a user as connected to the signaling service, recording
// the room their socket is attached to
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID, roomID string) error {
	key := fmt.Sprintf("presence:%s", userID)

	err := r.client.SafeSet(ctx, key, roomID, constants.PresenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	// Add to online users set for quick listing
	err = r.client.SafeSAdd(ctx, "presence:online", userID.String()).Err()
	if err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}

	return nil
}

// SetOffline clears a user's presence
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	err := r.client.SafeDel(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	err = r.client.SafeSRem(ctx, "presence:online", userID.String()).Err()
	if err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}

	return nil
}

// Refresh keeps a user's presence alive (heartbeat, driven by WebSocket pongs)
func (r *PresenceRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	err := r.client.SafeExpire(ctx, key, constants.PresenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	return nil
}

// Get reports whether a user is online and which room their socket belongs to
func (r *PresenceRepository) Get(ctx context.Context, userID uuid.UUID) (bool, string, error) {
	key := fmt.Sprintf("presence:%s", userID)

	roomID, err := r.client.SafeGet(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return false, "", nil
		}
		return false, "", fmt.Errorf("failed to check presence: %w", err)
	}

	return true, roomID, nil
}

// GetOnlineUsers retrieves the list of online user IDs
func (r *PresenceRepository) GetOnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	userIDStrs, err := r.client.SafeSMembers(ctx, "presence:online").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(userIDStrs))
	for _, idStr := range userIDStrs {
		userID, err := uuid.Parse(idStr)
		if err != nil {
			continue // Skip invalid UUIDs
		}
		userIDs = append(userIDs, userID)
	}

	return userIDs, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
