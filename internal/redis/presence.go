package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PresenceStatus represents a user's online status
type PresenceStatus struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
	ClientID string    `json:"client_id,omitempty"`
}

// PresenceStore mirrors gateway presence into Redis so other processes can
// read it. The gateway's in-memory registry stays the routing authority.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

// Redis key prefixes for presence
const (
	presenceKeyPrefix = "presence:"       // JSON presence record per user
	presenceOnlineSet = "presence:online" // Set of online user IDs
)

// NewPresenceStore creates a new presence store
func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &PresenceStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetOnline marks a user as online
func (p *PresenceStore) SetOnline(ctx context.Context, userID, clientID string) error {
	return p.write(ctx, PresenceStatus{
		UserID:   userID,
		IsOnline: true,
		LastSeen: p.now(),
		ClientID: clientID,
	})
}

// SetOffline marks a user as offline
func (p *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	return p.write(ctx, PresenceStatus{
		UserID:   userID,
		IsOnline: false,
		LastSeen: p.now(),
	})
}

func (p *PresenceStore) write(ctx context.Context, status PresenceStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, presenceKeyPrefix+status.UserID, data, p.ttl)
	if status.IsOnline {
		pipe.SAdd(ctx, presenceOnlineSet, status.UserID)
	} else {
		pipe.SRem(ctx, presenceOnlineSet, status.UserID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// OnlineUsers lists the mirrored online set.
func (p *PresenceStore) OnlineUsers(ctx context.Context) ([]string, error) {
	return p.client.SMembers(ctx, presenceOnlineSet).Result()
}

// Clear drops the online set. Called at startup since no connection survives
// a restart.
func (p *PresenceStore) Clear(ctx context.Context) error {
	return p.client.Del(ctx, presenceOnlineSet).Err()
}
