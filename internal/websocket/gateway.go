package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Gateway pushes events to connected users and answers presence queries.
// Delivery is best effort: an offline peer is skipped and never queued.
type Gateway interface {
	RouteToPeer(event string, peerID uuid.UUID, payload interface{})
	IsOnline(userID uuid.UUID) bool
	OnlineUsers() []uuid.UUID
}

// LastSeenStore persists the time a user's last connection ended.
type LastSeenStore interface {
	UpdateLastSeen(ctx context.Context, userID uuid.UUID, lastSeen time.Time) error
}

// PresenceMirror receives presence transitions, e.g. to expose them to other
// processes. It is never consulted for routing.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID, clientID string) error
	SetOffline(ctx context.Context, userID string) error
}

// NullGateway is used when realtime is disabled. Every route is dropped and
// nobody is online.
type NullGateway struct{}

func (NullGateway) RouteToPeer(string, uuid.UUID, interface{}) {}

func (NullGateway) IsOnline(uuid.UUID) bool { return false }

func (NullGateway) OnlineUsers() []uuid.UUID { return []uuid.UUID{} }

var (
	_ Gateway = NullGateway{}
	_ Gateway = (*Hub)(nil)
)
