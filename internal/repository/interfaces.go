package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
)

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	// ListOthers returns every user except id, oldest account first.
	ListOthers(ctx context.Context, id uuid.UUID) ([]user.User, error)
	UpdateUser(ctx context.Context, u user.User) error
	UpdateLastSeen(ctx context.Context, userID uuid.UUID, lastSeen time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	// ListThread returns all messages exchanged between a and b in
	// chronological order.
	ListThread(ctx context.Context, a, b uuid.UUID) ([]message.Message, error)
	// MarkThreadSeen flags every unseen message from sender to receiver as
	// seen and returns how many changed.
	MarkThreadSeen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error)
	MarkSeen(ctx context.Context, id uuid.UUID) error
	// Update persists text, edited and reactions when m.Revision is still the
	// stored revision, then increments m.Revision. Seen is owned by MarkSeen and
	// MarkThreadSeen; m.Seen is refreshed from the store. A stale revision
	// yields ErrConflict.
	Update(ctx context.Context, m *message.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountUnseen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error)
	Latest(ctx context.Context, a, b uuid.UUID) (message.Message, error)
}
