package repository

import (
	"encoding/binary"
	"time"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

type boltUser struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	ProfilePic   string
	Bio          string
	LastSeen     int64
	CreatedAt    int64
	UpdatedAt    int64
}

func (u *boltUser) MarshalBinary() (data []byte, err error) {
	type alias boltUser
	return msgpack.Marshal((*alias)(u))
}

func (u *boltUser) UnmarshalBinary(data []byte) error {
	type alias boltUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func newBoltUser(u user.User) *boltUser {
	rec := &boltUser{
		ID:           u.ID.String(),
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		ProfilePic:   u.ProfilePic,
		Bio:          u.Bio,
		CreatedAt:    u.CreatedAt.UnixNano(),
		UpdatedAt:    u.UpdatedAt.UnixNano(),
	}
	if u.LastSeen != nil {
		rec.LastSeen = u.LastSeen.UnixNano()
	}
	return rec
}

func (u *boltUser) toDomain() (user.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return user.User{}, err
	}
	out := user.User{
		ID:           id,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		ProfilePic:   u.ProfilePic,
		Bio:          u.Bio,
		CreatedAt:    fromNanos(u.CreatedAt),
		UpdatedAt:    fromNanos(u.UpdatedAt),
	}
	if u.LastSeen != 0 {
		ls := fromNanos(u.LastSeen)
		out.LastSeen = &ls
	}
	return out, nil
}

type boltReaction struct {
	UserID string
	Emoji  string
}

type boltMessage struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Text        string
	Image       string
	Audio       string
	MessageType string
	Duration    float64
	Seen        bool
	Delivered   bool
	Edited      bool
	Reactions   []boltReaction
	Revision    int64
	CreatedAt   int64
	UpdatedAt   int64
}

func (m *boltMessage) MarshalBinary() (data []byte, err error) {
	type alias boltMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *boltMessage) UnmarshalBinary(data []byte) error {
	type alias boltMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// threadKey orders a message inside its conversation bucket by creation time.
func (m *boltMessage) threadKey(id uuid.UUID) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(m.CreatedAt))
	return append(key, id[:]...)
}

func newBoltMessage(m message.Message) *boltMessage {
	rec := &boltMessage{
		ID:          m.ID.String(),
		SenderID:    m.SenderID.String(),
		ReceiverID:  m.ReceiverID.String(),
		Text:        m.Text,
		Image:       m.Image,
		Audio:       m.Audio,
		MessageType: string(m.MessageType),
		Duration:    m.Duration,
		Seen:        m.Seen,
		Delivered:   m.Delivered,
		Edited:      m.Edited,
		Revision:    m.Revision,
		CreatedAt:   m.CreatedAt.UnixNano(),
		UpdatedAt:   m.UpdatedAt.UnixNano(),
	}
	for _, r := range m.Reactions {
		rec.Reactions = append(rec.Reactions, boltReaction{UserID: r.UserID.String(), Emoji: r.Emoji})
	}
	return rec
}

func (m *boltMessage) toDomain() (message.Message, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return message.Message{}, err
	}
	sender, err := uuid.Parse(m.SenderID)
	if err != nil {
		return message.Message{}, err
	}
	receiver, err := uuid.Parse(m.ReceiverID)
	if err != nil {
		return message.Message{}, err
	}
	out := message.Message{
		ID:          id,
		SenderID:    sender,
		ReceiverID:  receiver,
		Text:        m.Text,
		Image:       m.Image,
		Audio:       m.Audio,
		MessageType: message.Type(m.MessageType),
		Duration:    m.Duration,
		Seen:        m.Seen,
		Delivered:   m.Delivered,
		Edited:      m.Edited,
		Reactions:   make([]message.Reaction, 0, len(m.Reactions)),
		Revision:    m.Revision,
		CreatedAt:   fromNanos(m.CreatedAt),
		UpdatedAt:   fromNanos(m.UpdatedAt),
	}
	for _, r := range m.Reactions {
		uid, err := uuid.Parse(r.UserID)
		if err != nil {
			return message.Message{}, err
		}
		out.Reactions = append(out.Reactions, message.Reaction{MessageID: id, UserID: uid, Emoji: r.Emoji})
	}
	return out, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
