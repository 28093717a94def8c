package message

import (
	"time"

	"github.com/google/uuid"
)

// Type is the primary payload kind of a message.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeAudio Type = "audio"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio:
		return true
	}
	return false
}

// Message represents the messages table
type Message struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_pair,priority:1" json:"senderId"`
	ReceiverID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_messages_pair,priority:2" json:"receiverId"`
	Text        string     `gorm:"type:text" json:"text,omitempty"`
	Image       string     `gorm:"type:text" json:"image,omitempty"`
	Audio       string     `gorm:"type:text" json:"audio,omitempty"`
	MessageType Type       `gorm:"type:text;not null;default:'text'" json:"messageType"`
	Duration    float64    `json:"duration,omitempty"`
	Seen        bool       `gorm:"not null;default:false" json:"seen"`
	Delivered   bool       `gorm:"not null;default:false" json:"delivered"`
	Edited      bool       `gorm:"not null;default:false" json:"edited"`
	Reactions   []Reaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reactions"`
	Revision    int64      `gorm:"not null;default:0" json:"revision"`
	CreatedAt   time.Time  `gorm:"index:idx_messages_pair,priority:3" json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Message) TableName() string {
	return "messages"
}

// Reaction represents message_reactions. The composite key allows one
// reaction per user per message.
type Reaction struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
	Emoji     string    `gorm:"type:text;not null" json:"emoji"`
}

func (Reaction) TableName() string {
	return "message_reactions"
}

// ToggleReaction applies a reaction from userID. No prior reaction adds it,
// the same emoji removes it and a different emoji replaces it.
func (m *Message) ToggleReaction(userID uuid.UUID, emoji string) {
	for i, r := range m.Reactions {
		if r.UserID != userID {
			continue
		}
		if r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i:i], m.Reactions[i+1:]...)
			return
		}
		m.Reactions[i].Emoji = emoji
		return
	}
	m.Reactions = append(m.Reactions, Reaction{MessageID: m.ID, UserID: userID, Emoji: emoji})
}

// HasParticipant reports whether id is the sender or the receiver.
func (m Message) HasParticipant(id uuid.UUID) bool {
	return m.SenderID == id || m.ReceiverID == id
}

// Peer returns the participant that is not id.
func (m Message) Peer(id uuid.UUID) uuid.UUID {
	if m.SenderID == id {
		return m.ReceiverID
	}
	return m.SenderID
}

// Preview is the sidebar text for the message.
func (m Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	return MediaPlaceholder
}

const MediaPlaceholder = "Media"

// DeleteScope selects who a delete applies to.
type DeleteScope string

const (
	DeleteForMe       DeleteScope = "me"
	DeleteForEveryone DeleteScope = "everyone"
)
