// Package wsdto defines the realtime wire format shared by the gateway, the
// services that notify through it and the client library.
package wsdto

import (
	"encoding/json"

	"duochat/internal/domain/message"

	"github.com/google/uuid"
)

// Server to client events.
const (
	EventNewMessage      = "newMessage"
	EventMessageReaction = "messageReaction"
	EventMessagesSeen    = "messagesSeen"
	EventMessageEdited   = "messageEdited"
	EventMessageDeleted  = "messageDeleted"
	EventUserTyping      = "userTyping"
	EventRecording       = "recording"
	EventOnlineUsers     = "getOnlineUsers"
	EventPong            = "pong"
)

// Client to server events.
const (
	EventTyping       = "typing"
	EventOnlineStatus = "getOnlineStatus"
	EventPing         = "ping"
	// EventRecording is used in both directions.
)

// Frame is one event on the wire. Several frames written together are
// separated by a newline.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

type outFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	AckID string      `json:"ackId,omitempty"`
}

// Encode marshals an outgoing frame.
func Encode(event string, data interface{}, ackID string) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: data, AckID: ackID})
}

// TypingRequest is the client's typing signal.
type TypingRequest struct {
	ReceiverID uuid.UUID `json:"receiverId"`
	IsTyping   bool      `json:"isTyping"`
}

// RecordingRequest is the client's recording signal.
type RecordingRequest struct {
	ReceiverID  uuid.UUID `json:"receiverId"`
	IsRecording bool      `json:"isRecording"`
}

// OnlineStatusRequest asks whether UserID is connected. A bare JSON string
// holding the id is accepted as well.
type OnlineStatusRequest struct {
	UserID string `json:"userId"`
}

func (r *OnlineStatusRequest) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.UserID = id
		return nil
	}
	type alias OnlineStatusRequest
	return json.Unmarshal(data, (*alias)(r))
}

type TypingPayload struct {
	UserID          uuid.UUID `json:"userId"`
	ConversationKey string    `json:"conversationKey,omitempty"`
	IsTyping        bool      `json:"isTyping"`
}

type RecordingPayload struct {
	UserID      uuid.UUID `json:"userId"`
	IsRecording bool      `json:"isRecording"`
}

type ReactionPayload struct {
	MessageID uuid.UUID          `json:"messageId"`
	Reactions []message.Reaction `json:"reactions"`
}

// MessageRef carries only the id, for messagesSeen and messageDeleted.
type MessageRef struct {
	MessageID uuid.UUID `json:"messageId"`
}
