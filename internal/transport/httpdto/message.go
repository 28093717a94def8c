package httpdto

import (
	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
)

// SidebarResponse is returned by GET /api/messages/users. unseenMessages only
// holds peers with a positive count and lastMessages only peers with history.
type SidebarResponse struct {
	Envelope
	Users          []user.Profile    `json:"users"`
	UnseenMessages map[string]int64  `json:"unseenMessages"`
	LastMessages   map[string]string `json:"lastMessages"`
}

type ThreadResponse struct {
	Envelope
	Messages []message.Message `json:"messages"`
}

type SendMessageRequest struct {
	Text        string  `json:"text"`
	Image       string  `json:"image"`
	Audio       string  `json:"audio"`
	MessageType string  `json:"messageType"`
	Duration    float64 `json:"duration"`
}

type SendMessageResponse struct {
	Envelope
	NewMessage message.Message `json:"newMessage"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

type ReactResponse struct {
	Envelope
	Reactions []message.Reaction `json:"reactions"`
}

type EditRequest struct {
	Text string `json:"text"`
}

// EditResponse carries the edited message under "message", shadowing the
// envelope's message text.
type EditResponse struct {
	Envelope
	Message message.Message `json:"message"`
}

type DeleteRequest struct {
	DeleteFor string `json:"deleteFor"`
}
