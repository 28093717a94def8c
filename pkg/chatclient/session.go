package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
	"duochat/internal/transport/httpdto"
	"duochat/internal/transport/wsdto"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is the subset of the REST surface a Session drives. *API
// implements it.
type Backend interface {
	Sidebar(ctx context.Context) (httpdto.SidebarResponse, error)
	Thread(ctx context.Context, peerID uuid.UUID) ([]message.Message, error)
	MarkSeen(ctx context.Context, messageID uuid.UUID) error
	Send(ctx context.Context, peerID uuid.UUID, req httpdto.SendMessageRequest) (message.Message, error)
	React(ctx context.Context, messageID uuid.UUID, emoji string) ([]message.Reaction, error)
	Edit(ctx context.Context, messageID uuid.UUID, text string) (message.Message, error)
	Delete(ctx context.Context, messageID uuid.UUID, scope message.DeleteScope) error
}

var _ Backend = (*API)(nil)

// Session mirrors what one signed-in user sees: the sidebar, the open
// conversation and the live indicators. Server events and local actions both
// mutate it; all methods are safe for concurrent use.
type Session struct {
	api    Backend
	self   uuid.UUID
	logger *zap.Logger

	mu           sync.Mutex
	selected     uuid.UUID
	messages     []message.Message
	peers        []user.Profile
	unseen       map[uuid.UUID]int64
	lastMessages map[uuid.UUID]string
	online       map[uuid.UUID]struct{}
	typing       map[uuid.UUID]struct{}
	recording    map[uuid.UUID]struct{}
}

func NewSession(api Backend, self uuid.UUID, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		api:          api,
		self:         self,
		logger:       logger.Named("chatclient"),
		unseen:       make(map[uuid.UUID]int64),
		lastMessages: make(map[uuid.UUID]string),
		online:       make(map[uuid.UUID]struct{}),
		typing:       make(map[uuid.UUID]struct{}),
		recording:    make(map[uuid.UUID]struct{}),
	}
}

// Refresh reloads the sidebar.
func (s *Session) Refresh(ctx context.Context) error {
	res, err := s.api.Sidebar(ctx)
	if err != nil {
		return err
	}

	unseen := make(map[uuid.UUID]int64, len(res.UnseenMessages))
	for k, v := range res.UnseenMessages {
		if id, err := uuid.Parse(k); err == nil {
			unseen[id] = v
		}
	}
	last := make(map[uuid.UUID]string, len(res.LastMessages))
	for k, v := range res.LastMessages {
		if id, err := uuid.Parse(k); err == nil {
			last[id] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = res.Users
	s.unseen = unseen
	s.lastMessages = last
	return nil
}

// Select opens the conversation with peerID and clears its unseen counter.
// The selection takes effect before the thread is fetched, so messages that
// arrive meanwhile are kept and marked seen.
func (s *Session) Select(ctx context.Context, peerID uuid.UUID) error {
	s.mu.Lock()
	s.selected = peerID
	s.messages = nil
	delete(s.unseen, peerID)
	s.mu.Unlock()

	thread, err := s.api.Thread(ctx, peerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != peerID {
		return nil
	}
	merged := append([]message.Message(nil), thread...)
	fetched := make(map[uuid.UUID]struct{}, len(thread))
	for _, m := range thread {
		fetched[m.ID] = struct{}{}
	}
	for _, m := range s.messages {
		if _, ok := fetched[m.ID]; !ok {
			merged = append(merged, m)
		}
	}
	s.messages = merged
	return nil
}

// Send posts to the selected peer. The message is appended once the server
// has accepted it.
func (s *Session) Send(ctx context.Context, req httpdto.SendMessageRequest) (message.Message, error) {
	peer := s.Selected()
	if peer == uuid.Nil {
		return message.Message{}, fmt.Errorf("%w: no conversation selected", duochat_errors.ErrValidation)
	}

	m, err := s.api.Send(ctx, peer, req)
	if err != nil {
		return message.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == peer {
		s.messages = append(s.messages, m)
	}
	s.lastMessages[peer] = m.Preview()
	return m, nil
}

func (s *Session) React(ctx context.Context, messageID uuid.UUID, emoji string) error {
	reactions, err := s.api.React(ctx, messageID, emoji)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(messageID, func(m *message.Message) { m.Reactions = reactions })
	return nil
}

func (s *Session) Edit(ctx context.Context, messageID uuid.UUID, text string) error {
	edited, err := s.api.Edit(ctx, messageID, text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(messageID, func(m *message.Message) { *m = edited })
	return nil
}

// Delete removes the message from the open conversation after the server
// agreed. For scope "me" the server keeps it and the peer still sees it.
func (s *Session) Delete(ctx context.Context, messageID uuid.UUID, scope message.DeleteScope) error {
	if err := s.api.Delete(ctx, messageID, scope); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(messageID)
	return nil
}

// HandleEvent applies one server event. Unknown events are ignored.
func (s *Session) HandleEvent(ctx context.Context, event string, data json.RawMessage) error {
	switch event {
	case wsdto.EventNewMessage:
		var m message.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		return s.receive(ctx, m)

	case wsdto.EventMessageReaction:
		var p wsdto.ReactionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		s.mu.Lock()
		s.update(p.MessageID, func(m *message.Message) { m.Reactions = p.Reactions })
		s.mu.Unlock()

	case wsdto.EventMessageEdited:
		var edited message.Message
		if err := json.Unmarshal(data, &edited); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		s.mu.Lock()
		s.update(edited.ID, func(m *message.Message) { *m = edited })
		s.mu.Unlock()

	case wsdto.EventMessageDeleted, wsdto.EventMessagesSeen:
		var ref wsdto.MessageRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		s.mu.Lock()
		if event == wsdto.EventMessageDeleted {
			s.remove(ref.MessageID)
		} else {
			s.update(ref.MessageID, func(m *message.Message) { m.Seen = true })
		}
		s.mu.Unlock()

	case wsdto.EventOnlineUsers:
		var ids []uuid.UUID
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		online := make(map[uuid.UUID]struct{}, len(ids))
		for _, id := range ids {
			online[id] = struct{}{}
		}
		s.mu.Lock()
		s.online = online
		s.mu.Unlock()

	case wsdto.EventUserTyping:
		var p wsdto.TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		s.mu.Lock()
		setMember(s.typing, p.UserID, p.IsTyping)
		s.mu.Unlock()

	case wsdto.EventRecording:
		var p wsdto.RecordingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		s.mu.Lock()
		setMember(s.recording, p.UserID, p.IsRecording)
		s.mu.Unlock()

	default:
		s.logger.Debug("ignoring event", zap.String("event", event))
	}
	return nil
}

// receive appends a message of the open conversation and marks it seen, or
// counts it as unseen for its sender.
func (s *Session) receive(ctx context.Context, m message.Message) error {
	s.mu.Lock()
	active := s.selected != uuid.Nil && m.SenderID == s.selected
	if active {
		s.messages = append(s.messages, m)
	} else {
		s.unseen[m.SenderID]++
	}
	s.lastMessages[m.SenderID] = m.Preview()
	s.mu.Unlock()

	if !active {
		return nil
	}
	if err := s.api.MarkSeen(ctx, m.ID); err != nil {
		s.logger.Warn("mark seen failed", zap.String("message_id", m.ID.String()), zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.update(m.ID, func(m *message.Message) { m.Seen = true })
	s.mu.Unlock()
	return nil
}

// update applies fn to the loaded copy of id; a message that is not loaded is
// left alone. Callers hold mu.
func (s *Session) update(id uuid.UUID, fn func(*message.Message)) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			fn(&s.messages[i])
			return
		}
	}
}

func (s *Session) remove(id uuid.UUID) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func setMember(set map[uuid.UUID]struct{}, id uuid.UUID, on bool) {
	if on {
		set[id] = struct{}{}
	} else {
		delete(set, id)
	}
}

func (s *Session) Self() uuid.UUID {
	return s.self
}

func (s *Session) Selected() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Messages returns a copy of the open conversation.
func (s *Session) Messages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.messages...)
}

func (s *Session) Peers() []user.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]user.Profile(nil), s.peers...)
}

func (s *Session) Unseen(peerID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unseen[peerID]
}

func (s *Session) LastMessage(peerID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessages[peerID]
}

func (s *Session) IsOnline(peerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[peerID]
	return ok
}

// Online returns the connected users in id order.
func (s *Session) Online() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (s *Session) IsTyping(peerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typing[peerID]
	return ok
}

func (s *Session) IsRecording(peerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recording[peerID]
	return ok
}
