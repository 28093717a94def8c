package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"
	"duochat/internal/transport/httpdto"
	"duochat/internal/transport/wsdto"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers from fixed data and records the calls that change
// server state.
type fakeBackend struct {
	mu      sync.Mutex
	sidebar httpdto.SidebarResponse
	threads map[uuid.UUID][]message.Message
	sendErr error
	marked  []uuid.UUID
	deleted map[uuid.UUID]message.DeleteScope

	// duringThread runs inside Thread, before it returns.
	duringThread func(peerID uuid.UUID)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		threads: make(map[uuid.UUID][]message.Message),
		deleted: make(map[uuid.UUID]message.DeleteScope),
	}
}

func (f *fakeBackend) Sidebar(context.Context) (httpdto.SidebarResponse, error) {
	return f.sidebar, nil
}

func (f *fakeBackend) Thread(_ context.Context, peerID uuid.UUID) ([]message.Message, error) {
	if f.duringThread != nil {
		f.duringThread(peerID)
	}
	return f.threads[peerID], nil
}

func (f *fakeBackend) MarkSeen(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeBackend) Send(_ context.Context, peerID uuid.UUID, req httpdto.SendMessageRequest) (message.Message, error) {
	if f.sendErr != nil {
		return message.Message{}, f.sendErr
	}
	return message.Message{ID: uuid.New(), ReceiverID: peerID, Text: req.Text, MessageType: message.TypeText}, nil
}

func (f *fakeBackend) React(_ context.Context, _ uuid.UUID, emoji string) ([]message.Reaction, error) {
	return []message.Reaction{{Emoji: emoji}}, nil
}

func (f *fakeBackend) Edit(_ context.Context, id uuid.UUID, text string) (message.Message, error) {
	return message.Message{ID: id, Text: text, Edited: true, MessageType: message.TypeText}, nil
}

func (f *fakeBackend) Delete(_ context.Context, id uuid.UUID, scope message.DeleteScope) error {
	f.deleted[id] = scope
	return nil
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestIncomingMessageRouting(t *testing.T) {
	ctx := context.Background()
	me, bob, carol := uuid.New(), uuid.New(), uuid.New()
	api := newFakeBackend()
	s := NewSession(api, me, nil)
	require.NoError(t, s.Select(ctx, bob))

	fromBob := message.Message{ID: uuid.New(), SenderID: bob, ReceiverID: me, Text: "hi"}
	fromCarol := message.Message{ID: uuid.New(), SenderID: carol, ReceiverID: me, Image: "https://blobs.test/x.png", MessageType: message.TypeImage}

	require.NoError(t, s.HandleEvent(ctx, wsdto.EventNewMessage, raw(t, fromBob)))
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventNewMessage, raw(t, fromCarol)))
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventNewMessage, raw(t, fromCarol)))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, fromBob.ID, msgs[0].ID)
	assert.True(t, msgs[0].Seen)
	assert.Equal(t, []uuid.UUID{fromBob.ID}, api.marked)

	assert.Equal(t, int64(0), s.Unseen(bob))
	assert.Equal(t, int64(2), s.Unseen(carol))
	assert.Equal(t, "hi", s.LastMessage(bob))
	assert.Equal(t, message.MediaPlaceholder, s.LastMessage(carol))

	// Opening the conversation clears the counter.
	require.NoError(t, s.Select(ctx, carol))
	assert.Equal(t, int64(0), s.Unseen(carol))
}

func TestMessageEventsUpdateLoadedThread(t *testing.T) {
	ctx := context.Background()
	me, bob := uuid.New(), uuid.New()
	first := message.Message{ID: uuid.New(), SenderID: me, ReceiverID: bob, Text: "one"}
	second := message.Message{ID: uuid.New(), SenderID: me, ReceiverID: bob, Text: "two"}

	api := newFakeBackend()
	api.threads[bob] = []message.Message{first, second}
	s := NewSession(api, me, nil)
	require.NoError(t, s.Select(ctx, bob))

	reactions := []message.Reaction{{UserID: bob, Emoji: "🔥"}}
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventMessageReaction, raw(t, wsdto.ReactionPayload{MessageID: first.ID, Reactions: reactions})))
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventMessagesSeen, raw(t, wsdto.MessageRef{MessageID: second.ID})))

	edited := second
	edited.Text = "two, fixed"
	edited.Edited = true
	edited.Seen = true
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventMessageEdited, raw(t, edited)))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	if diff := cmp.Diff(reactions, msgs[0].Reactions); diff != "" {
		t.Errorf("reactions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "two, fixed", msgs[1].Text)
	assert.True(t, msgs[1].Edited)
	assert.True(t, msgs[1].Seen)

	require.NoError(t, s.HandleEvent(ctx, wsdto.EventMessageDeleted, raw(t, wsdto.MessageRef{MessageID: first.ID})))
	msgs = s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, second.ID, msgs[0].ID)

	// Events about messages that are not loaded change nothing.
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventMessageDeleted, raw(t, wsdto.MessageRef{MessageID: uuid.New()})))
	assert.Len(t, s.Messages(), 1)
}

func TestIndicatorEvents(t *testing.T) {
	ctx := context.Background()
	me, bob, carol := uuid.New(), uuid.New(), uuid.New()
	s := NewSession(newFakeBackend(), me, nil)

	require.NoError(t, s.HandleEvent(ctx, wsdto.EventOnlineUsers, raw(t, []uuid.UUID{me, bob})))
	assert.True(t, s.IsOnline(bob))
	assert.False(t, s.IsOnline(carol))
	assert.ElementsMatch(t, []uuid.UUID{me, bob}, s.Online())

	// The roster is a full snapshot.
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventOnlineUsers, raw(t, []uuid.UUID{carol})))
	assert.False(t, s.IsOnline(bob))
	assert.True(t, s.IsOnline(carol))

	require.NoError(t, s.HandleEvent(ctx, wsdto.EventUserTyping, raw(t, wsdto.TypingPayload{UserID: bob, IsTyping: true})))
	assert.True(t, s.IsTyping(bob))
	require.NoError(t, s.HandleEvent(ctx, wsdto.EventUserTyping, raw(t, wsdto.TypingPayload{UserID: bob, IsTyping: false})))
	assert.False(t, s.IsTyping(bob))

	require.NoError(t, s.HandleEvent(ctx, wsdto.EventRecording, raw(t, wsdto.RecordingPayload{UserID: carol, IsRecording: true})))
	assert.True(t, s.IsRecording(carol))

	require.NoError(t, s.HandleEvent(ctx, "somethingNew", raw(t, map[string]int{"x": 1})))
	assert.Error(t, s.HandleEvent(ctx, wsdto.EventOnlineUsers, json.RawMessage(`{"not":"a list"}`)))
}

func TestSendAppendsAfterAck(t *testing.T) {
	ctx := context.Background()
	me, bob := uuid.New(), uuid.New()
	api := newFakeBackend()
	s := NewSession(api, me, nil)

	_, err := s.Send(ctx, httpdto.SendMessageRequest{Text: "nobody selected"})
	assert.True(t, errors.Is(err, duochat_errors.ErrValidation))

	require.NoError(t, s.Select(ctx, bob))
	api.sendErr = duochat_errors.ErrUpstream
	_, err = s.Send(ctx, httpdto.SendMessageRequest{Text: "lost"})
	assert.True(t, errors.Is(err, duochat_errors.ErrUpstream))
	assert.Empty(t, s.Messages())

	api.sendErr = nil
	m, err := s.Send(ctx, httpdto.SendMessageRequest{Text: "kept"})
	require.NoError(t, err)
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, m.ID, msgs[0].ID)
	assert.Equal(t, "kept", s.LastMessage(bob))
}

func TestLocalMutations(t *testing.T) {
	ctx := context.Background()
	me, bob := uuid.New(), uuid.New()
	mine := message.Message{ID: uuid.New(), SenderID: me, ReceiverID: bob, Text: "typo"}
	theirs := message.Message{ID: uuid.New(), SenderID: bob, ReceiverID: me, Text: "hello"}

	api := newFakeBackend()
	api.threads[bob] = []message.Message{mine, theirs}
	s := NewSession(api, me, nil)
	require.NoError(t, s.Select(ctx, bob))

	require.NoError(t, s.React(ctx, theirs.ID, "👍"))
	require.NoError(t, s.Edit(ctx, mine.ID, "fixed"))

	msgs := s.Messages()
	assert.Equal(t, "fixed", msgs[0].Text)
	assert.True(t, msgs[0].Edited)
	assert.Equal(t, []message.Reaction{{Emoji: "👍"}}, msgs[1].Reactions)

	require.NoError(t, s.Delete(ctx, theirs.ID, message.DeleteForMe))
	assert.Equal(t, message.DeleteForMe, api.deleted[theirs.ID])
	msgs = s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, mine.ID, msgs[0].ID)
}

func TestRefresh(t *testing.T) {
	me, bob, carol := uuid.New(), uuid.New(), uuid.New()
	api := newFakeBackend()
	api.sidebar = httpdto.SidebarResponse{
		Envelope:       httpdto.OK(),
		Users:          []user.Profile{{ID: bob, FullName: "Bob"}, {ID: carol, FullName: "Carol"}},
		UnseenMessages: map[string]int64{bob.String(): 3},
		LastMessages:   map[string]string{bob.String(): "ping", carol.String(): "Media"},
	}

	s := NewSession(api, me, nil)
	require.NoError(t, s.Refresh(context.Background()))

	assert.Len(t, s.Peers(), 2)
	assert.Equal(t, int64(3), s.Unseen(bob))
	assert.Equal(t, int64(0), s.Unseen(carol))
	assert.Equal(t, "Media", s.LastMessage(carol))
	assert.Equal(t, me, s.Self())
}

func TestSelectKeepsMessagesArrivingDuringFetch(t *testing.T) {
	ctx := context.Background()
	me, bob, carol := uuid.New(), uuid.New(), uuid.New()
	history := message.Message{ID: uuid.New(), SenderID: bob, ReceiverID: me, Text: "earlier", Seen: true}
	late := message.Message{ID: uuid.New(), SenderID: bob, ReceiverID: me, Text: "just now"}

	api := newFakeBackend()
	api.threads[bob] = []message.Message{history}
	s := NewSession(api, me, nil)
	api.duringThread = func(uuid.UUID) {
		require.NoError(t, s.HandleEvent(ctx, wsdto.EventNewMessage, raw(t, late)))
		// Already part of the fetched thread; must not be doubled.
		require.NoError(t, s.HandleEvent(ctx, wsdto.EventNewMessage, raw(t, history)))
	}
	require.NoError(t, s.Select(ctx, bob))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, history.ID, msgs[0].ID)
	assert.Equal(t, late.ID, msgs[1].ID)
	assert.True(t, msgs[1].Seen)
	assert.Equal(t, int64(0), s.Unseen(bob))
	assert.Contains(t, api.marked, late.ID)

	// Switching away while a fetch is in flight leaves the newer selection.
	api.duringThread = func(peerID uuid.UUID) {
		if peerID == carol {
			api.duringThread = nil
			require.NoError(t, s.Select(ctx, bob))
		}
	}
	require.NoError(t, s.Select(ctx, carol))
	assert.Equal(t, bob, s.Selected())
	assert.Len(t, s.Messages(), 1)
}
