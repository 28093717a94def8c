package typing_test

import (
	"testing"
	"time"

	"duochat/internal/domain/conversation"
	"duochat/internal/typing"
	"duochat/internal/typing/typingtest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock   *typingtest.Clock
	tracker *typing.Tracker
	expired []typing.Event
}

func newHarness() *harness {
	h := &harness{clock: typingtest.NewClock()}
	h.tracker = typing.NewTracker(
		typing.WithScheduler(h.clock.Scheduler()),
		typing.WithOnExpire(func(userID uuid.UUID, gen uint64) {
			h.expired = append(h.expired, h.tracker.Expire(userID, gen)...)
		}),
	)
	return h
}

func TestStartEmitsToPeerOnly(t *testing.T) {
	h := newHarness()
	a, b := uuid.New(), uuid.New()

	events := h.tracker.Start(a, b)
	require.Len(t, events, 1)
	assert.Equal(t, typing.Event{UserID: a, PeerID: b, ConversationKey: conversation.Key(a, b), IsTyping: true}, events[0])
	assert.True(t, h.tracker.IsTyping(a))
	assert.False(t, h.tracker.IsTyping(b))
}

func TestExpiresAfterWindow(t *testing.T) {
	h := newHarness()
	a, b := uuid.New(), uuid.New()
	h.tracker.Start(a, b)

	h.clock.Advance(typing.DefaultWindow - time.Millisecond)
	assert.True(t, h.tracker.IsTyping(a))
	assert.Empty(t, h.expired)

	h.clock.Advance(time.Millisecond)
	assert.False(t, h.tracker.IsTyping(a))
	require.Len(t, h.expired, 1)
	assert.Equal(t, b, h.expired[0].PeerID)
	assert.False(t, h.expired[0].IsTyping)
}

func TestRefreshPostponesByFullWindow(t *testing.T) {
	h := newHarness()
	a, b := uuid.New(), uuid.New()
	h.tracker.Start(a, b)

	h.clock.Advance(2 * time.Second)
	assert.Empty(t, h.tracker.Start(a, b), "refresh in the same conversation is silent")

	// the original deadline passes without expiry
	h.clock.Advance(2 * time.Second)
	assert.True(t, h.tracker.IsTyping(a))

	// and the new deadline is a full window after the refresh, not cumulative
	h.clock.Advance(time.Second)
	assert.False(t, h.tracker.IsTyping(a))
	assert.Len(t, h.expired, 1)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestSwitchConversationStopsPreviousPeer(t *testing.T) {
	h := newHarness()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	h.tracker.Start(a, b)

	events := h.tracker.Start(a, c)
	require.Len(t, events, 2)
	assert.Equal(t, b, events[0].PeerID)
	assert.False(t, events[0].IsTyping)
	assert.Equal(t, c, events[1].PeerID)
	assert.True(t, events[1].IsTyping)

	key, ok := h.tracker.Conversation(a)
	require.True(t, ok)
	assert.Equal(t, conversation.Key(a, c), key)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness()
	a, b := uuid.New(), uuid.New()
	assert.Empty(t, h.tracker.Stop(a))

	h.tracker.Start(a, b)
	events := h.tracker.Stop(a)
	require.Len(t, events, 1)
	assert.False(t, events[0].IsTyping)
	assert.Empty(t, h.tracker.Stop(a))

	// the cancelled timer never reports an expiry
	h.clock.Advance(10 * time.Second)
	assert.Empty(t, h.expired)
}

func TestStaleExpiryIgnored(t *testing.T) {
	tracker := typing.NewTracker(typing.WithScheduler(typingtest.NewClock().Scheduler()))
	a, b := uuid.New(), uuid.New()
	tracker.Start(a, b)
	assert.Empty(t, tracker.Expire(a, 999))
	assert.True(t, tracker.IsTyping(a))
}

func TestCancelOnDisconnect(t *testing.T) {
	h := newHarness()
	a, b := uuid.New(), uuid.New()
	h.tracker.Start(a, b)

	events := h.tracker.Cancel(a)
	require.Len(t, events, 1)
	assert.Equal(t, b, events[0].PeerID)
	assert.Equal(t, 0, h.clock.Pending())
}
