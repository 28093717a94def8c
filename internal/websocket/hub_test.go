package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"duochat/internal/domain/conversation"
	"duochat/internal/transport/wsdto"
	"duochat/internal/typing"
	"duochat/internal/typing/typingtest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, io.EOF
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }

func (f *fakeConn) NextWriter(int) (io.WriteCloser, error) {
	return nopWriteCloser{&bytes.Buffer{}}, nil
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type lastSeenRecorder struct {
	mu   sync.Mutex
	seen map[uuid.UUID]time.Time
}

func (r *lastSeenRecorder) UpdateLastSeen(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[uuid.UUID]time.Time)
	}
	r.seen[userID] = at
	return nil
}

func (r *lastSeenRecorder) get(userID uuid.UUID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[userID]
	return at, ok
}

type mirrorRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (m *mirrorRecorder) SetOnline(_ context.Context, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "online:"+userID)
	return nil
}

func (m *mirrorRecorder) SetOffline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "offline:"+userID)
	return nil
}

func (m *mirrorRecorder) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func startHub(t *testing.T, cfg HubConfig) *Hub {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	h := NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
		h.Wait()
	})
	return h
}

// flush waits until every op posted so far has run.
func flush(t *testing.T, h *Hub) {
	t.Helper()
	require.True(t, h.call(func() {}))
}

func connect(t *testing.T, h *Hub, userID uuid.UUID) *Client {
	t.Helper()
	c := NewClient(h, newFakeConn(), userID, uuid.NewString())
	require.True(t, h.Register(c))
	flush(t, h)
	return c
}

func drain(t *testing.T, c *Client) []wsdto.Frame {
	t.Helper()
	var frames []wsdto.Frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			var f wsdto.Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func sendClosed(c *Client) bool {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return true
			}
		default:
			return false
		}
	}
}

func decodeRoster(t *testing.T, f wsdto.Frame) []uuid.UUID {
	t.Helper()
	require.Equal(t, wsdto.EventOnlineUsers, f.Event)
	var ids []uuid.UUID
	require.NoError(t, json.Unmarshal(f.Data, &ids))
	return ids
}

func decodeTyping(t *testing.T, f wsdto.Frame) wsdto.TypingPayload {
	t.Helper()
	require.Equal(t, wsdto.EventUserTyping, f.Event)
	var p wsdto.TypingPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p
}

func sorted(a, b uuid.UUID) []uuid.UUID {
	if a.String() < b.String() {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}

func TestRosterFollowsConnections(t *testing.T) {
	seen := &lastSeenRecorder{}
	h := startHub(t, HubConfig{LastSeen: seen})
	a, b := uuid.New(), uuid.New()

	ca := connect(t, h, a)
	frames := drain(t, ca)
	require.Len(t, frames, 1)
	assert.Equal(t, []uuid.UUID{a}, decodeRoster(t, frames[0]))

	cb := connect(t, h, b)
	frames = drain(t, ca)
	require.Len(t, frames, 1)
	assert.Equal(t, sorted(a, b), decodeRoster(t, frames[0]))
	frames = drain(t, cb)
	require.Len(t, frames, 1)
	assert.Equal(t, sorted(a, b), decodeRoster(t, frames[0]))

	assert.True(t, h.IsOnline(b))
	assert.Equal(t, sorted(a, b), h.OnlineUsers())

	h.Unregister(cb)
	flush(t, h)
	frames = drain(t, ca)
	require.Len(t, frames, 1)
	assert.Equal(t, []uuid.UUID{a}, decodeRoster(t, frames[0]))
	assert.False(t, h.IsOnline(b))
	assert.True(t, sendClosed(cb))

	h.Wait()
	at, ok := seen.get(b)
	require.True(t, ok)
	assert.Equal(t, fixedNow, at)
	_, ok = seen.get(a)
	assert.False(t, ok)
}

func TestRouteToPeer(t *testing.T) {
	h := startHub(t, HubConfig{})
	a, b := uuid.New(), uuid.New()
	ca := connect(t, h, a)
	drain(t, ca)

	// offline peers are skipped
	h.RouteToPeer(wsdto.EventMessageDeleted, b, wsdto.MessageRef{MessageID: uuid.New()})

	id := uuid.New()
	h.RouteToPeer(wsdto.EventMessagesSeen, a, wsdto.MessageRef{MessageID: id})
	flush(t, h)

	frames := drain(t, ca)
	require.Len(t, frames, 1)
	assert.Equal(t, wsdto.EventMessagesSeen, frames[0].Event)
	var ref wsdto.MessageRef
	require.NoError(t, json.Unmarshal(frames[0].Data, &ref))
	assert.Equal(t, id, ref.MessageID)
}

func TestTypingRoundTrip(t *testing.T) {
	clock := typingtest.NewClock()
	h := startHub(t, HubConfig{Scheduler: clock.Scheduler()})
	a, b := uuid.New(), uuid.New()
	ca, cb := connect(t, h, a), connect(t, h, b)
	drain(t, ca)
	drain(t, cb)

	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: b, IsTyping: true})
	flush(t, h)

	frames := drain(t, cb)
	require.Len(t, frames, 1)
	p := decodeTyping(t, frames[0])
	assert.Equal(t, a, p.UserID)
	assert.True(t, p.IsTyping)
	assert.Equal(t, conversation.Key(a, b), p.ConversationKey)
	assert.Empty(t, drain(t, ca), "the typist hears nothing")

	// refresh two seconds in, then cross the original deadline
	clock.Advance(2 * time.Second)
	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: b, IsTyping: true})
	flush(t, h)
	clock.Advance(2 * time.Second)
	flush(t, h)
	assert.Empty(t, drain(t, cb))

	clock.Advance(time.Second)
	flush(t, h)
	frames = drain(t, cb)
	require.Len(t, frames, 1)
	assert.False(t, decodeTyping(t, frames[0]).IsTyping)
}

func TestTypingStopIsDelivered(t *testing.T) {
	clock := typingtest.NewClock()
	h := startHub(t, HubConfig{Scheduler: clock.Scheduler()})
	a, b := uuid.New(), uuid.New()
	ca, cb := connect(t, h, a), connect(t, h, b)
	drain(t, ca)
	drain(t, cb)

	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: b, IsTyping: true})
	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: b, IsTyping: false})
	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: b, IsTyping: false})
	flush(t, h)

	frames := drain(t, cb)
	require.Len(t, frames, 2)
	assert.True(t, decodeTyping(t, frames[0]).IsTyping)
	assert.False(t, decodeTyping(t, frames[1]).IsTyping)

	clock.Advance(typing.DefaultWindow)
	flush(t, h)
	assert.Empty(t, drain(t, cb))
}

func TestDisconnectEndsTyping(t *testing.T) {
	clock := typingtest.NewClock()
	h := startHub(t, HubConfig{Scheduler: clock.Scheduler()})
	a, b := uuid.New(), uuid.New()
	ca, cb := connect(t, h, a), connect(t, h, b)
	drain(t, ca)
	drain(t, cb)

	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: b, IsTyping: true})
	flush(t, h)
	drain(t, cb)

	h.Unregister(ca)
	flush(t, h)
	frames := drain(t, cb)
	require.Len(t, frames, 2)
	assert.False(t, decodeTyping(t, frames[0]).IsTyping)
	assert.Equal(t, []uuid.UUID{b}, decodeRoster(t, frames[1]))
	assert.Equal(t, 0, clock.Pending())
}

func TestTypingToSelfIgnored(t *testing.T) {
	h := startHub(t, HubConfig{Scheduler: typingtest.NewClock().Scheduler()})
	a := uuid.New()
	ca := connect(t, h, a)
	drain(t, ca)

	h.handleTyping(ca, wsdto.TypingRequest{ReceiverID: a, IsTyping: true})
	h.handleTyping(ca, wsdto.TypingRequest{IsTyping: true})
	flush(t, h)
	assert.Empty(t, drain(t, ca))
}

func TestRecordingRelayed(t *testing.T) {
	h := startHub(t, HubConfig{})
	a, b := uuid.New(), uuid.New()
	ca, cb := connect(t, h, a), connect(t, h, b)
	drain(t, ca)
	drain(t, cb)

	h.handleRecording(ca, wsdto.RecordingRequest{ReceiverID: b, IsRecording: true})
	flush(t, h)

	frames := drain(t, cb)
	require.Len(t, frames, 1)
	assert.Equal(t, wsdto.EventRecording, frames[0].Event)
	var p wsdto.RecordingPayload
	require.NoError(t, json.Unmarshal(frames[0].Data, &p))
	assert.Equal(t, wsdto.RecordingPayload{UserID: a, IsRecording: true}, p)
}

func TestOnlineStatusRepliesToAsker(t *testing.T) {
	h := startHub(t, HubConfig{})
	a, b := uuid.New(), uuid.New()
	ca, cb := connect(t, h, a), connect(t, h, b)
	drain(t, ca)
	drain(t, cb)

	cases := []struct {
		name   string
		frame  string
		online bool
	}{
		{"online peer", `{"event":"getOnlineStatus","data":{"userId":"` + b.String() + `"},"ackId":"1"}`, true},
		{"bare id", `{"event":"getOnlineStatus","data":"` + b.String() + `","ackId":"2"}`, true},
		{"offline peer", `{"event":"getOnlineStatus","data":"` + uuid.NewString() + `","ackId":"3"}`, false},
		{"garbage id", `{"event":"getOnlineStatus","data":"not-an-id","ackId":"4"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, ca.handleMessage([]byte(tc.frame)))
			flush(t, h)

			frames := drain(t, ca)
			require.Len(t, frames, 1)
			assert.Equal(t, wsdto.EventOnlineStatus, frames[0].Event)
			var online bool
			require.NoError(t, json.Unmarshal(frames[0].Data, &online))
			assert.Equal(t, tc.online, online)

			var sent wsdto.Frame
			require.NoError(t, json.Unmarshal([]byte(tc.frame), &sent))
			assert.Equal(t, sent.AckID, frames[0].AckID)
			assert.Empty(t, drain(t, cb))
		})
	}
}

func TestPingAndUnknownEvents(t *testing.T) {
	h := startHub(t, HubConfig{})
	ca := connect(t, h, uuid.New())
	drain(t, ca)

	require.NoError(t, ca.handleMessage([]byte(`{"event":"ping","ackId":"p"}`)))
	require.NoError(t, ca.handleMessage([]byte(`{"event":"selfDestruct"}`)))
	assert.Error(t, ca.handleMessage([]byte(`{not json`)))
	flush(t, h)

	frames := drain(t, ca)
	require.Len(t, frames, 1)
	assert.Equal(t, wsdto.EventPong, frames[0].Event)
	assert.Equal(t, "p", frames[0].AckID)
}

func TestLastConnectionWins(t *testing.T) {
	mirror := &mirrorRecorder{}
	h := startHub(t, HubConfig{Mirror: mirror})
	a := uuid.New()

	first := connect(t, h, a)
	second := connect(t, h, a)
	assert.True(t, sendClosed(first))
	assert.False(t, sendClosed(second))

	// the superseded connection tearing down leaves the user online
	h.Unregister(first)
	flush(t, h)
	assert.True(t, h.IsOnline(a))
	assert.Equal(t, []uuid.UUID{a}, h.OnlineUsers())

	h.Unregister(second)
	flush(t, h)
	assert.False(t, h.IsOnline(a))

	h.Wait()
	assert.ElementsMatch(t, []string{"online:" + a.String(), "online:" + a.String(), "offline:" + a.String()}, mirror.snapshot())
}

func TestSupersededConnectionCannotAct(t *testing.T) {
	h := startHub(t, HubConfig{Scheduler: typingtest.NewClock().Scheduler()})
	a, b := uuid.New(), uuid.New()
	first := connect(t, h, a)
	connect(t, h, a)
	cb := connect(t, h, b)
	drain(t, cb)

	h.handleTyping(first, wsdto.TypingRequest{ReceiverID: b, IsTyping: true})
	flush(t, h)
	assert.Empty(t, drain(t, cb))
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	seen := &lastSeenRecorder{}
	h := startHub(t, HubConfig{LastSeen: seen})
	a, b := uuid.New(), uuid.New()
	ca := connect(t, h, a)
	drain(t, ca)

	slow := NewClient(h, newFakeConn(), b, "slow")
	slow.send = make(chan []byte, 1)
	require.True(t, h.Register(slow))
	flush(t, h)

	// the roster filled the only slot
	h.RouteToPeer(wsdto.EventMessagesSeen, b, wsdto.MessageRef{MessageID: uuid.New()})
	flush(t, h)

	assert.False(t, h.IsOnline(b))
	frames := drain(t, ca)
	require.Len(t, frames, 2)
	assert.Equal(t, sorted(a, b), decodeRoster(t, frames[0]))
	assert.Equal(t, []uuid.UUID{a}, decodeRoster(t, frames[1]))

	h.Wait()
	_, ok := seen.get(b)
	assert.True(t, ok)
}

func TestStoppedHubRefusesWork(t *testing.T) {
	h := NewHub(HubConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := NewClient(h, newFakeConn(), uuid.New(), "c")
	require.True(t, h.Register(c))
	require.True(t, h.call(func() {}))

	cancel()
	<-h.Done()

	assert.True(t, sendClosed(c))
	assert.False(t, h.Register(NewClient(h, newFakeConn(), uuid.New(), "late")))
	assert.False(t, h.IsOnline(c.userID))
	assert.Empty(t, h.OnlineUsers())
}

func TestNullGateway(t *testing.T) {
	var g Gateway = NullGateway{}
	g.RouteToPeer(wsdto.EventNewMessage, uuid.New(), map[string]string{"text": "hi"})
	assert.False(t, g.IsOnline(uuid.New()))
	assert.NotNil(t, g.OnlineUsers())
	assert.Empty(t, g.OnlineUsers())
}
