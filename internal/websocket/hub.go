package websocket

import (
	"context"
	"sync"
	"time"

	"duochat/internal/presence"
	"duochat/internal/transport/wsdto"
	"duochat/internal/typing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	opsBuffer       = 1024
	persistTimeout  = 5 * time.Second
	rosterEventName = wsdto.EventOnlineUsers
)

type HubConfig struct {
	TypingWindow time.Duration
	// Scheduler overrides the timer source of the typing tracker.
	Scheduler typing.Scheduler
	LastSeen  LastSeenStore
	Mirror    PresenceMirror
	Logger    *WebSocketLogger
	Now       func() time.Time
}

// Hub owns every live connection, the presence registry and the typing
// tracker. All of that state is touched only by the goroutine running Run:
// callers hand work to it through ops, so registrations, deliveries and
// typing expiries are applied in one total order.
type Hub struct {
	registry *presence.Registry[*Client]
	typing   *typing.Tracker
	lastSeen LastSeenStore
	mirror   PresenceMirror
	logger   *WebSocketLogger
	now      func() time.Time

	ops  chan func()
	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub creates a new WebSocket hub
func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		registry: presence.NewRegistry[*Client](),
		lastSeen: cfg.LastSeen,
		mirror:   cfg.Mirror,
		logger:   cfg.Logger,
		now:      cfg.Now,
		ops:      make(chan func(), opsBuffer),
		done:     make(chan struct{}),
	}
	if h.logger == nil {
		h.logger = NewWebSocketLogger(nil)
	}
	if h.now == nil {
		h.now = time.Now
	}

	opts := []typing.Option{
		typing.WithWindow(cfg.TypingWindow),
		typing.WithOnExpire(func(userID uuid.UUID, gen uint64) {
			h.post(func() { h.routeTyping(h.typing.Expire(userID, gen)) })
		}),
	}
	if cfg.Scheduler != nil {
		opts = append(opts, typing.WithScheduler(cfg.Scheduler))
	}
	h.typing = typing.NewTracker(opts...)
	return h
}

// Run starts the hub's event loop. It returns when ctx is cancelled, after
// closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			op()
		}
	}
}

func (h *Hub) shutdown() {
	h.typing.StopAll()
	h.registry.Each(func(_ uuid.UUID, c *Client) {
		c.close()
	})
	close(h.done)
}

// Done is closed once the loop has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until pending last-seen and mirror writes have finished.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) post(op func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.ops <- op:
		return true
	case <-h.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (h *Hub) call(fn func()) bool {
	finished := make(chan struct{})
	if !h.post(func() {
		fn()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-h.done:
		return false
	}
}

// Register binds c to its user. An older connection of the same user is
// closed. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	return h.post(func() { h.handleRegister(c) })
}

func (h *Hub) Unregister(c *Client) {
	h.post(func() { h.handleUnregister(c) })
}

// RouteToPeer delivers event to peerID if connected.
func (h *Hub) RouteToPeer(event string, peerID uuid.UUID, payload interface{}) {
	frame, err := wsdto.Encode(event, payload, "")
	if err != nil {
		h.logger.Error("encode failed", peerID, "", err, zap.String("event_name", event))
		return
	}
	h.post(func() { h.deliverTo(peerID, frame) })
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	var online bool
	h.call(func() { online = h.registry.IsOnline(userID) })
	return online
}

// OnlineUsers returns the connected user ids ordered by string form.
func (h *Hub) OnlineUsers() []uuid.UUID {
	users := []uuid.UUID{}
	h.call(func() { users = h.registry.Snapshot() })
	return users
}

func (h *Hub) handleRegister(c *Client) {
	prev, replaced := h.registry.Bind(c.userID, c)
	if replaced && prev != c {
		prev.close()
		h.logger.Info("connection superseded", c.userID, prev.clientID)
	}
	h.logger.Info("connected", c.userID, c.clientID)

	if h.mirror != nil {
		userID, clientID := c.userID.String(), c.clientID
		h.async(func(ctx context.Context) error {
			return h.mirror.SetOnline(ctx, userID, clientID)
		}, "presence mirror online", c)
	}
	h.broadcastRoster()
}

func (h *Hub) handleUnregister(c *Client) {
	c.close()
	userID, ok := h.registry.UnbindConn(c)
	if !ok {
		return
	}
	h.logger.Info("disconnected", userID, c.clientID)

	h.routeTyping(h.typing.Cancel(userID))

	at := h.now()
	if h.lastSeen != nil {
		h.async(func(ctx context.Context) error {
			return h.lastSeen.UpdateLastSeen(ctx, userID, at)
		}, "persist last seen", c)
	}
	if h.mirror != nil {
		h.async(func(ctx context.Context) error {
			return h.mirror.SetOffline(ctx, userID.String())
		}, "presence mirror offline", c)
	}
	h.broadcastRoster()
}

func (h *Hub) async(fn func(ctx context.Context) error, what string, c *Client) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			h.logger.Error(what, c.userID, c.clientID, err)
		}
	}()
}

// enqueue never blocks. A full or closed outbound buffer fails.
func (h *Hub) enqueue(c *Client, frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) deliverTo(userID uuid.UUID, frame []byte) {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return
	}
	if !h.enqueue(c, frame) {
		h.logger.Warn("send buffer full", c.userID, c.clientID)
		h.handleUnregister(c)
	}
}

func (h *Hub) deliverEvent(userID uuid.UUID, event string, payload interface{}) {
	frame, err := wsdto.Encode(event, payload, "")
	if err != nil {
		h.logger.Error("encode failed", userID, "", err, zap.String("event_name", event))
		return
	}
	h.deliverTo(userID, frame)
}

func (h *Hub) routeTyping(events []typing.Event) {
	for _, e := range events {
		h.deliverEvent(e.PeerID, wsdto.EventUserTyping, wsdto.TypingPayload{
			UserID:          e.UserID,
			ConversationKey: e.ConversationKey,
			IsTyping:        e.IsTyping,
		})
	}
}

// broadcastRoster sends the full online list to every connection.
func (h *Hub) broadcastRoster() {
	frame, err := wsdto.Encode(rosterEventName, h.registry.Snapshot(), "")
	if err != nil {
		h.logger.Error("encode failed", uuid.Nil, "", err, zap.String("event_name", rosterEventName))
		return
	}

	var stale []*Client
	h.registry.Each(func(_ uuid.UUID, c *Client) {
		if !h.enqueue(c, frame) {
			stale = append(stale, c)
		}
	})
	for _, c := range stale {
		h.logger.Warn("send buffer full", c.userID, c.clientID)
		h.handleUnregister(c)
	}
}

// fromClient runs fn on the loop on behalf of c, unless c has been replaced
// or disconnected in the meantime.
func (h *Hub) fromClient(c *Client, fn func(userID uuid.UUID)) {
	h.post(func() {
		userID, ok := h.registry.Owner(c)
		if !ok {
			return
		}
		fn(userID)
	})
}

func (h *Hub) handleTyping(c *Client, req wsdto.TypingRequest) {
	h.fromClient(c, func(userID uuid.UUID) {
		if req.ReceiverID == uuid.Nil || req.ReceiverID == userID {
			return
		}
		if req.IsTyping {
			h.routeTyping(h.typing.Start(userID, req.ReceiverID))
			return
		}
		h.routeTyping(h.typing.Stop(userID))
	})
}

func (h *Hub) handleRecording(c *Client, req wsdto.RecordingRequest) {
	h.fromClient(c, func(userID uuid.UUID) {
		if req.ReceiverID == uuid.Nil || req.ReceiverID == userID {
			return
		}
		h.deliverEvent(req.ReceiverID, wsdto.EventRecording, wsdto.RecordingPayload{
			UserID:      userID,
			IsRecording: req.IsRecording,
		})
	})
}

// handleOnlineStatus replies to the asking connection only. An unparseable
// id is reported offline.
func (h *Hub) handleOnlineStatus(c *Client, req wsdto.OnlineStatusRequest, ackID string) {
	h.fromClient(c, func(_ uuid.UUID) {
		online := false
		if id, err := uuid.Parse(req.UserID); err == nil {
			online = h.registry.IsOnline(id)
		}
		h.reply(c, wsdto.EventOnlineStatus, online, ackID)
	})
}

func (h *Hub) handlePing(c *Client, ackID string) {
	h.fromClient(c, func(_ uuid.UUID) {
		h.reply(c, wsdto.EventPong, nil, ackID)
	})
}

func (h *Hub) reply(c *Client, event string, data interface{}, ackID string) {
	frame, err := wsdto.Encode(event, data, ackID)
	if err != nil {
		h.logger.Error("encode failed", c.userID, c.clientID, err, zap.String("event_name", event))
		return
	}
	if !h.enqueue(c, frame) {
		h.logger.Warn("send buffer full", c.userID, c.clientID)
		h.handleUnregister(c)
	}
}
