// Package typing implements the per-user typing indicator state machine.
//
// A user is either idle or typing towards exactly one peer. A typing entry
// expires after a quiescence window unless it is refreshed. Every change in
// and out of the typing state yields an Event addressed to the affected peer
// only; the caller is responsible for delivering it.
package typing

import (
	"time"

	"duochat/internal/domain/conversation"

	"github.com/google/uuid"
)

const DefaultWindow = 3 * time.Second

// Event is a userTyping notification for PeerID.
type Event struct {
	UserID          uuid.UUID
	PeerID          uuid.UUID
	ConversationKey string
	IsTyping        bool
}

// Timer is the subset of *time.Timer the tracker needs.
type Timer interface {
	Stop() bool
}

// Scheduler arms fn to run once after d.
type Scheduler func(d time.Duration, fn func()) Timer

func realScheduler(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type entry struct {
	peer  uuid.UUID
	key   string
	gen   uint64
	timer Timer
}

// Tracker is not safe for concurrent use. Timer callbacks do not touch the
// tracker directly: they invoke OnExpire, which must hand the expiry back to
// the goroutine that owns the tracker and call Expire from there.
type Tracker struct {
	window   time.Duration
	schedule Scheduler
	onExpire func(userID uuid.UUID, gen uint64)
	entries  map[uuid.UUID]*entry
	gen      uint64
}

type Option func(*Tracker)

func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(t *Tracker) { t.schedule = s }
}

// WithOnExpire sets the callback run from the timer goroutine when an entry's
// window elapses.
func WithOnExpire(fn func(userID uuid.UUID, gen uint64)) Option {
	return func(t *Tracker) { t.onExpire = fn }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		window:   DefaultWindow,
		schedule: realScheduler,
		entries:  make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start records that userID is typing to peerID and restarts the window.
// Refreshing the same conversation emits nothing. Switching conversation
// stops the indicator at the previous peer.
func (t *Tracker) Start(userID, peerID uuid.UUID) []Event {
	key := conversation.Key(userID, peerID)
	var events []Event

	if e, ok := t.entries[userID]; ok {
		e.timer.Stop()
		if e.key == key {
			t.arm(userID, e)
			return nil
		}
		events = append(events, Event{UserID: userID, PeerID: e.peer, ConversationKey: e.key, IsTyping: false})
	}

	e := &entry{peer: peerID, key: key}
	t.entries[userID] = e
	t.arm(userID, e)
	return append(events, Event{UserID: userID, PeerID: peerID, ConversationKey: key, IsTyping: true})
}

func (t *Tracker) arm(userID uuid.UUID, e *entry) {
	t.gen++
	gen := t.gen
	e.gen = gen
	e.timer = t.schedule(t.window, func() {
		if t.onExpire != nil {
			t.onExpire(userID, gen)
		}
	})
}

// Stop is an explicit typing-stop. Redundant stops are no-ops.
func (t *Tracker) Stop(userID uuid.UUID) []Event {
	e, ok := t.entries[userID]
	if !ok {
		return nil
	}
	e.timer.Stop()
	delete(t.entries, userID)
	return []Event{{UserID: userID, PeerID: e.peer, ConversationKey: e.key, IsTyping: false}}
}

// Expire ends the entry armed with gen. Expiries that lost a race with a
// refresh or stop carry an old gen and are ignored.
func (t *Tracker) Expire(userID uuid.UUID, gen uint64) []Event {
	e, ok := t.entries[userID]
	if !ok || e.gen != gen {
		return nil
	}
	delete(t.entries, userID)
	return []Event{{UserID: userID, PeerID: e.peer, ConversationKey: e.key, IsTyping: false}}
}

// Cancel drops the user's state on disconnect.
func (t *Tracker) Cancel(userID uuid.UUID) []Event {
	return t.Stop(userID)
}

func (t *Tracker) IsTyping(userID uuid.UUID) bool {
	_, ok := t.entries[userID]
	return ok
}

// Conversation returns the key the user is typing in.
func (t *Tracker) Conversation(userID uuid.UUID) (string, bool) {
	e, ok := t.entries[userID]
	if !ok {
		return "", false
	}
	return e.key, true
}

// StopAll cancels every pending timer. Used on shutdown.
func (t *Tracker) StopAll() {
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
}
