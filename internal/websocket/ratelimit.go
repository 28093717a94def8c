package websocket

import (
	"context"
	"sync"
	"time"

	"duochat/internal/transport/wsdto"

	"github.com/google/uuid"
)

// Rate limits per minute
type RateLimits struct {
	MaxTypingEvents    int
	MaxRecordingEvents int
	MaxStatusQueries   int
	MaxPingMessages    int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents:    300,
	MaxRecordingEvents: 60,
	MaxStatusQueries:   120,
	MaxPingMessages:    60,
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	limits     RateLimits
	tokens     map[string]int
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	rl := &ClientRateLimiter{limits: limits, now: time.Now}
	rl.lastRefill = rl.now()
	rl.refillTokens()
	return rl
}

// Allow consumes one token of the class msgType belongs to. Unknown types are
// rejected.
func (rl *ClientRateLimiter) Allow(msgType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	if rl.tokens[msgType] > 0 {
		rl.tokens[msgType]--
		return true
	}
	return false
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.tokens = map[string]int{
		wsdto.EventTyping:       rl.limits.MaxTypingEvents,
		wsdto.EventRecording:    rl.limits.MaxRecordingEvents,
		wsdto.EventOnlineStatus: rl.limits.MaxStatusQueries,
		wsdto.EventPing:         rl.limits.MaxPingMessages,
	}
}

// WebSocketRateLimiter limits connection attempts per user.
type WebSocketRateLimiter struct {
	connectionsPerUser map[uuid.UUID][]time.Time
	limit              int
	window             time.Duration
	now                func() time.Time
	mu                 sync.Mutex
}

func NewWebSocketRateLimiter(limit int, window time.Duration) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{
		connectionsPerUser: make(map[uuid.UUID][]time.Time),
		limit:              limit,
		window:             window,
		now:                time.Now,
	}
}

func (w *WebSocketRateLimiter) AllowConnection(userID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	windowStart := now.Add(-w.window)

	valid := w.connectionsPerUser[userID][:0]
	for _, t := range w.connectionsPerUser[userID] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= w.limit {
		w.connectionsPerUser[userID] = valid
		return false
	}

	w.connectionsPerUser[userID] = append(valid, now)
	return true
}

// RunCleanup drops stale entries every interval until ctx ends.
func (w *WebSocketRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

func (w *WebSocketRateLimiter) cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)

	for userID, times := range w.connectionsPerUser {
		valid := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(w.connectionsPerUser, userID)
		} else {
			w.connectionsPerUser[userID] = valid
		}
	}
}
