package websocket

import (
	"bytes"
	"encoding/json"
	"io"
	"sync/atomic"
	"time"

	"duochat/internal/transport/wsdto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

var (
	newline = []byte{'\n'}
)

// Conn is the part of *websocket.Conn a client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	NextWriter(messageType int) (io.WriteCloser, error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a single WebSocket connection
type Client struct {
	hub          *Hub
	conn         Conn
	send         chan []byte
	userID       uuid.UUID
	clientID     string
	rateLimiter  *ClientRateLimiter
	connectedAt  time.Time
	lastActivity atomic.Int64

	// closed is owned by the hub loop.
	closed bool
}

func NewClient(hub *Hub, conn Conn, userID uuid.UUID, clientID string) *Client {
	now := time.Now()
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		userID:      userID,
		clientID:    clientID,
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		connectedAt: now,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

func (c *Client) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("unexpected close", c.userID, c.clientID, err)
			}
			break
		}
		c.touch()

		for _, line := range bytes.Split(data, newline) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if err := c.handleMessage(line); err != nil {
				c.hub.logger.Warn("bad frame", c.userID, c.clientID, zap.Error(err))
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) error {
	var frame wsdto.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return err
	}

	switch frame.Event {
	case wsdto.EventTyping, wsdto.EventRecording, wsdto.EventOnlineStatus, wsdto.EventPing:
	default:
		c.hub.logger.Warn("unknown event", c.userID, c.clientID, zap.String("event_name", frame.Event))
		return nil
	}

	if !c.rateLimiter.Allow(frame.Event) {
		c.hub.logger.Warn("rate limit exceeded", c.userID, c.clientID, zap.String("event_name", frame.Event))
		return nil
	}

	switch frame.Event {
	case wsdto.EventTyping:
		var req wsdto.TypingRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return err
		}
		c.hub.handleTyping(c, req)
	case wsdto.EventRecording:
		var req wsdto.RecordingRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return err
		}
		c.hub.handleRecording(c, req)
	case wsdto.EventOnlineStatus:
		var req wsdto.OnlineStatusRequest
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &req); err != nil {
				return err
			}
		}
		c.hub.handleOnlineStatus(c, req, frame.AckID)
	case wsdto.EventPing:
		c.hub.handlePing(c, frame.AckID)
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write(newline)
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if c.idleFor() > pongWait*2 {
				c.hub.logger.Info("client idle timeout", c.userID, c.clientID)
				return
			}
		}
	}
}
