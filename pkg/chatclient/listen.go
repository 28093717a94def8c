package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"duochat/internal/transport/wsdto"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Socket is a live connection to the realtime gateway.
type Socket struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	acks    sync.Map // ackID -> chan json.RawMessage
}

// Dial connects to the gateway at rawURL, authenticating with token.
func Dial(ctx context.Context, rawURL, token string) (*Socket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, duochat_errors.ErrUnauthorized
		}
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, duochat_errors.ErrRateLimited
		}
		return nil, fmt.Errorf("%w: %v", duochat_errors.ErrConnection, err)
	}
	return &Socket{conn: conn}, nil
}

// Listen reads frames until ctx is cancelled or the connection drops and
// hands every event to s. Replies to OnlineStatus are routed to their caller.
func (k *Socket) Listen(ctx context.Context, s *Session) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = k.conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := k.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", duochat_errors.ErrConnection, err)
		}

		for _, chunk := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(chunk)) == 0 {
				continue
			}
			var frame wsdto.Frame
			if err := json.Unmarshal(chunk, &frame); err != nil {
				s.logger.Warn("undecodable frame", zap.Error(err))
				continue
			}
			if frame.AckID != "" {
				if ch, ok := k.acks.LoadAndDelete(frame.AckID); ok {
					ch.(chan json.RawMessage) <- frame.Data
					continue
				}
			}
			if err := s.HandleEvent(ctx, frame.Event, frame.Data); err != nil {
				s.logger.Warn("event not applied", zap.String("event", frame.Event), zap.Error(err))
			}
		}
	}
}

// Typing tells peerID whether the user is typing.
func (k *Socket) Typing(peerID uuid.UUID, isTyping bool) error {
	return k.emit(wsdto.EventTyping, wsdto.TypingRequest{ReceiverID: peerID, IsTyping: isTyping}, "")
}

func (k *Socket) Recording(peerID uuid.UUID, isRecording bool) error {
	return k.emit(wsdto.EventRecording, wsdto.RecordingRequest{ReceiverID: peerID, IsRecording: isRecording}, "")
}

// OnlineStatus asks the gateway whether userID is connected. Listen must be
// running to receive the answer.
func (k *Socket) OnlineStatus(ctx context.Context, userID uuid.UUID) (bool, error) {
	ackID := uuid.NewString()
	ch := make(chan json.RawMessage, 1)
	k.acks.Store(ackID, ch)
	defer k.acks.Delete(ackID)

	if err := k.emit(wsdto.EventOnlineStatus, wsdto.OnlineStatusRequest{UserID: userID.String()}, ackID); err != nil {
		return false, err
	}

	select {
	case data := <-ch:
		var online bool
		if err := json.Unmarshal(data, &online); err != nil {
			return false, err
		}
		return online, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (k *Socket) Close() error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = k.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	err := k.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (k *Socket) emit(event string, data interface{}, ackID string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(wsdto.Frame{Event: event, Data: raw, AckID: ackID})
	if err != nil {
		return err
	}

	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	_ = k.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := k.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", duochat_errors.ErrConnection, err)
	}
	return nil
}
