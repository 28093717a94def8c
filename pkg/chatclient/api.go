// Package chatclient is a Go client for the chat service: a REST client, a
// websocket listener and a Session that keeps the state a chat screen shows
// in sync with both.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"duochat/internal/domain/message"
	"duochat/internal/transport/httpdto"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
)

// API calls the REST surface. It is safe for concurrent use once the token
// is set.
type API struct {
	base  string
	token string
	http  *http.Client
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetToken sets the bearer token sent with every request.
func (a *API) SetToken(token string) {
	a.token = token
}

func (a *API) Token() string {
	return a.token
}

func (a *API) Signup(ctx context.Context, req httpdto.SignupRequest) (httpdto.AuthResponse, error) {
	var res httpdto.AuthResponse
	if err := a.do(ctx, http.MethodPost, "/api/auth/signup", req, &res); err != nil {
		return httpdto.AuthResponse{}, err
	}
	a.token = res.Token
	return res, nil
}

func (a *API) Login(ctx context.Context, email, password string) (httpdto.AuthResponse, error) {
	var res httpdto.AuthResponse
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", httpdto.LoginRequest{Email: email, Password: password}, &res); err != nil {
		return httpdto.AuthResponse{}, err
	}
	a.token = res.Token
	return res, nil
}

func (a *API) Sidebar(ctx context.Context) (httpdto.SidebarResponse, error) {
	var res httpdto.SidebarResponse
	err := a.do(ctx, http.MethodGet, "/api/messages/users", nil, &res)
	return res, err
}

func (a *API) Thread(ctx context.Context, peerID uuid.UUID) ([]message.Message, error) {
	var res httpdto.ThreadResponse
	if err := a.do(ctx, http.MethodGet, "/api/messages/"+peerID.String(), nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (a *API) MarkSeen(ctx context.Context, messageID uuid.UUID) error {
	return a.do(ctx, http.MethodPut, "/api/messages/mark/"+messageID.String(), nil, nil)
}

func (a *API) Send(ctx context.Context, peerID uuid.UUID, req httpdto.SendMessageRequest) (message.Message, error) {
	var res httpdto.SendMessageResponse
	if err := a.do(ctx, http.MethodPost, "/api/messages/send/"+peerID.String(), req, &res); err != nil {
		return message.Message{}, err
	}
	return res.NewMessage, nil
}

func (a *API) React(ctx context.Context, messageID uuid.UUID, emoji string) ([]message.Reaction, error) {
	var res httpdto.ReactResponse
	if err := a.do(ctx, http.MethodPut, "/api/messages/react/"+messageID.String(), httpdto.ReactRequest{Emoji: emoji}, &res); err != nil {
		return nil, err
	}
	return res.Reactions, nil
}

func (a *API) Edit(ctx context.Context, messageID uuid.UUID, text string) (message.Message, error) {
	var res httpdto.EditResponse
	if err := a.do(ctx, http.MethodPut, "/api/messages/edit/"+messageID.String(), httpdto.EditRequest{Text: text}, &res); err != nil {
		return message.Message{}, err
	}
	return res.Message, nil
}

func (a *API) Delete(ctx context.Context, messageID uuid.UUID, scope message.DeleteScope) error {
	return a.do(ctx, http.MethodDelete, "/api/messages/delete/"+messageID.String(), httpdto.DeleteRequest{DeleteFor: string(scope)}, nil)
}

// SocketURL derives the websocket endpoint from the API base URL.
func (a *API) SocketURL() (string, error) {
	u, err := url.Parse(a.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// do sends body as JSON and decodes the response into out. A failure
// envelope becomes an error wrapping the matching sentinel.
func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", duochat_errors.ErrConnection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", duochat_errors.ErrConnection, err)
	}

	// "message" is text on failures but an object in edit responses.
	var head struct {
		Success bool            `json:"success"`
		Code    string          `json:"code"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("%s %s: unexpected response (status %d)", method, path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !head.Success {
		env := httpdto.Envelope{Success: head.Success, Code: head.Code}
		_ = json.Unmarshal(head.Message, &env.Message)
		return envelopeError(resp.StatusCode, env)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func envelopeError(status int, env httpdto.Envelope) error {
	sentinel := codeSentinel(env.Code)
	if sentinel == nil {
		switch status {
		case http.StatusUnauthorized:
			sentinel = duochat_errors.ErrUnauthorized
		case http.StatusTooManyRequests:
			sentinel = duochat_errors.ErrRateLimited
		case http.StatusBadRequest:
			sentinel = duochat_errors.ErrValidation
		default:
			return fmt.Errorf("request failed (status %d): %s", status, env.Message)
		}
	}
	if env.Message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, env.Message)
}

func codeSentinel(code string) error {
	switch code {
	case duochat_errors.CodeValidation:
		return duochat_errors.ErrValidation
	case duochat_errors.CodeUnauthorized:
		return duochat_errors.ErrUnauthorized
	case duochat_errors.CodeNotFound:
		return duochat_errors.ErrNotFound
	case duochat_errors.CodeUpstream:
		return duochat_errors.ErrUpstream
	case duochat_errors.CodeConflict:
		return duochat_errors.ErrConflict
	case duochat_errors.CodeAlreadyExists:
		return duochat_errors.ErrAlreadyExists
	case duochat_errors.CodeRateLimited:
		return duochat_errors.ErrRateLimited
	}
	return nil
}
