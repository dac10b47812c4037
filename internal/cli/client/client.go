// Package client talks to a duel server over REST and the duel websocket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"algoarena/internal/duel/model"
	pkgerrors "algoarena/pkg/errors"

	"github.com/gorilla/websocket"
)

const (
	roomsPath  = "/api/v1/rooms"
	wsPath     = "/ws"
	eventQueue = 64
)

// Client holds the server address and credentials.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// New creates a client. timeout bounds REST calls and the websocket handshake.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// SetBaseURL changes the server address for later calls.
func (c *Client) SetBaseURL(baseURL string) { c.baseURL = strings.TrimRight(baseURL, "/") }

// SetToken changes the access token for later calls.
func (c *Client) SetToken(token string) { c.token = token }

type apiResponse struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
}

// Rooms lists the open rooms.
func (c *Client) Rooms(ctx context.Context) ([]model.Summary, error) {
	var out struct {
		Rooms []model.Summary `json:"rooms"`
	}
	if err := c.get(ctx, roomsPath, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// Room returns the caller's view of one room.
func (c *Client) Room(ctx context.Context, roomID string) (model.RoomView, error) {
	var out model.RoomView
	err := c.get(ctx, roomsPath+"/"+url.PathEscape(roomID), &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response failed: %w", err)
	}
	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if env.Code != pkgerrors.Success {
		return pkgerrors.New(env.Code).WithMessage(env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Stream is an open duel websocket.
type Stream struct {
	conn   *websocket.Conn
	events chan model.Envelope
	mu     sync.Mutex
	err    error
}

// Dial opens the duel websocket. Events arrive on Stream.Events until the
// connection drops, after which the channel is closed and Err reports why.
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.baseURL + wsPath)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	s := &Stream{conn: conn, events: make(chan model.Envelope, eventQueue)}
	go s.readLoop()
	return s, nil
}

func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		var env model.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		s.events <- env
	}
}

// Events delivers server events in arrival order.
func (s *Stream) Events() <-chan model.Envelope { return s.events }

// Err returns the read error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send writes one action.
func (s *Stream) Send(action string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(model.Envelope{Event: action, Data: data})
}

// Close sends a close frame and releases the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.conn.Close()
}
