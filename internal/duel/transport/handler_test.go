package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"algoarena/internal/auth"
	"algoarena/internal/duel/model"
	duelService "algoarena/internal/duel/service"
	"algoarena/internal/duel/transport"
	appErr "algoarena/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, raw string) (auth.Identity, error) {
	if raw != "good-token" {
		return auth.Identity{}, appErr.New(appErr.TokenInvalid)
	}
	return auth.Identity{UserID: "u1", Username: "Ada"}, nil
}

type fakeDuel struct {
	hub *transport.Hub

	mu           sync.Mutex
	created      []duelService.Caller
	disconnected []string
}

func (f *fakeDuel) CreateRoom(_ context.Context, c duelService.Caller) (model.RoomView, error) {
	f.mu.Lock()
	f.created = append(f.created, c)
	f.mu.Unlock()
	view := model.RoomView{ID: "ROOM42", Status: model.StatusWaiting}
	f.hub.Send(c.ConnID, model.EventDuelCreated, view)
	return view, nil
}

func (f *fakeDuel) JoinRoom(context.Context, string, duelService.Caller) (model.RoomView, error) {
	return model.RoomView{}, appErr.New(appErr.RoomNotFound)
}

func (f *fakeDuel) ListRooms() []model.Summary {
	return []model.Summary{{ID: "ROOM42", Status: model.StatusWaiting, PlayerCount: 1}}
}

func (f *fakeDuel) SetReady(context.Context, string, duelService.Caller) error { return nil }
func (f *fakeDuel) Submit(context.Context, string, duelService.Caller, string, string) error {
	return nil
}
func (f *fakeDuel) Leave(context.Context, string, duelService.Caller) error { return nil }

func (f *fakeDuel) Connect(_ context.Context, c duelService.Caller) {
	f.hub.Send(c.ConnID, model.EventRoomList, f.ListRooms())
}

func (f *fakeDuel) Disconnect(_ context.Context, userID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, userID)
}

func newServer(t *testing.T) (*httptest.Server, *fakeDuel, *transport.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := transport.NewHub(transport.Config{}, nil)
	duel := &fakeDuel{hub: hub}
	handler := transport.NewHandler(hub, duel, tokenAuth{})
	router := gin.New()
	router.GET("/ws", handler.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, duel, hub
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, ws *websocket.Conn) model.Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env model.Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return env
}

func TestHandshakeRequiresToken(t *testing.T) {
	srv, _, _ := newServer(t)
	for _, token := range []string{"", "bad-token"} {
		_, resp, err := dial(t, srv, token)
		if err == nil {
			t.Fatalf("expected handshake with %q to fail", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %q, got %+v", token, resp)
		}
	}
}

func TestActionsDispatch(t *testing.T) {
	srv, duel, hub := newServer(t)
	ws, _, err := dial(t, srv, "good-token")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if env := readEvent(t, ws); env.Event != model.EventRoomList {
		t.Fatalf("expected room list on connect, got %s", env.Event)
	}

	tests := []struct {
		name      string
		send      string
		wantEvent string
		wantCode  appErr.ErrorCode
	}{
		{"create", `{"event":"createDuel","data":{"userId":"u1","username":"Ada L","languages":["python"]}}`, model.EventDuelCreated, 0},
		{"impersonation", `{"event":"createDuel","data":{"userId":"u2"}}`, model.EventJoinError, appErr.UserMismatch},
		{"join failure", `{"event":"joinDuel","data":{"roomId":"nope","userId":"u1"}}`, model.EventJoinError, appErr.RoomNotFound},
		{"unknown action", `{"event":"dance"}`, model.EventDuelError, appErr.UnknownAction},
		{"malformed", `not json`, model.EventDuelError, appErr.InvalidFormat},
		{"room list", `{"event":"getRoomList"}`, model.EventRoomList, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tc.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			env := readEvent(t, ws)
			if env.Event != tc.wantEvent {
				t.Fatalf("expected %s, got %s", tc.wantEvent, env.Event)
			}
			if tc.wantCode != 0 {
				var p model.ErrorPayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					t.Fatalf("decode error payload: %v", err)
				}
				if p.Code != int(tc.wantCode) {
					t.Fatalf("expected code %d, got %d", tc.wantCode, p.Code)
				}
			}
		})
	}

	duel.mu.Lock()
	created := duel.created
	duel.mu.Unlock()
	if len(created) != 1 || created[0].DisplayName != "Ada L" || created[0].Languages[0] != "python" {
		t.Fatalf("unexpected create calls %+v", created)
	}
	if hub.Count() != 1 {
		t.Fatalf("expected one registered connection, got %d", hub.Count())
	}

	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		duel.mu.Lock()
		n := len(duel.disconnected)
		duel.mu.Unlock()
		if n == 1 && hub.Count() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected disconnect to reach the registry")
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	srv, _, hub := newServer(t)
	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		ws, _, err := dial(t, srv, "good-token")
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer ws.Close()
		readEvent(t, ws)
		conns = append(conns, ws)
	}
	hub.Broadcast(model.EventRoomList, []model.Summary{})
	for _, ws := range conns {
		if env := readEvent(t, ws); env.Event != model.EventRoomList {
			t.Fatalf("expected broadcast, got %s", env.Event)
		}
	}
}
