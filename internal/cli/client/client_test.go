package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"algoarena/internal/duel/model"
	pkgerrors "algoarena/pkg/errors"
	"algoarena/pkg/utils/response"

	"github.com/gorilla/websocket"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(response.Response{Code: pkgerrors.Unauthorized, Message: "missing access token"})
			return
		}
		_ = json.NewEncoder(w).Encode(response.Response{
			Code: pkgerrors.Success,
			Data: map[string]any{"rooms": []model.Summary{{ID: "ABC123", Status: model.StatusWaiting, PlayerCount: 1}}},
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env model.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			// Echo the action back as an event so the test can observe it.
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRooms(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	rooms, err := New(srv.URL, "tok", time.Second).Rooms(ctx)
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "ABC123" {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}

	_, err = New(srv.URL, "", time.Second).Rooms(ctx)
	if !pkgerrors.Is(err, pkgerrors.Unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDialSendReceive(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	if _, err := New(srv.URL, "", time.Second).Dial(ctx); err == nil {
		t.Fatalf("expected handshake failure without token")
	}

	stream, err := New(srv.URL+"/", "tok", time.Second).Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := stream.Send(model.ActionJoinDuel, model.JoinDuelPayload{RoomID: "ABC123"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case env := <-stream.Events():
		var p model.JoinDuelPayload
		if env.Event != model.ActionJoinDuel || json.Unmarshal(env.Data, &p) != nil || p.RoomID != "ABC123" {
			t.Fatalf("unexpected echo: %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for range stream.Events() {
	}
	if stream.Err() == nil {
		t.Fatalf("expected read error after close")
	}
}
