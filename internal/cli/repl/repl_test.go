package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"algoarena/internal/cli/state"
	"algoarena/internal/duel/model"
)

type sent struct {
	action  string
	payload any
}

type fakeStream struct {
	mu     sync.Mutex
	sent   []sent
	events chan model.Envelope
	closed bool
}

func newFakeStream() *fakeStream { return &fakeStream{events: make(chan model.Envelope, 8)} }

func (f *fakeStream) Send(action string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{action, payload})
	return nil
}

func (f *fakeStream) Events() <-chan model.Envelope { return f.events }
func (f *fakeStream) Err() error                    { return nil }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeStream) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeBackend struct {
	stream  *fakeStream
	rooms   []model.Summary
	dials   int
	baseURL string
	token   string
}

func (b *fakeBackend) Rooms(context.Context) ([]model.Summary, error) { return b.rooms, nil }
func (b *fakeBackend) Room(_ context.Context, id string) (model.RoomView, error) {
	return model.RoomView{ID: id, Status: model.StatusWaiting}, nil
}
func (b *fakeBackend) Connect(context.Context) (Stream, error) {
	b.dials++
	return b.stream, nil
}
func (b *fakeBackend) SetBaseURL(u string) { b.baseURL = u }
func (b *fakeBackend) SetToken(t string)   { b.token = t }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func newSession(t *testing.T) (*Session, *fakeBackend, *syncBuffer, string) {
	t.Helper()
	backend := &fakeBackend{stream: newFakeStream()}
	out := &syncBuffer{}
	path := filepath.Join(t.TempDir(), "cli.json")
	s := New(backend, &state.State{}, path, []string{"python"}, out)
	t.Cleanup(s.closeStream)
	return s, backend, out, path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionSendsActions(t *testing.T) {
	s, backend, _, _ := newSession(t)
	ctx := context.Background()

	if err := s.Exec(ctx, `create "Ada L"`); err != nil {
		t.Fatalf("create: %v", err)
	}
	got := backend.stream.last()
	create, ok := got.payload.(model.CreateDuelPayload)
	if got.action != model.ActionCreateDuel || !ok || create.Username != "Ada L" || create.Languages[0] != "python" {
		t.Fatalf("unexpected create: %+v", got)
	}

	if err := s.Exec(ctx, "ready"); err == nil {
		t.Fatalf("ready without a room should fail")
	}
	if err := s.Exec(ctx, "join abc123"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if join := backend.stream.last().payload.(model.JoinDuelPayload); join.RoomID != "ABC123" {
		t.Fatalf("join room = %q", join.RoomID)
	}

	src := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(src, []byte("print(1)"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := s.Exec(ctx, "submit python "+src+" abc123"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	submit := backend.stream.last().payload.(model.SubmitPayload)
	if submit.Code != "print(1)" || submit.RoomID != "ABC123" || submit.Language != "python" {
		t.Fatalf("unexpected submit: %+v", submit)
	}
	if backend.dials != 1 {
		t.Fatalf("dials = %d, want 1", backend.dials)
	}
}

func TestSessionRendersEventsAndRemembersRoom(t *testing.T) {
	s, backend, out, path := newSession(t)
	ctx := context.Background()
	if err := s.Exec(ctx, "connect"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	view, _ := json.Marshal(model.RoomView{ID: "QWE123", Status: model.StatusWaiting,
		Players: []model.PlayerView{{UserID: "u1", DisplayName: "Ada", IsReady: true, Connected: true}}})
	backend.stream.events <- model.Envelope{Event: model.EventDuelCreated, Data: view}
	errPayload, _ := json.Marshal(model.ErrorPayload{Message: "room is full", Code: 14002})
	backend.stream.events <- model.Envelope{Event: model.EventJoinError, Data: errPayload}

	waitFor(t, func() bool { return strings.Contains(out.String(), "room is full") })
	if !strings.Contains(out.String(), "room QWE123") || !strings.Contains(out.String(), "Ada (u1)") {
		t.Fatalf("missing room output: %s", out.String())
	}

	if err := s.Exec(ctx, "ready"); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if ready := backend.stream.last().payload.(model.ReadyPayload); ready.RoomID != "QWE123" {
		t.Fatalf("ready room = %q", ready.RoomID)
	}
	st, err := state.Load(path)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.RoomID != "QWE123" {
		t.Fatalf("persisted room = %q", st.RoomID)
	}
}

func TestSessionCommands(t *testing.T) {
	s, backend, out, path := newSession(t)
	backend.rooms = []model.Summary{{ID: "AAA111", Status: model.StatusWaiting, PlayerCount: 1, Players: []string{"Ada"}}}
	ctx := context.Background()

	tests := []struct {
		line    string
		wantErr bool
		want    string
	}{
		{line: "rooms", want: "AAA111"},
		{line: "room zzz999", want: "room ZZZ999"},
		{line: "set token abcdefghijklmnop", want: "token updated"},
		{line: "show", want: "abcdef...mnop"},
		{line: "set colour red", wantErr: true},
		{line: "join", wantErr: true},
		{line: "bogus", wantErr: true},
		{line: `create "unterminated`, wantErr: true},
		{line: "help", want: "submit <language> <file> [room]"},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			err := s.Exec(ctx, tc.line)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Fatalf("output missing %q: %s", tc.want, out.String())
			}
		})
	}
	if backend.token != "abcdefghijklmnop" {
		t.Fatalf("backend token = %q", backend.token)
	}
	st, _ := state.Load(path)
	if st.AccessToken != "abcdefghijklmnop" {
		t.Fatalf("token not persisted")
	}
}

func TestRunStopsOnExit(t *testing.T) {
	s, _, out, _ := newSession(t)
	if err := s.Run(context.Background(), strings.NewReader("show\nexit\nrooms\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out.String()), "bye") {
		t.Fatalf("expected bye, got %s", out.String())
	}
}
