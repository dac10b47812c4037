// Package repl is an interactive duel client: it keeps one websocket open and
// prints server events while reading commands from the terminal.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"algoarena/internal/cli/client"
	"algoarena/internal/cli/state"
	"algoarena/internal/duel/model"

	"github.com/google/shlex"
)

// Stream is an open duel connection.
type Stream interface {
	Send(action string, payload any) error
	Events() <-chan model.Envelope
	Err() error
	Close() error
}

// Backend is the server surface the session drives.
type Backend interface {
	Rooms(ctx context.Context) ([]model.Summary, error)
	Room(ctx context.Context, roomID string) (model.RoomView, error)
	Connect(ctx context.Context) (Stream, error)
	SetBaseURL(baseURL string)
	SetToken(token string)
}

// FromClient adapts a client.Client to Backend.
func FromClient(c *client.Client) Backend { return clientBackend{c} }

type clientBackend struct{ *client.Client }

func (b clientBackend) Connect(ctx context.Context) (Stream, error) { return b.Dial(ctx) }

var errQuit = errors.New("quit")

type command struct {
	usage string
	args  int
	run   func(ctx context.Context, args []string) error
}

// Session holds REPL state.
type Session struct {
	backend   Backend
	state     *state.State
	statePath string
	languages []string

	mu     sync.Mutex
	out    io.Writer
	stream Stream
	wg     sync.WaitGroup

	commands map[string]command
}

// New creates a session. languages are advertised when creating or joining rooms.
func New(backend Backend, st *state.State, statePath string, languages []string, out io.Writer) *Session {
	if out == nil {
		out = os.Stdout
	}
	s := &Session{backend: backend, state: st, statePath: statePath, languages: languages, out: out}
	s.commands = map[string]command{
		"set":        {usage: "set base|token <value>", args: 2, run: s.set},
		"show":       {usage: "show", run: s.show},
		"rooms":      {usage: "rooms", run: s.rooms},
		"room":       {usage: "room [id]", run: s.room},
		"connect":    {usage: "connect", run: s.connect},
		"disconnect": {usage: "disconnect", run: s.disconnect},
		"create":     {usage: "create [display name]", run: s.create},
		"join":       {usage: "join <room> [display name]", args: 1, run: s.join},
		"ready":      {usage: "ready [room]", run: s.ready},
		"submit":     {usage: "submit <language> <file> [room]", args: 2, run: s.submit},
		"leave":      {usage: "leave [room]", run: s.leave},
		"list":       {usage: "list", run: s.list},
	}
	return s
}

// Run reads commands from in until EOF, exit or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	defer s.closeStream()
	reader := bufio.NewScanner(in)
	for {
		s.printf("duel> ")
		if !reader.Scan() {
			return reader.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		err := s.Exec(ctx, reader.Text())
		if errors.Is(err, errQuit) {
			s.println("bye")
			return nil
		}
		if err != nil {
			s.println("error: %v", err)
		}
	}
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	name, args := tokens[0], tokens[1:]
	switch name {
	case "exit", "quit":
		return errQuit
	case "help":
		s.help()
		return nil
	}
	cmd, ok := s.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}
	if len(args) < cmd.args {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(ctx, args)
}

func (s *Session) help() {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.println("  %s", s.commands[name].usage)
	}
	s.println("  help | exit")
}

func (s *Session) set(_ context.Context, args []string) error {
	switch args[0] {
	case "base":
		s.state.BaseURL = args[1]
		s.backend.SetBaseURL(args[1])
	case "token":
		s.state.AccessToken = args[1]
		s.backend.SetToken(args[1])
	default:
		return fmt.Errorf("usage: %s", s.commands["set"].usage)
	}
	s.save()
	s.println("%s updated", args[0])
	return nil
}

func (s *Session) show(context.Context, []string) error {
	token := s.state.AccessToken
	switch {
	case token == "":
		token = "<empty>"
	case len(token) > 12:
		token = token[:6] + "..." + token[len(token)-4:]
	}
	s.println("base: %s", s.state.BaseURL)
	s.println("token: %s", token)
	s.mu.Lock()
	roomID := s.state.RoomID
	s.mu.Unlock()
	s.println("room: %s", roomID)
	s.println("connected: %t", s.currentStream() != nil)
	return nil
}

func (s *Session) rooms(ctx context.Context, _ []string) error {
	rooms, err := s.backend.Rooms(ctx)
	if err != nil {
		return err
	}
	s.printRooms(rooms)
	return nil
}

func (s *Session) room(ctx context.Context, args []string) error {
	roomID, err := s.roomArg(args, 0)
	if err != nil {
		return err
	}
	view, err := s.backend.Room(ctx, roomID)
	if err != nil {
		return err
	}
	s.printRoom(view)
	return nil
}

func (s *Session) connect(ctx context.Context, _ []string) error {
	if s.currentStream() != nil {
		return nil
	}
	stream, err := s.backend.Connect(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	s.wg.Add(1)
	go s.pump(stream)
	s.println("connected")
	return nil
}

func (s *Session) disconnect(context.Context, []string) error {
	s.closeStream()
	return nil
}

func (s *Session) create(ctx context.Context, args []string) error {
	return s.send(ctx, model.ActionCreateDuel, model.CreateDuelPayload{
		Username:  strings.Join(args, " "),
		Languages: s.languages,
	})
}

func (s *Session) join(ctx context.Context, args []string) error {
	return s.send(ctx, model.ActionJoinDuel, model.JoinDuelPayload{
		RoomID:    strings.ToUpper(args[0]),
		Username:  strings.Join(args[1:], " "),
		Languages: s.languages,
	})
}

func (s *Session) ready(ctx context.Context, args []string) error {
	roomID, err := s.roomArg(args, 0)
	if err != nil {
		return err
	}
	return s.send(ctx, model.ActionPlayerReady, model.ReadyPayload{RoomID: roomID})
}

func (s *Session) submit(ctx context.Context, args []string) error {
	roomID, err := s.roomArg(args, 2)
	if err != nil {
		return err
	}
	code, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read source failed: %w", err)
	}
	return s.send(ctx, model.ActionSubmitCode, model.SubmitPayload{
		RoomID:   roomID,
		Language: args[0],
		Code:     string(code),
	})
}

func (s *Session) leave(ctx context.Context, args []string) error {
	roomID, err := s.roomArg(args, 0)
	if err != nil {
		return err
	}
	return s.send(ctx, model.ActionLeaveDuel, model.LeavePayload{RoomID: roomID})
}

func (s *Session) list(ctx context.Context, _ []string) error {
	return s.send(ctx, model.ActionGetRoomList, struct{}{})
}

// send connects on first use.
func (s *Session) send(ctx context.Context, action string, payload any) error {
	if err := s.connect(ctx, nil); err != nil {
		return err
	}
	return s.currentStream().Send(action, payload)
}

func (s *Session) roomArg(args []string, idx int) (string, error) {
	if len(args) > idx {
		return strings.ToUpper(args[idx]), nil
	}
	s.mu.Lock()
	roomID := s.state.RoomID
	s.mu.Unlock()
	if roomID == "" {
		return "", fmt.Errorf("no room selected, pass a room id")
	}
	return roomID, nil
}

func (s *Session) pump(stream Stream) {
	defer s.wg.Done()
	for env := range stream.Events() {
		s.render(env)
	}
	s.mu.Lock()
	if s.stream == stream {
		s.stream = nil
	}
	s.mu.Unlock()
	if err := stream.Err(); err != nil {
		s.println("connection closed: %v", err)
	}
}

func (s *Session) currentStream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) closeStream() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
	s.wg.Wait()
}

func (s *Session) rememberRoom(roomID string) {
	s.mu.Lock()
	changed := roomID != "" && roomID != s.state.RoomID
	if changed {
		s.state.RoomID = roomID
	}
	s.mu.Unlock()
	if changed {
		s.save()
	}
}

func (s *Session) save() {
	if s.statePath == "" {
		return
	}
	s.mu.Lock()
	st := *s.state
	s.mu.Unlock()
	if err := state.Save(s.statePath, st); err != nil {
		s.println("save state failed: %v", err)
	}
}

func (s *Session) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Session) println(format string, args ...any) {
	s.printf(format+"\n", args...)
}
