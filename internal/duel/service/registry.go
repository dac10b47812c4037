// Package service runs duel rooms: creation, matchmaking, timers, judging and
// winner arbitration.
package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"algoarena/internal/duel/model"
	judgeModel "algoarena/internal/judge/model"
	judgeService "algoarena/internal/judge/service"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/contextkey"
	"algoarena/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Caller identifies who performs an action and on which connection.
type Caller struct {
	UserID      string
	DisplayName string
	ConnID      string
	Languages   []string
}

// Registry owns every live room. Rooms are independent; the registry never
// holds one room's lock while taking another's, except through the user index
// check which locks a single room briefly.
type Registry struct {
	cfg      Config
	clock    clockwork.Clock
	notifier Notifier
	judge    Judge
	problems ProblemSource
	ids      RoomIDReserver
	events   EventPublisher
	recorder SubmissionRecorder
	metrics  Metrics
	newID    func() string

	rooms *xsync.MapOf[string, *Room]
	// users maps a user id to the room they belong to.
	users *xsync.MapOf[string, string]

	lobbyMu sync.Mutex

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, deps Deps) (*Registry, error) {
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if deps.Problems == nil {
		return nil, fmt.Errorf("problem source is required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		clock:    deps.Clock,
		notifier: deps.Notifier,
		judge:    deps.Judge,
		problems: deps.Problems,
		ids:      deps.IDs,
		events:   deps.Events,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		newID:    newRoomID,
		rooms:    xsync.NewMapOf[string, *Room](),
		users:    xsync.NewMapOf[string, string](),
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// CreateRoom opens a room with the caller in the first slot.
func (r *Registry) CreateRoom(ctx context.Context, c Caller) (model.RoomView, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return model.RoomView{}, appErr.ValidationError("userId", "required")
	}
	if roomID, ok := r.users.Load(c.UserID); ok && r.isLiveMember(roomID, c.UserID) {
		return model.RoomView{}, alreadyInRoom(roomID)
	}

	id, err := r.allocateID(ctx)
	if err != nil {
		return model.RoomView{}, err
	}
	room := newRoom(id, r.clock.Now())
	room.players = []*player{newPlayer(c)}
	r.rooms.Store(id, room)

	prev, err := r.claimUser(c.UserID, id)
	if err != nil {
		r.rooms.Delete(id)
		r.releaseID(id)
		return model.RoomView{}, err
	}
	if prev != "" {
		r.departCompleted(prev, c.UserID)
	}

	var view model.RoomView
	r.withRoom(room, func(fx *effects) error {
		r.scheduleIdle(room)
		now := r.clock.Now()
		view = room.viewFor(c.UserID, now)
		r.notifier.Send(c.ConnID, model.EventDuelCreated, view)
		fx.lobby = true
		return nil
	})
	logger.Info(withRoomID(ctx, id), "duel room created", zap.String("user_id", c.UserID))
	return view, nil
}

// JoinRoom puts the caller in the free slot. A member joining their own room
// again is treated as a reconnect.
func (r *Registry) JoinRoom(ctx context.Context, roomID string, c Caller) (model.RoomView, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return model.RoomView{}, appErr.ValidationError("userId", "required")
	}
	room, err := r.lookup(roomID)
	if err != nil {
		return model.RoomView{}, err
	}
	if view, ok := r.resume(room, c, model.EventDuelJoined); ok {
		return view, nil
	}

	prev, err := r.claimUser(c.UserID, roomID)
	if err != nil {
		return model.RoomView{}, err
	}

	var view model.RoomView
	err = r.withRoom(room, func(fx *effects) error {
		now := r.clock.Now()
		if room.evicted {
			return appErr.New(appErr.RoomNotFound)
		}
		if p := room.member(c.UserID); p != nil && !p.departed {
			r.bind(room, p, c.ConnID)
			view = room.viewFor(c.UserID, now)
			r.notifier.Send(c.ConnID, model.EventDuelJoined, view)
			return nil
		}
		if room.status != model.StatusWaiting {
			return appErr.New(appErr.InvalidRoomState).WithMessagef("room is %s", room.status)
		}
		if len(room.players) >= model.MaxPlayers {
			return appErr.New(appErr.RoomFull)
		}
		room.players = append(room.players, newPlayer(c))
		room.roster++
		room.touch()
		stopTimer(room.idleTimer)
		room.idleToken = 0

		view = room.viewFor(c.UserID, now)
		r.notifier.Send(c.ConnID, model.EventDuelJoined, view)
		room.notifyOthers(r.notifier, c.UserID, model.EventDuelUpdate, now)
		fx.lobby = true
		return nil
	})
	if err != nil {
		r.unclaimUser(c.UserID, roomID, prev)
		return model.RoomView{}, err
	}
	if prev != "" && prev != roomID {
		r.departCompleted(prev, c.UserID)
	}
	logger.Info(withRoomID(ctx, roomID), "player joined duel", zap.String("user_id", c.UserID))
	return view, nil
}

// ListRooms returns every non-completed room, oldest first.
func (r *Registry) ListRooms() []model.Summary {
	out := make([]model.Summary, 0)
	r.rooms.Range(func(_ string, room *Room) bool {
		if s, ok := room.summary(); ok {
			out = append(out, s)
		}
		return true
	})
	slices.SortFunc(out, func(a, b model.Summary) int {
		if a.CreatedAtMs != b.CreatedAtMs {
			if a.CreatedAtMs < b.CreatedAtMs {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// GetRoom returns the caller's view of a room they belong to.
func (r *Registry) GetRoom(roomID, userID string) (model.RoomView, error) {
	room, err := r.lookup(roomID)
	if err != nil {
		return model.RoomView{}, err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted {
		return model.RoomView{}, appErr.New(appErr.RoomNotFound)
	}
	if p := room.member(userID); p == nil || p.departed {
		return model.RoomView{}, appErr.New(appErr.NotInRoom)
	}
	return room.viewFor(userID, r.clock.Now()), nil
}

// SetReady marks the caller ready. The second ready player starts problem selection.
func (r *Registry) SetReady(ctx context.Context, roomID string, c Caller) error {
	room, err := r.lookup(roomID)
	if err != nil {
		return err
	}
	return r.withRoom(room, func(fx *effects) error {
		p, err := r.actingMember(room, c)
		if err != nil {
			return err
		}
		if room.status != model.StatusWaiting {
			return appErr.New(appErr.InvalidRoomState).WithMessagef("room is %s", room.status)
		}
		if !p.ready {
			p.ready = true
			room.touch()
			room.notifyMembers(r.notifier, model.EventDuelUpdate, r.clock.Now())
		}
		if room.readyToStart() && !room.selecting {
			room.selecting = true
			fx.selection = &selectionJob{roster: room.roster, filter: room.selectionFilter()}
		}
		return nil
	})
}

// Submit stores the code on the caller's slot and dispatches it for judging.
// Language and size checks run before anything is stored.
func (r *Registry) Submit(ctx context.Context, roomID string, c Caller, code, language string) error {
	room, err := r.lookup(roomID)
	if err != nil {
		return err
	}
	return r.withRoom(room, func(fx *effects) error {
		p, err := r.actingMember(room, c)
		if err != nil {
			return err
		}
		if room.status != model.StatusInProgress {
			return appErr.New(appErr.InvalidRoomState).WithMessagef("room is %s", room.status)
		}
		if p.sub != nil && p.sub.judging {
			return appErr.New(appErr.SubmissionPending)
		}

		subID := uuid.NewString()
		userID := p.userID
		req := judgeService.Request{
			SubmissionID: subID,
			Code:         code,
			Language:     language,
			Problem:      room.problem,
		}
		if err := r.judge.JudgeAsync(withRoomID(ctx, room.id), req, func(v judgeModel.Verdict, err error) {
			r.onVerdict(room, userID, subID, v, err)
		}); err != nil {
			return err
		}

		now := r.clock.Now()
		p.sub = &submission{id: subID, code: code, language: language, submittedAt: now, judging: true}
		p.attempts++
		room.touch()
		room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
		room.sendTo(r.notifier, room.opponent(userID), model.EventOpponentSubmitted, model.OpponentSubmittedPayload{
			RoomID:        room.id,
			UserID:        userID,
			Attempts:      p.attempts,
			SubmittedAtMs: now.UnixMilli(),
		})
		return nil
	})
}

// Leave removes the caller from a waiting room or forfeits a running duel.
func (r *Registry) Leave(ctx context.Context, roomID string, c Caller) error {
	room, err := r.lookup(roomID)
	if err != nil {
		return err
	}
	err = r.withRoom(room, func(fx *effects) error {
		p := room.member(c.UserID)
		if p == nil || p.departed {
			return appErr.New(appErr.NotInRoom)
		}
		r.dropPlayer(room, p, fx)
		return nil
	})
	if err == nil {
		logger.Info(withRoomID(ctx, roomID), "player left duel", zap.String("user_id", c.UserID))
	}
	return err
}

// Connect resumes the caller's live room on a new connection.
func (r *Registry) Connect(ctx context.Context, c Caller) {
	if roomID, ok := r.users.Load(c.UserID); ok {
		if room, ok := r.rooms.Load(roomID); ok {
			r.resume(room, c, model.EventDuelUpdate)
		}
	}
	r.notifier.Send(c.ConnID, model.EventRoomList, r.ListRooms())
}

// Disconnect detaches connID from the user's room and starts the grace timer.
func (r *Registry) Disconnect(ctx context.Context, userID, connID string) {
	roomID, ok := r.users.Load(userID)
	if !ok {
		return
	}
	room, ok := r.rooms.Load(roomID)
	if !ok {
		return
	}
	r.withRoom(room, func(fx *effects) error {
		p := room.member(userID)
		if p == nil || p.connID != connID || !p.connected || room.evicted {
			return nil
		}
		p.connected = false
		room.touch()
		if room.status == model.StatusCompleted {
			if room.allGone() {
				r.evictLocked(room, fx)
			}
			return nil
		}
		token := room.nextToken()
		p.graceToken = token
		stopTimer(p.graceTimer)
		p.graceTimer = r.clock.AfterFunc(r.cfg.DisconnectGrace, func() {
			r.onGraceExpired(room, userID, token)
		})
		room.notifyOthers(r.notifier, userID, model.EventDuelUpdate, r.clock.Now())
		logger.Info(withRoomID(ctx, room.id), "player disconnected, grace started",
			zap.String("user_id", userID), zap.Duration("grace", r.cfg.DisconnectGrace))
		return nil
	})
}

// Close stops every timer and waits for background work to finish.
func (r *Registry) Close(ctx context.Context) error {
	r.cancel()
	r.rooms.Range(func(_ string, room *Room) bool {
		room.mu.Lock()
		room.stopTimers()
		room.mu.Unlock()
		return true
	})
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newPlayer(c Caller) *player {
	name := strings.TrimSpace(c.DisplayName)
	if name == "" {
		name = c.UserID
	}
	return &player{
		userID:      c.UserID,
		displayName: name,
		connID:      c.ConnID,
		languages:   slices.Clone(c.Languages),
		connected:   true,
	}
}

func (r *Registry) lookup(roomID string) (*Room, error) {
	room, ok := r.rooms.Load(roomID)
	if !ok {
		return nil, appErr.New(appErr.RoomNotFound).WithDetail("room_id", roomID)
	}
	return room, nil
}

// actingMember resolves the caller's slot and binds it to the caller's connection.
func (r *Registry) actingMember(room *Room, c Caller) (*player, error) {
	if room.evicted {
		return nil, appErr.New(appErr.RoomNotFound)
	}
	p := room.member(c.UserID)
	if p == nil || p.departed {
		return nil, appErr.New(appErr.NotInRoom)
	}
	r.bind(room, p, c.ConnID)
	return p, nil
}

// bind attaches p to connID, cancelling a pending disconnect grace.
func (r *Registry) bind(room *Room, p *player, connID string) {
	if connID == "" || (p.connected && p.connID == connID) {
		return
	}
	p.connID = connID
	if !p.connected {
		p.connected = true
		stopTimer(p.graceTimer)
		p.graceToken = 0
		room.touch()
		room.notifyOthers(r.notifier, p.userID, model.EventDuelUpdate, r.clock.Now())
	}
}

// resume rebinds an existing member and sends them their view.
func (r *Registry) resume(room *Room, c Caller, event string) (model.RoomView, bool) {
	var (
		view    model.RoomView
		resumed bool
	)
	r.withRoom(room, func(fx *effects) error {
		p := room.member(c.UserID)
		if p == nil || p.departed || room.evicted {
			return nil
		}
		r.bind(room, p, c.ConnID)
		view = room.viewFor(c.UserID, r.clock.Now())
		r.notifier.Send(c.ConnID, event, view)
		resumed = true
		return nil
	})
	return view, resumed
}

func (r *Registry) isLiveMember(roomID, userID string) bool {
	room, ok := r.rooms.Load(roomID)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	p := room.member(userID)
	return room.isLive() && p != nil && !p.departed
}

// claimUser points userID at roomID unless they are a live member of another
// room. It returns the previous room id.
func (r *Registry) claimUser(userID, roomID string) (string, error) {
	var (
		prev     string
		conflict bool
	)
	r.users.Compute(userID, func(old string, loaded bool) (string, bool) {
		if loaded && old != roomID && r.isLiveMember(old, userID) {
			conflict = true
			return old, false
		}
		if loaded {
			prev = old
		}
		return roomID, false
	})
	if conflict {
		current, _ := r.users.Load(userID)
		return "", alreadyInRoom(current)
	}
	return prev, nil
}

func (r *Registry) unclaimUser(userID, roomID, prev string) {
	r.users.Compute(userID, func(old string, loaded bool) (string, bool) {
		if !loaded || old != roomID {
			return old, !loaded
		}
		if prev != "" && prev != roomID {
			return prev, false
		}
		return "", true
	})
}

func (r *Registry) allocateID(ctx context.Context) (string, error) {
	for i := 0; i < r.cfg.IDAttempts; i++ {
		id := r.newID()
		if _, exists := r.rooms.Load(id); exists {
			continue
		}
		if r.ids == nil {
			return id, nil
		}
		ok, err := r.ids.Reserve(ctx, id)
		if err != nil {
			logger.Warn(ctx, "room id reservation unavailable, using local check only", zap.Error(err))
			return id, nil
		}
		if ok {
			return id, nil
		}
	}
	return "", appErr.New(appErr.RoomIDUnavailable)
}

func (r *Registry) releaseID(roomID string) {
	if r.ids == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.baseCtx, r.cfg.SelectTimeout)
	defer cancel()
	if err := r.ids.Release(ctx, roomID); err != nil {
		logger.Warn(withRoomID(ctx, roomID), "release room id failed", zap.Error(err))
	}
}

func alreadyInRoom(roomID string) error {
	return appErr.New(appErr.AlreadyInRoom).WithDetail("room_id", roomID)
}

func withRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, contextkey.RoomID, roomID)
}
