package service

import (
	"slices"
	"sync"
	"time"

	"algoarena/internal/duel/model"
	judgeModel "algoarena/internal/judge/model"
	problemModel "algoarena/internal/problem/model"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
)

type submission struct {
	id          string
	code        string
	language    string
	submittedAt time.Time
	judging     bool
	verdict     *judgeModel.Verdict
}

type player struct {
	userID      string
	displayName string
	connID      string
	languages   []string
	ready       bool
	connected   bool
	attempts    int
	sub         *submission

	// departed marks a member who left a completed room or moved on to another one.
	departed   bool
	graceTimer clockwork.Timer
	graceToken uint64
}

// Room is one duel. Every field is guarded by mu; methods with a lowercase
// name expect the caller to hold it.
type Room struct {
	mu sync.Mutex

	id        string
	createdAt time.Time
	status    model.Status
	players   []*player
	problem   *problemModel.Problem

	startedAt       time.Time
	countdownEndsAt time.Time
	matchStartedAt  time.Time
	matchEndsAt     time.Time
	completedAt     time.Time
	winnerID        string
	endReason       model.EndReason

	version   int64
	roster    uint64
	selecting bool
	evicted   bool

	// Each scheduled timer stores the token it was armed with; a callback
	// whose token no longer matches is stale and does nothing.
	tokens         uint64
	countdown      clockwork.Timer
	countdownToken uint64
	matchTimer     clockwork.Timer
	matchToken     uint64
	idleTimer      clockwork.Timer
	idleToken      uint64
}

func newRoom(id string, now time.Time) *Room {
	return &Room{id: id, createdAt: now, status: model.StatusWaiting}
}

func (r *Room) ID() string { return r.id }

func (r *Room) member(userID string) *player {
	for _, p := range r.players {
		if p.userID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) opponent(userID string) *player {
	for _, p := range r.players {
		if p.userID != userID {
			return p
		}
	}
	return nil
}

func (r *Room) nextToken() uint64 {
	r.tokens++
	return r.tokens
}

func (r *Room) touch() {
	r.version++
}

func (r *Room) readyToStart() bool {
	if len(r.players) != model.MaxPlayers {
		return false
	}
	for _, p := range r.players {
		if !p.ready {
			return false
		}
	}
	return true
}

// allGone reports whether no member is still attached to the room.
func (r *Room) allGone() bool {
	for _, p := range r.players {
		if p.connected && !p.departed {
			return false
		}
	}
	return true
}

func (r *Room) isLive() bool {
	return !r.evicted && r.status != model.StatusCompleted
}

func (r *Room) removePlayer(userID string) {
	r.players = slices.DeleteFunc(r.players, func(p *player) bool {
		if p.userID == userID {
			stopTimer(p.graceTimer)
			return true
		}
		return false
	})
	r.roster++
}

func (r *Room) memberIDs() []string {
	ids := make([]string, len(r.players))
	for i, p := range r.players {
		ids[i] = p.userID
	}
	return ids
}

// selectionFilter restricts problems to languages both players declared.
// A player without preferences accepts anything.
func (r *Room) selectionFilter() problemModel.Filter {
	var common mapset.Set[string]
	for _, p := range r.players {
		if len(p.languages) == 0 {
			return problemModel.Filter{}
		}
		langs := mapset.NewThreadUnsafeSet(p.languages...)
		if common == nil {
			common = langs
			continue
		}
		common = common.Intersect(langs)
	}
	if common == nil || common.Cardinality() == 0 {
		return problemModel.Filter{}
	}
	langs := common.ToSlice()
	slices.Sort(langs)
	return problemModel.Filter{Languages: langs}
}

func (r *Room) stopTimers() {
	stopTimer(r.countdown)
	stopTimer(r.matchTimer)
	stopTimer(r.idleTimer)
	r.countdownToken, r.matchToken, r.idleToken = 0, 0, 0
	for _, p := range r.players {
		stopTimer(p.graceTimer)
		p.graceToken = 0
	}
}

// close marks the room evicted. Map cleanup happens after the lock is released.
func (r *Room) close() {
	r.evicted = true
	r.stopTimers()
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}

// summary returns the lobby entry, false for rooms that should not be listed.
func (r *Room) summary() (model.Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isLive() {
		return model.Summary{}, false
	}
	names := make([]string, len(r.players))
	for i, p := range r.players {
		names[i] = p.displayName
	}
	return model.Summary{
		ID:          r.id,
		Status:      r.status,
		PlayerCount: len(r.players),
		Players:     names,
		CreatedAtMs: r.createdAt.UnixMilli(),
	}, true
}

func (r *Room) statusSnapshot() (model.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, !r.evicted
}
