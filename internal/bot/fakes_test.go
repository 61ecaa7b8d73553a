package bot

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeSession is an in-memory Session with scriptable behavior.
type fakeSession struct {
	mu sync.Mutex

	username  string
	telem     worldclient.Telemetry
	entities  []worldclient.Entity
	inventory []worldclient.Item
	timeOfDay int
	executing bool

	events chan worldclient.Event
	closed bool

	goals       []worldclient.Vec3
	goalErr     error
	discards    []worldclient.Item
	discardErr  map[int]error // keyed by slot
	chats       []string
	keys        []string
	restSpot    worldclient.Vec3
	restOK      bool
	rested      []worldclient.Vec3
	groundY     float64
	groundOK    bool
	groundDelay time.Duration
}

func newFakeSession(username string) *fakeSession {
	return &fakeSession{
		username: username,
		telem: worldclient.Telemetry{
			Health:    20,
			MaxHealth: 20,
			Food:      20,
			Position:  worldclient.Vec3{X: 0, Y: 64, Z: 0},
		},
		events: make(chan worldclient.Event, 64),
	}
}

func (f *fakeSession) Events() <-chan worldclient.Event { return f.events }

func (f *fakeSession) Username() string { return f.username }

func (f *fakeSession) Telemetry() worldclient.Telemetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.telem
}

func (f *fakeSession) Entities() []worldclient.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]worldclient.Entity, len(f.entities))
	copy(out, f.entities)
	return out
}

func (f *fakeSession) Inventory() []worldclient.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]worldclient.Item, len(f.inventory))
	copy(out, f.inventory)
	return out
}

func (f *fakeSession) TimeOfDay() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeOfDay
}

func (f *fakeSession) ExecutingGoal() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executing
}

func (f *fakeSession) IssueMoveNearGoal(target worldclient.Vec3, tolerance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.goalErr != nil {
		return f.goalErr
	}
	f.goals = append(f.goals, target)
	return nil
}

func (f *fakeSession) PathTo(ctx context.Context, goal worldclient.Vec3) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.goals = append(f.goals, goal)
	return nil
}

func (f *fakeSession) BeginRest(pos worldclient.Vec3) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rested = append(f.rested, pos)
	return nil
}

func (f *fakeSession) NearestRestSpot(maxDistance float64) (worldclient.Vec3, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restSpot, f.restOK
}

func (f *fakeSession) GroundBelow(x, z, fromY float64, maxDrop int) (float64, bool) {
	f.mu.Lock()
	delay, y, ok := f.groundDelay, f.groundY, f.groundOK
	f.mu.Unlock()
	// Sleep outside the lock: a slow probe must not block the other
	// session reads.
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return fromY, false
	}
	return y, true
}

func (f *fakeSession) SetMovementKey(key string, down bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeSession) SetLookDirection(yaw, pitch float64) error { return nil }

func (f *fakeSession) Discard(item worldclient.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards = append(f.discards, item)
	if err, ok := f.discardErr[item.Slot]; ok {
		return err
	}
	return nil
}

func (f *fakeSession) SendChat(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, text)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	return nil
}

func (f *fakeSession) emit(ev worldclient.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- ev
}

func (f *fakeSession) goalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.goals)
}

func (f *fakeSession) discardCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.discards)
}

// fakeDialer returns the scripted sessions in order, then errors.
type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	calls    int
	err      error
}

func (d *fakeDialer) dial(ctx context.Context, target worldclient.Target) (worldclient.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.sessions) == 0 {
		return nil, errors.New("no session scripted")
	}
	s := d.sessions[0]
	d.sessions = d.sessions[1:]
	return s, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeViewer records Observe calls for assertions.
type fakeViewer struct {
	mu       sync.Mutex
	observed []string
	closed   bool
}

func (v *fakeViewer) Observe(kind, from, text string, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observed = append(v.observed, kind+"/"+from+": "+text)
	return nil
}

func (v *fakeViewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeViewer) observedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.observed)
}

// fakeAudit records sink calls for assertions.
type fakeAudit struct {
	mu          sync.Mutex
	chats       []string
	transitions []string
}

func (a *fakeAudit) RecordChat(agentID, from, text string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chats = append(a.chats, agentID+"/"+from+": "+text)
}

func (a *fakeAudit) RecordTransition(agentID, state string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, agentID+"/"+state)
}
