package bot

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

// Timings are the autonomous behavior intervals. Defaults mirror the
// production cadence; tests shrink them.
type Timings struct {
	ReconnectInterval time.Duration
	WanderMin         time.Duration
	WanderMax         time.Duration
	RestInterval      time.Duration
	AvoidInterval     time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ReconnectInterval: 15 * time.Second,
		WanderMin:         3500 * time.Millisecond,
		WanderMax:         6500 * time.Millisecond,
		RestInterval:      10 * time.Second,
		AvoidInterval:     1500 * time.Millisecond,
	}
}

// Rest-seeking acts only inside the night window of the world clock.
const (
	nightStart      = 12500
	nightEnd        = 23500
	restSearchRange = 20.0
	wanderSpread    = 4.0 // horizontal offset drawn from [-4, +4] per axis
	goalTolerance   = 1.0
)

// Scheduler runs one agent's autonomous tasks while a session exists and
// autonomy is enabled. Every task re-checks autonomy at fire time, so
// toggling autonomy off is observed without cancelling in-flight timers.
// Stop cancels all tasks as a unit: after Stop returns no task fires.
type Scheduler struct {
	rec     *AgentRecord
	session worldclient.Session
	logger  *log.Logger
	timings Timings
	threats map[string]bool

	rngMu sync.Mutex
	rng   *rand.Rand

	avoidKick chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup
}

func newScheduler(rec *AgentRecord, session worldclient.Session, logger *log.Logger, timings Timings, threats map[string]bool, seed int64) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		rec:       rec,
		session:   session,
		logger:    logger,
		timings:   timings,
		threats:   threats,
		rng:       rand.New(rand.NewSource(seed)),
		avoidKick: make(chan struct{}, 1),
		stop:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (sc *Scheduler) Start() {
	sc.wg.Add(3)
	go sc.wanderLoop()
	go sc.restLoop()
	go sc.avoidLoop()
}

// Stop cancels the task group and waits for every task to finish.
func (sc *Scheduler) Stop() {
	sc.stopOnce.Do(func() {
		close(sc.stop)
		sc.cancel()
	})
	sc.wg.Wait()
}

// TriggerAvoid requests a reactive avoidance evaluation (entity appeared
// or moved). Coalesces with a pending request.
func (sc *Scheduler) TriggerAvoid() {
	select {
	case sc.avoidKick <- struct{}{}:
	default:
	}
}

func (sc *Scheduler) wanderLoop() {
	defer sc.wg.Done()
	timer := time.NewTimer(sc.wanderDelay())
	defer timer.Stop()
	for {
		select {
		case <-sc.stop:
			return
		case <-timer.C:
			sc.wanderOnce()
			timer.Reset(sc.wanderDelay())
		}
	}
}

func (sc *Scheduler) wanderDelay() time.Duration {
	span := sc.timings.WanderMax - sc.timings.WanderMin
	if span <= 0 {
		return sc.timings.WanderMin
	}
	sc.rngMu.Lock()
	d := sc.timings.WanderMin + time.Duration(sc.rng.Int63n(int64(span)))
	sc.rngMu.Unlock()
	return d
}

func (sc *Scheduler) wanderOnce() {
	if !sc.rec.AutonomyEnabled() {
		return
	}
	if sc.session.ExecutingGoal() {
		return
	}
	pos := sc.session.Telemetry().Position
	sc.rngMu.Lock()
	dx := (sc.rng.Float64()*2 - 1) * wanderSpread
	dz := (sc.rng.Float64()*2 - 1) * wanderSpread
	sc.rngMu.Unlock()
	goal := worldclient.Vec3{X: pos.X + dx, Y: pos.Y, Z: pos.Z + dz}
	if err := sc.session.IssueMoveNearGoal(goal, goalTolerance); err != nil {
		sc.logger.Printf("agent %s: wander goal: %v", sc.rec.ID(), err)
	}
}

func (sc *Scheduler) restLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.timings.RestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sc.stop:
			return
		case <-ticker.C:
			sc.restOnce()
		}
	}
}

// restOnce walks to the nearest rest structure and begins resting during
// the night window. Failures are swallowed; the next tick retries.
func (sc *Scheduler) restOnce() {
	if !sc.rec.AutonomyEnabled() {
		return
	}
	tod := sc.session.TimeOfDay()
	if tod < nightStart || tod > nightEnd {
		return
	}
	spot, ok := sc.session.NearestRestSpot(restSearchRange)
	if !ok {
		return
	}
	if err := sc.session.PathTo(sc.ctx, spot); err != nil {
		sc.logger.Printf("agent %s: rest path: %v", sc.rec.ID(), err)
		return
	}
	if err := sc.session.BeginRest(spot); err != nil {
		sc.logger.Printf("agent %s: rest: %v", sc.rec.ID(), err)
	}
}

func (sc *Scheduler) avoidLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.timings.AvoidInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sc.stop:
			return
		case <-ticker.C:
			sc.avoidOnce()
		case <-sc.avoidKick:
			sc.avoidOnce()
		}
	}
}

// avoidOnce is the single avoidance evaluation shared by the safety-net
// timer and the reactive entity notifications.
func (sc *Scheduler) avoidOnce() {
	if !sc.rec.AutonomyEnabled() {
		return
	}
	pos := sc.session.Telemetry().Position
	threats := FilterThreats(pos, sc.session.Entities(), sc.threats)
	if len(threats) == 0 {
		return
	}

	// The rng lock covers the radius draws only; the ground probes below
	// can block on the world and must not stall the other loops.
	sc.rngMu.Lock()
	radii := EscapeRadii(sc.rng)
	sc.rngMu.Unlock()
	plan, ok := PlanEscape(radii, pos, threats, sc.session.GroundBelow)
	if !ok {
		return
	}
	if err := sc.session.IssueMoveNearGoal(plan.Goal, goalTolerance); err == nil {
		return
	}
	// Degraded fallback: straight away from the nearest threat. A failure
	// here is absorbed.
	if goal, ok := EscapeFallback(pos, threats); ok {
		_ = sc.session.IssueMoveNearGoal(goal, goalTolerance)
	}
}
