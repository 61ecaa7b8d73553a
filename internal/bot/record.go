// Package bot supervises a pool of agents: per-agent connection lifecycle,
// autonomous behavior scheduling, threat avoidance, manual-control
// arbitration and state broadcast to observers.
package bot

import (
	"sync"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// chatLogCap bounds the per-agent chat log; the oldest line is evicted.
const chatLogCap = 300

type ChatLine struct {
	At   time.Time
	From string
	Text string
}

// Viewer is the per-agent viewer resource: it records what the agent
// sees while connected. Acquiring one is best-effort; failures are
// logged and never fatal.
type Viewer interface {
	Observe(kind, from, text string, at time.Time) error
	Close() error
}

// ViewerFactory acquires the viewer resource for an agent.
type ViewerFactory func(agentID string) (Viewer, error)

// AgentRecord is the shared state for one agent. All access goes through
// the record's own lock; records of different agents are independent.
type AgentRecord struct {
	id     string
	target worldclient.Target

	mu         sync.Mutex
	state      ConnState
	session    worldclient.Session
	username   string
	autonomy   bool
	controller string
	telem      worldclient.Telemetry
	chat       []ChatLine
	viewer     Viewer
}

func newAgentRecord(id string, target worldclient.Target) *AgentRecord {
	return &AgentRecord{
		id:       id,
		target:   target,
		username: target.Username,
		state:    Disconnected,
	}
}

func (a *AgentRecord) ID() string { return a.id }

func (a *AgentRecord) Target() worldclient.Target { return a.target }

func (a *AgentRecord) State() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AgentRecord) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.username
}

func (a *AgentRecord) AutonomyEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.autonomy
}

func (a *AgentRecord) Controller() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller
}

// SessionRef returns the live session, or nil while disconnected.
func (a *AgentRecord) SessionRef() worldclient.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *AgentRecord) Telemetry() worldclient.Telemetry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.telem
}

func (a *AgentRecord) AppendChat(from, text string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chat = append(a.chat, ChatLine{At: at, From: from, Text: text})
	if len(a.chat) > chatLogCap {
		a.chat = a.chat[len(a.chat)-chatLogCap:]
	}
}

func (a *AgentRecord) ChatLog() []ChatLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ChatLine, len(a.chat))
	copy(out, a.chat)
	return out
}

// markConnecting is entered both before the first attempt and on every
// retry while not connected.
func (a *AgentRecord) markConnecting() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Connected {
		a.state = Connecting
	}
}

// adoptSession installs a freshly logged-in session. Autonomy comes up
// unless an observer already holds control.
func (a *AgentRecord) adoptSession(s worldclient.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
	a.state = Connected
	a.username = s.Username()
	a.autonomy = a.controller == ""
	a.telem = s.Telemetry()
}

// clearSession tears down after a session ends and returns the session and
// viewer that need closing.
func (a *AgentRecord) clearSession() (worldclient.Session, Viewer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, v := a.session, a.viewer
	a.session = nil
	a.viewer = nil
	a.state = Disconnected
	a.autonomy = false
	return s, v
}

func (a *AgentRecord) setViewer(v Viewer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewer = v
}

// viewerRef returns the live viewer, or nil when none was acquired.
func (a *AgentRecord) viewerRef() Viewer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewer
}

func (a *AgentRecord) setTelemetry(t worldclient.Telemetry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.telem = t
}

// suspendAutonomy turns autonomy off for a foreground action (forced drop).
func (a *AgentRecord) suspendAutonomy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autonomy = false
}

// restoreAutonomy re-enables autonomy where the invariants allow it: never
// while an observer controls the agent, never without a session.
func (a *AgentRecord) restoreAutonomy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autonomy = a.controller == "" && a.session != nil
}

// setController is called by the arbiter only; it is the sole writer of
// the controller field.
func (a *AgentRecord) setController(observerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.controller = observerID
	if observerID != "" {
		a.autonomy = false
	} else {
		a.autonomy = a.session != nil
	}
}

// tryAcquire grants control if the agent is uncontrolled (or already held
// by the same observer).
func (a *AgentRecord) tryAcquire(observerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.controller != "" && a.controller != observerID {
		return false
	}
	a.controller = observerID
	a.autonomy = false
	return true
}

// tryRelease clears control only when held by the given observer.
func (a *AgentRecord) tryRelease(observerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.controller != observerID || observerID == "" {
		return false
	}
	a.controller = ""
	a.autonomy = a.session != nil
	return true
}
