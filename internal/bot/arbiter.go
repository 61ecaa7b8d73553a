package bot

import (
	"github.com/coolboyplayz111-restarts/afk-bot/internal/observerproto"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/protocol"
)

// Arbiter mediates exclusive manual control of agents by observers.
// Acquiring pauses the agent's autonomy scheduler; releasing (explicitly
// or by observer disconnect) restores it.
type Arbiter struct {
	reg *Registry
}

func NewArbiter(reg *Registry) *Arbiter {
	return &Arbiter{reg: reg}
}

// Acquire grants observerID exclusive control of the agent. Re-acquiring
// an agent you already hold succeeds. Returns a protocol error code on
// refusal.
func (ar *Arbiter) Acquire(agentID, observerID string) (bool, string) {
	rec, ok := ar.reg.Get(agentID)
	if !ok {
		return false, protocol.ErrAgentNotFound
	}
	if !rec.tryAcquire(observerID) {
		return false, protocol.ErrAlreadyControlled
	}
	if sup := ar.reg.supervisorOf(agentID); sup != nil {
		sup.PauseAutonomy()
	}
	ar.reg.publish()
	return true, ""
}

// Release clears control if (and only if) observerID holds it. A release
// by a non-holder is a no-op that still reports not-controller.
func (ar *Arbiter) Release(agentID, observerID string) (bool, string) {
	rec, ok := ar.reg.Get(agentID)
	if !ok {
		return false, protocol.ErrAgentNotFound
	}
	if !rec.tryRelease(observerID) {
		return false, protocol.ErrNotController
	}
	if sup := ar.reg.supervisorOf(agentID); sup != nil {
		sup.ResumeAutonomy()
	}
	ar.reg.publish()
	return true, ""
}

// RouteInput forwards one input command to the agent's session, holder
// only. Inputs from anyone else are silently discarded (accepted=false
// with no side effect).
func (ar *Arbiter) RouteInput(agentID, observerID string, cmd observerproto.InputCommand) (bool, string) {
	rec, ok := ar.reg.Get(agentID)
	if !ok {
		return false, protocol.ErrAgentNotFound
	}
	if rec.Controller() != observerID {
		return false, protocol.ErrNotController
	}
	sess := rec.SessionRef()
	if sess == nil {
		return false, protocol.ErrNotConnected
	}

	var err error
	switch cmd.Kind {
	case "key":
		err = sess.SetMovementKey(cmd.Key, cmd.Down)
	case "look":
		err = sess.SetLookDirection(cmd.Yaw, cmd.Pitch)
	default:
		return false, protocol.ErrBadRequest
	}
	if err != nil {
		return false, protocol.ErrInternal
	}
	return true, ""
}

// ReleaseAll drops every control grant held by observerID. Called when an
// observer connection closes, so a vanished observer never wedges an
// agent in manual mode.
func (ar *Arbiter) ReleaseAll(observerID string) {
	for _, rec := range ar.reg.List() {
		if rec.Controller() != observerID {
			continue
		}
		if rec.tryRelease(observerID) {
			if sup := ar.reg.supervisorOf(rec.ID()); sup != nil {
				sup.ResumeAutonomy()
			}
		}
	}
	ar.reg.publish()
}
