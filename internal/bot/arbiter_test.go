package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/observerproto"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/protocol"
)

func connectedAgent(t *testing.T, reg *Registry) (string, *fakeSession) {
	t.Helper()
	id, err := reg.Create(testTarget(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, _ := reg.Get(id)
	waitFor(t, time.Second, func() bool { return rec.State() == Connected })
	sess := rec.SessionRef().(*fakeSession)
	return id, sess
}

func TestArbiter_ExclusiveControl(t *testing.T) {
	d := &fakeDialer{sessions: []*fakeSession{newFakeSession("bot1")}}
	reg := newTestRegistry(d)
	defer reg.Close()
	arb := NewArbiter(reg)

	id, _ := connectedAgent(t, reg)

	if ok, _ := arb.Acquire(id, "O1"); !ok {
		t.Fatal("first acquire refused")
	}
	rec, _ := reg.Get(id)
	if rec.AutonomyEnabled() {
		t.Fatal("autonomy still on under manual control")
	}

	if ok, code := arb.Acquire(id, "O2"); ok || code != protocol.ErrAlreadyControlled {
		t.Fatalf("second observer: ok=%v code=%q", ok, code)
	}
	if ok, _ := arb.Acquire(id, "O1"); !ok {
		t.Fatal("holder re-acquire refused")
	}

	if ok, code := arb.Release(id, "O2"); ok || code != protocol.ErrNotController {
		t.Fatalf("non-holder release: ok=%v code=%q", ok, code)
	}
	if ok, _ := arb.Release(id, "O1"); !ok {
		t.Fatal("holder release refused")
	}
	waitFor(t, time.Second, func() bool { return rec.AutonomyEnabled() })
}

func TestArbiter_UnknownAgent(t *testing.T) {
	d := &fakeDialer{err: errors.New("refused")}
	reg := newTestRegistry(d)
	defer reg.Close()
	arb := NewArbiter(reg)

	if ok, code := arb.Acquire("nope", "O1"); ok || code != protocol.ErrAgentNotFound {
		t.Fatalf("ok=%v code=%q", ok, code)
	}
	if ok, code := arb.Release("nope", "O1"); ok || code != protocol.ErrAgentNotFound {
		t.Fatalf("ok=%v code=%q", ok, code)
	}
}

func TestArbiter_RouteInputHolderOnly(t *testing.T) {
	d := &fakeDialer{sessions: []*fakeSession{newFakeSession("bot1")}}
	reg := newTestRegistry(d)
	defer reg.Close()
	arb := NewArbiter(reg)

	id, sess := connectedAgent(t, reg)
	cmd := observerproto.InputCommand{Kind: "key", Key: "W", Down: true}

	// Not the controller yet: silently dropped.
	if ok, code := arb.RouteInput(id, "O1", cmd); ok || code != protocol.ErrNotController {
		t.Fatalf("ok=%v code=%q", ok, code)
	}
	sess.mu.Lock()
	keys := len(sess.keys)
	sess.mu.Unlock()
	if keys != 0 {
		t.Fatal("input reached the session without control")
	}

	arb.Acquire(id, "O1")
	if ok, _ := arb.RouteInput(id, "O1", cmd); !ok {
		t.Fatal("holder input refused")
	}
	sess.mu.Lock()
	keys = len(sess.keys)
	sess.mu.Unlock()
	if keys != 1 {
		t.Fatalf("keys routed = %d, want 1", keys)
	}

	if ok, code := arb.RouteInput(id, "O1", observerproto.InputCommand{Kind: "teleport"}); ok || code != protocol.ErrBadRequest {
		t.Fatalf("unknown kind: ok=%v code=%q", ok, code)
	}
}

func TestArbiter_ReleaseAllOnObserverDisconnect(t *testing.T) {
	d := &fakeDialer{sessions: []*fakeSession{newFakeSession("a"), newFakeSession("b")}}
	reg := newTestRegistry(d)
	defer reg.Close()
	arb := NewArbiter(reg)

	id1, _ := connectedAgent(t, reg)
	id2, _ := connectedAgent(t, reg)

	arb.Acquire(id1, "O1")
	arb.Acquire(id2, "O2")

	arb.ReleaseAll("O1")

	rec1, _ := reg.Get(id1)
	rec2, _ := reg.Get(id2)
	if rec1.Controller() != "" {
		t.Fatal("O1 grant not released")
	}
	waitFor(t, time.Second, func() bool { return rec1.AutonomyEnabled() })
	if rec2.Controller() != "O2" {
		t.Fatal("unrelated grant must survive")
	}
	if rec2.AutonomyEnabled() {
		t.Fatal("controlled agent must stay manual")
	}
}
