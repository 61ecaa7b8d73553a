package bot

import (
	"fmt"
	"testing"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

func testTarget() worldclient.Target {
	return worldclient.Target{Host: "127.0.0.1", Port: 8300, Username: "bot1"}
}

func TestAgentRecord_ChatLogCapped(t *testing.T) {
	rec := newAgentRecord("B1", testTarget())
	for i := 0; i < chatLogCap+50; i++ {
		rec.AppendChat("alice", fmt.Sprintf("line %d", i), time.Now())
	}
	chat := rec.ChatLog()
	if len(chat) != chatLogCap {
		t.Fatalf("chat log = %d lines, want %d", len(chat), chatLogCap)
	}
	if chat[0].Text != "line 50" {
		t.Fatalf("oldest surviving line = %q, want eviction from the front", chat[0].Text)
	}
	if chat[len(chat)-1].Text != fmt.Sprintf("line %d", chatLogCap+49) {
		t.Fatalf("newest line = %q", chat[len(chat)-1].Text)
	}
}

func TestAgentRecord_SessionStateInvariant(t *testing.T) {
	rec := newAgentRecord("B1", testTarget())
	if rec.State() != Disconnected {
		t.Fatalf("fresh record state = %v", rec.State())
	}

	rec.markConnecting()
	if rec.State() != Connecting {
		t.Fatalf("state = %v, want Connecting", rec.State())
	}
	if rec.AutonomyEnabled() {
		t.Fatal("autonomy must be off without a session")
	}

	sess := newFakeSession("bot1")
	rec.adoptSession(sess)
	if rec.State() != Connected {
		t.Fatalf("state = %v, want Connected", rec.State())
	}
	if !rec.AutonomyEnabled() {
		t.Fatal("autonomy must come up with an uncontrolled session")
	}
	if rec.Username() != "bot1" {
		t.Fatalf("username = %q", rec.Username())
	}

	gone, _ := rec.clearSession()
	if gone != sess {
		t.Fatal("clearSession must hand back the session for closing")
	}
	if rec.State() != Disconnected || rec.SessionRef() != nil {
		t.Fatal("cleared record must be Disconnected with no session")
	}
	if rec.AutonomyEnabled() {
		t.Fatal("autonomy must drop with the session")
	}
}

func TestAgentRecord_ControllerExcludesAutonomy(t *testing.T) {
	rec := newAgentRecord("B1", testTarget())
	rec.adoptSession(newFakeSession("bot1"))

	if !rec.tryAcquire("O1") {
		t.Fatal("first acquire must succeed")
	}
	if rec.AutonomyEnabled() {
		t.Fatal("controlled agent must not be autonomous")
	}
	if !rec.tryAcquire("O1") {
		t.Fatal("re-acquire by the holder must succeed")
	}
	if rec.tryAcquire("O2") {
		t.Fatal("second observer must be refused")
	}

	if rec.tryRelease("O2") {
		t.Fatal("non-holder release must be a no-op")
	}
	if rec.Controller() != "O1" {
		t.Fatalf("controller = %q, want O1", rec.Controller())
	}

	if !rec.tryRelease("O1") {
		t.Fatal("holder release must succeed")
	}
	if !rec.AutonomyEnabled() {
		t.Fatal("autonomy must resume after release with a live session")
	}
}

func TestAgentRecord_RestoreAutonomyHonorsController(t *testing.T) {
	rec := newAgentRecord("B1", testTarget())
	rec.adoptSession(newFakeSession("bot1"))
	rec.tryAcquire("O1")

	rec.suspendAutonomy()
	rec.restoreAutonomy()
	if rec.AutonomyEnabled() {
		t.Fatal("restore must not enable autonomy while controlled")
	}

	rec.tryRelease("O1")
	rec.suspendAutonomy()
	rec.restoreAutonomy()
	if !rec.AutonomyEnabled() {
		t.Fatal("restore must enable autonomy once uncontrolled")
	}
}

func TestConnState_String(t *testing.T) {
	cases := map[ConnState]string{
		Disconnected: "DISCONNECTED",
		Connecting:   "CONNECTING",
		Connected:    "CONNECTED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
