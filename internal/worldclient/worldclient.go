// Package worldclient maintains one bot session against a remote world
// server. It caches the latest STATE push so sensing calls are synchronous
// reads, and surfaces world activity as events on a channel.
package worldclient

import (
	"context"
	"fmt"
	"math"
)

// Target identifies the world server endpoint for one agent.
type Target struct {
	Host     string
	Port     int
	Username string
}

func (t Target) URL() string {
	return fmt.Sprintf("ws://%s:%d/v1/ws", t.Host, t.Port)
}

// Vec3 is a world position.
type Vec3 struct{ X, Y, Z float64 }

// PlanarDistance ignores the vertical axis.
func (v Vec3) PlanarDistance(o Vec3) float64 {
	dx := v.X - o.X
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Item is one inventory stack.
type Item struct {
	Slot  int
	Name  string
	Count int
}

// Entity is a world entity near the agent.
type Entity struct {
	ID   string
	Kind string
	Pos  Vec3
}

// Telemetry is the agent's vital state as last reported by the server.
type Telemetry struct {
	Health    int
	MaxHealth int
	Food      int
	Position  Vec3
}

// Session is one live connection to a world server. All methods are safe
// for concurrent use; mutating calls after the session ends return
// ErrClosed (or a wrapped form of it).
type Session interface {
	// Events delivers session activity. The channel is closed when the
	// session ends; a Disconnected or Kicked event precedes the close.
	Events() <-chan Event

	// Username is the server-confirmed name, fixed at login.
	Username() string

	Telemetry() Telemetry
	Entities() []Entity
	Inventory() []Item
	TimeOfDay() int
	ExecutingGoal() bool

	// IssueMoveNearGoal starts a move-near task. A new goal supersedes any
	// goal in flight (last goal wins).
	IssueMoveNearGoal(target Vec3, tolerance float64) error

	// PathTo blocks until the world reports the path task done or failed.
	PathTo(ctx context.Context, goal Vec3) error

	BeginRest(pos Vec3) error
	NearestRestSpot(maxDistance float64) (Vec3, bool)

	// GroundBelow probes for the first solid boundary at (x,z), scanning
	// down at most maxDrop units from fromY. Returns (fromY, false) when
	// nothing solid is found or the probe times out.
	GroundBelow(x, z, fromY float64, maxDrop int) (float64, bool)

	SetMovementKey(key string, down bool) error
	SetLookDirection(yaw, pitch float64) error
	Discard(item Item) error
	SendChat(text string) error

	Close() error
}

// Dialer establishes a Session. The registry takes one so tests can
// substitute a fake world.
type Dialer func(ctx context.Context, target Target) (Session, error)
