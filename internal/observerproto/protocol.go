// Package observerproto defines the JSON messages exchanged with observer
// UIs over the observer WebSocket (separate from the agent wire protocol).
package observerproto

import "time"

// Version is the observer protocol version.
const Version = "0.1"

// Message type constants.
const (
	TypeAllStates = "ALL_STATES"
	TypeCreated   = "CREATED"
	TypeAck       = "ACK"
	TypeRequest   = "REQUEST"
)

// Request operations (client -> server, wrapped in RequestMsg).
const (
	OpCreateAgent    = "CREATE_AGENT"
	OpRemoveAgent    = "REMOVE_AGENT"
	OpAcquireControl = "ACQUIRE_CONTROL"
	OpReleaseControl = "RELEASE_CONTROL"
	OpRouteInput     = "ROUTE_INPUT"
	OpSendChat       = "SEND_CHAT"
	OpForceDrop      = "FORCE_DROP"
)

// Client -> Server. Every observer request uses this envelope; fields
// beyond Op are read per operation.
type RequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`

	AgentID string `json:"agent_id,omitempty"`

	// CREATE_AGENT
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`

	// ROUTE_INPUT
	Command *InputCommand `json:"command,omitempty"`

	// SEND_CHAT
	Text string `json:"text,omitempty"`
}

// InputCommand is one manual-control input routed to a controlled agent.
type InputCommand struct {
	Kind  string  `json:"kind"` // "key" | "look"
	Key   string  `json:"key,omitempty"`
	Down  bool    `json:"down,omitempty"`
	Yaw   float64 `json:"yaw,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// Server -> Client. Reply to every request.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Server -> Client. Follows the ACK of a successful CREATE_AGENT.
type CreatedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
}

// Server -> Client. Full registry snapshot, sent on connect, on every
// mutation and on the periodic broadcast tick.
type AllStatesMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	At              time.Time            `json:"at"`
	Agents          map[string]AgentView `json:"agents"`
}

// AgentView is one agent's externally visible state. Positions are rounded
// to two decimals.
type AgentView struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Host       string     `json:"host"`
	Port       int        `json:"port"`
	State      string     `json:"state"`
	Autonomy   bool       `json:"autonomy"`
	Controller string     `json:"controller,omitempty"`
	Health     float64    `json:"hp"`
	MaxHealth  float64    `json:"max_hp"`
	Food       float64    `json:"food"`
	Pos        [3]float64 `json:"pos"`
	Chat       []ChatLine `json:"chat"`
}

type ChatLine struct {
	At   time.Time `json:"at"`
	From string    `json:"from"`
	Text string    `json:"text"`
}
