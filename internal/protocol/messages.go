package protocol

// HELLO (bot -> world)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Username        string `json:"username"`
}

// WELCOME (world -> bot)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AgentID         string      `json:"agent_id"`
	Username        string      `json:"username"` // server-confirmed, may differ from HELLO
	WorldParams     WorldParams `json:"world_params"`
	Spawn           [3]float64  `json:"spawn"`
}

type WorldParams struct {
	DayTicks int `json:"day_ticks"`
}

// STATE (world -> bot): pushed periodically and after notable changes.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	TimeOfDay       int           `json:"time_of_day"`
	Self            SelfState     `json:"self"`
	Entities        []EntityState `json:"entities,omitempty"`
	Inventory       []ItemStack   `json:"inventory,omitempty"`
	ActiveTaskID    string        `json:"active_task_id,omitempty"`
}

type SelfState struct {
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`
	Pitch float64    `json:"pitch"`
	HP    int        `json:"hp"`
	MaxHP int        `json:"max_hp"`
	Food  int        `json:"food"`
}

type EntityState struct {
	ID   string     `json:"id"`
	Kind string     `json:"kind"` // e.g. "zombie", "player", "cow"
	Pos  [3]float64 `json:"pos"`
}

type ItemStack struct {
	Slot  int    `json:"slot"`
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Event names carried by EventMsg.
const (
	EventChat       = "CHAT"
	EventKick       = "KICK"
	EventTaskDone   = "TASK_DONE"
	EventTaskFailed = "TASK_FAILED"
)

// EVENT (world -> bot)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           string `json:"event"`
	From            string `json:"from,omitempty"`
	Text            string `json:"text,omitempty"`
	Reason          string `json:"reason,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	Code            string `json:"code,omitempty"`
}

// Instant types.
const (
	InstantSay      = "SAY"
	InstantDropItem = "DROP_ITEM"
	InstantLook     = "LOOK"
	InstantKey      = "KEY"
	InstantRest     = "REST"
)

// Task types.
const (
	TaskMoveTo = "MOVE_TO"
	TaskPathTo = "PATH_TO"
)

// ACT (bot -> world)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Instants        []InstantReq `json:"instants,omitempty"`
	Tasks           []TaskReq    `json:"tasks,omitempty"`
	Cancel          []string     `json:"cancel,omitempty"`
}

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Text   string     `json:"text,omitempty"`
	Slot   int        `json:"slot,omitempty"`
	Yaw    float64    `json:"yaw,omitempty"`
	Pitch  float64    `json:"pitch,omitempty"`
	Key    string     `json:"key,omitempty"`
	Down   bool       `json:"down,omitempty"`
	Target [3]float64 `json:"target,omitempty"`
}

type TaskReq struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Target    [3]float64 `json:"target"`
	Tolerance float64    `json:"tolerance,omitempty"`
}

// ACK (world -> bot): answers a single instant or task request.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Query kinds.
const (
	QueryNearestRest = "NEAREST_REST"
	QueryGround      = "GROUND"
)

// QUERY (bot -> world): read-only world probes.
type QueryMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Query           string  `json:"query"`
	MaxDistance     float64 `json:"max_distance,omitempty"`
	X               float64 `json:"x,omitempty"`
	Z               float64 `json:"z,omitempty"`
	FromY           float64 `json:"from_y,omitempty"`
	MaxDrop         int     `json:"max_drop,omitempty"`
}

// RESULT (world -> bot)
type ResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ResultFor       string     `json:"result_for"`
	Found           bool       `json:"found"`
	Pos             [3]float64 `json:"pos,omitempty"`
	Y               float64    `json:"y,omitempty"`
	Code            string     `json:"code,omitempty"`
}
