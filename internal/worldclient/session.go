package worldclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/protocol"
)

const (
	writeTimeout = 5 * time.Second
	ackTimeout   = 5 * time.Second
	queryTimeout = 2 * time.Second
)

// handshakeTimeout bounds the WELCOME read only. Tests shorten it.
var handshakeTimeout = 10 * time.Second

// Dial connects, performs the HELLO/WELCOME handshake and starts the
// session's reader and writer. Any failure before WELCOME is a
// ConnectionError.
func Dial(ctx context.Context, target Target) (Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.URL(), nil)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Username:        target.Username,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: err}
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, &ConnectionError{Err: fmt.Errorf("expected WELCOME, got %q", base.Type)}
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: err}
	}
	// The deadline covers the handshake only; a connected session reads
	// until the server ends it.
	_ = conn.SetReadDeadline(time.Time{})

	s := &wsSession{
		conn:     conn,
		username: welcome.Username,
		agentID:  welcome.AgentID,
		events:   make(chan Event, 64),
		out:      make(chan []byte, 64),
		pending:  map[string]chan pendingReply{},
		done:     make(chan struct{}),
	}
	s.st.Self.Pos = welcome.Spawn
	go s.writeLoop()
	go s.readLoop()
	return s, nil
}

type pendingReply struct {
	ack    *protocol.AckMsg
	result *protocol.ResultMsg
	event  *protocol.EventMsg
}

type wsSession struct {
	conn     *websocket.Conn
	username string
	agentID  string

	events chan Event
	out    chan []byte

	mu         sync.Mutex
	st         protocol.StateMsg
	haveState  bool
	activeTask string
	pending    map[string]chan pendingReply

	reqNum    atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsSession) Events() <-chan Event { return s.events }
func (s *wsSession) Username() string     { return s.username }

func (s *wsSession) Telemetry() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Telemetry{
		Health:    s.st.Self.HP,
		MaxHealth: s.st.Self.MaxHP,
		Food:      s.st.Self.Food,
		Position:  vec3(s.st.Self.Pos),
	}
}

func (s *wsSession) Entities() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entity, 0, len(s.st.Entities))
	for _, e := range s.st.Entities {
		out = append(out, Entity{ID: e.ID, Kind: e.Kind, Pos: vec3(e.Pos)})
	}
	return out
}

func (s *wsSession) Inventory() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.st.Inventory))
	for _, it := range s.st.Inventory {
		out = append(out, Item{Slot: it.Slot, Name: it.Item, Count: it.Count})
	}
	return out
}

func (s *wsSession) TimeOfDay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.TimeOfDay
}

func (s *wsSession) ExecutingGoal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTask != ""
}

func (s *wsSession) IssueMoveNearGoal(target Vec3, tolerance float64) error {
	id := s.nextID("K")
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tasks: []protocol.TaskReq{{
			ID:        id,
			Type:      protocol.TaskMoveTo,
			Target:    arr3(target),
			Tolerance: tolerance,
		}},
	}
	reply, err := s.sendAwait(id, act, ackTimeout)
	if err != nil {
		return err
	}
	if reply.ack == nil || !reply.ack.Accepted {
		return &GoalError{Code: ackCode(reply.ack), Message: ackMessage(reply.ack)}
	}
	s.mu.Lock()
	s.activeTask = id
	s.mu.Unlock()
	return nil
}

func (s *wsSession) PathTo(ctx context.Context, goal Vec3) error {
	id := s.nextID("K")
	ch := s.register(id)
	defer s.unregister(id)

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tasks: []protocol.TaskReq{{
			ID:     id,
			Type:   protocol.TaskPathTo,
			Target: arr3(goal),
		}},
	}
	if err := s.send(act); err != nil {
		return err
	}

	// First reply is the ACK, second the terminal task event.
	reply, err := s.await(ch, ackTimeout)
	if err != nil {
		return &PathError{Code: protocol.ErrInternal, Message: err.Error()}
	}
	if reply.ack == nil || !reply.ack.Accepted {
		return &PathError{Code: ackCode(reply.ack), Message: ackMessage(reply.ack)}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	case reply, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if reply.event != nil && reply.event.Event == protocol.EventTaskDone {
			return nil
		}
		code := protocol.ErrNoPath
		if reply.event != nil && reply.event.Code != "" {
			code = reply.event.Code
		}
		return &PathError{Code: code}
	}
}

func (s *wsSession) BeginRest(pos Vec3) error {
	id := s.nextID("I")
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{{
			ID:     id,
			Type:   protocol.InstantRest,
			Target: arr3(pos),
		}},
	}
	reply, err := s.sendAwait(id, act, ackTimeout)
	if err != nil {
		return err
	}
	if reply.ack == nil || !reply.ack.Accepted {
		return &RestError{Code: ackCode(reply.ack), Message: ackMessage(reply.ack)}
	}
	return nil
}

func (s *wsSession) NearestRestSpot(maxDistance float64) (Vec3, bool) {
	id := s.nextID("Q")
	q := protocol.QueryMsg{
		Type:            protocol.TypeQuery,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Query:           protocol.QueryNearestRest,
		MaxDistance:     maxDistance,
	}
	reply, err := s.sendAwait(id, q, queryTimeout)
	if err != nil || reply.result == nil || !reply.result.Found {
		return Vec3{}, false
	}
	return vec3(reply.result.Pos), true
}

func (s *wsSession) GroundBelow(x, z, fromY float64, maxDrop int) (float64, bool) {
	id := s.nextID("Q")
	q := protocol.QueryMsg{
		Type:            protocol.TypeQuery,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Query:           protocol.QueryGround,
		X:               x,
		Z:               z,
		FromY:           fromY,
		MaxDrop:         maxDrop,
	}
	reply, err := s.sendAwait(id, q, queryTimeout)
	if err != nil || reply.result == nil || !reply.result.Found {
		return fromY, false
	}
	return reply.result.Y, true
}

func (s *wsSession) SetMovementKey(key string, down bool) error {
	return s.send(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{{
			ID:   s.nextID("I"),
			Type: protocol.InstantKey,
			Key:  key,
			Down: down,
		}},
	})
}

func (s *wsSession) SetLookDirection(yaw, pitch float64) error {
	return s.send(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{{
			ID:    s.nextID("I"),
			Type:  protocol.InstantLook,
			Yaw:   yaw,
			Pitch: pitch,
		}},
	})
}

func (s *wsSession) Discard(item Item) error {
	id := s.nextID("I")
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{{
			ID:   id,
			Type: protocol.InstantDropItem,
			Slot: item.Slot,
		}},
	}
	reply, err := s.sendAwait(id, act, ackTimeout)
	if err != nil {
		return err
	}
	if reply.ack == nil || !reply.ack.Accepted {
		return &DiscardError{Slot: item.Slot, Code: ackCode(reply.ack), Message: ackMessage(reply.ack)}
	}
	return nil
}

func (s *wsSession) SendChat(text string) error {
	return s.send(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{{
			ID:   s.nextID("I"),
			Type: protocol.InstantSay,
			Text: text,
		}},
	})
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
	return nil
}

func (s *wsSession) nextID(prefix string) string {
	return fmt.Sprintf("%s%06d", prefix, s.reqNum.Add(1))
}

func (s *wsSession) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	// Check done first: the out buffer may still have room after Close.
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.out <- b:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *wsSession) sendAwait(id string, v any, timeout time.Duration) (pendingReply, error) {
	ch := s.register(id)
	defer s.unregister(id)
	if err := s.send(v); err != nil {
		return pendingReply{}, err
	}
	return s.await(ch, timeout)
}

func (s *wsSession) await(ch chan pendingReply, timeout time.Duration) (pendingReply, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			return pendingReply{}, ErrClosed
		}
		return reply, nil
	case <-t.C:
		return pendingReply{}, fmt.Errorf("worldclient: request timed out")
	case <-s.done:
		return pendingReply{}, ErrClosed
	}
}

func (s *wsSession) register(id string) chan pendingReply {
	// Buffer 2: an ACK and a terminal task event can both arrive before
	// the caller consumes either.
	ch := make(chan pendingReply, 2)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *wsSession) unregister(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *wsSession) resolve(id string, reply pendingReply) {
	s.mu.Lock()
	ch := s.pending[id]
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case b := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = s.Close()
				return
			}
		}
	}
}

func (s *wsSession) readLoop() {
	defer close(s.events)
	kicked := false
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !kicked {
				s.emit(Event{Kind: EventDisconnected})
			}
			_ = s.Close()
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			s.applyState(st)

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			switch ev.Event {
			case protocol.EventChat:
				s.emit(Event{Kind: EventChat, From: ev.From, Text: ev.Text})
			case protocol.EventKick:
				kicked = true
				s.emit(Event{Kind: EventKicked, Reason: ev.Reason})
			case protocol.EventTaskDone, protocol.EventTaskFailed:
				s.mu.Lock()
				if s.activeTask == ev.TaskID {
					s.activeTask = ""
				}
				s.mu.Unlock()
				s.resolve(ev.TaskID, pendingReply{event: &ev})
			}

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			s.resolve(ack.AckFor, pendingReply{ack: &ack})

		case protocol.TypeResult:
			var res protocol.ResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			s.resolve(res.ResultFor, pendingReply{result: &res})
		}
	}
}

// applyState swaps in the new STATE and emits diff events against the
// previous one.
func (s *wsSession) applyState(st protocol.StateMsg) {
	s.mu.Lock()
	prev := s.st
	had := s.haveState
	s.st = st
	s.haveState = true
	s.activeTask = st.ActiveTaskID
	s.mu.Unlock()

	if !had {
		return
	}
	if prev.Self.HP != st.Self.HP || prev.Self.Food != st.Self.Food {
		s.emit(Event{Kind: EventHealthChanged})
	}
	if prev.Self.Pos != st.Self.Pos {
		s.emit(Event{Kind: EventPositionChanged})
	}
	known := make(map[string][3]float64, len(prev.Entities))
	for _, e := range prev.Entities {
		known[e.ID] = e.Pos
	}
	for _, e := range st.Entities {
		ent := Entity{ID: e.ID, Kind: e.Kind, Pos: vec3(e.Pos)}
		old, ok := known[e.ID]
		switch {
		case !ok:
			s.emit(Event{Kind: EventEntityAppeared, Entity: ent})
		case old != e.Pos:
			s.emit(Event{Kind: EventEntityMoved, Entity: ent})
		}
	}
}

// emit never blocks the read loop: when the buffer is full the oldest
// event is dropped to make room.
func (s *wsSession) emit(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

func vec3(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }
func arr3(v Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func ackCode(a *protocol.AckMsg) string {
	if a == nil || a.Code == "" {
		return protocol.ErrInternal
	}
	return a.Code
}
func ackMessage(a *protocol.AckMsg) string {
	if a == nil {
		return ""
	}
	return a.Message
}
