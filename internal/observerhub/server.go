// Package observerhub serves the observer WebSocket endpoint: registry
// snapshots out, control requests in.
package observerhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/bot"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/observerproto"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/protocol"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

type Server struct {
	reg   *bot.Registry
	arb   *bot.Arbiter
	bcast *bot.Broadcaster
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(reg *bot.Registry, arb *bot.Arbiter, bcast *bot.Broadcaster, logger *log.Logger) *Server {
	return &Server{
		reg:   reg,
		arb:   arb,
		bcast: bcast,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		replies := make(chan []byte, 64)
		broadcasts := s.bcast.Subscribe(sid)
		defer func() {
			s.bcast.Unsubscribe(sid)
			// A vanished observer must never wedge an agent in manual mode.
			s.arb.ReleaseAll(sid)
		}()

		// First frame: full snapshot, so the UI renders without waiting for
		// the broadcast tick.
		if snap, err := json.Marshal(s.reg.SnapshotAll()); err == nil {
			replies <- snap
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-replies:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				case b, ok := <-broadcasts:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleRequest(sid, msg, replies)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handleRequest(sid string, msg []byte, replies chan []byte) {
	var raw any
	if err := json.Unmarshal(msg, &raw); err != nil {
		s.reply(replies, ack("", false, protocol.ErrProtoBadRequest, "not json"))
		return
	}
	if err := requestSchema.Validate(raw); err != nil {
		s.reply(replies, ack(requestID(raw), false, protocol.ErrProtoBadRequest, err.Error()))
		return
	}

	var req observerproto.RequestMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		s.reply(replies, ack("", false, protocol.ErrProtoBadRequest, "bad envelope"))
		return
	}

	switch req.Op {
	case observerproto.OpCreateAgent:
		s.handleCreate(req, replies)
	case observerproto.OpRemoveAgent:
		s.reg.Remove(req.AgentID)
		s.reply(replies, ack(req.ID, true, "", ""))
	case observerproto.OpAcquireControl:
		ok, code := s.arb.Acquire(req.AgentID, sid)
		s.reply(replies, ack(req.ID, ok, code, ""))
	case observerproto.OpReleaseControl:
		ok, code := s.arb.Release(req.AgentID, sid)
		s.reply(replies, ack(req.ID, ok, code, ""))
	case observerproto.OpRouteInput:
		if req.Command == nil {
			s.reply(replies, ack(req.ID, false, protocol.ErrProtoBadRequest, "missing command"))
			return
		}
		ok, code := s.arb.RouteInput(req.AgentID, sid, *req.Command)
		s.reply(replies, ack(req.ID, ok, code, ""))
	case observerproto.OpSendChat:
		if err := s.reg.SendChat(req.AgentID, req.Text); err != nil {
			s.reply(replies, ack(req.ID, false, protocol.ErrNotConnected, err.Error()))
			return
		}
		s.reply(replies, ack(req.ID, true, "", ""))
	case observerproto.OpForceDrop:
		if err := s.reg.ForceDrop(req.AgentID); err != nil {
			s.reply(replies, ack(req.ID, false, protocol.ErrAgentNotFound, err.Error()))
			return
		}
		s.reply(replies, ack(req.ID, true, "", ""))
	}
}

func (s *Server) handleCreate(req observerproto.RequestMsg, replies chan []byte) {
	host := strings.TrimSpace(req.Host)
	user := strings.TrimSpace(req.Username)
	if host == "" || user == "" || req.Port <= 0 {
		s.reply(replies, ack(req.ID, false, protocol.ErrBadRequest, "host, port and username are required"))
		return
	}
	id, err := s.reg.Create(worldclient.Target{Host: host, Port: req.Port, Username: user}, req.AgentID)
	if err != nil {
		s.reply(replies, ack(req.ID, false, protocol.ErrBadRequest, err.Error()))
		return
	}
	s.reply(replies, ack(req.ID, true, "", ""))
	s.reply(replies, observerproto.CreatedMsg{
		Type:            observerproto.TypeCreated,
		ProtocolVersion: observerproto.Version,
		AgentID:         id,
	})
}

func (s *Server) reply(replies chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("observer: marshal reply: %v", err)
		return
	}
	select {
	case replies <- b:
	default:
		// Reply queue full; the observer is not reading. Drop.
	}
}

func ack(ackFor string, accepted bool, code, message string) observerproto.AckMsg {
	return observerproto.AckMsg{
		Type:            observerproto.TypeAck,
		ProtocolVersion: observerproto.Version,
		AckFor:          ackFor,
		Accepted:        accepted,
		Code:            code,
		Message:         message,
	}
}

// requestID pulls the id field out of a decoded-but-unvalidated request
// for error acks.
func requestID(raw any) string {
	m, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	return id
}
