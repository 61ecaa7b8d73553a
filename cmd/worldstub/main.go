// worldstub is a development world server: it speaks just enough of the
// agent protocol to exercise a supervisor locally. State is per
// connection; chat is broadcast to every connected agent.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/protocol"
)

type hub struct {
	log *log.Logger

	mu      sync.Mutex
	clients map[string]*client
	nextID  atomic.Uint64
}

type client struct {
	id       string
	username string

	mu   sync.Mutex
	conn *websocket.Conn
	pos  [3]float64
	tick uint64
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8300", "listen address")
	flag.Parse()

	logger := log.New(os.Stdout, "[worldstub] ", log.LstdFlags|log.Lmicroseconds)
	h := &hub{log: logger, clients: map[string]*client{}}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		h.serve(conn)
	})

	logger.Printf("listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func (h *hub) serve(conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
		return
	}

	c := &client{
		id:       fmt.Sprintf("A%d", h.nextID.Add(1)),
		username: hello.Username,
		conn:     conn,
		pos:      [3]float64{0, 64, 0},
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
	}()

	c.write(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         c.id,
		Username:        c.username,
		WorldParams:     protocol.WorldParams{DayTicks: 24000},
		Spawn:           c.pos,
	})
	h.log.Printf("agent %s joined as %s", c.id, c.username)

	stop := make(chan struct{})
	defer close(stop)
	go c.stateLoop(stop)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			h.log.Printf("agent %s left: %v", c.id, err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeAct:
			var act protocol.ActMsg
			if json.Unmarshal(msg, &act) == nil {
				h.handleAct(c, act)
			}
		case protocol.TypeQuery:
			var q protocol.QueryMsg
			if json.Unmarshal(msg, &q) == nil {
				h.handleQuery(c, q)
			}
		}
	}
}

func (c *client) stateLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.tick++
			st := protocol.StateMsg{
				Type:            protocol.TypeState,
				ProtocolVersion: protocol.Version,
				Tick:            c.tick,
				TimeOfDay:       int(c.tick * 10 % 24000),
				Self: protocol.SelfState{
					Pos:   c.pos,
					HP:    20,
					MaxHP: 20,
					Food:  20,
				},
			}
			c.mu.Unlock()
			c.write(st)
		}
	}
}

func (h *hub) handleAct(c *client, act protocol.ActMsg) {
	for _, in := range act.Instants {
		c.write(protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          in.ID,
			Accepted:        true,
		})
		if in.Type == protocol.InstantSay {
			h.broadcastChat(c.username, in.Text)
		}
	}
	for _, task := range act.Tasks {
		c.write(protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          task.ID,
			Accepted:        true,
		})
		// Teleport-complete after a short delay.
		go func(task protocol.TaskReq) {
			time.Sleep(200 * time.Millisecond)
			c.mu.Lock()
			c.pos = task.Target
			c.mu.Unlock()
			c.write(protocol.EventMsg{
				Type:            protocol.TypeEvent,
				ProtocolVersion: protocol.Version,
				Event:           protocol.EventTaskDone,
				TaskID:          task.ID,
			})
		}(task)
	}
}

func (h *hub) handleQuery(c *client, q protocol.QueryMsg) {
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ResultFor:       q.ID,
	}
	switch q.Query {
	case protocol.QueryGround:
		res.Found = true
		res.Y = q.FromY - 1
	case protocol.QueryNearestRest:
		c.mu.Lock()
		pos := c.pos
		c.mu.Unlock()
		res.Found = true
		res.Pos = [3]float64{pos[0] + 3, pos[1], pos[2] + 3}
	}
	c.write(res)
}

func (h *hub) broadcastChat(from, text string) {
	ev := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           protocol.EventChat,
		From:            from,
		Text:            text,
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.write(ev)
	}
}

func (c *client) write(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.conn.WriteMessage(websocket.TextMessage, b)
}
