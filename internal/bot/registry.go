package bot

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

var ErrAgentExists = errors.New("bot: agent id already registered")

// Options wires a Registry. Dial and Logger are required; the rest may be
// nil/zero for defaults.
type Options struct {
	Logger      *log.Logger
	Dial        worldclient.Dialer
	Timings     Timings
	ThreatKinds []string
	Viewers     ViewerFactory
	Audit       AuditSink
	Broadcaster *Broadcaster
}

// Registry owns the map of agent id to agent record. Creating an agent
// starts its supervisor immediately; every mutating call broadcasts the
// full registry snapshot.
type Registry struct {
	logger  *log.Logger
	dial    worldclient.Dialer
	timings Timings
	threats map[string]bool
	viewers ViewerFactory
	audit   AuditSink
	bcast   *Broadcaster

	mu     sync.RWMutex
	agents map[string]*AgentRecord
	sups   map[string]*Supervisor
	nextID atomic.Uint64
}

func NewRegistry(opts Options) *Registry {
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	threats := make(map[string]bool, len(opts.ThreatKinds))
	for _, k := range opts.ThreatKinds {
		threats[k] = true
	}
	r := &Registry{
		logger:  opts.Logger,
		dial:    opts.Dial,
		timings: opts.Timings,
		threats: threats,
		viewers: opts.Viewers,
		audit:   opts.Audit,
		bcast:   opts.Broadcaster,
		agents:  map[string]*AgentRecord{},
		sups:    map[string]*Supervisor{},
	}
	if r.bcast != nil {
		r.bcast.Bind(r.SnapshotAll)
	}
	return r
}

// Create registers a new agent and starts its supervisor. It returns the
// assigned id synchronously without waiting for the connection; the agent
// is already Connecting in the snapshot broadcast before Create returns.
func (r *Registry) Create(target worldclient.Target, desiredID string) (string, error) {
	id := desiredID
	if id == "" {
		id = fmt.Sprintf("B%d", r.nextID.Add(1))
	}

	r.mu.Lock()
	if _, exists := r.agents[id]; exists {
		r.mu.Unlock()
		return "", ErrAgentExists
	}
	// Construct only once the id is known to be free: a supervisor built
	// for a refused registration would leak its context.
	rec := newAgentRecord(id, target)
	rec.markConnecting()
	sup := newSupervisor(rec, r.dial, r.logger, r.timings, r.threats, r.viewers, r.audit, r.publish)
	r.agents[id] = rec
	r.sups[id] = sup
	r.mu.Unlock()

	r.logger.Printf("agent %s: created (target %s:%d user %s)", id, target.Host, target.Port, target.Username)
	r.publish()
	sup.Start()
	return id, nil
}

func (r *Registry) Get(id string) (*AgentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[id]
	return rec, ok
}

// List returns a snapshot copy of all records, ordered by id.
func (r *Registry) List() []*AgentRecord {
	r.mu.RLock()
	out := make([]*AgentRecord, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Remove tears down the agent's supervisor and scheduler and deletes the
// record. Idempotent on unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sup := r.sups[id]
	delete(r.sups, id)
	delete(r.agents, id)
	r.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Stop()
	r.logger.Printf("agent %s: removed", id)
	r.publish()
}

// ForceDrop runs the full-inventory discard for one agent (observer
// request path; the chat trigger goes through the supervisor directly).
func (r *Registry) ForceDrop(id string) error {
	r.mu.RLock()
	sup := r.sups[id]
	r.mu.RUnlock()
	if sup == nil {
		return fmt.Errorf("bot: unknown agent %q", id)
	}
	sup.ForceDrop()
	return nil
}

// SendChat relays a chat line through the agent's session.
func (r *Registry) SendChat(id, text string) error {
	rec, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("bot: unknown agent %q", id)
	}
	sess := rec.SessionRef()
	if sess == nil {
		return fmt.Errorf("bot: agent %q not connected", id)
	}
	return sess.SendChat(text)
}

// Close stops every supervisor. Used on process shutdown.
func (r *Registry) Close() {
	for _, rec := range r.List() {
		r.mu.RLock()
		sup := r.sups[rec.ID()]
		r.mu.RUnlock()
		if sup != nil {
			sup.Stop()
		}
	}
}

func (r *Registry) supervisorOf(id string) *Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sups[id]
}

func (r *Registry) publish() {
	if r.bcast != nil {
		r.bcast.PublishNow()
	}
}
