package bot

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

// dropCommand is the chat body that triggers a full inventory discard.
const dropCommand = "drop"

// Supervisor owns one agent's lifecycle: connect, retry on a fixed
// interval while not connected, pump session events, tear down on
// disconnect. Reconnects are unconditional and cause-blind; no failure
// here may crash the process.
type Supervisor struct {
	rec     *AgentRecord
	dial    worldclient.Dialer
	logger  *log.Logger
	timings Timings
	threats map[string]bool
	viewers ViewerFactory
	audit   AuditSink
	publish func()

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	sched *Scheduler

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// AuditSink records observability events. Implementations must not block
// for long; failures are their own problem.
type AuditSink interface {
	RecordChat(agentID, from, text string, at time.Time)
	RecordTransition(agentID, state string, at time.Time)
}

func newSupervisor(rec *AgentRecord, dial worldclient.Dialer, logger *log.Logger, timings Timings, threats map[string]bool, viewers ViewerFactory, audit AuditSink, publish func()) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		rec:     rec,
		dial:    dial,
		logger:  logger,
		timings: timings,
		threats: threats,
		viewers: viewers,
		audit:   audit,
		publish: publish,
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
}

func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop tears down the supervisor, its scheduler and any live session, and
// waits for everything to finish.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
	})
	s.wg.Wait()
}

func (s *Supervisor) run() {
	defer s.wg.Done()
	defer s.teardown("supervisor stopped")

	ticker := time.NewTicker(s.timings.ReconnectInterval)
	defer ticker.Stop()

	s.tryConnect()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.rec.State() != Connected {
				s.tryConnect()
			}
		case ev, ok := <-s.eventsOrNil():
			if !ok {
				s.handleSessionEnd("connection lost")
				continue
			}
			s.handleEvent(ev)
		}
	}
}

// eventsOrNil returns the live session's event channel, or nil (blocking
// forever in select) while disconnected.
func (s *Supervisor) eventsOrNil() <-chan worldclient.Event {
	sess := s.rec.SessionRef()
	if sess == nil {
		return nil
	}
	return sess.Events()
}

// tryConnect performs one dial attempt. A failed attempt is logged and
// left for the next timer tick; it never escapes.
func (s *Supervisor) tryConnect() {
	s.rec.markConnecting()
	s.publish()

	sess, err := s.dial(s.ctx, s.rec.Target())
	if err != nil {
		s.logger.Printf("agent %s: connect %s: %v", s.rec.ID(), s.rec.Target().URL(), err)
		return
	}

	s.rec.adoptSession(sess)
	s.logger.Printf("agent %s: logged in as %s", s.rec.ID(), sess.Username())
	if s.audit != nil {
		s.audit.RecordTransition(s.rec.ID(), Connected.String(), time.Now())
	}

	s.startScheduler(sess)

	// Viewer acquisition is best-effort.
	if s.viewers != nil {
		if v, err := s.viewers(s.rec.ID()); err != nil {
			s.logger.Printf("agent %s: viewer: %v", s.rec.ID(), err)
		} else {
			s.rec.setViewer(v)
		}
	}

	s.publish()
}

func (s *Supervisor) handleEvent(ev worldclient.Event) {
	switch ev.Kind {
	case worldclient.EventDisconnected:
		s.handleSessionEnd("disconnected")
	case worldclient.EventKicked:
		s.handleSessionEnd("kicked: " + ev.Reason)
	case worldclient.EventChat:
		s.handleChat(ev.From, ev.Text)
	case worldclient.EventHealthChanged, worldclient.EventPositionChanged:
		if sess := s.rec.SessionRef(); sess != nil {
			s.rec.setTelemetry(sess.Telemetry())
		}
	case worldclient.EventEntityAppeared, worldclient.EventEntityMoved:
		s.mu.Lock()
		sched := s.sched
		s.mu.Unlock()
		if sched != nil {
			sched.TriggerAvoid()
		}
	case worldclient.EventError:
		s.logger.Printf("agent %s: session error: %v", s.rec.ID(), ev.Err)
	}
}

func (s *Supervisor) handleChat(from, text string) {
	now := time.Now()
	s.rec.AppendChat(from, text, now)
	if s.audit != nil {
		s.audit.RecordChat(s.rec.ID(), from, text, now)
	}
	if v := s.rec.viewerRef(); v != nil {
		if err := v.Observe("CHAT", from, text, now); err != nil {
			s.logger.Printf("agent %s: viewer: %v", s.rec.ID(), err)
		}
	}
	s.publish()

	if strings.EqualFold(strings.TrimSpace(text), dropCommand) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ForceDrop()
		}()
	}
}

// ForceDrop suspends autonomy, discards the whole carried inventory
// item-by-item and re-enables autonomy afterwards. The re-enable is
// guaranteed even when individual discards fail.
func (s *Supervisor) ForceDrop() {
	sess := s.rec.SessionRef()
	if sess == nil {
		return
	}
	s.rec.suspendAutonomy()
	s.publish()
	defer func() {
		s.rec.restoreAutonomy()
		s.publish()
	}()

	for _, item := range sess.Inventory() {
		if err := sess.Discard(item); err != nil {
			s.logger.Printf("agent %s: discard %s: %v", s.rec.ID(), item.Name, err)
		}
	}
}

// handleSessionEnd runs the uniform teardown for disconnect, kick and
// session error: scheduler stopped, session discarded, autonomy off. The
// retry ticker re-attempts.
func (s *Supervisor) handleSessionEnd(reason string) {
	if s.rec.State() != Connected {
		return
	}
	s.logger.Printf("agent %s: session ended (%s)", s.rec.ID(), reason)
	s.stopScheduler()
	sess, viewer := s.rec.clearSession()
	if sess != nil {
		_ = sess.Close()
	}
	if viewer != nil {
		_ = viewer.Close()
	}
	if s.audit != nil {
		s.audit.RecordTransition(s.rec.ID(), Disconnected.String(), time.Now())
	}
	s.publish()
}

func (s *Supervisor) teardown(reason string) {
	s.handleSessionEnd(reason)
}

func (s *Supervisor) startScheduler(sess worldclient.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return
	}
	s.sched = newScheduler(s.rec, sess, s.logger, s.timings, s.threats, time.Now().UnixNano())
	s.sched.Start()
}

func (s *Supervisor) stopScheduler() {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()
	if sched != nil {
		sched.Stop()
	}
}

// PauseAutonomy stops the scheduler for a manual-control grant.
func (s *Supervisor) PauseAutonomy() {
	s.stopScheduler()
}

// ResumeAutonomy restarts the scheduler after a manual-control release,
// provided a session still exists.
func (s *Supervisor) ResumeAutonomy() {
	sess := s.rec.SessionRef()
	if sess == nil {
		return
	}
	s.startScheduler(sess)
}
