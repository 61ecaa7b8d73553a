package bot

import (
	"math"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/observerproto"
)

// SnapshotAll assembles the full registry view for observers. One agent's
// failure (a panicking accessor mid-teardown) degrades only that agent's
// entry; the rest of the snapshot is unaffected.
func (r *Registry) SnapshotAll() observerproto.AllStatesMsg {
	msg := observerproto.AllStatesMsg{
		Type:            observerproto.TypeAllStates,
		ProtocolVersion: observerproto.Version,
		At:              time.Now().UTC(),
		Agents:          map[string]observerproto.AgentView{},
	}
	for _, rec := range r.List() {
		view, ok := r.viewOf(rec)
		if !ok {
			continue
		}
		msg.Agents[rec.ID()] = view
	}
	return msg
}

func (r *Registry) viewOf(rec *AgentRecord) (view observerproto.AgentView, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("agent %s: snapshot: %v", rec.ID(), p)
			ok = false
		}
	}()

	// Prefer live telemetry; after a disconnect the record keeps the last
	// values seen so the view freezes instead of zeroing.
	telem := rec.Telemetry()
	if sess := rec.SessionRef(); sess != nil {
		telem = sess.Telemetry()
	}

	target := rec.Target()
	chat := rec.ChatLog()
	lines := make([]observerproto.ChatLine, len(chat))
	for i, c := range chat {
		lines[i] = observerproto.ChatLine{At: c.At, From: c.From, Text: c.Text}
	}

	return observerproto.AgentView{
		ID:         rec.ID(),
		Username:   rec.Username(),
		Host:       target.Host,
		Port:       target.Port,
		State:      rec.State().String(),
		Autonomy:   rec.AutonomyEnabled(),
		Controller: rec.Controller(),
		Health:     float64(telem.Health),
		MaxHealth:  float64(telem.MaxHealth),
		Food:       float64(telem.Food),
		Pos: [3]float64{
			round2(telem.Position.X),
			round2(telem.Position.Y),
			round2(telem.Position.Z),
		},
		Chat: lines,
	}, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
