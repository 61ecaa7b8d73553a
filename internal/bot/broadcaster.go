package bot

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/observerproto"
)

// Broadcaster fans the registry snapshot out to observer subscribers on a
// fixed cadence and immediately on every mutation. A slow subscriber never
// blocks the others: each gets a one-slot channel carrying the latest
// payload, older undelivered payloads are superseded.
type Broadcaster struct {
	logger   *log.Logger
	interval time.Duration

	mu       sync.Mutex
	subs     map[string]chan []byte
	snapshot func() observerproto.AllStatesMsg
}

func NewBroadcaster(logger *log.Logger, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		logger:   logger,
		interval: interval,
		subs:     map[string]chan []byte{},
	}
}

// Bind installs the snapshot source. Called once by the registry.
func (b *Broadcaster) Bind(fn func() observerproto.AllStatesMsg) {
	b.mu.Lock()
	b.snapshot = fn
	b.mu.Unlock()
}

// Subscribe registers an observer and returns its payload channel. The
// caller reads until Unsubscribe closes it.
func (b *Broadcaster) Subscribe(observerID string) <-chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.subs[observerID] = ch
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(observerID string) {
	b.mu.Lock()
	ch, ok := b.subs[observerID]
	delete(b.subs, observerID)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// PublishNow snapshots and fans out immediately. Safe from any goroutine.
func (b *Broadcaster) PublishNow() {
	b.mu.Lock()
	fn := b.snapshot
	b.mu.Unlock()
	if fn == nil {
		return
	}
	payload, err := json.Marshal(fn())
	if err != nil {
		b.logger.Printf("broadcast: marshal: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		sendLatest(ch, payload)
	}
}

// Run drives the periodic broadcast until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.PublishNow()
		}
	}
}

// sendLatest replaces a pending payload instead of blocking.
func sendLatest(ch chan []byte, payload []byte) {
	for {
		select {
		case ch <- payload:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
