// Package audit records chat traffic and connection transitions: an
// append-only SQLite store for queries plus compressed JSONL files per
// agent. Nothing here is read back at startup.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly-rotated zstd files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ViewerEntry is one line in an agent's viewer trace.
type ViewerEntry struct {
	At    time.Time `json:"at"`
	Kind  string    `json:"kind"`
	From  string    `json:"from,omitempty"`
	Text  string    `json:"text,omitempty"`
	State string    `json:"state,omitempty"`
}

// Recorder is the per-agent viewer resource: a compressed JSONL trace of
// what the agent sees. Opening one is best-effort from the supervisor's
// point of view.
type Recorder struct {
	agentID string
	w       *JSONLZstdWriter
}

func NewRecorder(baseDir, agentID string) (*Recorder, error) {
	if agentID == "" {
		return nil, fmt.Errorf("empty agent id")
	}
	r := &Recorder{
		agentID: agentID,
		w:       NewJSONLZstdWriter(filepath.Join(baseDir, "viewers", agentID), "trace"),
	}
	// Open eagerly so acquisition failures surface here, not on first write.
	if err := r.w.Write(ViewerEntry{At: time.Now().UTC(), Kind: "OPEN"}); err != nil {
		return nil, err
	}
	return r, nil
}

// Observe appends one observed line to the agent's trace.
func (r *Recorder) Observe(kind, from, text string, at time.Time) error {
	return r.w.Write(ViewerEntry{At: at, Kind: kind, From: from, Text: text})
}

func (r *Recorder) Close() error {
	_ = r.w.Write(ViewerEntry{At: time.Now().UTC(), Kind: "CLOSE"})
	return r.w.Close()
}
