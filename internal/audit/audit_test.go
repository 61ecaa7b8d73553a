package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func TestJSONLZstdWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "events")

	type entry struct {
		N int    `json:"n"`
		S string `json:"s"`
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(entry{N: i, S: "line"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("files = %v, err = %v", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 || got[0].N != 0 || got[2].N != 2 {
		t.Fatalf("got = %+v", got)
	}
}

func TestRecorder_OpenWriteClose(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "B1")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := r.Observe("CHAT", "alice", "hi", time.Now().UTC()); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "viewers", "B1", "trace-*.jsonl.zst"))
	if len(files) != 1 {
		t.Fatalf("trace files = %v", files)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var kinds []string
	var chat ViewerEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e ViewerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, e.Kind)
		if e.Kind == "CHAT" {
			chat = e
		}
	}
	if len(kinds) != 3 || kinds[0] != "OPEN" || kinds[1] != "CHAT" || kinds[2] != "CLOSE" {
		t.Fatalf("trace kinds = %v", kinds)
	}
	if chat.From != "alice" || chat.Text != "hi" {
		t.Fatalf("chat entry = %+v", chat)
	}
}

func TestRecorder_RequiresAgentID(t *testing.T) {
	if _, err := NewRecorder(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty agent id")
	}
}

func TestStore_PerAgentIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.RecordChat("B1", "alice", "hello", at)
	s.RecordChat("B2", "alice", "other agent", at)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	chat, err := s.ChatFor("B1", 10)
	if err != nil {
		t.Fatalf("chat query: %v", err)
	}
	if len(chat) != 1 || chat[0].Text != "hello" {
		t.Fatalf("chat for B1 = %+v", chat)
	}
}

func TestStore_QueriesAfterDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.RecordChat("B1", "alice", "hello", at)
	s.RecordChat("B1", "bob", "drop", at.Add(time.Second))
	s.RecordTransition("B1", "CONNECTED", at)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen: the store is append-only and survives restarts.
	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	chat, err := s.ChatFor("B1", 10)
	if err != nil {
		t.Fatalf("chat query: %v", err)
	}
	if len(chat) != 2 || chat[0].From != "alice" || chat[1].Text != "drop" {
		t.Fatalf("chat = %+v", chat)
	}
	if !chat[0].At.Equal(at) {
		t.Fatalf("at = %v, want %v", chat[0].At, at)
	}

	trans, err := s.TransitionsFor("B1", 10)
	if err != nil {
		t.Fatalf("transitions query: %v", err)
	}
	if len(trans) != 1 || trans[0].State != "CONNECTED" {
		t.Fatalf("transitions = %+v", trans)
	}

	// Records after close are silently dropped, not a panic.
	s2, _ := OpenSQLite(filepath.Join(t.TempDir(), "x.db"))
	_ = s2.Close()
	s2.RecordChat("B1", "alice", "late", at)
}
