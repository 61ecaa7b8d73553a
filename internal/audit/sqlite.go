package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the append-only audit database. Writes go through a single
// writer goroutine over a buffered channel so callers never block on
// disk; entries are dropped if the writer falls far behind.
type Store struct {
	db *sql.DB

	ch   chan row
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type rowKind int

const (
	rowChat rowKind = iota + 1
	rowTransition
)

type row struct {
	kind    rowKind
	agentID string
	from    string
	text    string
	state   string
	at      time.Time
}

func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan row, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_agent_at ON chat(agent_id, at);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			state TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_agent_at ON transitions(agent_id, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending writes, then closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) RecordChat(agentID, from, text string, at time.Time) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- row{kind: rowChat, agentID: agentID, from: from, text: text, at: at}:
	default:
	}
}

func (s *Store) RecordTransition(agentID, state string, at time.Time) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- row{kind: rowTransition, agentID: agentID, state: state, at: at}:
	default:
	}
}

func (s *Store) loop() {
	for r := range s.ch {
		switch r.kind {
		case rowChat:
			_, _ = s.db.Exec(
				`INSERT INTO chat (agent_id, sender, text, at) VALUES (?, ?, ?, ?)`,
				r.agentID, r.from, r.text, r.at.UTC().Format(time.RFC3339Nano),
			)
		case rowTransition:
			_, _ = s.db.Exec(
				`INSERT INTO transitions (agent_id, state, at) VALUES (?, ?, ?)`,
				r.agentID, r.state, r.at.UTC().Format(time.RFC3339Nano),
			)
		}
	}
}

// ChatEntry mirrors one chat row for queries.
type ChatEntry struct {
	AgentID string
	From    string
	Text    string
	At      time.Time
}

// ChatFor returns the stored chat lines for one agent, oldest first.
func (s *Store) ChatFor(agentID string, limit int) ([]ChatEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT sender, text, at FROM chat WHERE agent_id = ? ORDER BY id ASC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatEntry
	for rows.Next() {
		var e ChatEntry
		var at string
		if err := rows.Scan(&e.From, &e.Text, &at); err != nil {
			return nil, err
		}
		e.AgentID = agentID
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TransitionEntry mirrors one transitions row.
type TransitionEntry struct {
	AgentID string
	State   string
	At      time.Time
}

// TransitionsFor returns the stored state transitions for one agent,
// oldest first.
func (s *Store) TransitionsFor(agentID string, limit int) ([]TransitionEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT state, at FROM transitions WHERE agent_id = ? ORDER BY id ASC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionEntry
	for rows.Next() {
		var e TransitionEntry
		var at string
		if err := rows.Scan(&e.State, &at); err != nil {
			return nil, err
		}
		e.AgentID = agentID
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
