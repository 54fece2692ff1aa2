// Package journal owns persistence for the two state stores: every
// mutation is appended to a durable SQLite log before it touches
// memory, and a restart rebuilds identical state from the latest
// snapshot plus the log tail. Stores never see the database; they only
// implement Apply/Snapshot/Restore.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the state machine a journal drives. Apply must either fully
// apply the decoded command and return its result, or return an error
// without observable partial effects; an Apply error is engine-fatal.
type Store[R any] interface {
	Apply(payload []byte) (R, error)
	Snapshot() ([]byte, error)
	Restore(snapshot []byte) error
}

// Executor is the single serialization point of one store: every
// mutation funnels through Execute in log order, while reads run
// concurrently through View.
type Executor[R any] struct {
	mu    sync.RWMutex
	db    *sql.DB
	store Store[R]
	seq   int64
	log   *slog.Logger
}

// Open opens (or creates) the journal at path and replays it into
// store: the latest snapshot first, then every command logged after
// it. Each replayed command re-applies its recorded payload, so the
// embedded timestamps drive the rebuild, never the wall clock.
func Open[R any](path string, store Store[R], log *slog.Logger) (*Executor[R], error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal %s: %w", path, err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %s: %q: %w", path, pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	e := &Executor[R]{db: db, store: store, log: log}
	if err := e.replay(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Executor[R]) replay() error {
	var snapSeq int64
	var state []byte
	err := e.db.QueryRow(
		`SELECT seq, state FROM snapshots ORDER BY seq DESC LIMIT 1`,
	).Scan(&snapSeq, &state)
	switch {
	case err == sql.ErrNoRows:
		// Fresh journal; the store keeps its initial state.
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	default:
		if err := e.store.Restore(state); err != nil {
			return err
		}
		e.seq = snapSeq
	}

	rows, err := e.db.Query(
		`SELECT seq, payload FROM commands WHERE seq > ? ORDER BY seq`, snapSeq,
	)
	if err != nil {
		return fmt.Errorf("read log tail: %w", err)
	}
	defer rows.Close()

	replayed := 0
	for rows.Next() {
		var seq int64
		var payload []byte
		if err := rows.Scan(&seq, &payload); err != nil {
			return fmt.Errorf("scan log entry: %w", err)
		}
		if _, err := e.store.Apply(payload); err != nil {
			return fmt.Errorf("replay seq %d: %w", seq, err)
		}
		e.seq = seq
		replayed++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read log tail: %w", err)
	}

	e.log.Info("journal replayed",
		"snapshot_seq", snapSeq,
		"commands", replayed,
		"seq", e.seq)
	return nil
}

// Execute durably appends the command and then applies it. The append
// must commit before the store mutates; if the append fails the store
// is untouched, and if Apply fails the process must abort, since the
// log now holds a command the state does not reflect.
func (e *Executor[R]) Execute(op string, payload []byte) (R, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero R
	seq := e.seq + 1
	id := uuid.Must(uuid.NewV7()).String()
	if _, err := e.db.Exec(
		`INSERT INTO commands (seq, op, uuid, payload) VALUES (?, ?, ?, ?)`,
		seq, op, id, payload,
	); err != nil {
		return zero, fmt.Errorf("append %s command: %w", op, err)
	}

	res, err := e.store.Apply(payload)
	if err != nil {
		return zero, fmt.Errorf("apply %s command (seq %d): %w", op, seq, err)
	}
	e.seq = seq
	return res, nil
}

// View runs f with the store guaranteed quiescent. Reads share the
// lock with each other and only exclude writers.
func (e *Executor[R]) View(f func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f()
}

// Seq returns the log position of the last applied command.
func (e *Executor[R]) Seq() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

// TakeSnapshot captures the full store state at the current log
// position and truncates everything the snapshot covers.
func (e *Executor[R]) TakeSnapshot() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.Snapshot()
	if err != nil {
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO snapshots (seq, taken_at, state) VALUES (?, ?, ?)
		 ON CONFLICT(seq) DO UPDATE SET taken_at = excluded.taken_at, state = excluded.state`,
		e.seq, time.Now().UTC().Format(time.RFC3339), state,
	); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM commands WHERE seq <= ?`, e.seq); err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE seq < ?`, e.seq); err != nil {
		return fmt.Errorf("drop old snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	e.log.Info("snapshot taken", "seq", e.seq, "bytes", len(state))
	return nil
}

// Close closes the journal database.
func (e *Executor[R]) Close() error {
	return e.db.Close()
}
