// Package totals implements the external totals sink adapter: a best-effort,
// fire-and-forget counter-increment interface backed by an embedded sqlite
// database when a DSN is configured, following the migrations design of the
// teacher's top-level store package (an ordered, append-only list of DDL
// statements). No applied version is recorded: every statement is written to
// be idempotent and all of them run on each Open.
package totals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrDisabled is returned by ReadTotals when no sink is configured.
var ErrDisabled = errors.New("metrics disabled")

// Names of the five recognized counters.
const (
	RoomsCreated       = "rooms_created"
	OtmCreated         = "otm_created"
	FilesCreated       = "files_created"
	ChatInvitesCreated = "chat_invites_created"
	ChatMessagesSent   = "chat_messages_sent"
)

var counterNames = []string{
	RoomsCreated, OtmCreated, FilesCreated, ChatInvitesCreated, ChatMessagesSent,
}

// migrations holds the ordered list of DDL statements that bring the schema
// up to date. Index i is reported as migration i+1 in errors. migrate runs
// every entry on every Open, so each must be idempotent. To add a migration,
// append a new string — never edit or reorder existing entries.
var migrations = []string{
	// v1 — single-row totals table, one column per named counter.
	`CREATE TABLE IF NOT EXISTS totals (
		singleton     INTEGER PRIMARY KEY CHECK (singleton = 1),
		rooms_created INTEGER NOT NULL DEFAULT 0,
		otm_created   INTEGER NOT NULL DEFAULT 0,
		files_created INTEGER NOT NULL DEFAULT 0,
		chat_invites_created INTEGER NOT NULL DEFAULT 0,
		chat_messages_sent   INTEGER NOT NULL DEFAULT 0
	)`,
	`INSERT OR IGNORE INTO totals (singleton) VALUES (1)`,
}

// Totals is a snapshot of the five named counters.
type Totals struct {
	RoomsCreated       int64 `json:"roomsCreated"`
	OtmCreated         int64 `json:"otmCreated"`
	FilesCreated       int64 `json:"filesCreated"`
	ChatInvitesCreated int64 `json:"chatInvitesCreated"`
	ChatMessagesSent   int64 `json:"chatMessagesSent"`
}

// Sink is the totals sink adapter. A nil *sql.DB means the sink is
// unconfigured: increments are silent no-ops and reads return ErrDisabled.
type Sink struct {
	db   *sql.DB
	incr chan string
	done chan struct{}
}

// Open opens (or creates) the sqlite-backed totals sink at dsn. An empty dsn
// returns a disabled sink: every increment is a no-op, reads return
// ErrDisabled, exactly as spec.md §4.C requires for an unconfigured sink.
func Open(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		slog.Info("totals sink disabled: no DSN configured")
		return &Sink{}, nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open totals sqlite database: %w", err)
	}
	s := &Sink{db: db, incr: make(chan string, 256), done: make(chan struct{})}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	go s.worker()
	slog.Info("totals sink opened", "dsn", dsn)
	return s, nil
}

func (s *Sink) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply totals migration %d: %w", i+1, err)
		}
	}
	return nil
}

// worker applies increments one at a time off the hot path: IncrementTotal
// never blocks on sqlite, matching spec.md's "fire-and-forget" requirement.
func (s *Sink) worker() {
	for {
		select {
		case name, ok := <-s.incr:
			if !ok {
				return
			}
			if err := s.apply(name); err != nil {
				slog.Error("totals increment failed", "name", name, "err", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Sink) apply(name string) error {
	if !validName(name) {
		return fmt.Errorf("unrecognized counter %q", name)
	}
	q := fmt.Sprintf(`UPDATE totals SET %s = %s + 1 WHERE singleton = 1`, name, name)
	_, err := s.db.ExecContext(context.Background(), q)
	return err
}

func validName(name string) bool {
	for _, n := range counterNames {
		if n == name {
			return true
		}
	}
	return false
}

// IncrementTotal fires a best-effort increment for the named counter. A
// disabled sink silently drops the increment; an enabled sink queues it for
// the background worker and never blocks the caller.
func (s *Sink) IncrementTotal(name string) {
	if s == nil || s.db == nil {
		return
	}
	select {
	case s.incr <- name:
	default:
		slog.Warn("totals increment queue full, dropping", "name", name)
	}
}

// ReadTotals returns the current counter values, or ErrDisabled if no sink
// is configured.
func (s *Sink) ReadTotals(ctx context.Context) (Totals, error) {
	if s == nil || s.db == nil {
		return Totals{}, ErrDisabled
	}
	const q = `SELECT rooms_created, otm_created, files_created, chat_invites_created, chat_messages_sent FROM totals WHERE singleton = 1`
	var t Totals
	err := s.db.QueryRowContext(ctx, q).Scan(&t.RoomsCreated, &t.OtmCreated, &t.FilesCreated, &t.ChatInvitesCreated, &t.ChatMessagesSent)
	if err != nil {
		return Totals{}, fmt.Errorf("read totals: %w", err)
	}
	return t, nil
}

// Close stops the background worker and closes the underlying database, if
// any.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	close(s.done)
	close(s.incr)
	return s.db.Close()
}
