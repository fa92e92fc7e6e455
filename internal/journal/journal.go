// Package journal persists the asserted clause set in SQLite so a knowledge
// base can be replayed into a fresh engine.
//
// Two drivers are registered: "sqlite3" (mattn/go-sqlite3, cgo) and
// "sqlite" (modernc.org/sqlite, pure Go). Both read the same schema.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

// Driver names accepted by Open.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS clauses (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	label TEXT NOT NULL,
	rendered TEXT NOT NULL,
	payload TEXT NOT NULL UNIQUE,
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clauses_seq ON clauses(seq);
`

// Journal is a SQLite-backed clause log.
type Journal struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	driver string
}

// Entry is one journaled clause.
type Entry struct {
	ID         string
	Seq        int64
	Clause     ir.Clause
	RecordedAt time.Time
}

// Open opens or creates the journal at path. ":memory:" is accepted.
func Open(driver, path string) (*Journal, error) {
	timer := logging.StartTimer(logging.CategoryJournal, "Open")
	defer timer.Stop()

	switch driver {
	case DriverCGO, DriverPure:
	case "":
		driver = DriverCGO
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.Get(logging.CategoryJournal).Error("Failed to open journal at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.JournalDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.JournalDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	logging.Journal("Journal opened at %s (driver=%s)", path, driver)
	return &Journal{db: db, path: path, driver: driver}, nil
}

// Path returns the database path.
func (j *Journal) Path() string { return j.path }

// Driver returns the SQL driver in use.
func (j *Journal) Driver() string { return j.driver }

// encode returns the canonical payload of c. Term kinds are part of it, so a
// constant X and a variable X never share a row.
func encode(c ir.Clause) (string, error) {
	norm := ir.Clause{Head: canonical(c.Head)}
	for _, lit := range c.Body {
		norm.Body = append(norm.Body, canonical(lit))
	}
	data, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("failed to encode clause: %w", err)
	}
	return string(data), nil
}

func canonical(lit ir.Literal) ir.Literal {
	if lit.Terms == nil {
		lit.Terms = []ir.Term{}
	}
	return lit
}

// Record appends c unless an identical clause is already journaled. It
// reports whether a row was written.
func (j *Journal) Record(ctx context.Context, c ir.Clause) (bool, error) {
	payload, err := encode(c)
	if err != nil {
		return false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO clauses (id, seq, label, rendered, payload, recorded_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM clauses), ?, ?, ?, ?)`,
		uuid.NewString(), c.Label(), c.String(), payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("failed to record %s: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record %s: %w", c, err)
	}
	if n > 0 {
		logging.JournalDebug("recorded %s", c)
	}
	return n > 0, nil
}

// Forget removes c. It reports whether a row was removed.
func (j *Journal) Forget(ctx context.Context, c ir.Clause) (bool, error) {
	payload, err := encode(c)
	if err != nil {
		return false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx, `DELETE FROM clauses WHERE payload = ?`, payload)
	if err != nil {
		return false, fmt.Errorf("failed to forget %s: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to forget %s: %w", c, err)
	}
	if n > 0 {
		logging.JournalDebug("forgot %s", c)
	}
	return n > 0, nil
}

// Entries returns every journaled clause in recording order.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, `SELECT id, seq, payload, recorded_at FROM clauses ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			payload, recorded string
		)
		if err := rows.Scan(&e.ID, &e.Seq, &payload, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		// Drivers may hand TIMESTAMP columns back as time.Time, which
		// database/sql renders as RFC 3339 when scanning into a string.
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		if err := json.Unmarshal([]byte(payload), &e.Clause); err != nil {
			logging.JournalWarn("skipping undecodable journal row %s: %v", e.ID, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Load returns the journaled clauses in recording order.
func (j *Journal) Load(ctx context.Context) ([]ir.Clause, error) {
	entries, err := j.Entries(ctx)
	if err != nil {
		return nil, err
	}
	clauses := make([]ir.Clause, len(entries))
	for i, e := range entries {
		clauses[i] = e.Clause
	}
	return clauses, nil
}

// Count returns the number of journaled clauses.
func (j *Journal) Count(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clauses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
