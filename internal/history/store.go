// Package history journals command outcomes to a local sqlite
// database so operators can audit what the gateway did and when.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one journaled command outcome.
type Entry struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Target     string    `json:"target"`
	Address    string    `json:"address"`
	Command    string    `json:"command"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

type Store struct{ db *sql.DB }

// Open opens (or creates) the journal database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %q: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS outcomes(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        target TEXT,
        address TEXT,
        command TEXT,
        status TEXT,
        message TEXT,
        started_at TIMESTAMP,
        duration_ms INTEGER )`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Insert(e *Entry) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO outcomes(request_id,target,address,command,status,message,started_at,duration_ms)
        VALUES (?,?,?,?,?,?,?,?)`,
		e.RequestID, e.Target, e.Address, e.Command, e.Status, e.Message, e.StartedAt, e.DurationMs)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

// ListRecent returns the newest entries first. A non-positive limit
// defaults to 50.
func (s *Store) ListRecent(limit int) ([]Entry, error) {
	return s.list(limit, "")
}

// ListByTarget returns the newest entries for one target, newest first.
func (s *Store) ListByTarget(limit int, targetName string) ([]Entry, error) {
	return s.list(limit, targetName)
}

func (s *Store) list(limit int, targetName string) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ""
	args := []any{}
	if targetName != "" {
		where = " WHERE target = ?"
		args = append(args, targetName)
	}
	args = append(args, limit)
	rows, err := s.db.Query(`SELECT id,request_id,target,address,command,status,message,started_at,duration_ms FROM outcomes`+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Target, &e.Address, &e.Command, &e.Status, &e.Message, &e.StartedAt, &e.DurationMs); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Cleanup trims entries older than retentionDays and keeps at most
// maxRows of the newest entries. Zero disables either bound.
func (s *Store) Cleanup(retentionDays, maxRows int) error {
	if retentionDays > 0 {
		if _, err := s.db.Exec(`DELETE FROM outcomes WHERE started_at < datetime('now', ?)`, fmt.Sprintf("-%d days", retentionDays)); err != nil {
			return err
		}
	}
	if maxRows > 0 {
		if _, err := s.db.Exec(`DELETE FROM outcomes WHERE id IN (SELECT id FROM outcomes ORDER BY id DESC LIMIT -1 OFFSET ?)`, maxRows); err != nil {
			return err
		}
	}
	return nil
}
