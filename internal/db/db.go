// Package db stores contact history and environment modifications in
// SQLite and exposes them for debugging.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/contact.monitor/internal/monitor"
)

// DB is the contact history store.
type DB struct {
	*sql.DB
	path string
}

// pragmas are applied to every connection through the DSN.
const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", path, pragmas))
	if err != nil {
		return nil, err
	}
	// one writer; also keeps the loop's inserts ordered
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: conn, path: path}, nil
}

// NewDB opens the database at path and applies all migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// RecordCycle stores one published result vector and its contacts.
func (db *DB) RecordCycle(vec monitor.ContactResultVector) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var minDistance sql.NullFloat64
	if d, ok := vec.MinDistance(); ok {
		minDistance = sql.NullFloat64{Float64: d, Valid: true}
	}
	res, err := tx.Exec(
		`INSERT INTO cycles (stamp_unix_nano, revision, contact_count, min_distance) VALUES (?, ?, ?, ?)`,
		vec.Stamp.UnixNano(), vec.Revision, len(vec.Contacts), minDistance,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO contacts (cycle_id, link_a, link_b, distance, safety_distance) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, c := range vec.Contacts {
		if _, err := stmt.Exec(id, c.LinkNames[0], c.LinkNames[1], c.Distance, c.SafetyDistance); err != nil {
			return 0, fmt.Errorf("insert contact: %w", err)
		}
	}
	return id, tx.Commit()
}

// Cycle is one stored result vector summary.
type Cycle struct {
	ID           int64     `json:"id"`
	Stamp        time.Time `json:"stamp"`
	Revision     int       `json:"revision"`
	ContactCount int       `json:"contact_count"`
	// MinDistance is nil for cycles without contacts.
	MinDistance *float64 `json:"min_distance,omitempty"`
}

// Cycles returns up to limit cycles stamped at or after since, newest first.
func (db *DB) Cycles(since time.Time, limit int) ([]Cycle, error) {
	rows, err := db.Query(
		`SELECT cycle_id, stamp_unix_nano, revision, contact_count, min_distance
		FROM cycles WHERE stamp_unix_nano >= ? ORDER BY stamp_unix_nano DESC, cycle_id DESC LIMIT ?`,
		since.UnixNano(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var (
			c     Cycle
			stamp int64
			min   sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &stamp, &c.Revision, &c.ContactCount, &min); err != nil {
			return nil, err
		}
		c.Stamp = time.Unix(0, stamp).UTC()
		if min.Valid {
			c.MinDistance = &min.Float64
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// ContactRow is one stored contact.
type ContactRow struct {
	CycleID        int64   `json:"cycle_id"`
	LinkA          string  `json:"link_a"`
	LinkB          string  `json:"link_b"`
	Distance       float64 `json:"distance"`
	SafetyDistance float64 `json:"safety_distance"`
}

// ErrCycleNotFound is returned for cycle ids that were never recorded or
// have been pruned.
var ErrCycleNotFound = errors.New("cycle not found")

// CycleContacts returns the contacts stored for one cycle. A recorded cycle
// without contacts yields an empty, non-nil slice.
func (db *DB) CycleContacts(cycleID int64) ([]ContactRow, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM cycles WHERE cycle_id = ?`, cycleID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle %d: %w", cycleID, ErrCycleNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT cycle_id, link_a, link_b, distance, safety_distance FROM contacts WHERE cycle_id = ? ORDER BY link_a, link_b, distance`,
		cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ContactRow{}
	for rows.Next() {
		var r ContactRow
		if err := rows.Scan(&r.CycleID, &r.LinkA, &r.LinkB, &r.Distance, &r.SafetyDistance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneBefore deletes cycles stamped before cutoff along with their
// contacts and returns the number of cycles removed.
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM contacts WHERE cycle_id IN (SELECT cycle_id FROM cycles WHERE stamp_unix_nano < ?)`,
		cutoff.UnixNano(),
	); err != nil {
		return 0, fmt.Errorf("prune contacts: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM cycles WHERE stamp_unix_nano < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Modification is one audited modify-environment request.
type Modification struct {
	ID                int64     `json:"id"`
	EnvironmentID     string    `json:"environment_id"`
	RequestedRevision int       `json:"requested_revision"`
	Append            bool      `json:"append"`
	CommandCount      int       `json:"command_count"`
	Commands          string    `json:"commands"`
	Success           bool      `json:"success"`
	Revision          int       `json:"revision"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// RecordModification audits one modify request and its outcome.
func (db *DB) RecordModification(req monitor.ModifyEnvironmentRequest, resp monitor.ModifyEnvironmentResponse) error {
	cmds, err := json.Marshal(req.Commands)
	if err != nil {
		return fmt.Errorf("encode commands: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO modifications (environment_id, requested_revision, append, command_count, commands_json, success, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Revision, req.Append, len(req.Commands), string(cmds), resp.Success, resp.Revision,
	)
	return err
}

// Modifications returns up to limit audited requests, newest first.
func (db *DB) Modifications(limit int) ([]Modification, error) {
	rows, err := db.Query(
		`SELECT modification_id, environment_id, requested_revision, append, command_count, commands_json, success, revision, recorded_at
		FROM modifications ORDER BY modification_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Modification
	for rows.Next() {
		var m Modification
		if err := rows.Scan(&m.ID, &m.EnvironmentID, &m.RequestedRevision, &m.Append, &m.CommandCount,
			&m.Commands, &m.Success, &m.Revision, &m.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
