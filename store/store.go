// Package store persists zone descriptors and per-iteration drag
// diagnostics of a run in SQLite.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/zone"
)

// DB wraps a SQLite connection
type DB struct {
	conn *sqlx.DB
}

// Descriptor is a zone record written at an iteration
type Descriptor struct {
	Iteration int
	Spec      zone.Spec
}

// Diagnostic is the total drag of a zone at an iteration
type Diagnostic struct {
	Iteration int          `db:"iteration"`
	Zone      string       `db:"zone"`
	Drag      field.Vector `db:"-"`
	Fx        float64      `db:"fx"`
	Fy        float64      `db:"fy"`
	Fz        float64      `db:"fz"`
}

// Open opens or creates the database at path
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS descriptors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		iteration INTEGER NOT NULL,
		zone TEXT NOT NULL,
		spec_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		iteration INTEGER NOT NULL,
		zone TEXT NOT NULL,
		fx REAL NOT NULL,
		fy REAL NOT NULL,
		fz REAL NOT NULL,
		PRIMARY KEY (zone, iteration)
	);

	CREATE INDEX IF NOT EXISTS idx_descriptors_zone ON descriptors(zone);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveDescriptors appends the descriptors of a set of zones
func (db *DB) SaveDescriptors(iteration int, specs []zone.Spec) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range specs {
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode zone %q: %w", s.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO descriptors (iteration, zone, spec_json) VALUES (?, ?, ?)`,
			iteration, s.Name, string(b)); err != nil {
			return fmt.Errorf("insert descriptor %q: %w", s.Name, err)
		}
	}
	return tx.Commit()
}

// Descriptors returns every saved descriptor in the order written
func (db *DB) Descriptors() ([]Descriptor, error) {
	var rows []struct {
		Iteration int    `db:"iteration"`
		SpecJSON  string `db:"spec_json"`
	}
	if err := db.conn.Select(&rows, `SELECT iteration, spec_json FROM descriptors ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}
	out := make([]Descriptor, len(rows))
	for i, r := range rows {
		out[i].Iteration = r.Iteration
		if err := json.Unmarshal([]byte(r.SpecJSON), &out[i].Spec); err != nil {
			return nil, fmt.Errorf("decode descriptor %d: %w", i, err)
		}
	}
	return out, nil
}

// LatestDescriptor returns the last descriptor written for a zone
func (db *DB) LatestDescriptor(name string) (Descriptor, error) {
	var row struct {
		Iteration int    `db:"iteration"`
		SpecJSON  string `db:"spec_json"`
	}
	err := db.conn.Get(&row, `SELECT iteration, spec_json FROM descriptors
		WHERE zone = ? ORDER BY id DESC LIMIT 1`, name)
	if err != nil {
		return Descriptor{}, fmt.Errorf("load descriptor %q: %w", name, err)
	}
	d := Descriptor{Iteration: row.Iteration}
	if err := json.Unmarshal([]byte(row.SpecJSON), &d.Spec); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor %q: %w", name, err)
	}
	return d, nil
}

// RecordDiagnostics stores the drag of each zone at an iteration,
// replacing an earlier record of the same iteration
func (db *DB) RecordDiagnostics(iteration int, drag map[string]field.Vector) error {
	if len(drag) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for name, f := range drag {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO diagnostics (iteration, zone, fx, fy, fz)
			VALUES (?, ?, ?, ?, ?)`, iteration, name, f[0], f[1], f[2]); err != nil {
			return fmt.Errorf("insert diagnostics %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// Diagnostics returns the drag history of a zone by iteration
func (db *DB) Diagnostics(name string) ([]Diagnostic, error) {
	var out []Diagnostic
	if err := db.conn.Select(&out, `SELECT iteration, zone, fx, fy, fz FROM diagnostics
		WHERE zone = ? ORDER BY iteration`, name); err != nil {
		return nil, fmt.Errorf("load diagnostics %q: %w", name, err)
	}
	for i := range out {
		out[i].Drag = field.Vector{out[i].Fx, out[i].Fy, out[i].Fz}
	}
	return out, nil
}
