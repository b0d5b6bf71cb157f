// Package history persists readings, operations and device errors in SQLite
// so the dashboard can chart what happened while nobody watched.
package history

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS light_readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	raw_value INTEGER NOT NULL,
	percent REAL
);

CREATE TABLE IF NOT EXISTS curtain_operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	operation TEXT NOT NULL,
	trigger_source TEXT,
	light_level INTEGER
);

CREATE TABLE IF NOT EXISTS error_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	error_type TEXT NOT NULL,
	message TEXT NOT NULL,
	component TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_light_timestamp ON light_readings(timestamp);
CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON curtain_operations(timestamp);
`

// LightReading is one stored sensor sample.
type LightReading struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Raw       int       `json:"raw_value"`
	Percent   float64   `json:"percent"`
}

// Operation is one logged curtain move.
type Operation struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Trigger   string    `json:"trigger"`
	Light     int       `json:"light_level"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "history: open %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "history: apply schema")
	}
	logrus.Infof("history: database ready at %s", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertLightReading stores one smoothed sample.
func (s *Store) InsertLightReading(raw int, percent float64) error {
	_, err := s.db.Exec(
		`INSERT INTO light_readings (raw_value, percent) VALUES (?, ?)`,
		raw, percent,
	)
	return errors.Wrap(err, "history: insert reading")
}

// RecentLightReadings returns readings newer than since, newest first.
// CURRENT_TIMESTAMP stores UTC, so every cutoff is compared in UTC.
func (s *Store) RecentLightReadings(since time.Time, limit int) ([]LightReading, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, raw_value, COALESCE(percent, 0)
		   FROM light_readings
		  WHERE timestamp > ?
		  ORDER BY timestamp DESC
		  LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "history: query readings")
	}
	defer rows.Close()

	var out []LightReading
	for rows.Next() {
		var r LightReading
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Raw, &r.Percent); err != nil {
			return nil, errors.Wrap(err, "history: scan reading")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "history: readings rows")
}

// LogOperation records a curtain move and what triggered it.
func (s *Store) LogOperation(operation, trigger string, light int) error {
	_, err := s.db.Exec(
		`INSERT INTO curtain_operations (operation, trigger_source, light_level) VALUES (?, ?, ?)`,
		operation, trigger, light,
	)
	return errors.Wrap(err, "history: log operation")
}

// RecentOperations returns operations newer than since, newest first.
func (s *Store) RecentOperations(since time.Time, limit int) ([]Operation, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, operation, COALESCE(trigger_source, ''), COALESCE(light_level, 0)
		   FROM curtain_operations
		  WHERE timestamp > ?
		  ORDER BY timestamp DESC
		  LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "history: query operations")
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.Timestamp, &op.Operation, &op.Trigger, &op.Light); err != nil {
			return nil, errors.Wrap(err, "history: scan operation")
		}
		out = append(out, op)
	}
	return out, errors.Wrap(rows.Err(), "history: operations rows")
}

// LogError records a device or bridge error.
func (s *Store) LogError(errorType, message, component string) error {
	_, err := s.db.Exec(
		`INSERT INTO error_log (error_type, message, component) VALUES (?, ?, ?)`,
		errorType, message, component,
	)
	return errors.Wrap(err, "history: log error")
}

// Prune drops rows older than the retention window from every table.
func (s *Store) Prune(retention time.Duration) error {
	cutoff := time.Now().Add(-retention).UTC()
	for _, table := range []string{"light_readings", "curtain_operations", "error_log"} {
		res, err := s.db.Exec(`DELETE FROM `+table+` WHERE timestamp < ?`, cutoff)
		if err != nil {
			return errors.Wrapf(err, "history: prune %s", table)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			logrus.Infof("history: pruned %d rows from %s", n, table)
		}
	}
	return nil
}
