// Package journal persists an append-only, retention-bounded record of
// every published envelope to an embedded SQLite database, mirroring the
// telemetry_events table of the admin surface's own event log.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"modbus-mqtt-gateway/pkg/logger"
)

// Record is one published envelope, journaled verbatim.
type Record struct {
	Topic        string
	Object       string
	Bus          string
	UnitID       int
	RegisterType string
	Address      int
	Param        string
	Value        *string
	Code         int
	Message      string
	SilentForS   int
	TS           time.Time
}

// Config controls retention. MaxRows=0 or TTLDays=0 disables the
// respective policy.
type Config struct {
	MaxRows      int
	TTLDays      int
	CleanupEvery int
}

// Journal is the bounded, append-only publish history.
type Journal struct {
	db  *sql.DB
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	inserts int
}

// Open opens (creating if absent) the SQLite-backed journal at path.
func Open(path string, cfg Config, log logger.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS telemetry_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic TEXT,
	object TEXT,
	line TEXT,
	unit_id INTEGER,
	register_type TEXT,
	address INTEGER,
	param TEXT,
	value TEXT,
	code INTEGER,
	message TEXT,
	silent_for_s INTEGER,
	ts DATETIME
);
CREATE INDEX IF NOT EXISTS idx_telemetry_ts ON telemetry_events(ts);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 100
	}
	return &Journal{db: db, cfg: cfg, log: log}, nil
}

// Append journals one publish. A failure is logged and dropped: the live
// publish path never retries from here.
func (j *Journal) Append(r Record) {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO telemetry_events
			(topic, object, line, unit_id, register_type, address, param, value, code, message, silent_for_s, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Topic, r.Object, r.Bus, r.UnitID, r.RegisterType, r.Address, r.Param,
		r.Value, r.Code, r.Message, r.SilentForS, r.TS.UTC(),
	)
	if err != nil {
		j.log.Error("journal: append failed, dropping record: %v", err)
		return
	}
	j.inserts++
	if j.inserts >= j.cfg.CleanupEvery {
		j.inserts = 0
		j.cleanupLocked()
	}
}

func (j *Journal) cleanupLocked() {
	if j.cfg.TTLDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.TTLDays)
		if _, err := j.db.Exec(`DELETE FROM telemetry_events WHERE ts < ?`, cutoff); err != nil {
			j.log.Error("journal: ttl cleanup failed: %v", err)
		}
	}
	if j.cfg.MaxRows > 0 {
		_, err := j.db.Exec(
			`DELETE FROM telemetry_events WHERE id NOT IN (
				SELECT id FROM telemetry_events ORDER BY id DESC LIMIT ?
			)`, j.cfg.MaxRows)
		if err != nil {
			j.log.Error("journal: max_rows cleanup failed: %v", err)
		}
	}
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
