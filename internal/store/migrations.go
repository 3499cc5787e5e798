package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS locations (
    location_id TEXT PRIMARY KEY,
    name TEXT,
    latitude REAL,
    longitude REAL,
    timezone TEXT
);

CREATE TABLE IF NOT EXISTS daily_observations (
    location_id TEXT NOT NULL,
    date TEXT NOT NULL, -- YYYY-MM-DD
    weather_code REAL,
    temperature_2m_max REAL,
    temperature_2m_min REAL,
    temperature_2m_mean REAL,
    apparent_temperature_max REAL,
    apparent_temperature_min REAL,
    apparent_temperature_mean REAL,
    sunrise TEXT,
    sunset TEXT,
    precipitation_sum REAL,
    rain_sum REAL,
    snowfall_sum REAL,
    precipitation_hours REAL,
    wind_speed_10m_max REAL,
    wind_gusts_10m_max REAL,
    wind_direction_10m_dominant REAL,
    shortwave_radiation_sum REAL,
    et0_fao_evapotranspiration REAL,
    quality_flags TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (location_id, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_obs_date ON daily_observations(date);
`,
	},
	{
		Version:     2,
		Description: "Ingest audit and raw payload cache",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    location_id TEXT,
    http_status INTEGER,
    response_size_bytes INTEGER,
    records_parsed INTEGER,
    records_stored INTEGER,
    parse_errors INTEGER,
    cache_hit BOOLEAN DEFAULT FALSE,
    success BOOLEAN DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);

CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ingest_run_id INTEGER,
    fetched_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    location_id TEXT,
    request_key TEXT NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    schema_version INTEGER DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_raw_payloads_request ON raw_payloads(request_key, fetched_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_payloads_hash ON raw_payloads(request_key, payload_hash);
`,
	},
	{
		Version:     3,
		Description: "Pipeline runs and results",
		SQL: `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    stage TEXT NOT NULL,
    selected_model TEXT,
    outcome TEXT,
    best_c REAL,
    artifact_path TEXT,
    seed INTEGER
);

CREATE TABLE IF NOT EXISTS cv_results (
    run_id TEXT NOT NULL,
    model TEXT NOT NULL,
    row_name TEXT NOT NULL,
    mean REAL,
    std REAL,
    PRIMARY KEY (run_id, model, row_name)
);

CREATE TABLE IF NOT EXISTS evaluation_results (
    run_id TEXT NOT NULL,
    class TEXT NOT NULL,
    precision REAL,
    recall REAL,
    f1 REAL,
    support INTEGER,
    PRIMARY KEY (run_id, class)
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
