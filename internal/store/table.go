package store

import (
	"database/sql"
)

const schemaVersion = 1

func Migrate(db *sql.DB) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= schemaVersion {
		return tx.Commit()
	}

	// ---- Schema v1: tables ----

	stmts := []string{`
CREATE TABLE IF NOT EXISTS import_sources (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner_id INTEGER NOT NULL,
  source_type TEXT NOT NULL,
  source_identifier TEXT NOT NULL,
  source_url TEXT NOT NULL DEFAULT '',
  last_fetched_at TEXT,
  fetch_status TEXT NOT NULL DEFAULT 'pending',
  last_fetch_error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner_id INTEGER NOT NULL,
  source_id INTEGER NOT NULL REFERENCES import_sources(id) ON DELETE CASCADE,
  external_id TEXT NOT NULL,
  title TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  department TEXT NOT NULL DEFAULT '',
  description_html TEXT NOT NULL DEFAULT '',
  description_text TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  workplace_type TEXT NOT NULL DEFAULT '',
  posted_at TEXT,
  external_updated_at TEXT,
  first_seen_at TEXT NOT NULL,
  last_seen_at TEXT NOT NULL,
  removed_at TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  UNIQUE(source_id, external_id)
);`, `
CREATE TABLE IF NOT EXISTS technologies (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  slug TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  aliases TEXT NOT NULL DEFAULT '[]'
);`, `
CREATE TABLE IF NOT EXISTS technology_mentions (
  job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
  technology_id INTEGER NOT NULL REFERENCES technologies(id) ON DELETE CASCADE,
  confidence INTEGER NOT NULL,
  context TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  PRIMARY KEY (job_id, technology_id)
);`,

		// ---- Schema v1: indexes ----

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_owner_type_ident
ON import_sources(owner_id, source_type, source_identifier);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_owner_status ON jobs(owner_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs(source_id);`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_technology ON technology_mentions(technology_id);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}

	// Mark schema v1
	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}
