package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the SQLite DDL for the job store.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		project       TEXT NOT NULL,
		name          TEXT NOT NULL,
		duration      REAL NOT NULL,
		step_duration REAL NOT NULL,
		batch_length  INTEGER NOT NULL,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (project, name)
	)`,

	`CREATE TABLE IF NOT EXISTS progresses (
		project          TEXT NOT NULL,
		job              TEXT NOT NULL,
		done             INTEGER NOT NULL DEFAULT 0,
		total_steps      INTEGER NOT NULL,
		basic_statistics INTEGER NOT NULL DEFAULT 0,
		idle_times       INTEGER NOT NULL DEFAULT 0,
		throughput       INTEGER NOT NULL DEFAULT 0,
		full_statistics  INTEGER NOT NULL DEFAULT 0,
		updated_at       TEXT NOT NULL,
		PRIMARY KEY (project, job),
		FOREIGN KEY (project, job) REFERENCES jobs(project, name) ON DELETE CASCADE
	)`,

	// Lets status pages list unfinished jobs without a scan.
	`CREATE INDEX IF NOT EXISTS idx_progresses_full_statistics ON progresses(full_statistics)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	// Batch count, stored so workers and status pages need not recompute it.
	{
		table:    "progresses",
		column:   "batches",
		alterSQL: "ALTER TABLE progresses ADD COLUMN batches INTEGER NOT NULL DEFAULT 0",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Execute ALTER TABLE statements idempotently.
	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}

	found := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			found = true
		}
	}
	// Release the connection before the ALTER; in-memory databases run on one.
	if err := rows.Close(); err != nil {
		return err
	}
	if found {
		return nil
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

// postgresSchema is the Postgres equivalent of schema plus alterStatements.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		project       TEXT NOT NULL,
		name          TEXT NOT NULL,
		duration      DOUBLE PRECISION NOT NULL,
		step_duration DOUBLE PRECISION NOT NULL,
		batch_length  BIGINT NOT NULL,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (project, name)
	)`,

	`CREATE TABLE IF NOT EXISTS progresses (
		project          TEXT NOT NULL,
		job              TEXT NOT NULL,
		done             BIGINT NOT NULL DEFAULT 0,
		total_steps      BIGINT NOT NULL,
		basic_statistics BOOLEAN NOT NULL DEFAULT FALSE,
		idle_times       BOOLEAN NOT NULL DEFAULT FALSE,
		throughput       BOOLEAN NOT NULL DEFAULT FALSE,
		full_statistics  BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at       TEXT NOT NULL,
		PRIMARY KEY (project, job),
		FOREIGN KEY (project, job) REFERENCES jobs(project, name) ON DELETE CASCADE
	)`,

	`ALTER TABLE progresses ADD COLUMN IF NOT EXISTS batches BIGINT NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_progresses_full_statistics ON progresses(full_statistics)`,
}
