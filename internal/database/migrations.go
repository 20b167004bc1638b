package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    author TEXT,
    source_file TEXT,
    extraction_gaps INTEGER DEFAULT 0,
    extracted_at TEXT,
    selected_at TEXT,
    scheduled_at TEXT,
    notified_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS highlights (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id),
    position INTEGER NOT NULL,
    text TEXT NOT NULL,
    color TEXT NOT NULL,
    marker TEXT,
    page INTEGER,
    location INTEGER,
    chapter TEXT,
    note TEXT,
    UNIQUE (document_id, position)
);

CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id),
    kind TEXT NOT NULL CHECK(kind IN ('concept', 'action')),
    rank INTEGER NOT NULL,
    title TEXT NOT NULL,
    summary TEXT,
    excerpt TEXT,
    ranked INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE (document_id, kind, rank)
);

CREATE TABLE IF NOT EXISTS tracked_concepts (
    concept_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    source_document_id TEXT NOT NULL REFERENCES documents(id),
    created_at TEXT NOT NULL,
    last_reviewed_at TEXT,
    review_count INTEGER DEFAULT 0,
    interval_index INTEGER DEFAULT 0,
    next_due_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_highlights_document ON highlights(document_id, position);
CREATE INDEX IF NOT EXISTS idx_candidates_document ON candidates(document_id, kind, rank);
CREATE INDEX IF NOT EXISTS idx_tracked_due ON tracked_concepts(next_due_at);
CREATE INDEX IF NOT EXISTS idx_tracked_source ON tracked_concepts(source_document_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
