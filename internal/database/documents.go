package database

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertDocument creates the ledger entry for a document, or refreshes its
// metadata if it already exists. Stage timestamps are never touched here, so
// re-encountering a processed document keeps its ledger state.
func (db *DB) UpsertDocument(id, title string, author, sourceFile *string) error {
	_, err := db.conn.Exec(
		`INSERT INTO documents (id, title, author, source_file) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, author = excluded.author,
			source_file = excluded.source_file`,
		id, title, author, sourceFile,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", id, err)
	}
	return nil
}

// GetDocument returns the ledger entry for a document, or nil if unknown.
func (db *DB) GetDocument(id string) (*Document, error) {
	row := db.conn.QueryRow(
		`SELECT id, title, author, source_file, extraction_gaps,
			extracted_at, selected_at, scheduled_at, notified_at, created_at
		FROM documents WHERE id = ?`, id,
	)
	var d Document
	err := row.Scan(&d.ID, &d.Title, &d.Author, &d.SourceFile, &d.ExtractionGaps,
		&d.ExtractedAt, &d.SelectedAt, &d.ScheduledAt, &d.NotifiedAt, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", id, err)
	}
	return &d, nil
}

// ListDocuments returns all ledger entries, newest first.
func (db *DB) ListDocuments() ([]Document, error) {
	rows, err := db.conn.Query(
		`SELECT id, title, author, source_file, extraction_gaps,
			extracted_at, selected_at, scheduled_at, notified_at, created_at
		FROM documents ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Author, &d.SourceFile, &d.ExtractionGaps,
			&d.ExtractedAt, &d.SelectedAt, &d.ScheduledAt, &d.NotifiedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkExtracted records extraction completion and the gap count.
func (db *DB) MarkExtracted(id string, gaps int) error {
	return db.markStage(id, "extracted_at", "extraction_gaps = ?", gaps)
}

// MarkSelected records selection completion.
func (db *DB) MarkSelected(id string) error {
	return db.markStage(id, "selected_at", "", nil)
}

// MarkScheduled records scheduling completion.
func (db *DB) MarkScheduled(id string) error {
	return db.markStage(id, "scheduled_at", "", nil)
}

// MarkNotified records that the boundary payload was handed off.
func (db *DB) MarkNotified(id string) error {
	return db.markStage(id, "notified_at", "", nil)
}

func (db *DB) markStage(id, column, extra string, extraArg any) error {
	query := "UPDATE documents SET " + column + " = ?"
	args := []any{formatTime(time.Now())}
	if extra != "" {
		query += ", " + extra
		args = append(args, extraArg)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("marking %s for %s: %w", column, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("marking %s: document %s not in ledger", column, id)
	}
	return nil
}

// ReplaceHighlights stores a document's extracted highlights, replacing any
// previous extraction. Runs in one transaction so a crash cannot leave a
// half-written sequence behind.
func (db *DB) ReplaceHighlights(docID string, highlights []Highlight) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin highlight insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM highlights WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("clearing highlights for %s: %w", docID, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO highlights (document_id, position, text, color, marker, page, location, chapter, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing highlight insert: %w", err)
	}
	defer stmt.Close()

	for i, h := range highlights {
		if _, err := stmt.Exec(docID, i, h.Text, h.Color, h.Marker, h.Page, h.Location, h.Chapter, h.Note); err != nil {
			return fmt.Errorf("inserting highlight %d for %s: %w", i, docID, err)
		}
	}

	return tx.Commit()
}

// GetHighlights returns a document's highlights in reading order.
func (db *DB) GetHighlights(docID string) ([]Highlight, error) {
	rows, err := db.conn.Query(
		`SELECT id, document_id, position, text, color, marker, page, location, chapter, note
		FROM highlights WHERE document_id = ? ORDER BY position`, docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var highlights []Highlight
	for rows.Next() {
		var h Highlight
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.Position, &h.Text, &h.Color,
			&h.Marker, &h.Page, &h.Location, &h.Chapter, &h.Note); err != nil {
			return nil, err
		}
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}

// ReplaceCandidates stores the selected candidates of one kind for a
// document, replacing any previous selection of that kind.
func (db *DB) ReplaceCandidates(docID, kind string, candidates []Candidate) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin candidate insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM candidates WHERE document_id = ? AND kind = ?", docID, kind); err != nil {
		return fmt.Errorf("clearing %s candidates for %s: %w", kind, docID, err)
	}

	for _, c := range candidates {
		ranked := 0
		if c.Ranked {
			ranked = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO candidates (document_id, kind, rank, title, summary, excerpt, ranked)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			docID, kind, c.Rank, c.Title, c.Summary, c.Excerpt, ranked,
		); err != nil {
			return fmt.Errorf("inserting %s candidate %q: %w", kind, c.Title, err)
		}
	}

	return tx.Commit()
}

// GetCandidates returns a document's candidates of one kind, best rank first.
func (db *DB) GetCandidates(docID, kind string) ([]Candidate, error) {
	rows, err := db.conn.Query(
		`SELECT id, document_id, kind, rank, title, summary, excerpt, ranked, created_at
		FROM candidates WHERE document_id = ? AND kind = ? ORDER BY rank`, docID, kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var ranked int
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Kind, &c.Rank, &c.Title,
			&c.Summary, &c.Excerpt, &ranked, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Ranked = ranked != 0
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
