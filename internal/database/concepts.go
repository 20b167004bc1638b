package database

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateTrackedConcept inserts a tracked concept if no row with the same
// concept id exists. Returns true when a row was created, false when the
// concept was already tracked. The ON CONFLICT clause is what makes concept
// creation idempotent under concurrent reprocessing.
func (db *DB) CreateTrackedConcept(tc *TrackedConcept) (bool, error) {
	var lastReviewed *string
	if tc.LastReviewedAt != nil {
		s := formatTime(*tc.LastReviewedAt)
		lastReviewed = &s
	}

	res, err := db.conn.Exec(
		`INSERT INTO tracked_concepts
			(concept_id, title, source_document_id, created_at, last_reviewed_at,
			 review_count, interval_index, next_due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(concept_id) DO NOTHING`,
		tc.ConceptID, tc.Title, tc.SourceDocumentID, formatTime(tc.CreatedAt),
		lastReviewed, tc.ReviewCount, tc.IntervalIndex, formatTime(tc.NextDueAt),
	)
	if err != nil {
		return false, fmt.Errorf("creating tracked concept %s: %w", tc.ConceptID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("creating tracked concept %s: %w", tc.ConceptID, err)
	}
	return n > 0, nil
}

// GetTrackedConcept returns a tracked concept by id, or nil if unknown.
func (db *DB) GetTrackedConcept(conceptID string) (*TrackedConcept, error) {
	row := db.conn.QueryRow(
		`SELECT concept_id, title, source_document_id, created_at, last_reviewed_at,
			review_count, interval_index, next_due_at
		FROM tracked_concepts WHERE concept_id = ?`, conceptID,
	)
	tc, err := scanTrackedConcept(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tracked concept %s: %w", conceptID, err)
	}
	return tc, nil
}

// GetTrackedConceptByTitle returns a tracked concept by exact title, or nil.
// Used by the review command, where the user names the concept, not its id.
func (db *DB) GetTrackedConceptByTitle(title string) (*TrackedConcept, error) {
	row := db.conn.QueryRow(
		`SELECT concept_id, title, source_document_id, created_at, last_reviewed_at,
			review_count, interval_index, next_due_at
		FROM tracked_concepts WHERE title = ? ORDER BY created_at LIMIT 1`, title,
	)
	tc, err := scanTrackedConcept(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tracked concept %q: %w", title, err)
	}
	return tc, nil
}

// UpdateTrackedConceptReview persists the scheduler's review transition.
func (db *DB) UpdateTrackedConceptReview(conceptID string, lastReviewed time.Time, reviewCount, intervalIndex int, nextDue time.Time) error {
	res, err := db.conn.Exec(
		`UPDATE tracked_concepts
		SET last_reviewed_at = ?, review_count = ?, interval_index = ?, next_due_at = ?
		WHERE concept_id = ?`,
		formatTime(lastReviewed), reviewCount, intervalIndex, formatTime(nextDue), conceptID,
	)
	if err != nil {
		return fmt.Errorf("recording review for %s: %w", conceptID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording review: concept %s not tracked", conceptID)
	}
	return nil
}

// DueTrackedConcepts returns concepts due as of the given time, most overdue
// first, creation time as tie-break. RFC 3339 strings order like the times
// they encode, so the comparison happens in SQL.
func (db *DB) DueTrackedConcepts(asOf time.Time) ([]TrackedConcept, error) {
	return db.queryTrackedConcepts(
		`SELECT concept_id, title, source_document_id, created_at, last_reviewed_at,
			review_count, interval_index, next_due_at
		FROM tracked_concepts WHERE next_due_at <= ?
		ORDER BY next_due_at, created_at`, formatTime(asOf),
	)
}

// ListTrackedConcepts returns all tracked concepts, next due first.
func (db *DB) ListTrackedConcepts() ([]TrackedConcept, error) {
	return db.queryTrackedConcepts(
		`SELECT concept_id, title, source_document_id, created_at, last_reviewed_at,
			review_count, interval_index, next_due_at
		FROM tracked_concepts ORDER BY next_due_at, created_at`,
	)
}

func (db *DB) queryTrackedConcepts(query string, args ...any) ([]TrackedConcept, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var concepts []TrackedConcept
	for rows.Next() {
		tc, err := scanTrackedConcept(rows.Scan)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, *tc)
	}
	return concepts, rows.Err()
}

func scanTrackedConcept(scan func(...any) error) (*TrackedConcept, error) {
	var (
		tc           TrackedConcept
		createdAt    string
		lastReviewed *string
		nextDue      string
	)
	if err := scan(&tc.ConceptID, &tc.Title, &tc.SourceDocumentID, &createdAt,
		&lastReviewed, &tc.ReviewCount, &tc.IntervalIndex, &nextDue); err != nil {
		return nil, err
	}

	var err error
	if tc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tc.NextDueAt, err = parseTime(nextDue); err != nil {
		return nil, err
	}
	if lastReviewed != nil {
		t, err := parseTime(*lastReviewed)
		if err != nil {
			return nil, err
		}
		tc.LastReviewedAt = &t
	}
	return &tc, nil
}

// GetStats returns aggregate statistics for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	singles := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &s.Documents},
		{`SELECT COUNT(*) FROM documents
			WHERE extracted_at IS NOT NULL AND selected_at IS NOT NULL
			AND scheduled_at IS NOT NULL AND notified_at IS NOT NULL`, &s.DocumentsProcessed},
		{"SELECT COUNT(*) FROM highlights", &s.TotalHighlights},
		{"SELECT COALESCE(SUM(extraction_gaps), 0) FROM documents", &s.ExtractionGaps},
		{"SELECT COUNT(*) FROM candidates WHERE kind = 'concept'", &s.ConceptCandidates},
		{"SELECT COUNT(*) FROM candidates WHERE kind = 'action'", &s.ActionCandidates},
		{"SELECT COUNT(*) FROM tracked_concepts", &s.TrackedConcepts},
	}
	for _, q := range singles {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("reading stats: %w", err)
		}
	}

	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM tracked_concepts WHERE next_due_at <= ?",
		formatTime(time.Now()),
	).Scan(&s.ReviewsDue); err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	return s, nil
}
