// Package schedule owns the spaced-repetition lifecycle of tracked concepts.
package schedule

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"kindling/internal/database"
)

// DefaultIntervals is the review schedule in day offsets: 1 day, 3 days,
// 1 week, 2 weeks, 1 month, 3 months. The last interval repeats indefinitely.
var DefaultIntervals = []int{1, 3, 7, 14, 30, 90}

// conceptNamespace is the UUIDv5 namespace for concept identities.
var conceptNamespace = uuid.MustParse("9f2c1f6e-60a4-4a5b-8f0d-2d2f4f7b9c11")

// ConceptID derives the stable identity of a concept from its title and
// source document. The same (title, source) pair always maps to the same id,
// which is what makes creation idempotent across reprocessing runs.
func ConceptID(title, sourceDocumentID string) string {
	return uuid.NewSHA1(conceptNamespace, []byte(sourceDocumentID+"\x00"+title)).String()
}

// Scheduler advances tracked concepts through the review interval table. All
// mutation of tracked concepts goes through here; the interval table is
// injected so tests can run against arbitrary schedules.
type Scheduler struct {
	db        *database.DB
	intervals []int
}

// NewScheduler creates a scheduler with the given interval table, falling
// back to DefaultIntervals when none is configured.
func NewScheduler(db *database.DB, intervals []int) *Scheduler {
	if len(intervals) == 0 {
		intervals = DefaultIntervals
	}
	return &Scheduler{db: db, intervals: intervals}
}

// Intervals returns the active interval table.
func (s *Scheduler) Intervals() []int {
	return s.intervals
}

// Create starts tracking a concept, or returns the existing entity when the
// same (title, source) pair is already tracked. A new concept enters at
// interval index 0 with its first review due one interval after creation.
// Returns whether a new row was created. Persistence failures are fatal to
// the operation: silently losing a create would corrupt the review schedule.
func (s *Scheduler) Create(title, sourceDocumentID string, at time.Time) (*database.TrackedConcept, bool, error) {
	tc := &database.TrackedConcept{
		ConceptID:        ConceptID(title, sourceDocumentID),
		Title:            title,
		SourceDocumentID: sourceDocumentID,
		CreatedAt:        at,
		ReviewCount:      0,
		IntervalIndex:    0,
		NextDueAt:        at.AddDate(0, 0, s.intervals[0]),
	}

	created, err := s.db.CreateTrackedConcept(tc)
	if err != nil {
		return nil, false, fmt.Errorf("creating concept %q: %w", title, err)
	}
	if created {
		return tc, true, nil
	}

	existing, err := s.db.GetTrackedConcept(tc.ConceptID)
	if err != nil {
		return nil, false, fmt.Errorf("reading existing concept %q: %w", title, err)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("concept %q vanished after create conflict", title)
	}
	return existing, false, nil
}

// RecordReview marks a concept reviewed at the given time. The interval index
// advances by one, saturating at the last entry (spaced repetition here is
// unbounded, there is no terminal state), and the next due time is computed
// from the review time, never from the wall clock at query time.
func (s *Scheduler) RecordReview(conceptID string, at time.Time) (*database.TrackedConcept, error) {
	tc, err := s.db.GetTrackedConcept(conceptID)
	if err != nil {
		return nil, fmt.Errorf("reading concept %s: %w", conceptID, err)
	}
	if tc == nil {
		return nil, fmt.Errorf("concept %s not tracked", conceptID)
	}

	idx := tc.IntervalIndex + 1
	if idx > len(s.intervals)-1 {
		idx = len(s.intervals) - 1
	}

	reviewed := at
	tc.LastReviewedAt = &reviewed
	tc.ReviewCount++
	tc.IntervalIndex = idx
	tc.NextDueAt = at.AddDate(0, 0, s.intervals[idx])

	if err := s.db.UpdateTrackedConceptReview(conceptID, reviewed, tc.ReviewCount, idx, tc.NextDueAt); err != nil {
		return nil, err
	}
	return tc, nil
}

// Due returns all concepts due as of the given time, most overdue first with
// creation time as tie-break. A read failure degrades to an empty result with
// a warning: a broken reporting query should not crash a run.
func (s *Scheduler) Due(asOf time.Time) []database.TrackedConcept {
	due, err := s.db.DueTrackedConcepts(asOf)
	if err != nil {
		log.Printf("warning: could not read due concepts, reporting none due: %v", err)
		return nil
	}
	return due
}
