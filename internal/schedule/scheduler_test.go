package schedule

import (
	"path/filepath"
	"testing"
	"time"

	"kindling/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.UpsertDocument("book-1", "Test Book", nil, nil)
	return db
}

func day(n int) time.Time {
	return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestConceptIDStable(t *testing.T) {
	a := ConceptID("Insight over numbers", "book-1")
	b := ConceptID("Insight over numbers", "book-1")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if ConceptID("Insight over numbers", "book-2") == a {
		t.Error("different source should produce a different id")
	}
	if ConceptID("Other concept", "book-1") == a {
		t.Error("different title should produce a different id")
	}
}

func TestCreateNewConcept(t *testing.T) {
	s := NewScheduler(openTestDB(t), nil)

	tc, created, err := s.Create("Insight over numbers", "book-1", day(0))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created {
		t.Error("expected a new concept")
	}
	if tc.IntervalIndex != 0 || tc.ReviewCount != 0 {
		t.Errorf("new concept state wrong: %+v", tc)
	}
	// First review due one interval after creation: day 0 + 1 = day 1.
	if !tc.NextDueAt.Equal(day(1)) {
		t.Errorf("next due = %v, want %v", tc.NextDueAt, day(1))
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	s := NewScheduler(openTestDB(t), nil)

	first, created, err := s.Create("Insight over numbers", "book-1", day(0))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	// The same (title, source) pair on a later run returns the existing
	// entity untouched.
	second, created, err := s.Create("Insight over numbers", "book-1", day(5))
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Error("second create should be a no-op")
	}
	if second.ConceptID != first.ConceptID {
		t.Errorf("ids differ: %s vs %s", second.ConceptID, first.ConceptID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) || !second.NextDueAt.Equal(first.NextDueAt) {
		t.Errorf("existing entity mutated: %+v", second)
	}
}

func TestRecordReviewAdvancesInterval(t *testing.T) {
	s := NewScheduler(openTestDB(t), nil)
	tc, _, _ := s.Create("Insight over numbers", "book-1", day(0))

	// Reviewed on day 1: index 0 -> 1, next due = day 1 + 3 = day 4.
	got, err := s.RecordReview(tc.ConceptID, day(1))
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if got.IntervalIndex != 1 || got.ReviewCount != 1 {
		t.Errorf("state after review: %+v", got)
	}
	if !got.NextDueAt.Equal(day(4)) {
		t.Errorf("next due = %v, want %v", got.NextDueAt, day(4))
	}
	if got.LastReviewedAt == nil || !got.LastReviewedAt.Equal(day(1)) {
		t.Errorf("last reviewed = %v, want %v", got.LastReviewedAt, day(1))
	}
}

func TestRecordReviewSaturates(t *testing.T) {
	db := openTestDB(t)
	s := NewScheduler(db, []int{1, 3})
	tc, _, _ := s.Create("Saturating", "book-1", day(0))

	prevIdx := tc.IntervalIndex
	at := day(1)
	for i := 0; i < 5; i++ {
		got, err := s.RecordReview(tc.ConceptID, at)
		if err != nil {
			t.Fatalf("review %d failed: %v", i, err)
		}
		if got.IntervalIndex < prevIdx {
			t.Errorf("interval index regressed: %d -> %d", prevIdx, got.IntervalIndex)
		}
		if got.IntervalIndex > 1 {
			t.Errorf("interval index exceeded table: %d", got.IntervalIndex)
		}
		if got.NextDueAt.Before(at) {
			t.Errorf("next due %v before review time %v", got.NextDueAt, at)
		}
		prevIdx = got.IntervalIndex
		at = got.NextDueAt
	}
	if prevIdx != 1 {
		t.Errorf("expected saturation at index 1, got %d", prevIdx)
	}
}

func TestRecordReviewUnknownConcept(t *testing.T) {
	s := NewScheduler(openTestDB(t), nil)
	if _, err := s.RecordReview("not-a-concept", day(0)); err == nil {
		t.Error("expected error for unknown concept")
	}
}

func TestDueOrdering(t *testing.T) {
	db := openTestDB(t)
	s := NewScheduler(db, nil)

	s.Create("Oldest due", "book-1", day(0))  // due day 1
	s.Create("Just due", "book-1", day(4))    // due day 5
	s.Create("Not yet due", "book-1", day(9)) // due day 10

	due := s.Due(day(5))
	if len(due) != 2 {
		t.Fatalf("expected 2 due, got %d", len(due))
	}
	if due[0].Title != "Oldest due" || due[1].Title != "Just due" {
		t.Errorf("unexpected order: %s, %s", due[0].Title, due[1].Title)
	}
}

func TestDueIsPureOverTime(t *testing.T) {
	db := openTestDB(t)
	s := NewScheduler(db, nil)
	tc, _, _ := s.Create("Stable", "book-1", day(0))
	s.RecordReview(tc.ConceptID, day(1))

	// Repeated queries with the same as-of time see the same schedule:
	// next_due_at derives from last_reviewed_at, not from query time.
	first := s.Due(day(10))
	second := s.Due(day(10))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 due in both queries, got %d/%d", len(first), len(second))
	}
	if !first[0].NextDueAt.Equal(second[0].NextDueAt) {
		t.Error("due time changed between queries")
	}
}

func TestDueDegradesOnClosedStore(t *testing.T) {
	db := openTestDB(t)
	s := NewScheduler(db, nil)
	s.Create("Doomed", "book-1", day(0))
	db.Close()

	// Read failure degrades to "nothing due" instead of crashing.
	if due := s.Due(day(10)); len(due) != 0 {
		t.Errorf("expected no due concepts after store failure, got %d", len(due))
	}
}

func TestCustomIntervalTable(t *testing.T) {
	db := openTestDB(t)
	s := NewScheduler(db, []int{2, 5, 9})
	tc, _, _ := s.Create("Custom", "book-1", day(0))

	if !tc.NextDueAt.Equal(day(2)) {
		t.Errorf("first due = %v, want %v", tc.NextDueAt, day(2))
	}
	got, _ := s.RecordReview(tc.ConceptID, day(2))
	if !got.NextDueAt.Equal(day(7)) {
		t.Errorf("second due = %v, want %v", got.NextDueAt, day(7))
	}
}
