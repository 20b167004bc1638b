package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kindling/internal/database"
	"kindling/internal/schedule"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func newTestServer(t *testing.T, db *database.DB) (*Server, *schedule.Scheduler) {
	t.Helper()
	scheduler := schedule.NewScheduler(db, nil)
	srv, err := New(db, scheduler)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	srv.now = func() time.Time {
		return time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	}
	return srv, scheduler
}

func seedDocument(t *testing.T, db *database.DB) {
	t.Helper()
	if err := db.UpsertDocument("hamming.html", "The Art of Doing Science", ptr("Richard Hamming"), nil); err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}
	highlights := []database.Highlight{
		{DocumentID: "hamming.html", Position: 0, Text: "Luck favors the prepared mind.", Color: "concept"},
		{DocumentID: "hamming.html", Position: 1, Text: "Style matters as much as substance.", Color: "quote"},
		{DocumentID: "hamming.html", Position: 2, Text: "Some unmarked passage.", Color: "unknown", Marker: ptr("green")},
	}
	if err := db.ReplaceHighlights("hamming.html", highlights); err != nil {
		t.Fatalf("failed to seed highlights: %v", err)
	}
	candidates := []database.Candidate{
		{DocumentID: "hamming.html", Kind: database.KindConcept, Rank: 1,
			Title: "Prepared Mind", Summary: "Preparation attracts *luck*.",
			Excerpt: "Luck favors the prepared mind.", Ranked: true},
	}
	if err := db.ReplaceCandidates("hamming.html", database.KindConcept, candidates); err != nil {
		t.Fatalf("failed to seed candidates: %v", err)
	}
	if err := db.MarkExtracted("hamming.html", 1); err != nil {
		t.Fatalf("failed to mark extracted: %v", err)
	}
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	seedDocument(t, db)
	srv, _ := newTestServer(t, db)

	rec := get(srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "The Art of Doing Science") {
		t.Error("expected document title on index page")
	}
	if !strings.Contains(body, "extraction gaps") {
		t.Error("expected gap count on index page")
	}
	if !strings.Contains(body, "next: select") {
		t.Error("expected pending stage for unfinished document")
	}
}

func TestDocumentRoute(t *testing.T) {
	db := openTestDB(t)
	seedDocument(t, db)
	srv, _ := newTestServer(t, db)

	rec := get(srv, "/document/hamming.html")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Prepared Mind") {
		t.Error("expected concept candidate in response")
	}
	if !strings.Contains(body, "<em>luck</em>") {
		t.Error("expected summary rendered as markdown")
	}
	if !strings.Contains(body, "Style matters as much as substance.") {
		t.Error("expected quote in response")
	}
	if !strings.Contains(body, "Uncategorized") || !strings.Contains(body, "marker: green") {
		t.Error("expected uncategorized section with raw marker")
	}
}

func TestDocumentRouteUnknownDocument(t *testing.T) {
	db := openTestDB(t)
	srv, _ := newTestServer(t, db)

	rec := get(srv, "/document/nope.html")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReviewRoute(t *testing.T) {
	db := openTestDB(t)
	seedDocument(t, db)
	srv, scheduler := newTestServer(t, db)

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tc, _, err := scheduler.Create("Prepared Mind", "hamming.html", created)
	if err != nil {
		t.Fatalf("failed to create tracked concept: %v", err)
	}

	rec := get(srv, "/review")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Prepared Mind") {
		t.Error("expected due concept in review queue")
	}
	if !strings.Contains(body, "/review/"+tc.ConceptID+"/done") {
		t.Error("expected mark-reviewed form for due concept")
	}
}

func TestReviewDoneRoute(t *testing.T) {
	db := openTestDB(t)
	seedDocument(t, db)
	srv, scheduler := newTestServer(t, db)

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tc, _, err := scheduler.Create("Prepared Mind", "hamming.html", created)
	if err != nil {
		t.Fatalf("failed to create tracked concept: %v", err)
	}

	req := httptest.NewRequest("POST", fmt.Sprintf("/review/%s/done", tc.ConceptID), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}

	updated, err := db.GetTrackedConcept(tc.ConceptID)
	if err != nil {
		t.Fatalf("failed to reload concept: %v", err)
	}
	if updated.ReviewCount != 1 || updated.IntervalIndex != 1 {
		t.Errorf("expected review recorded, got count=%d index=%d", updated.ReviewCount, updated.IntervalIndex)
	}

	// The same concept is no longer due.
	body := get(srv, "/review").Body.String()
	if !strings.Contains(body, "Nothing due") {
		t.Error("expected empty review queue after review")
	}
}

func TestReviewDoneRequiresPost(t *testing.T) {
	db := openTestDB(t)
	srv, _ := newTestServer(t, db)

	rec := get(srv, "/review/some-id/done")
	if rec.Code != http.StatusFound {
		t.Errorf("expected redirect for GET, got %d", rec.Code)
	}
}

func TestStaticRoute(t *testing.T) {
	db := openTestDB(t)
	srv, _ := newTestServer(t, db)

	rec := get(srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-sans") {
		t.Error("expected CSS content")
	}
}
