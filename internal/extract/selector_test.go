package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"kindling/internal/parse"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	prompts  []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func bucket(texts ...string) []parse.Highlight {
	var hs []parse.Highlight
	for _, t := range texts {
		hs = append(hs, parse.Highlight{Text: t, Color: parse.ColorConcept})
	}
	return hs
}

func rankedResponse(t *testing.T, titles ...string) string {
	t.Helper()
	var sels []map[string]any
	for i, title := range titles {
		sels = append(sels, map[string]any{
			"title":            title,
			"summary":          "summary of " + title,
			"source_highlight": i,
		})
	}
	data, err := json.Marshal(map[string]any{"selections": sels})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func src() Source { return Source{Title: "Test Book", Author: "Anon"} }

func TestSelectRankedByReasoner(t *testing.T) {
	mock := &mockProvider{response: rankedResponse(t, "First Concept", "Second Concept")}
	s := NewSelector(mock, "profile text")

	got := s.SelectConcepts(context.Background(), src(), bucket("alpha", "beta", "gamma"), 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Title != "First Concept" || got[0].Rank != 1 || !got[0].Ranked {
		t.Errorf("first candidate wrong: %+v", got[0])
	}
	if got[0].Excerpt != "alpha" || got[1].Excerpt != "beta" {
		t.Errorf("excerpts not resolved from bucket: %q, %q", got[0].Excerpt, got[1].Excerpt)
	}
}

func TestSelectTruncatesToBound(t *testing.T) {
	// Reasoner proposes five although only three were requested.
	mock := &mockProvider{response: rankedResponse(t, "A", "B", "C", "D", "E")}
	s := NewSelector(mock, "")

	got := s.SelectConcepts(context.Background(), src(), bucket("1", "2", "3", "4", "5"), 3)
	if len(got) != 3 {
		t.Fatalf("bound exceeded: got %d candidates", len(got))
	}
	if got[2].Title != "C" {
		t.Errorf("truncation not by rank: %q", got[2].Title)
	}
}

func TestSelectSmallBucketUnderBound(t *testing.T) {
	mock := &mockProvider{response: rankedResponse(t, "Only A", "Only B")}
	s := NewSelector(mock, "")

	got := s.SelectConcepts(context.Background(), src(), bucket("a", "b"), 10)
	if len(got) != 2 {
		t.Errorf("expected all 2 returned, got %d", len(got))
	}
}

func TestSelectFallbackOnReasonerError(t *testing.T) {
	mock := &mockProvider{err: errors.New("timeout")}
	s := NewSelector(mock, "")

	got := s.SelectActions(context.Background(), src(), bucket("do one", "do two", "do three"), 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 fallback candidates, got %d", len(got))
	}
	for i, c := range got {
		if c.Ranked {
			t.Errorf("fallback candidate %d flagged as ranked", i)
		}
	}
	// Original reading order preserved.
	if got[0].Excerpt != "do one" || got[2].Excerpt != "do three" {
		t.Errorf("fallback order wrong: %q ... %q", got[0].Excerpt, got[2].Excerpt)
	}
}

func TestSelectFallbackOnMalformedResponse(t *testing.T) {
	mock := &mockProvider{response: "I could not produce JSON today."}
	s := NewSelector(mock, "")

	got := s.SelectConcepts(context.Background(), src(), bucket("a", "b"), 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 fallback candidate, got %d", len(got))
	}
	if got[0].Ranked {
		t.Error("fallback candidate flagged as ranked")
	}
}

func TestSelectNilProviderFallsBack(t *testing.T) {
	s := NewSelector(nil, "")
	got := s.SelectConcepts(context.Background(), src(), bucket("a", "b", "c", "d"), 2)
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].Ranked || got[1].Ranked {
		t.Error("expected unranked fallback output")
	}
}

func TestSelectDropsOutOfRangeReferences(t *testing.T) {
	resp := `{"selections": [
		{"title": "Good", "summary": "s", "source_highlight": 0},
		{"title": "Bad Index", "summary": "s", "source_highlight": 99},
		{"title": "", "summary": "empty title", "source_highlight": 1}
	]}`
	mock := &mockProvider{response: resp}
	s := NewSelector(mock, "")

	got := s.SelectConcepts(context.Background(), src(), bucket("a", "b"), 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 usable candidate, got %d", len(got))
	}
	if got[0].Title != "Good" || got[0].Rank != 1 {
		t.Errorf("unexpected candidate: %+v", got[0])
	}
}

func TestSelectZeroBound(t *testing.T) {
	mock := &mockProvider{response: rankedResponse(t, "A")}
	s := NewSelector(mock, "")
	if got := s.SelectConcepts(context.Background(), src(), bucket("a"), 0); got != nil {
		t.Errorf("expected nil for zero bound, got %v", got)
	}
	if len(mock.prompts) != 0 {
		t.Error("reasoner should not be called for zero bound")
	}
}

func TestSelectEmptyBucket(t *testing.T) {
	mock := &mockProvider{}
	s := NewSelector(mock, "")
	if got := s.SelectConcepts(context.Background(), src(), nil, 10); got != nil {
		t.Errorf("expected nil for empty bucket, got %v", got)
	}
}

func TestReasonerNeverSeesDuplicates(t *testing.T) {
	mock := &mockProvider{response: rankedResponse(t, "A")}
	s := NewSelector(mock, "")

	s.SelectConcepts(context.Background(), src(), bucket("Same  text", "same text", "other"), 10)
	if len(mock.prompts) != 1 {
		t.Fatalf("expected 1 reasoner call, got %d", len(mock.prompts))
	}
	prompt := mock.prompts[0]
	if !strings.Contains(prompt, "\n[1] other\n") {
		t.Errorf("deduplicated bucket not renumbered, prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "\n[2]") {
		t.Error("duplicate highlight reached the reasoner")
	}
}

func TestDeduplicate(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want int
	}{
		{"exact duplicates", []string{"a", "a", "b"}, 2},
		{"case insensitive", []string{"Hello World", "hello world"}, 1},
		{"whitespace insensitive", []string{"hello  world", "hello world", " hello world "}, 1},
		{"distinct", []string{"a", "b", "c"}, 3},
		{"empty", nil, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Deduplicate(bucket(c.in...))
			if len(got) != c.want {
				t.Errorf("got %d, want %d", len(got), c.want)
			}
		})
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	in := bucket("a", "A", "b", "a  ")
	once := Deduplicate(in)
	twice := Deduplicate(once)
	if len(once) != len(twice) {
		t.Fatalf("dedup not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Text != twice[i].Text {
			t.Errorf("entry %d differs after second dedup", i)
		}
	}
}

func TestSelectionEqualOverDuplicatePair(t *testing.T) {
	// Selecting over a bucket with an exact duplicate pair matches selecting
	// over the pre-deduplicated bucket.
	mock := &mockProvider{response: rankedResponse(t, "A", "B")}
	s := NewSelector(mock, "")

	withDup := s.SelectConcepts(context.Background(), src(), bucket("x", "x", "y"), 10)
	mock2 := &mockProvider{response: rankedResponse(t, "A", "B")}
	s2 := NewSelector(mock2, "")
	preDeduped := s2.SelectConcepts(context.Background(), src(), bucket("x", "y"), 10)

	if fmt.Sprintf("%+v", withDup) != fmt.Sprintf("%+v", preDeduped) {
		t.Errorf("selection differs:\n%+v\n%+v", withDup, preDeduped)
	}
}

func TestFallbackTitleShortening(t *testing.T) {
	long := "This is a very long highlight that goes on and on well past the sixty character limit for titles"
	title := fallbackTitle(long)
	if len(title) > 64 {
		t.Errorf("title too long: %q", title)
	}
	if fallbackTitle("short") != "short" {
		t.Error("short text should pass through")
	}
}
