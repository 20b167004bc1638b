package route

import (
	"testing"

	"kindling/internal/parse"
)

func hl(text string, c parse.Color) parse.Highlight {
	return parse.Highlight{Text: text, Color: c}
}

func TestClassifyRoutesByColor(t *testing.T) {
	highlights := []parse.Highlight{
		hl("a concept", parse.ColorConcept),
		hl("an action", parse.ColorAction),
		hl("a quote", parse.ColorQuote),
		hl("a disagreement", parse.ColorDisagreement),
		hl("second concept", parse.ColorConcept),
	}

	b := Classify(highlights)

	if len(b.Concepts) != 2 {
		t.Errorf("expected 2 concepts, got %d", len(b.Concepts))
	}
	if len(b.Actions) != 1 || len(b.Quotes) != 1 || len(b.Disagreements) != 1 {
		t.Errorf("unexpected bucket sizes: %d/%d/%d", len(b.Actions), len(b.Quotes), len(b.Disagreements))
	}
	if b.Total() != len(highlights) {
		t.Errorf("classification dropped highlights: %d != %d", b.Total(), len(highlights))
	}
}

func TestClassifyPreservesOrder(t *testing.T) {
	highlights := []parse.Highlight{
		hl("first", parse.ColorConcept),
		hl("between", parse.ColorQuote),
		hl("second", parse.ColorConcept),
		hl("third", parse.ColorConcept),
	}

	b := Classify(highlights)
	want := []string{"first", "second", "third"}
	for i, h := range b.Concepts {
		if h.Text != want[i] {
			t.Errorf("concept %d: got %q, want %q", i, h.Text, want[i])
		}
	}
}

func TestClassifyUnknownRetained(t *testing.T) {
	highlights := []parse.Highlight{
		hl("normal", parse.ColorConcept),
		hl("mystery", parse.ColorUnknown),
	}

	b := Classify(highlights)
	if len(b.Unknown) != 1 {
		t.Fatalf("unknown highlight dropped: %d", len(b.Unknown))
	}
	if b.Total() != 2 {
		t.Errorf("total %d, want 2", b.Total())
	}
}

func TestClassifyEmpty(t *testing.T) {
	b := Classify(nil)
	if b.Total() != 0 {
		t.Errorf("expected empty batch, got total %d", b.Total())
	}
}

func TestBucketAccessor(t *testing.T) {
	b := Classify([]parse.Highlight{
		hl("c", parse.ColorConcept),
		hl("u", parse.ColorUnknown),
	})
	if got := b.Bucket(parse.ColorConcept); len(got) != 1 || got[0].Text != "c" {
		t.Errorf("bucket accessor wrong for concept: %v", got)
	}
	if got := b.Bucket(parse.ColorUnknown); len(got) != 1 || got[0].Text != "u" {
		t.Errorf("bucket accessor wrong for unknown: %v", got)
	}
}
