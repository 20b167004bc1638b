// Package route groups a document's highlights into per-category buckets.
package route

import (
	"kindling/internal/parse"
)

// Batch holds one document's highlights grouped by category. Within each
// bucket the original reading order is preserved; that order is the tie-break
// for fallback selection downstream.
type Batch struct {
	Concepts      []parse.Highlight
	Actions       []parse.Highlight
	Quotes        []parse.Highlight
	Disagreements []parse.Highlight
	Unknown       []parse.Highlight
}

// Classify routes highlights into buckets. Pure regrouping: every highlight
// lands in exactly one bucket and none are dropped, the unknown bucket
// included.
func Classify(highlights []parse.Highlight) *Batch {
	b := &Batch{}
	for _, h := range highlights {
		switch h.Color {
		case parse.ColorConcept:
			b.Concepts = append(b.Concepts, h)
		case parse.ColorAction:
			b.Actions = append(b.Actions, h)
		case parse.ColorQuote:
			b.Quotes = append(b.Quotes, h)
		case parse.ColorDisagreement:
			b.Disagreements = append(b.Disagreements, h)
		default:
			b.Unknown = append(b.Unknown, h)
		}
	}
	return b
}

// Total returns the number of highlights across all buckets.
func (b *Batch) Total() int {
	return len(b.Concepts) + len(b.Actions) + len(b.Quotes) + len(b.Disagreements) + len(b.Unknown)
}

// Bucket returns the highlights for one category.
func (b *Batch) Bucket(c parse.Color) []parse.Highlight {
	switch c {
	case parse.ColorConcept:
		return b.Concepts
	case parse.ColorAction:
		return b.Actions
	case parse.ColorQuote:
		return b.Quotes
	case parse.ColorDisagreement:
		return b.Disagreements
	default:
		return b.Unknown
	}
}
