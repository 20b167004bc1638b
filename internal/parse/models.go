package parse

import (
	"fmt"
	"strings"
)

// Color is the semantic category of a highlight, derived from its annotation
// color in the export. The set is closed: anything the marker lookup does not
// recognize lands in ColorUnknown so coverage reporting can see it.
type Color string

const (
	ColorConcept      Color = "concept"      // yellow: key concepts
	ColorAction       Color = "action"       // pink: action items
	ColorQuote        Color = "quote"        // blue: quotes worth keeping
	ColorDisagreement Color = "disagreement" // orange: disagreements
	ColorUnknown      Color = "unknown"
)

// markerColors maps the color words used in Kindle note headings and
// highlight_<color> span classes to their semantic category. markerWords
// fixes the lookup order so mixed-marker headings resolve deterministically.
var markerColors = map[string]Color{
	"yellow": ColorConcept,
	"pink":   ColorAction,
	"blue":   ColorQuote,
	"orange": ColorDisagreement,
}

var markerWords = []string{"yellow", "pink", "blue", "orange"}

// Colors lists all categories in routing order, ColorUnknown last.
func Colors() []Color {
	return []Color{ColorConcept, ColorAction, ColorQuote, ColorDisagreement, ColorUnknown}
}

// ParseColor converts a stored category string back to a Color.
func ParseColor(s string) (Color, error) {
	switch c := Color(strings.ToLower(s)); c {
	case ColorConcept, ColorAction, ColorQuote, ColorDisagreement, ColorUnknown:
		return c, nil
	}
	return "", fmt.Errorf("unknown highlight category %q", s)
}

// Highlight is a single highlight extracted from an export. Immutable once
// extracted; the slice order in Document.Highlights is the reading order.
type Highlight struct {
	Text     string
	Color    Color
	Marker   string // raw color word from the export, kept for unknown markers
	Page     *int
	Location *int
	Chapter  *string
	Note     *string // user note attached to this highlight, if any
}

// LocationString formats page and location for display.
func (h Highlight) LocationString() string {
	var parts []string
	if h.Page != nil {
		parts = append(parts, fmt.Sprintf("Page %d", *h.Page))
	}
	if h.Location != nil {
		parts = append(parts, fmt.Sprintf("Location %d", *h.Location))
	}
	if len(parts) == 0 {
		return "Unknown location"
	}
	return strings.Join(parts, ", ")
}

// Document is a fully extracted export: metadata, all highlights in reading
// order, and the number of units that failed both parse strategies.
type Document struct {
	Title      string
	Author     string
	Highlights []Highlight
	Gaps       int
}

// CountByColor returns highlight counts per category.
func (d *Document) CountByColor() map[Color]int {
	counts := make(map[Color]int)
	for _, h := range d.Highlights {
		counts[h.Color]++
	}
	return counts
}
