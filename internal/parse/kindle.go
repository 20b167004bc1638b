package parse

import (
	"bytes"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	pageExpr     = regexp.MustCompile(`(?i)Page\s+(\d+)`)
	locationExpr = regexp.MustCompile(`(?i)Location\s+(\d+)`)
	markerExpr   = regexp.MustCompile(`(?i)\(\s*([a-z]+)\s*\)`)

	// notePairExpr recovers heading/text pairs from raw markup when the
	// structural parse fails. Kindle exports frequently close the noteHeading
	// with </div> and the noteText with </h3>, so both closers are accepted.
	notePairExpr = regexp.MustCompile(
		`(?is)<h3\s+class=['"]noteHeading['"]>(.*?)</(?:h3|div)>\s*<div\s+class=['"]noteText['"]>(.*?)</(?:h3|div)>`)

	tagExpr = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Parse extracts all highlights from a Kindle HTML notebook export. It is a
// pure function of the input bytes: the same document always yields the same
// sequence of highlights.
//
// The export format interleaves section headings with noteHeading/noteText
// pairs, and the markup is often malformed (noteText nested inside the h3, or
// mismatched closing tags). A structural pass handles both the well-formed and
// the nested shape; units it cannot recover fall back to a pattern scan over
// their raw markup. Units that fail both are counted as gaps and logged, never
// aborting the parse.
func Parse(data []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing export markup: %w", err)
	}

	d := &Document{
		Title:  "Unknown Title",
		Author: "Unknown Author",
	}
	if t := strings.TrimSpace(doc.Find("div.bookTitle").First().Text()); t != "" {
		d.Title = t
	}
	if a := strings.TrimSpace(doc.Find("div.authors").First().Text()); a != "" {
		d.Author = a
	}

	var currentChapter *string

	doc.Find("h2.sectionHeading, h3.noteHeading").Each(func(_ int, sel *goquery.Selection) {
		if sel.Is("h2.sectionHeading") {
			ch := strings.TrimSpace(sel.Text())
			currentChapter = &ch
			return
		}

		heading, text, ok := extractUnit(sel)
		if !ok {
			d.Gaps++
			log.Printf("extraction gap: unrecoverable noteHeading unit %q", truncate(heading, 60))
			return
		}

		if isUserNote(heading) {
			// User notes annotate the preceding highlight.
			if n := len(d.Highlights); n > 0 {
				note := text
				d.Highlights[n-1].Note = &note
			}
			return
		}
		if !isHighlightHeading(heading) {
			return
		}

		marker := extractMarker(heading, sel)
		color, found := markerColors[marker]
		if !found {
			color = ColorUnknown
			if marker != "" {
				log.Printf("unknown color marker %q, routing to unknown bucket", marker)
			}
		}

		h := Highlight{
			Text:    text,
			Color:   color,
			Marker:  marker,
			Chapter: currentChapter,
		}
		if m := pageExpr.FindStringSubmatch(heading); m != nil {
			if p, err := strconv.Atoi(m[1]); err == nil {
				h.Page = &p
			}
		}
		if m := locationExpr.FindStringSubmatch(heading); m != nil {
			if l, err := strconv.Atoi(m[1]); err == nil {
				h.Location = &l
			}
		}
		d.Highlights = append(d.Highlights, h)
	})

	// Markup so broken the structural pass found no note units at all:
	// pattern-scan the whole document instead.
	if len(d.Highlights) == 0 && d.Gaps == 0 {
		d.Highlights = scanPairs(string(data), &d.Gaps)
	}

	return d, nil
}

// extractUnit recovers the heading text and highlighted text for one
// noteHeading element. Handles the well-formed case (noteText is the next
// sibling) and the malformed case (noteText swallowed inside the h3). Falls
// back to a pattern scan over the unit's own markup.
func extractUnit(sel *goquery.Selection) (heading, text string, ok bool) {
	heading = strings.TrimSpace(sel.Contents().Not("div.noteText").Text())

	if nested := sel.Find("div.noteText"); nested.Length() > 0 {
		text = strings.TrimSpace(nested.First().Text())
	} else if next := sel.Next(); next.Is("div.noteText") {
		text = strings.TrimSpace(next.Text())
	}
	if heading != "" && text != "" {
		return heading, text, true
	}

	// Structural recovery failed for this unit; scan its raw markup.
	raw, err := goquery.OuterHtml(sel)
	if err == nil {
		if next := sel.Next(); next.Length() > 0 {
			if nraw, nerr := goquery.OuterHtml(next); nerr == nil {
				raw += nraw
			}
		}
		if m := notePairExpr.FindStringSubmatch(raw); m != nil {
			heading = stripTags(m[1])
			text = stripTags(m[2])
		}
	}

	return heading, text, heading != "" && text != ""
}

// scanPairs is the whole-document pattern fallback used when the structural
// pass recovers nothing.
func scanPairs(raw string, gaps *int) []Highlight {
	var highlights []Highlight
	for _, m := range notePairExpr.FindAllStringSubmatch(raw, -1) {
		heading := stripTags(m[1])
		text := stripTags(m[2])
		if heading == "" || text == "" {
			*gaps++
			continue
		}
		if isUserNote(heading) {
			if n := len(highlights); n > 0 {
				note := text
				highlights[n-1].Note = &note
			}
			continue
		}
		if !isHighlightHeading(heading) {
			continue
		}

		marker := markerWord(heading)
		color, found := markerColors[marker]
		if !found {
			color = ColorUnknown
		}
		h := Highlight{Text: text, Color: color, Marker: marker}
		if pm := pageExpr.FindStringSubmatch(heading); pm != nil {
			if p, err := strconv.Atoi(pm[1]); err == nil {
				h.Page = &p
			}
		}
		if lm := locationExpr.FindStringSubmatch(heading); lm != nil {
			if l, err := strconv.Atoi(lm[1]); err == nil {
				h.Location = &l
			}
		}
		highlights = append(highlights, h)
	}
	return highlights
}

// extractMarker finds the color word for a highlight. Color spans
// (highlight_<color>) take precedence over words in the heading text.
func extractMarker(heading string, sel *goquery.Selection) string {
	for _, word := range markerWords {
		if sel.Find("span.highlight_"+word).Length() > 0 {
			return word
		}
	}
	return markerWord(heading)
}

// markerWord pulls the parenthesized color word out of a heading like
// "Highlight (yellow) - Page 12 · Location 345".
func markerWord(heading string) string {
	if m := markerExpr.FindStringSubmatch(heading); m != nil {
		return strings.ToLower(m[1])
	}
	lower := strings.ToLower(heading)
	for _, word := range markerWords {
		if strings.Contains(lower, word) {
			return word
		}
	}
	return ""
}

func isHighlightHeading(heading string) bool {
	return strings.Contains(strings.ToLower(heading), "highlight")
}

func isUserNote(heading string) bool {
	lower := strings.TrimSpace(strings.ToLower(heading))
	return strings.HasPrefix(lower, "note -") || strings.HasPrefix(lower, "note-")
}

func stripTags(s string) string {
	return strings.TrimSpace(tagExpr.ReplaceAllString(s, ""))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
