// Package extract selects the most salient concepts and actions from a
// document's highlight buckets.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"

	"kindling/internal/llm"
	"kindling/internal/parse"
)

const conceptPrompt = `You are analyzing book highlights to select the most important concepts.

Book: %q by %s

Reader profile for relevance weighting:
%s

Highlights marked as key concepts:
%s

Select the TOP %d concepts, best first. Prioritize concepts that are relevant
to the reader's profile, represent distinct ideas from the book, and would be
valuable as standalone knowledge notes.

Respond with ONLY this JSON:
{
    "selections": [
        {"title": "Short memorable concept name (2-5 words)", "summary": "One sentence summary", "source_highlight": 0}
    ]
}

source_highlight is the 0-based index of the highlight that best supports the selection.`

const actionPrompt = `You are analyzing book highlights to select actionable tasks.

Book: %q by %s

Reader profile for relevance weighting:
%s

Highlights marked for action:
%s

Select the TOP %d most impactful, achievable actions, best first. Prefer
actions that are specific, have verifiable outcomes, and could realistically
be started within a few weeks.

Respond with ONLY this JSON:
{
    "selections": [
        {"title": "Action title starting with a verb (max 60 chars)", "summary": "Context and suggested approach", "source_highlight": 0}
    ]
}

source_highlight is the 0-based index of the highlight that inspired the action.`

// Candidate is one selected item, ranked best-first. Ranked is false when the
// candidate came from the deterministic reading-order fallback instead of the
// reasoner.
type Candidate struct {
	Title   string
	Summary string
	Excerpt string
	Rank    int
	Ranked  bool
}

// Source identifies the document a bucket came from, for prompt context.
type Source struct {
	Title  string
	Author string
}

// Selector picks a bounded, ranked subset of a highlight bucket. The reader
// profile is carried as an opaque blob into the reasoner prompt; the selector
// itself never interprets it.
type Selector struct {
	provider llm.Provider
	profile  string
}

// NewSelector creates a selector. provider may be nil, in which case every
// selection uses the deterministic fallback.
func NewSelector(provider llm.Provider, profile string) *Selector {
	return &Selector{provider: provider, profile: profile}
}

// SelectConcepts selects up to bound concepts from the concept bucket.
func (s *Selector) SelectConcepts(ctx context.Context, src Source, bucket []parse.Highlight, bound int) []Candidate {
	return s.selectTop(ctx, "concept", conceptPrompt, src, bucket, bound)
}

// SelectActions selects up to bound actions from the action bucket.
func (s *Selector) SelectActions(ctx context.Context, src Source, bucket []parse.Highlight, bound int) []Candidate {
	return s.selectTop(ctx, "action", actionPrompt, src, bucket, bound)
}

func (s *Selector) selectTop(ctx context.Context, kind, promptTemplate string, src Source, bucket []parse.Highlight, bound int) []Candidate {
	if bound <= 0 || len(bucket) == 0 {
		return nil
	}

	// The reasoner must never see (or rank) the same text twice.
	deduped := Deduplicate(bucket)

	if s.provider == nil {
		log.Printf("no reasoner available, selecting %ss in reading order", kind)
		return fallbackSelect(deduped, bound)
	}

	prompt := fmt.Sprintf(promptTemplate, src.Title, src.Author, s.profileText(), formatBucket(deduped), bound)

	response, err := s.provider.Generate(ctx, prompt, 4096)
	if err != nil {
		log.Printf("reasoner unavailable for %s selection, falling back to reading order: %v", kind, err)
		return fallbackSelect(deduped, bound)
	}

	candidates, err := decodeSelections(response, deduped)
	if err != nil {
		log.Printf("unusable reasoner response for %s selection, falling back to reading order: %v", kind, err)
		return fallbackSelect(deduped, bound)
	}

	// Truncation happens after ranking, by rank order: the reasoner may
	// propose more than asked for, the bound always wins.
	if len(candidates) > bound {
		candidates = candidates[:bound]
	}
	return candidates
}

func (s *Selector) profileText() string {
	if strings.TrimSpace(s.profile) == "" {
		return "No profile provided"
	}
	return s.profile
}

type selectionResponse struct {
	Selections []struct {
		Title           string `json:"title"`
		Summary         string `json:"summary"`
		SourceHighlight int    `json:"source_highlight"`
	} `json:"selections"`
}

// decodeSelections parses the reasoner's response into candidates. Items with
// an empty title or an out-of-range highlight index are dropped; an entirely
// unusable response is an error so the caller can fall back.
func decodeSelections(response string, deduped []parse.Highlight) ([]Candidate, error) {
	var parsed selectionResponse
	if err := llm.DecodeJSONResponse(response, &parsed); err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, sel := range parsed.Selections {
		title := strings.TrimSpace(sel.Title)
		if title == "" {
			continue
		}
		if sel.SourceHighlight < 0 || sel.SourceHighlight >= len(deduped) {
			log.Printf("reasoner referenced highlight %d of %d, dropping selection %q", sel.SourceHighlight, len(deduped), title)
			continue
		}
		candidates = append(candidates, Candidate{
			Title:   title,
			Summary: strings.TrimSpace(sel.Summary),
			Excerpt: deduped[sel.SourceHighlight].Text,
			Rank:    len(candidates) + 1,
			Ranked:  true,
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no usable selections in reasoner response")
	}
	return candidates, nil
}

// fallbackSelect takes the first bound highlights in reading order, flagged
// unranked so downstream consumers can tell fallback output from reasoner
// output.
func fallbackSelect(deduped []parse.Highlight, bound int) []Candidate {
	n := bound
	if len(deduped) < n {
		n = len(deduped)
	}
	candidates := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		candidates = append(candidates, Candidate{
			Title:   fallbackTitle(deduped[i].Text),
			Excerpt: deduped[i].Text,
			Rank:    i + 1,
			Ranked:  false,
		})
	}
	return candidates
}

// fallbackTitle shortens a highlight into a usable title.
func fallbackTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= 60 {
		return text
	}
	cut := strings.LastIndex(text[:60], " ")
	if cut <= 0 {
		cut = 60
	}
	return text[:cut] + "..."
}

func formatBucket(highlights []parse.Highlight) string {
	var b strings.Builder
	for i, h := range highlights {
		fmt.Fprintf(&b, "[%d] %s", i, h.Text)
		if h.Chapter != nil {
			fmt.Fprintf(&b, " (Chapter: %s)", *h.Chapter)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Deduplicate removes near-identical highlights, keeping the first occurrence
// in reading order. Comparison is case- and whitespace-insensitive; anything
// fuzzier would make selection nondeterministic.
func Deduplicate(highlights []parse.Highlight) []parse.Highlight {
	seen := make(map[string]struct{}, len(highlights))
	var out []parse.Highlight
	for _, h := range highlights {
		key := normalizeText(h.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
