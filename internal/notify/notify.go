// Package notify is the outbound boundary for fully-processed documents.
// The pipeline hands each document's complete result set to a Notifier
// exactly once and does not react to the outcome beyond logging it.
package notify

import (
	"context"
	"log"

	"kindling/internal/database"
)

// Payload is the complete result set for one fully-processed document,
// delivered to the boundary as a single unit.
type Payload struct {
	DocumentID     string
	Title          string
	Author         string
	Concepts       []database.Candidate
	Actions        []database.Candidate
	Quotes         []database.Highlight
	Disagreements  []database.Highlight
	Unknown        []database.Highlight
	ExtractionGaps int
}

// Notifier receives one payload per processed document.
type Notifier interface {
	Notify(ctx context.Context, p *Payload) error
}

// LogNotifier summarizes payloads to the log. Used when no vault is
// configured and as the no-op boundary in tests.
type LogNotifier struct{}

// Notify logs a one-line summary of the payload.
func (LogNotifier) Notify(_ context.Context, p *Payload) error {
	log.Printf("processed %q by %s: %d concepts, %d actions, %d quotes, %d disagreements, %d unclassified",
		p.Title, p.Author, len(p.Concepts), len(p.Actions), len(p.Quotes), len(p.Disagreements), len(p.Unknown))
	return nil
}
