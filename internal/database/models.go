package database

import "time"

// Processing stages recorded in the document ledger, in pipeline order.
const (
	StageExtract  = "extract"
	StageSelect   = "select"
	StageSchedule = "schedule"
	StageNotify   = "notify"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageExtract, StageSelect, StageSchedule, StageNotify}

// Document is the per-export ledger entry. The stage timestamps record which
// pipeline stages have completed, which is what makes skip and resume safe
// after a crash.
type Document struct {
	ID             string
	Title          string
	Author         *string
	SourceFile     *string
	ExtractionGaps int
	ExtractedAt    *string
	SelectedAt     *string
	ScheduledAt    *string
	NotifiedAt     *string
	CreatedAt      *string
}

// StageDone reports whether the given stage has completed for this document.
func (d Document) StageDone(stage string) bool {
	switch stage {
	case StageExtract:
		return d.ExtractedAt != nil
	case StageSelect:
		return d.SelectedAt != nil
	case StageSchedule:
		return d.ScheduledAt != nil
	case StageNotify:
		return d.NotifiedAt != nil
	}
	return false
}

// NextStage returns the first incomplete stage, or "" when the document is
// fully processed.
func (d Document) NextStage() string {
	for _, stage := range Stages {
		if !d.StageDone(stage) {
			return stage
		}
	}
	return ""
}

// Processed reports whether every pipeline stage has completed.
func (d Document) Processed() bool {
	return d.NextStage() == ""
}

// Highlight is a stored highlight row. Position is the reading order within
// the document.
type Highlight struct {
	ID         int64
	DocumentID string
	Position   int
	Text       string
	Color      string
	Marker     *string
	Page       *int
	Location   *int
	Chapter    *string
	Note       *string
}

// Candidate kinds.
const (
	KindConcept = "concept"
	KindAction  = "action"
)

// Candidate is a selected, ranked concept or action for a document. Ranked
// is false when the row came from the deterministic reading-order fallback
// rather than the reasoner.
type Candidate struct {
	ID         int64
	DocumentID string
	Kind       string
	Rank       int
	Title      string
	Summary    string
	Excerpt    string
	Ranked     bool
	CreatedAt  *string
}

// TrackedConcept is a concept under spaced-repetition review. Its identity is
// derived from title and source document, so reprocessing the same export can
// never duplicate it.
type TrackedConcept struct {
	ConceptID        string
	Title            string
	SourceDocumentID string
	CreatedAt        time.Time
	LastReviewedAt   *time.Time
	ReviewCount      int
	IntervalIndex    int
	NextDueAt        time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Documents          int
	DocumentsProcessed int
	TotalHighlights    int
	ExtractionGaps     int
	ConceptCandidates  int
	ActionCandidates   int
	TrackedConcepts    int
	ReviewsDue         int
}
