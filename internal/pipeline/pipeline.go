// Package pipeline coordinates the extract, select, schedule and notify
// stages for each ingested document.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kindling/internal/config"
	"kindling/internal/database"
	"kindling/internal/extract"
	"kindling/internal/llm"
	"kindling/internal/notify"
	"kindling/internal/parse"
	"kindling/internal/route"
	"kindling/internal/schedule"
)

// Input is one document to process: a stable identity plus its raw markup.
// How documents are discovered is the caller's concern.
type Input struct {
	ID         string
	SourceFile string
	Data       []byte
}

// InputFromFile builds an Input from an export file on disk. The filename is
// the document identity, so re-ingesting the same export hits the same
// ledger entry.
func InputFromFile(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("reading export %s: %w", path, err)
	}
	return Input{
		ID:         filepath.Base(path),
		SourceFile: path,
		Data:       data,
	}, nil
}

// StepResult holds the outcome of a single pipeline stage for one document.
// Degraded marks a stage that completed through a fallback path.
type StepResult struct {
	Name     string
	Summary  string
	Degraded bool
	Err      error
}

// DocResult holds the per-stage outcomes for one document.
type DocResult struct {
	DocumentID string
	Title      string
	Skipped    bool
	Steps      []StepResult
}

// Failed reports whether any stage failed fatally.
func (r *DocResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Result holds the outcomes of a full run, one entry per input document.
type Result struct {
	Documents []DocResult
}

// Pipeline runs each document through the four stages, consulting the ledger
// before every stage so already-completed work is never repeated.
type Pipeline struct {
	cfg       *config.Config
	db        *database.DB
	selector  *extract.Selector
	scheduler *schedule.Scheduler
	notifier  notify.Notifier
	workers   int
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a pipeline. provider may be nil (selection falls back to
// reading order); notifier may be nil (boundary calls degrade to a log line).
func New(cfg *config.Config, db *database.DB, provider llm.Provider, notifier notify.Notifier) *Pipeline {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Pipeline{
		cfg:       cfg,
		db:        db,
		selector:  extract.NewSelector(provider, cfg.LoadProfile()),
		scheduler: schedule.NewScheduler(db, cfg.Review.Intervals),
		notifier:  notifier,
		workers:   4,
		now:       time.Now,
	}
}

// Scheduler exposes the pipeline's scheduler for review commands.
func (p *Pipeline) Scheduler() *schedule.Scheduler {
	return p.scheduler
}

// Run processes documents concurrently, up to the worker limit. Operations on
// the same document id are serialized; one document's failure never aborts
// the others.
func (p *Pipeline) Run(ctx context.Context, inputs []Input) *Result {
	r := &Result{Documents: make([]DocResult, len(inputs))}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, in := range inputs {
		g.Go(func() error {
			r.Documents[i] = p.processDocument(ctx, in)
			return nil
		})
	}
	g.Wait()

	return r
}

// lockFor returns the mutex serializing work on one document id.
func (p *Pipeline) lockFor(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	if _, ok := p.locks[id]; !ok {
		p.locks[id] = &sync.Mutex{}
	}
	return p.locks[id]
}

func (p *Pipeline) processDocument(ctx context.Context, in Input) DocResult {
	lock := p.lockFor(in.ID)
	lock.Lock()
	defer lock.Unlock()

	r := DocResult{DocumentID: in.ID}

	// First encounter creates the ledger entry; metadata is refreshed after
	// extraction once the real title is known.
	doc, err := p.db.GetDocument(in.ID)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Ledger", Err: err})
		return r
	}
	if doc != nil && doc.Processed() {
		r.Title = doc.Title
		r.Skipped = true
		r.Steps = append(r.Steps, StepResult{
			Name:    "Ledger",
			Summary: fmt.Sprintf("already processed (%d highlights, %d gaps), skipping", p.storedHighlightCount(in.ID), doc.ExtractionGaps),
		})
		return r
	}
	if doc == nil {
		if err := p.db.UpsertDocument(in.ID, in.ID, nil, strPtr(in.SourceFile)); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Ledger", Err: err})
			return r
		}
		doc, err = p.db.GetDocument(in.ID)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Ledger", Err: err})
			return r
		}
	}

	for _, stage := range database.Stages {
		if doc.StageDone(stage) {
			r.Steps = append(r.Steps, StepResult{Name: stageName(stage), Summary: "already complete, resuming"})
			continue
		}

		var step StepResult
		switch stage {
		case database.StageExtract:
			step = p.runExtract(in)
		case database.StageSelect:
			step = p.runSelect(ctx, in.ID)
		case database.StageSchedule:
			step = p.runSchedule(in.ID)
		case database.StageNotify:
			step = p.runNotify(ctx, in.ID)
		}
		r.Steps = append(r.Steps, step)
		if step.Err != nil {
			// The ledger keeps the partial progress; the next run resumes
			// from this stage.
			break
		}

		doc, err = p.db.GetDocument(in.ID)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Ledger", Err: err})
			break
		}
	}

	if doc != nil {
		r.Title = doc.Title
	}
	return r
}

func (p *Pipeline) runExtract(in Input) StepResult {
	log.Printf("[%s] extracting highlights", in.ID)

	doc, err := parse.Parse(in.Data)
	if err != nil {
		return StepResult{Name: "Extract", Err: err}
	}

	if err := p.db.UpsertDocument(in.ID, doc.Title, strPtr(doc.Author), strPtr(in.SourceFile)); err != nil {
		return StepResult{Name: "Extract", Err: err}
	}
	if err := p.db.ReplaceHighlights(in.ID, toStoredHighlights(in.ID, doc.Highlights)); err != nil {
		return StepResult{Name: "Extract", Err: err}
	}
	if err := p.db.MarkExtracted(in.ID, doc.Gaps); err != nil {
		return StepResult{Name: "Extract", Err: err}
	}

	return StepResult{
		Name:     "Extract",
		Summary:  fmt.Sprintf("%d highlights, %d gaps", len(doc.Highlights), doc.Gaps),
		Degraded: doc.Gaps > 0,
	}
}

func (p *Pipeline) runSelect(ctx context.Context, docID string) StepResult {
	log.Printf("[%s] selecting concepts and actions", docID)

	doc, err := p.db.GetDocument(docID)
	if err != nil {
		return StepResult{Name: "Select", Err: err}
	}
	stored, err := p.db.GetHighlights(docID)
	if err != nil {
		return StepResult{Name: "Select", Err: err}
	}

	batch := route.Classify(toParsedHighlights(stored))
	src := extract.Source{Title: doc.Title, Author: deref(doc.Author)}

	concepts := p.selector.SelectConcepts(ctx, src, batch.Concepts, p.cfg.Selection.MaxConcepts)
	actions := p.selector.SelectActions(ctx, src, batch.Actions, p.cfg.Selection.MaxActions)

	if err := p.db.ReplaceCandidates(docID, database.KindConcept, toStoredCandidates(docID, database.KindConcept, concepts)); err != nil {
		return StepResult{Name: "Select", Err: err}
	}
	if err := p.db.ReplaceCandidates(docID, database.KindAction, toStoredCandidates(docID, database.KindAction, actions)); err != nil {
		return StepResult{Name: "Select", Err: err}
	}
	if err := p.db.MarkSelected(docID); err != nil {
		return StepResult{Name: "Select", Err: err}
	}

	degraded := unranked(concepts) || unranked(actions)
	summary := fmt.Sprintf("%d concepts, %d actions", len(concepts), len(actions))
	if degraded {
		summary += " (reading-order fallback)"
	}
	return StepResult{Name: "Select", Summary: summary, Degraded: degraded}
}

func (p *Pipeline) runSchedule(docID string) StepResult {
	log.Printf("[%s] scheduling concept reviews", docID)

	concepts, err := p.db.GetCandidates(docID, database.KindConcept)
	if err != nil {
		return StepResult{Name: "Schedule", Err: err}
	}

	now := p.now()
	created := 0
	for _, c := range concepts {
		_, isNew, err := p.scheduler.Create(c.Title, docID, now)
		if err != nil {
			// A lost create would corrupt the review schedule, so this is
			// fatal to the stage; the ledger lets the next run retry it.
			return StepResult{Name: "Schedule", Err: err}
		}
		if isNew {
			created++
		}
	}

	if err := p.db.MarkScheduled(docID); err != nil {
		return StepResult{Name: "Schedule", Err: err}
	}

	return StepResult{
		Name:    "Schedule",
		Summary: fmt.Sprintf("%d concepts tracked (%d new)", len(concepts), created),
	}
}

func (p *Pipeline) runNotify(ctx context.Context, docID string) StepResult {
	log.Printf("[%s] handing off to renderer", docID)

	payload, err := p.buildPayload(docID)
	if err != nil {
		return StepResult{Name: "Notify", Err: err}
	}

	// Fire-and-forget: the boundary's outcome is logged, never acted on.
	degraded := false
	if err := p.notifier.Notify(ctx, payload); err != nil {
		log.Printf("[%s] renderer boundary failed: %v", docID, err)
		degraded = true
	}

	if err := p.db.MarkNotified(docID); err != nil {
		return StepResult{Name: "Notify", Err: err}
	}

	summary := "handed off"
	if degraded {
		summary = "handed off, renderer reported failure"
	}
	return StepResult{Name: "Notify", Summary: summary, Degraded: degraded}
}

func (p *Pipeline) buildPayload(docID string) (*notify.Payload, error) {
	doc, err := p.db.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	stored, err := p.db.GetHighlights(docID)
	if err != nil {
		return nil, err
	}
	concepts, err := p.db.GetCandidates(docID, database.KindConcept)
	if err != nil {
		return nil, err
	}
	actions, err := p.db.GetCandidates(docID, database.KindAction)
	if err != nil {
		return nil, err
	}

	payload := &notify.Payload{
		DocumentID:     docID,
		Title:          doc.Title,
		Author:         deref(doc.Author),
		Concepts:       concepts,
		Actions:        actions,
		ExtractionGaps: doc.ExtractionGaps,
	}
	for _, h := range stored {
		switch h.Color {
		case string(parse.ColorQuote):
			payload.Quotes = append(payload.Quotes, h)
		case string(parse.ColorDisagreement):
			payload.Disagreements = append(payload.Disagreements, h)
		case string(parse.ColorUnknown):
			payload.Unknown = append(payload.Unknown, h)
		}
	}
	return payload, nil
}

func (p *Pipeline) storedHighlightCount(docID string) int {
	stored, err := p.db.GetHighlights(docID)
	if err != nil {
		return 0
	}
	return len(stored)
}

func stageName(stage string) string {
	switch stage {
	case database.StageExtract:
		return "Extract"
	case database.StageSelect:
		return "Select"
	case database.StageSchedule:
		return "Schedule"
	case database.StageNotify:
		return "Notify"
	}
	return stage
}

func toStoredHighlights(docID string, highlights []parse.Highlight) []database.Highlight {
	out := make([]database.Highlight, 0, len(highlights))
	for i, h := range highlights {
		out = append(out, database.Highlight{
			DocumentID: docID,
			Position:   i,
			Text:       h.Text,
			Color:      string(h.Color),
			Marker:     strPtr(h.Marker),
			Page:       h.Page,
			Location:   h.Location,
			Chapter:    h.Chapter,
			Note:       h.Note,
		})
	}
	return out
}

func toParsedHighlights(stored []database.Highlight) []parse.Highlight {
	out := make([]parse.Highlight, 0, len(stored))
	for _, h := range stored {
		color, err := parse.ParseColor(h.Color)
		if err != nil {
			color = parse.ColorUnknown
		}
		out = append(out, parse.Highlight{
			Text:     h.Text,
			Color:    color,
			Marker:   deref(h.Marker),
			Page:     h.Page,
			Location: h.Location,
			Chapter:  h.Chapter,
			Note:     h.Note,
		})
	}
	return out
}

func toStoredCandidates(docID, kind string, candidates []extract.Candidate) []database.Candidate {
	out := make([]database.Candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, database.Candidate{
			DocumentID: docID,
			Kind:       kind,
			Rank:       c.Rank,
			Title:      c.Title,
			Summary:    c.Summary,
			Excerpt:    c.Excerpt,
			Ranked:     c.Ranked,
		})
	}
	return out
}

func unranked(candidates []extract.Candidate) bool {
	for _, c := range candidates {
		if !c.Ranked {
			return true
		}
	}
	return false
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
