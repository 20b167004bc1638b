package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"kindling/internal/database"
)

const bookNoteTemplate = `---
title: "{{.Title}}"
author: "{{.Author}}"
processed: {{.Date}}
tags:
  - book
---

# {{.Title}}

*by {{.Author}}*
{{if .Concepts}}
## Key Concepts

{{range .Concepts}}- [[{{.Title}}]]{{if .Summary}}: {{.Summary}}{{end}}
{{end}}{{end}}{{if .Actions}}
## Action Items

{{range .Actions}}- [ ] {{.Title}}{{if .Summary}}: {{.Summary}}{{end}}
{{end}}{{end}}{{if .Quotes}}
## Quotes

{{range .Quotes}}> "{{.Text}}"
> — *{{highlightLocation .}}*

{{end}}{{end}}{{if .Disagreements}}
## Disagreements

{{range .Disagreements}}> "{{.Text}}"
> — *{{highlightLocation .}}*

*My thoughts:* [Add your response here]

{{end}}{{end}}`

const conceptNoteTemplate = `---
title: "{{.Concept.Title}}"
source: "[[{{.Book}}]]"
author: "{{.Author}}"
created: {{.Date}}
tags:
  - concept
  - from-reading
---

# {{.Concept.Title}}
{{if .Concept.Summary}}
{{.Concept.Summary}}
{{end}}{{if .Concept.Excerpt}}
## Original Highlight

> "{{.Concept.Excerpt}}"
> — *{{.Book}}*
{{end}}
## In My Own Words

*(Explain the concept as if teaching it.)*

## Connections

*(Link related notes here.)*
`

var unsafeFilename = regexp.MustCompile(`[<>:"/\\|?*]+`)

// NoteWriter renders markdown notes into a vault directory: one book note
// per document under Books/, one note per selected concept under Ideas/.
type NoteWriter struct {
	vaultDir string
	bookTmpl *template.Template
	concTmpl *template.Template
	now      func() time.Time
}

// NewNoteWriter creates a note writer targeting the given vault directory.
func NewNoteWriter(vaultDir string) (*NoteWriter, error) {
	funcs := template.FuncMap{
		"highlightLocation": highlightLocation,
	}
	bookTmpl, err := template.New("book").Funcs(funcs).Parse(bookNoteTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing book note template: %w", err)
	}
	concTmpl, err := template.New("concept").Parse(conceptNoteTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing concept note template: %w", err)
	}
	return &NoteWriter{
		vaultDir: vaultDir,
		bookTmpl: bookTmpl,
		concTmpl: concTmpl,
		now:      time.Now,
	}, nil
}

// Notify writes the book note and one note per concept candidate.
func (w *NoteWriter) Notify(_ context.Context, p *Payload) error {
	date := w.now().Format("2006-01-02")

	var book strings.Builder
	err := w.bookTmpl.Execute(&book, map[string]any{
		"Title":         p.Title,
		"Author":        p.Author,
		"Date":          date,
		"Concepts":      p.Concepts,
		"Actions":       p.Actions,
		"Quotes":        p.Quotes,
		"Disagreements": p.Disagreements,
	})
	if err != nil {
		return fmt.Errorf("rendering book note for %s: %w", p.DocumentID, err)
	}
	if err := w.writeNote(filepath.Join("Books", noteFilename(p.Title)), book.String()); err != nil {
		return err
	}

	for _, c := range p.Concepts {
		var note strings.Builder
		err := w.concTmpl.Execute(&note, map[string]any{
			"Concept": c,
			"Book":    p.Title,
			"Author":  p.Author,
			"Date":    date,
		})
		if err != nil {
			return fmt.Errorf("rendering concept note %q: %w", c.Title, err)
		}
		if err := w.writeNote(filepath.Join("Ideas", noteFilename(c.Title)), note.String()); err != nil {
			return err
		}
	}

	return nil
}

func (w *NoteWriter) writeNote(rel, content string) error {
	path := filepath.Join(w.vaultDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating note directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing note %s: %w", rel, err)
	}
	return nil
}

// noteFilename makes a title safe to use as a markdown filename.
func noteFilename(title string) string {
	name := unsafeFilename.ReplaceAllString(title, "")
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		name = "Untitled"
	}
	if len(name) > 120 {
		name = strings.TrimSpace(name[:120])
	}
	return name + ".md"
}

func highlightLocation(h database.Highlight) string {
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
