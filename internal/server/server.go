// Package server is the local review dashboard: processed documents, their
// selected concepts and actions, and the spaced-repetition due queue.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"kindling/internal/database"
	"kindling/internal/schedule"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server serves the review dashboard.
type Server struct {
	db        *database.DB
	scheduler *schedule.Scheduler
	pages     map[string]*template.Template
	mux       *http.ServeMux
	now       func() time.Time
}

// New creates a new Server.
func New(db *database.DB, scheduler *schedule.Scheduler) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"day": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "document.html", "review.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, scheduler: scheduler, pages: pages, mux: http.NewServeMux(), now: time.Now}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/document/", s.handleDocument)
	s.mux.HandleFunc("/review", s.handleReview)
	s.mux.HandleFunc("/review/", s.handleReviewDone)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	documents, err := s.db.ListDocuments()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Documents": documents,
		"Stats":     stats,
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/document/")
	if docID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	doc, err := s.db.GetDocument(docID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.NotFound(w, r)
		return
	}

	concepts, _ := s.db.GetCandidates(docID, database.KindConcept)
	actions, _ := s.db.GetCandidates(docID, database.KindAction)
	highlights, _ := s.db.GetHighlights(docID)

	var quotes, disagreements, unknown []database.Highlight
	for _, h := range highlights {
		switch h.Color {
		case "quote":
			quotes = append(quotes, h)
		case "disagreement":
			disagreements = append(disagreements, h)
		case "unknown":
			unknown = append(unknown, h)
		}
	}

	s.render(w, "document.html", map[string]any{
		"Document":      doc,
		"Concepts":      concepts,
		"Actions":       actions,
		"Quotes":        quotes,
		"Disagreements": disagreements,
		"Unknown":       unknown,
	})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	due := s.scheduler.Due(s.now())
	s.render(w, "review.html", map[string]any{
		"Due":  due,
		"Date": s.now().Format("2006-01-02"),
	})
}

// handleReviewDone records a completed review: POST /review/<concept-id>/done.
func (s *Server) handleReviewDone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/review", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/review/")
	conceptID, action, found := strings.Cut(path, "/")
	if !found || action != "done" || conceptID == "" {
		http.Redirect(w, r, "/review", http.StatusFound)
		return
	}

	if _, err := s.scheduler.RecordReview(conceptID, s.now()); err != nil {
		log.Printf("recording review for %s: %v", conceptID, err)
	}

	http.Redirect(w, r, "/review", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, scheduler *schedule.Scheduler, port int) error {
	srv, err := New(db, scheduler)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
