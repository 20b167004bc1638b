// Package inbox discovers Kindle HTML exports waiting to be processed.
package inbox

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kindling/internal/database"
)

// Result holds the outcome of a scan.
type Result struct {
	TotalFound int
	New        int
	Processed  int
}

// Scanner finds export files in a directory and checks them against the
// document ledger.
type Scanner struct {
	db  *database.DB
	dir string
}

// NewScanner creates a scanner over the given inbox directory.
func NewScanner(db *database.DB, dir string) *Scanner {
	return &Scanner{db: db, dir: dir}
}

// Scan returns the paths of exports in the inbox that are not yet fully
// processed, in filename order. Already-processed exports stay in place; the
// ledger is what prevents rework, not file moves.
func (s *Scanner) Scan() ([]string, *Result, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading inbox %s: %w", s.dir, err)
	}

	r := &Result{}
	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !isExport(entry.Name()) {
			continue
		}
		r.TotalFound++

		doc, err := s.db.GetDocument(entry.Name())
		if err != nil {
			return nil, nil, fmt.Errorf("checking ledger for %s: %w", entry.Name(), err)
		}
		if doc != nil && doc.Processed() {
			r.Processed++
			continue
		}

		r.New++
		pending = append(pending, filepath.Join(s.dir, entry.Name()))
	}
	sort.Strings(pending)

	log.Printf("Inbox scan: %d export(s) found, %d pending, %d already processed", r.TotalFound, r.New, r.Processed)
	return pending, r, nil
}

func isExport(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}
