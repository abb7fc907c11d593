// Package search indexes scripts and their feedback threads, querying
// Meilisearch when it is reachable and Postgres full-text search otherwise.
package search

import (
	"context"
	"sort"
	"strings"

	"cohorte/api/internal/threads"
)

type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultThread   ResultType = "thread"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	DocumentID string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a script.
type DocumentRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ThreadRecord is the data we index for a feedback thread. Body joins every
// comment so one hit covers the whole margin note.
type ThreadRecord struct {
	ID              string   `json:"id"`
	DocumentID      string   `json:"documentId"`
	HighlightedText string   `json:"highlightedText"`
	Body            string   `json:"body"`
	Authors         []string `json:"authors"`
	Categories      []string `json:"categories"`
	Resolved        bool     `json:"resolved"`
}

// ThreadRecordFrom flattens a thread for indexing.
func ThreadRecordFrom(t threads.Thread) ThreadRecord {
	bodies := make([]string, 0, len(t.Comments))
	authors := map[string]struct{}{}
	categories := map[string]struct{}{}
	for _, c := range t.Comments {
		if text := strings.TrimSpace(c.Text); text != "" {
			bodies = append(bodies, text)
		}
		if c.Author != "" {
			authors[c.Author] = struct{}{}
		}
		if c.Category != "" {
			categories[string(c.Category)] = struct{}{}
		}
	}
	return ThreadRecord{
		ID:              t.ID,
		DocumentID:      t.DocumentID,
		HighlightedText: t.HighlightedText,
		Body:            strings.Join(bodies, "\n"),
		Authors:         sortedKeys(authors),
		Categories:      sortedKeys(categories),
		Resolved:        t.Resolved,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
