package search

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/threads"
)

func TestThreadRecordFrom(t *testing.T) {
	rec := ThreadRecordFrom(threads.Thread{
		ID:              "thr_1",
		DocumentID:      "doc_1",
		HighlightedText: "She drops the plate.",
		Resolved:        true,
		Comments: []threads.Comment{
			{Text: "Too sudden", Author: "Léa", AuthorType: threads.AuthorAI, Category: annotation.CategoryIssue},
			{Text: "  ", Author: "Alex", AuthorType: threads.AuthorAI, Category: annotation.CategoryPraise},
			{Text: "Agreed", Author: "Léa", AuthorType: threads.AuthorAI, Category: annotation.CategoryIssue},
		},
	})
	if rec.Body != "Too sudden\nAgreed" {
		t.Fatalf("unexpected body %q", rec.Body)
	}
	if strings.Join(rec.Authors, ",") != "Alex,Léa" || strings.Join(rec.Categories, ",") != "issue,praise" {
		t.Fatalf("unexpected facets %#v", rec)
	}
	if !rec.Resolved || rec.DocumentID != "doc_1" {
		t.Fatalf("unexpected record %#v", rec)
	}
}

func TestBuildQueriesFilters(t *testing.T) {
	queries := buildQueries(Query{Text: "plate", DocumentID: "doc_1"})
	if len(queries) != 2 {
		t.Fatalf("expected both indexes, got %d", len(queries))
	}
	if queries[0].IndexUID != idxDocuments || queries[0].Filter.([]string)[0] != `id = "doc_1"` {
		t.Fatalf("unexpected document query %#v", queries[0])
	}
	if queries[1].Filter.([]string)[0] != `documentId = "doc_1"` || queries[1].Limit != 20 {
		t.Fatalf("unexpected thread query %#v", queries[1])
	}
	only := buildQueries(Query{Text: "plate", FilterType: ResultThread, Limit: 5})
	if len(only) != 1 || only[0].IndexUID != idxThreads || only[0].Limit != 5 {
		t.Fatalf("unexpected filtered queries %#v", only)
	}
}

func TestHitToResultPrefersFormatted(t *testing.T) {
	hit := meili.Hit{
		"id":              json.RawMessage(`"thr_1"`),
		"documentId":      json.RawMessage(`"doc_1"`),
		"highlightedText": json.RawMessage(`"She drops the plate."`),
		"body":            json.RawMessage(`"Too sudden"`),
		"_formatted":      json.RawMessage(`{"body":"Too <mark>sudden</mark>","authors":["Léa"]}`),
	}
	r := hitToResult(hit, ResultThread)
	if r.ID != "thr_1" || r.DocumentID != "doc_1" || r.Title != "She drops the plate." || r.Snippet != "Too <mark>sudden</mark>" {
		t.Fatalf("unexpected result %#v", r)
	}
	doc := hitToResult(meili.Hit{"id": json.RawMessage(`"doc_9"`), "title": json.RawMessage(`"Pilot"`)}, ResultDocument)
	if doc.DocumentID != "doc_9" || doc.Title != "Pilot" {
		t.Fatalf("unexpected document result %#v", doc)
	}
}

func TestBuildPgQueries(t *testing.T) {
	countSQL, dataSQL, args := buildPgQueries(Query{Text: "plate", DocumentID: "doc_1", Limit: 5, Offset: -3})
	if len(args) != 2 || args[1] != "doc_1" {
		t.Fatalf("unexpected args %#v", args)
	}
	if !strings.Contains(countSQL, "UNION ALL") || !strings.Contains(dataSQL, "LIMIT 5 OFFSET 0") {
		t.Fatalf("unexpected sql:\n%s\n%s", countSQL, dataSQL)
	}
	_, dataSQL, args = buildPgQueries(Query{Text: "plate", FilterType: ResultDocument})
	if len(args) != 1 || strings.Contains(dataSQL, "thread_comments") {
		t.Fatalf("document filter should skip threads:\n%s", dataSQL)
	}
}

func TestServiceWithoutBackends(t *testing.T) {
	s := NewService(nil, nil)
	resp := s.Search(context.Background(), Query{Text: "anything"})
	if resp.Results == nil || resp.Total != 0 || resp.Query != "anything" {
		t.Fatalf("unexpected response %#v", resp)
	}
	// indexing without meilisearch is a no-op
	s.IndexThreads([]threads.Thread{{ID: "thr_1"}})
	s.IndexDocument(DocumentRecord{ID: "doc_1"})
	var nilService *Service
	nilService.DeleteThread("thr_1")
}
