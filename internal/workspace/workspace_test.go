package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"cohorte/api/internal/feedback"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/store"
	"cohorte/api/internal/threads"
)

const script = "INT. KITCHEN - NIGHT\nShe drops the plate.\n\nHe laughs."

func newTestWorkspace(t *testing.T, client llm.Client) (*Workspace, *store.BoltStore) {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "cohorte.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if client == nil {
		client = llm.NewMock()
	}
	return New(feedback.NewRequester(client, nil, nil), st, 2, 3), st
}

func TestAnalyzeMapsThreadsIntoStore(t *testing.T) {
	w, st := newTestWorkspace(t, nil)
	ctx := context.Background()

	var done atomic.Int32
	report, err := w.Analyze(ctx, Input{
		DocumentID: "scripts/kitchen.txt",
		Text:       script,
		OnDone:     func(feedback.Result) { done.Add(1) },
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if done.Load() != 1 {
		t.Fatalf("expected one progress callback for the default persona, got %d", done.Load())
	}
	if len(report.Lines) != 4 || len(report.Analyses) != 1 {
		t.Fatalf("unexpected report shape: %d lines, %d analyses", len(report.Lines), len(report.Analyses))
	}
	if report.Analyses[0].PersonaName != persona.Default().DisplayName() {
		t.Fatalf("expected default persona, got %q", report.Analyses[0].PersonaName)
	}
	if len(report.Threads) == 0 {
		t.Fatal("expected mapped threads")
	}

	stored, err := st.GetAllThreads(ctx, "scripts/kitchen.txt")
	if err != nil {
		t.Fatalf("GetAllThreads failed: %v", err)
	}
	if len(stored) != len(report.Threads) {
		t.Fatalf("expected %d stored threads, got %d", len(report.Threads), len(stored))
	}
	doc, err := st.GetDocument(ctx, "scripts/kitchen.txt")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc.Body != script || doc.Title != "scripts/kitchen.txt" {
		t.Fatalf("unexpected stored document %#v", doc)
	}

	again, err := w.Analyze(ctx, Input{DocumentID: "scripts/kitchen.txt", Text: script})
	if err != nil {
		t.Fatalf("second Analyze failed: %v", err)
	}
	listed, err := w.Threads(ctx, "scripts/kitchen.txt")
	if err != nil {
		t.Fatalf("Threads failed: %v", err)
	}
	if len(listed) != len(again.Threads) || len(listed) != len(stored) {
		t.Fatalf("re-analysis must reuse threads: %d vs %d", len(listed), len(stored))
	}
}

func TestAnalyzeWithoutDocumentSkipsStore(t *testing.T) {
	w, st := newTestWorkspace(t, nil)
	report, err := w.Analyze(context.Background(), Input{Text: script})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.Threads != nil {
		t.Fatalf("expected no threads, got %d", len(report.Threads))
	}
	docs, err := st.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty store, got %d documents", len(docs))
	}
}

func TestAnalyzeTruncatesPersonas(t *testing.T) {
	w, _ := newTestWorkspace(t, nil)
	personas := []persona.Persona{
		{ID: "p1", FirstName: "Ana"},
		{ID: "p2", FirstName: "Ben"},
		{ID: "p3", FirstName: "Chloé"},
		{ID: "p4", FirstName: "Dan"},
	}
	report, err := w.Analyze(context.Background(), Input{Text: script, Personas: personas})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.Analyses) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(report.Analyses))
	}
}

func TestAnalyzeReportsStubPersonas(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Request) (json.RawMessage, error) {
		return nil, errors.New("upstream down")
	})
	w, _ := newTestWorkspace(t, client)
	report, err := w.Analyze(context.Background(), Input{DocumentID: "a.txt", Text: script})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.FailedPersonas) != 1 {
		t.Fatalf("expected one failed persona, got %v", report.FailedPersonas)
	}
	if len(report.Threads) != 0 {
		t.Fatalf("stub analyses must not create threads, got %d", len(report.Threads))
	}
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	w, _ := newTestWorkspace(t, nil)
	if _, err := w.Analyze(context.Background(), Input{DocumentID: "a.txt", Text: "  \n"}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestThreadsWithoutStore(t *testing.T) {
	w := New(feedback.NewRequester(llm.NewMock(), nil, nil), nil, 1, 1)
	if _, err := w.Threads(context.Background(), "a.txt"); err == nil {
		t.Fatal("expected error without a store")
	}
	var _ threads.Store = (*store.BoltStore)(nil)
}
