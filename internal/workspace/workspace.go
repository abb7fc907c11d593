// Package workspace runs analyses against a local thread store. The command
// line tools and the MCP server share it.
package workspace

import (
	"context"
	"fmt"
	"strings"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/feedback"
	"cohorte/api/internal/lines"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/store"
	"cohorte/api/internal/threads"
)

// Store is what a workspace needs from local storage. store.BoltStore
// satisfies it.
type Store interface {
	threads.Store
	PutDocument(ctx context.Context, doc store.Document) error
}

type Workspace struct {
	requester   *feedback.Requester
	store       Store
	mapper      *threads.Mapper
	maxParallel int
	maxPersonas int
}

func New(requester *feedback.Requester, st Store, maxParallel, maxPersonas int) *Workspace {
	if maxPersonas <= 0 {
		maxPersonas = 10
	}
	w := &Workspace{requester: requester, store: st, maxParallel: maxParallel, maxPersonas: maxPersonas}
	if st != nil {
		w.mapper = threads.NewMapper(st, nil)
	}
	return w
}

// Report is the outcome of one local analysis.
type Report struct {
	DocumentID     string                       `json:"documentId,omitempty"`
	Lines          []lines.IndexedLine          `json:"lines"`
	Analyses       []annotation.PersonaAnalysis `json:"analyses"`
	FailedPersonas []string                     `json:"failedPersonas"`
	Threads        []threads.Thread             `json:"threads,omitempty"`
}

type Input struct {
	DocumentID string
	Title      string
	Text       string
	Personas   []persona.Persona
	// OnDone is called as each persona resolves.
	OnDone func(feedback.Result)
}

// Analyze runs the personas over the text. When the workspace has a store
// and a document id is given, the script is saved and its feedback mapped
// onto the document's threads.
func (w *Workspace) Analyze(ctx context.Context, in Input) (Report, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Report{}, fmt.Errorf("analyze %s: text is empty", in.DocumentID)
	}
	personas := persona.Limit(in.Personas, w.maxPersonas)
	items := lines.Index(in.Text)

	results, err := w.requester.Batch(ctx, personas, items, w.maxParallel, in.OnDone)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		DocumentID:     in.DocumentID,
		Lines:          items,
		Analyses:       make([]annotation.PersonaAnalysis, 0, len(results)),
		FailedPersonas: []string{},
	}
	contributions := make([]threads.Contribution, 0, len(results))
	for i, res := range results {
		report.Analyses = append(report.Analyses, res.Analysis)
		contributions = append(contributions, threads.Contribution{PersonaID: personas[i].ID, Analysis: res.Analysis})
		if res.IsStub() {
			report.FailedPersonas = append(report.FailedPersonas, res.Persona.DisplayName())
		}
	}

	if w.store == nil || in.DocumentID == "" {
		return report, nil
	}
	title := in.Title
	if title == "" {
		title = in.DocumentID
	}
	if err := w.store.PutDocument(ctx, store.Document{ID: in.DocumentID, Title: title, Body: lines.Normalize(in.Text)}); err != nil {
		return Report{}, fmt.Errorf("save document %s: %w", in.DocumentID, err)
	}
	mapped, err := w.mapper.Map(ctx, in.DocumentID, items, contributions)
	if err != nil {
		return Report{}, fmt.Errorf("map threads for %s: %w", in.DocumentID, err)
	}
	report.Threads = mapped
	return report, nil
}

// Threads lists the stored threads of a document.
func (w *Workspace) Threads(ctx context.Context, documentID string) ([]threads.Thread, error) {
	if w.store == nil {
		return nil, fmt.Errorf("no thread store configured")
	}
	return w.store.GetAllThreads(ctx, documentID)
}
