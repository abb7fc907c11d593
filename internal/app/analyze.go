package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/archive"
	"cohorte/api/internal/lines"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/threads"
	"cohorte/api/internal/util"
)

const revisionAuthor = "Cohorte"

type AnalyzeInput struct {
	Text         string            `json:"text"`
	Personas     []persona.Persona `json:"personas"`
	PopulationID string            `json:"populationId"`
	DocumentID   string            `json:"documentId"`
}

// Analyze runs every persona over the text. With a document id the
// feedback is also mapped onto that document's threads and the text is
// committed as a revision.
func (s *Service) Analyze(ctx context.Context, input AnalyzeInput) (map[string]any, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	text := lines.Normalize(input.Text)
	documentID := strings.TrimSpace(input.DocumentID)
	if documentID != "" {
		doc, err := s.store.GetDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		// thread offsets must point into the stored body
		if doc.Body != text {
			if _, err := s.UpdateDocument(ctx, documentID, nil, &text); err != nil {
				return nil, err
			}
		}
	}
	personas, err := s.resolvePersonas(ctx, input)
	if err != nil {
		return nil, err
	}

	runID := util.NewID("run")
	seq, finish := s.beginRun(documentID)
	defer finish()

	items := lines.Index(text)
	results, err := s.requester.Batch(ctx, personas, items, s.cfg.MaxParallel, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze run %s: %w", runID, err)
	}

	analyses := make([]annotation.PersonaAnalysis, 0, len(results))
	contributions := make([]threads.Contribution, 0, len(results))
	failed := make([]string, 0)
	for i, res := range results {
		analyses = append(analyses, res.Analysis)
		contributions = append(contributions, threads.Contribution{PersonaID: personas[i].ID, Analysis: res.Analysis})
		if res.IsStub() {
			failed = append(failed, res.Persona.DisplayName())
		}
	}

	payload := map[string]any{
		"runId":          runID,
		"lines":          items,
		"analyses":       analyses,
		"failedPersonas": failed,
	}
	transcript := archive.Transcript{
		RunID:      runID,
		DocumentID: documentID,
		Model:      s.model,
		Lines:      items,
		Analyses:   analyses,
		CreatedAt:  s.now(),
	}

	if documentID != "" {
		if !s.isLatestRun(documentID, seq) {
			log.Printf("analyze: run %s for %s superseded, discarding", runID, documentID)
			return nil, ErrRunSuperseded
		}
		mapped, err := s.mapper.Map(ctx, documentID, items, contributions)
		if err != nil {
			return nil, err
		}
		payload["threads"] = mapped
		if s.search != nil {
			s.search.IndexThreads(mapped)
		}

		if s.revisions != nil {
			message := fmt.Sprintf("Analyze with %d persona(s)\n\nrun: %s", len(personas), runID)
			revision, err := s.revisions.Commit(documentID, text, revisionAuthor, message)
			if err != nil {
				log.Printf("analyze: commit revision for %s: %v", documentID, err)
			} else {
				payload["revision"] = revision.Hash
				transcript.Revision = revision.Hash
			}
		}
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, transcript); err != nil {
			log.Printf("analyze: %v", err)
		}
	}
	return payload, nil
}

type AnalyzeDocumentInput struct {
	Text         *string           `json:"text"`
	Personas     []persona.Persona `json:"personas"`
	PopulationID string            `json:"populationId"`
}

// AnalyzeDocument analyzes a stored script. Supplied text replaces the
// stored body.
func (s *Service) AnalyzeDocument(ctx context.Context, documentID string, input AnalyzeDocumentInput) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	text := doc.Body
	if input.Text != nil && strings.TrimSpace(*input.Text) != "" {
		text = *input.Text
	}
	return s.Analyze(ctx, AnalyzeInput{
		Text:         text,
		Personas:     input.Personas,
		PopulationID: input.PopulationID,
		DocumentID:   documentID,
	})
}

func (s *Service) resolvePersonas(ctx context.Context, input AnalyzeInput) ([]persona.Persona, error) {
	personas := input.Personas
	if len(personas) == 0 && strings.TrimSpace(input.PopulationID) != "" {
		population, err := s.store.GetPopulation(ctx, strings.TrimSpace(input.PopulationID))
		if err != nil {
			return nil, err
		}
		personas = population.Personas
	}
	return persona.Limit(personas, s.maxPersonas()), nil
}

func (s *Service) maxPersonas() int {
	if s.cfg.MaxPersonas > 0 {
		return s.cfg.MaxPersonas
	}
	return 10
}

// beginRun registers a run for documentID and makes it the latest one. The
// returned func forgets the run once it was the last to start.
func (s *Service) beginRun(documentID string) (uint64, func()) {
	if documentID == "" {
		return 0, func() {}
	}
	s.runMu.Lock()
	s.runSeq++
	seq := s.runSeq
	s.runs[documentID] = seq
	s.runMu.Unlock()

	return seq, func() {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		if s.runs[documentID] == seq {
			delete(s.runs, documentID)
		}
	}
}

func (s *Service) isLatestRun(documentID string, seq uint64) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runs[documentID] == seq
}
