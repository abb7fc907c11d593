package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"cohorte/api/internal/archive"
	"cohorte/api/internal/config"
	"cohorte/api/internal/feedback"
	"cohorte/api/internal/lines"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/revisions"
	"cohorte/api/internal/search"
	"cohorte/api/internal/store"
	"cohorte/api/internal/threads"
	"cohorte/api/internal/util"
)

type dataStore interface {
	threads.Store
	Ping(context.Context) error
	ListDocuments(context.Context) ([]store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	UpdateDocument(context.Context, string, string, string) error
	DeleteDocument(context.Context, string) error
	ListPopulations(context.Context) ([]persona.Population, error)
	GetPopulation(context.Context, string) (persona.Population, error)
	InsertPopulation(context.Context, persona.Population) error
	DeletePopulation(context.Context, string) error
	GetThread(context.Context, string, string) (threads.Thread, error)
	AddComment(context.Context, string, string, threads.Comment) error
	SetThreadResolved(context.Context, string, string, bool) error
	DeleteComment(context.Context, string, string, string) (bool, error)
	DeleteThread(context.Context, string, string) error
}

type revisionService interface {
	Commit(documentID, text, author, message string) (revisions.Revision, error)
	History(documentID string, limit int) ([]revisions.Revision, error)
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexDocument(search.DocumentRecord)
	IndexThreads([]threads.Thread)
	DeleteDocument(string)
	DeleteThread(string)
}

type transcriptArchive interface {
	Save(context.Context, archive.Transcript) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	requester *feedback.Requester
	mapper    *threads.Mapper
	locks     *threads.KeyLocks
	revisions revisionService
	search    searchService
	archive   transcriptArchive
	model     string

	runMu  sync.Mutex
	runSeq uint64
	runs   map[string]uint64
	now    func() time.Time
}

// New wires the service. revisionSvc, searchSvc and archiver may be nil.
func New(cfg config.Config, dataStore *store.PostgresStore, requester *feedback.Requester, revisionSvc *revisions.Service, searchSvc *search.Service, archiver *archive.Archiver) *Service {
	s := newService(cfg, dataStore, requester)
	if revisionSvc != nil {
		s.revisions = revisionSvc
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	if archiver.Enabled() {
		s.archive = archiver
	}
	return s
}

func newService(cfg config.Config, dataStore dataStore, requester *feedback.Requester) *Service {
	locks := threads.NewKeyLocks()
	model := cfg.LLM.Provider
	if cfg.LLM.Model != "" {
		model += "/" + cfg.LLM.Model
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		requester: requester,
		mapper:    threads.NewMapper(dataStore, locks),
		locks:     locks,
		model:     model,
		runs:      make(map[string]uint64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, documentPayload(item))
	}
	return out, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (map[string]any, error) {
	item, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"document": documentPayload(item)}, nil
}

func (s *Service) CreateDocument(ctx context.Context, title, body string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled script"
	}
	item := store.Document{ID: util.NewID("doc"), Title: title, Body: lines.Normalize(body)}
	if err := s.store.InsertDocument(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetDocument(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	s.indexDocument(created)
	return map[string]any{"document": documentPayload(created)}, nil
}

// UpdateDocument changes the fields that are set and keeps the others.
func (s *Service) UpdateDocument(ctx context.Context, documentID string, title, body *string) (map[string]any, error) {
	current, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if title != nil {
		if strings.TrimSpace(*title) == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be empty", nil)
		}
		current.Title = strings.TrimSpace(*title)
	}
	if body != nil {
		current.Body = lines.Normalize(*body)
	}
	if err := s.store.UpdateDocument(ctx, documentID, current.Title, current.Body); err != nil {
		return nil, err
	}
	updated, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.indexDocument(updated)
	return map[string]any{"document": documentPayload(updated)}, nil
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	existing, err := s.store.GetAllThreads(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteDocument(documentID)
		for _, t := range existing {
			s.search.DeleteThread(t.ID)
		}
	}
	return nil
}

func (s *Service) ListPopulations(ctx context.Context) ([]persona.Population, error) {
	return s.store.ListPopulations(ctx)
}

func (s *Service) GetPopulation(ctx context.Context, populationID string) (map[string]any, error) {
	item, err := s.store.GetPopulation(ctx, populationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"population": item}, nil
}

// CreatePopulation saves a named set of personas. Personas without an id get
// one so their comments stay attributable across runs.
func (s *Service) CreatePopulation(ctx context.Context, name string, personas []persona.Persona) (map[string]any, error) {
	if len(personas) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "personas are required", nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled population"
	}
	items := make([]persona.Persona, len(personas))
	copy(items, personas)
	for i := range items {
		if strings.TrimSpace(items[i].ID) == "" {
			items[i].ID = util.NewID("persona")
		}
	}
	item := persona.Population{ID: util.NewID("pop"), Name: name, Personas: items}
	if err := s.store.InsertPopulation(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetPopulation(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"population": created}, nil
}

func (s *Service) DeletePopulation(ctx context.Context, populationID string) error {
	return s.store.DeletePopulation(ctx, populationID)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) indexDocument(item store.Document) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{ID: item.ID, Title: item.Title, Body: item.Body})
}

func documentPayload(item store.Document) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"title":     item.Title,
		"body":      item.Body,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}
