package app

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"cohorte/api/internal/archive"
	"cohorte/api/internal/config"
	"cohorte/api/internal/feedback"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/revisions"
	"cohorte/api/internal/search"
	"cohorte/api/internal/store"
	"cohorte/api/internal/threads"
)

// fakeStore is an in-memory dataStore. The xxxFn hooks override single
// calls.
type fakeStore struct {
	mu          sync.Mutex
	documents   map[string]store.Document
	populations map[string]persona.Population
	threads     map[string]threads.Thread
	nextThread  int

	pingFn          func(context.Context) error
	getAllThreadsFn func(context.Context, string) ([]threads.Thread, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents:   map[string]store.Document{},
		populations: map[string]persona.Population{},
		threads:     map[string]threads.Thread{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) ListDocuments(context.Context) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Document, 0, len(f.documents))
	for _, d := range f.documents {
		items = append(items, d)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, item store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	f.documents[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateDocument(_ context.Context, documentID, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return fmt.Errorf("update document: %w", sql.ErrNoRows)
	}
	d.Title, d.Body, d.UpdatedAt = title, body, time.Now().UTC()
	f.documents[documentID] = d
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.documents[documentID]; !ok {
		return fmt.Errorf("delete document: %w", sql.ErrNoRows)
	}
	delete(f.documents, documentID)
	for id, t := range f.threads {
		if t.DocumentID == documentID {
			delete(f.threads, id)
		}
	}
	return nil
}

func (f *fakeStore) ListPopulations(context.Context) ([]persona.Population, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]persona.Population, 0, len(f.populations))
	for _, p := range f.populations {
		items = append(items, p)
	}
	return items, nil
}

func (f *fakeStore) GetPopulation(_ context.Context, populationID string) (persona.Population, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.populations[populationID]
	if !ok {
		return persona.Population{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) InsertPopulation(_ context.Context, item persona.Population) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now().UTC()
	f.populations[item.ID] = item
	return nil
}

func (f *fakeStore) DeletePopulation(_ context.Context, populationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.populations[populationID]; !ok {
		return fmt.Errorf("delete population: %w", sql.ErrNoRows)
	}
	delete(f.populations, populationID)
	return nil
}

func (f *fakeStore) CreateThread(_ context.Context, documentID string, start, end int, text, color string) (threads.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.threads {
		if t.DocumentID == documentID && t.StartOffset == start && t.EndOffset == end {
			return cloneThread(t), nil
		}
	}
	if color == "" {
		color = threads.ColorDefault
	}
	f.nextThread++
	now := time.Now().UTC()
	t := threads.Thread{
		ID:              fmt.Sprintf("thr_%d", f.nextThread),
		DocumentID:      documentID,
		StartOffset:     start,
		EndOffset:       end,
		HighlightedText: text,
		Comments:        []threads.Comment{},
		Color:           color,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.threads[t.ID] = t
	return cloneThread(t), nil
}

func (f *fakeStore) GetAllThreads(ctx context.Context, documentID string) ([]threads.Thread, error) {
	if f.getAllThreadsFn != nil {
		return f.getAllThreadsFn(ctx, documentID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]threads.Thread, 0)
	for _, t := range f.threads {
		if t.DocumentID == documentID {
			items = append(items, cloneThread(t))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartOffset < items[j].StartOffset })
	return items, nil
}

func (f *fakeStore) SaveThread(_ context.Context, thread threads.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.threads[thread.ID]; !ok {
		return threads.ErrNotFound
	}
	f.threads[thread.ID] = cloneThread(thread)
	return nil
}

func (f *fakeStore) GetThread(_ context.Context, documentID, threadID string) (threads.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.DocumentID != documentID {
		return threads.Thread{}, threads.ErrNotFound
	}
	return cloneThread(t), nil
}

func (f *fakeStore) AddComment(_ context.Context, documentID, threadID string, comment threads.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.DocumentID != documentID {
		return fmt.Errorf("touch thread: %w", sql.ErrNoRows)
	}
	t.Comments = append(t.Comments, comment)
	f.threads[threadID] = t
	return nil
}

func (f *fakeStore) SetThreadResolved(_ context.Context, documentID, threadID string, resolved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.DocumentID != documentID {
		return fmt.Errorf("set thread resolved: %w", sql.ErrNoRows)
	}
	t.Resolved = resolved
	f.threads[threadID] = t
	return nil
}

func (f *fakeStore) DeleteComment(_ context.Context, documentID, threadID, commentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.DocumentID != documentID {
		return false, fmt.Errorf("delete comment: %w", sql.ErrNoRows)
	}
	kept := make([]threads.Comment, 0, len(t.Comments))
	for _, c := range t.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(t.Comments) {
		return false, fmt.Errorf("delete comment: %w", sql.ErrNoRows)
	}
	if len(kept) == 0 {
		delete(f.threads, threadID)
		return true, nil
	}
	t.Comments = kept
	f.threads[threadID] = t
	return false, nil
}

func (f *fakeStore) DeleteThread(_ context.Context, documentID, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.DocumentID != documentID {
		return fmt.Errorf("delete thread: %w", sql.ErrNoRows)
	}
	delete(f.threads, threadID)
	return nil
}

func cloneThread(t threads.Thread) threads.Thread {
	t.Comments = append([]threads.Comment{}, t.Comments...)
	return t
}

type fakeRevisions struct {
	mu       sync.Mutex
	commits  []string
	commitFn func(documentID, text string) (revisions.Revision, error)
}

func (f *fakeRevisions) Commit(documentID, text, author, message string) (revisions.Revision, error) {
	if f.commitFn != nil {
		return f.commitFn(documentID, text)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, text)
	return revisions.Revision{Hash: fmt.Sprintf("rev%04d", len(f.commits)), Author: author, Message: message}, nil
}

func (f *fakeRevisions) History(documentID string, limit int) ([]revisions.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commits) == 0 {
		return nil, revisions.ErrNoRevisions
	}
	out := make([]revisions.Revision, 0, len(f.commits))
	for i := len(f.commits); i > 0; i-- {
		out = append(out, revisions.Revision{Hash: fmt.Sprintf("rev%04d", i)})
	}
	return out, nil
}

type fakeSearch struct {
	mu             sync.Mutex
	indexedDocs    []string
	indexedThreads []string
	deletedThreads []string
	deletedDocs    []string
	searchFn       func(context.Context, search.Query) search.Response
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexDocument(doc search.DocumentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedDocs = append(f.indexedDocs, doc.ID)
}

func (f *fakeSearch) IndexThreads(items []threads.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range items {
		f.indexedThreads = append(f.indexedThreads, t.ID)
	}
}

func (f *fakeSearch) DeleteDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, id)
}

func (f *fakeSearch) DeleteThread(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedThreads = append(f.deletedThreads, id)
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []archive.Transcript
}

func (f *fakeArchive) Save(_ context.Context, t archive.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, t)
	return nil
}

type testDeps struct {
	store     *fakeStore
	revisions *fakeRevisions
	search    *fakeSearch
	archive   *fakeArchive
}

func newTestService(client llm.Client) (*Service, testDeps) {
	if client == nil {
		client = llm.NewMock()
	}
	deps := testDeps{
		store:     newFakeStore(),
		revisions: &fakeRevisions{},
		search:    &fakeSearch{},
		archive:   &fakeArchive{},
	}
	svc := newService(config.Config{MaxParallel: 2, MaxPersonas: 10}, deps.store, feedback.NewRequester(client, nil, nil))
	svc.revisions = deps.revisions
	svc.search = deps.search
	svc.archive = deps.archive
	return svc, deps
}

func seedDocument(t interface{ Fatalf(string, ...any) }, f *fakeStore, id, body string) {
	if err := f.InsertDocument(context.Background(), store.Document{ID: id, Title: "Pilot", Body: body}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
}
