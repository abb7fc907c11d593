package threads

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/lines"
)

// commentNamespace seeds the name-based ids of machine-authored comments.
var commentNamespace = uuid.MustParse("5b8f3c1e-7a52-4c4e-9d0b-2f6a1e9c7d41")

// Contribution is one persona's finalized analysis for a run.
type Contribution struct {
	PersonaID string
	Analysis  annotation.PersonaAnalysis
}

type Mapper struct {
	store Store
	locks *KeyLocks
	now   func() time.Time
}

// NewMapper wires a mapper over store. Mappers sharing locks serialize
// their writes per anchor.
func NewMapper(store Store, locks *KeyLocks) *Mapper {
	if locks == nil {
		locks = NewKeyLocks()
	}
	return &Mapper{store: store, locks: locks, now: func() time.Time { return time.Now().UTC() }}
}

type entry struct {
	personaID string
	author    string
	ann       annotation.Annotation
}

// Map writes each annotated line's feedback into the thread anchored at that
// line's offsets and returns those threads ordered by start offset. Threads
// of lines without annotations are not touched, and user comments survive.
// Cancellation is honored until the first write; after that every anchor is
// written.
func (m *Mapper) Map(ctx context.Context, documentID string, items []lines.IndexedLine, contributions []Contribution) ([]Thread, error) {
	byLine := map[int][]entry{}
	for _, c := range contributions {
		personaKey := c.PersonaID
		if personaKey == "" {
			personaKey = c.Analysis.PersonaName
		}
		for _, ann := range c.Analysis.Annotations {
			byLine[ann.Line] = append(byLine[ann.Line], entry{personaID: personaKey, author: c.Analysis.PersonaName, ann: ann})
		}
	}

	anchors := make([]lines.IndexedLine, 0, len(byLine))
	for line := range byLine {
		item, ok := lines.Lookup(items, line)
		if !ok || item.End <= item.Start {
			// blank lines cannot carry a highlight
			continue
		}
		anchors = append(anchors, item)
	}
	if len(anchors) == 0 {
		return []Thread{}, nil
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Start < anchors[j].Start })

	keys := make([]string, 0, len(anchors))
	for _, a := range anchors {
		keys = append(keys, RangeKey(documentID, a.Start, a.End))
	}
	unlock := m.locks.Lock(keys...)
	defer unlock()

	existing, err := m.store.GetAllThreads(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}
	byRange := make(map[[2]int]Thread, len(existing))
	for _, t := range existing {
		byRange[[2]int{t.StartOffset, t.EndOffset}] = t
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// once writing starts, a run is committed whole
	writeCtx := context.WithoutCancel(ctx)
	out := make([]Thread, 0, len(anchors))
	for _, a := range anchors {
		thread, ok := byRange[[2]int{a.Start, a.End}]
		fresh := !ok
		if fresh {
			thread, err = m.store.CreateThread(writeCtx, documentID, a.Start, a.End, a.Text, ColorDefault)
			if err != nil {
				return nil, fmt.Errorf("create thread at %d-%d: %w", a.Start, a.End, err)
			}
		}

		next := m.rebuild(thread, byLine[a.Line])
		if fresh || !sameComments(thread.Comments, next) {
			thread.Comments = next
			thread.Color = ColorFor(next)
			thread.UpdatedAt = m.now()
			if err := m.store.SaveThread(writeCtx, thread); err != nil {
				return nil, fmt.Errorf("save thread %s: %w", thread.ID, err)
			}
		}
		out = append(out, thread)
	}
	return out, nil
}

// rebuild replaces the machine-authored comments of thread with entries and
// keeps user comments after them.
func (m *Mapper) rebuild(thread Thread, entries []entry) []Comment {
	previous := make(map[string]Comment, len(thread.Comments))
	for _, c := range thread.Comments {
		previous[c.ID] = c
	}
	now := m.now()
	out := make([]Comment, 0, len(entries)+len(thread.Comments))
	for i, e := range entries {
		c := Comment{
			ID:         uuid.NewSHA1(commentNamespace, []byte(thread.ID+"|"+e.personaID+"|"+strconv.Itoa(i))).String(),
			Text:       e.ann.Comment,
			Author:     e.author,
			AuthorType: AuthorAI,
			PersonaID:  e.personaID,
			Category:   e.ann.Category,
			Severity:   e.ann.Severity,
			Reaction:   e.ann.Reaction,
			Timestamp:  now,
		}
		if prev, ok := previous[c.ID]; ok && sameContent(prev, c) {
			c.Timestamp = prev.Timestamp
		}
		out = append(out, c)
	}
	return append(out, UserComments(thread.Comments)...)
}

func sameContent(a, b Comment) bool {
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	return a == b
}

func sameComments(a, b []Comment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameContent(a[i], b[i]) || !a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
	}
	return true
}
