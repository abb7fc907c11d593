package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"cohorte/api/internal/revisions"
	"cohorte/api/internal/threads"
	"cohorte/api/internal/util"
)

const defaultUserAuthor = "You"

type CreateThreadInput struct {
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	Text        string `json:"highlightedText"`
	Color       string `json:"color"`
	Comment     string `json:"comment"`
	Author      string `json:"author"`
}

type CommentInput struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

func (s *Service) ListThreads(ctx context.Context, documentID string) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	items, err := s.store.GetAllThreads(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"threads": items}, nil
}

// CreateThread opens a thread on a user selection, or returns the thread
// already anchored there. Offsets are in characters of the stored body.
func (s *Service) CreateThread(ctx context.Context, documentID string, input CreateThreadInput) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if input.StartOffset < 0 || input.EndOffset <= input.StartOffset {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "selection must satisfy 0 <= startOffset < endOffset", nil)
	}
	if input.EndOffset > utf8.RuneCountInString(doc.Body) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "selection is outside the document", map[string]any{
			"length": utf8.RuneCountInString(doc.Body),
		})
	}
	text := input.Text
	if strings.TrimSpace(text) == "" {
		text = string([]rune(doc.Body)[input.StartOffset:input.EndOffset])
	}

	unlock := s.locks.Lock(threads.RangeKey(documentID, input.StartOffset, input.EndOffset))
	defer unlock()

	thread, err := s.store.CreateThread(ctx, documentID, input.StartOffset, input.EndOffset, text, strings.TrimSpace(input.Color))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Comment) != "" {
		if err := s.store.AddComment(ctx, documentID, thread.ID, s.userComment(input.Comment, input.Author)); err != nil {
			return nil, err
		}
	}
	return s.threadPayload(ctx, documentID, thread.ID)
}

func (s *Service) AddComment(ctx context.Context, documentID, threadID string, input CommentInput) (map[string]any, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	unlock, err := s.lockThread(ctx, documentID, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.store.AddComment(ctx, documentID, threadID, s.userComment(input.Text, input.Author)); err != nil {
		return nil, err
	}
	return s.threadPayload(ctx, documentID, threadID)
}

func (s *Service) SetThreadResolved(ctx context.Context, documentID, threadID string, resolved bool) (map[string]any, error) {
	unlock, err := s.lockThread(ctx, documentID, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.store.SetThreadResolved(ctx, documentID, threadID, resolved); err != nil {
		return nil, err
	}
	return s.threadPayload(ctx, documentID, threadID)
}

// DeleteComment removes a comment. The store drops a thread left without
// comments.
func (s *Service) DeleteComment(ctx context.Context, documentID, threadID, commentID string) (map[string]any, error) {
	unlock, err := s.lockThread(ctx, documentID, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	threadDeleted, err := s.store.DeleteComment(ctx, documentID, threadID, commentID)
	if err != nil {
		return nil, err
	}
	if threadDeleted {
		if s.search != nil {
			s.search.DeleteThread(threadID)
		}
		return map[string]any{"ok": true, "threadDeleted": true}, nil
	}
	payload, err := s.threadPayload(ctx, documentID, threadID)
	if err != nil {
		return nil, err
	}
	payload["ok"] = true
	payload["threadDeleted"] = false
	return payload, nil
}

func (s *Service) DeleteThread(ctx context.Context, documentID, threadID string) error {
	unlock, err := s.lockThread(ctx, documentID, threadID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.DeleteThread(ctx, documentID, threadID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteThread(threadID)
	}
	return nil
}

func (s *Service) Revisions(ctx context.Context, documentID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return map[string]any{"revisions": []revisions.Revision{}}, nil
	}
	items, err := s.revisions.History(documentID, limit)
	if errors.Is(err, revisions.ErrNoRevisions) {
		items = []revisions.Revision{}
	} else if err != nil {
		return nil, err
	}
	return map[string]any{"revisions": items}, nil
}

// lockThread takes the anchor lock of an existing thread so user edits do
// not interleave with a run rewriting the same thread.
func (s *Service) lockThread(ctx context.Context, documentID, threadID string) (func(), error) {
	thread, err := s.store.GetThread(ctx, documentID, threadID)
	if err != nil {
		return nil, err
	}
	return s.locks.Lock(threads.RangeKey(documentID, thread.StartOffset, thread.EndOffset)), nil
}

func (s *Service) threadPayload(ctx context.Context, documentID, threadID string) (map[string]any, error) {
	thread, err := s.store.GetThread(ctx, documentID, threadID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexThreads([]threads.Thread{thread})
	}
	return map[string]any{"thread": thread}, nil
}

func (s *Service) userComment(text, author string) threads.Comment {
	author = strings.TrimSpace(author)
	if author == "" {
		author = defaultUserAuthor
	}
	return threads.Comment{
		ID:         util.NewID("cmt"),
		Text:       strings.TrimSpace(text),
		Author:     author,
		AuthorType: threads.AuthorUser,
		Timestamp:  s.now(),
	}
}
