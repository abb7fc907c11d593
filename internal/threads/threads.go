// Package threads anchors finalized persona feedback to comment threads keyed
// by character offsets.
package threads

import (
	"context"
	"errors"
	"time"

	"cohorte/api/internal/annotation"
)

var ErrNotFound = errors.New("threads: not found")

type AuthorType string

const (
	AuthorUser AuthorType = "user"
	AuthorAI   AuthorType = "ai"
)

const (
	ColorDefault = "#FFE082"
	ColorIssue   = "#F28B82"
	ColorPraise  = "#CCFF90"
)

type Comment struct {
	ID         string              `json:"id"`
	Text       string              `json:"text"`
	Author     string              `json:"author"`
	AuthorType AuthorType          `json:"authorType"`
	PersonaID  string              `json:"personaId,omitempty"`
	Category   annotation.Category `json:"category,omitempty"`
	Severity   annotation.Severity `json:"severity,omitempty"`
	Reaction   annotation.Reaction `json:"reaction,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

type Thread struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"documentId"`
	StartOffset     int       `json:"startOffset"`
	EndOffset       int       `json:"endOffset"`
	HighlightedText string    `json:"highlightedText"`
	Comments        []Comment `json:"comments"`
	Resolved        bool      `json:"resolved"`
	Color           string    `json:"color"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Store is the comment store the mapper writes through.
type Store interface {
	CreateThread(ctx context.Context, documentID string, start, end int, text, color string) (Thread, error)
	GetAllThreads(ctx context.Context, documentID string) ([]Thread, error)
	SaveThread(ctx context.Context, thread Thread) error
}

// ColorFor picks a highlight color from the AI comments of a thread: red
// when issues dominate, green when praise does, yellow otherwise.
func ColorFor(comments []Comment) string {
	issues, praise := 0, 0
	for _, c := range comments {
		if c.AuthorType != AuthorAI {
			continue
		}
		switch c.Category {
		case annotation.CategoryIssue:
			issues++
		case annotation.CategoryPraise:
			praise++
		}
	}
	switch {
	case issues > 0 && issues >= praise:
		return ColorIssue
	case praise > issues:
		return ColorPraise
	default:
		return ColorDefault
	}
}

// UserComments returns the comments a person wrote, in order.
func UserComments(comments []Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if c.AuthorType != AuthorAI {
			out = append(out, c)
		}
	}
	return out
}
