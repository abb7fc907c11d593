package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Mock produces a fixed-shape analysis from the numbered script in the last
// user turn. It never calls out and is deterministic.
type Mock struct {
	// PerScript bounds how many lines get a note.
	PerScript int
}

func NewMock() *Mock { return &Mock{PerScript: 3} }

func (m *Mock) Name() string { return "mock" }

var numberedLine = regexp.MustCompile(`^(\d+)\| ?(.*)$`)

func (m *Mock) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script := ""
	if len(req.Messages) > 0 {
		script = req.Messages[len(req.Messages)-1].Content
	}
	type note struct {
		Line     int     `json:"line"`
		Comment  string  `json:"comment"`
		Category string  `json:"category"`
		Severity string  `json:"severity"`
		Reaction *string `json:"reaction"`
	}
	notes := []note{}
	for _, raw := range strings.Split(script, "\n") {
		match := numberedLine.FindStringSubmatch(raw)
		if match == nil || strings.TrimSpace(match[2]) == "" {
			continue
		}
		if len(notes) >= m.PerScript {
			break
		}
		line, _ := strconv.Atoi(match[1])
		notes = append(notes, note{
			Line:     line,
			Comment:  "Could this line land harder?",
			Category: "suggestion",
			Severity: "medium",
		})
	}
	out := map[string]any{
		"persona_name": "",
		"overall":      map[string]any{"comment": "Clear enough, I followed it.", "liked": true},
		"annotations":  notes,
	}
	return json.Marshal(out)
}
