// Package llm is the structured-completion boundary: given a system prompt,
// user turns and a JSON schema, return a JSON object or fail.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoParse means the model answered but nothing JSON-shaped could be
	// recovered from the answer.
	ErrNoParse = errors.New("llm: response could not be parsed")
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("llm: rate limited")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	System      string
	Messages    []Message
	SchemaName  string
	Schema      json.RawMessage
	Temperature float64
	MaxTokens   int
}

type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (json.RawMessage, error)

func (f ClientFunc) Name() string { return "func" }

func (f ClientFunc) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// NewClient builds the provider named by cfg.Provider.
func NewClient(cfg Config) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return newOpenAI(cfg, "https://api.openai.com/v1", "gpt-4.1-mini")
	case "openrouter":
		return newOpenAI(cfg, "https://openrouter.ai/api/v1", "openai/gpt-4.1-mini")
	case "google", "gemini":
		return newGoogle(cfg)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// ExtractJSON recovers a JSON object from model text: bare, fenced in
// ```json blocks, or surrounded by prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if json.Valid([]byte(s)) {
		return compact(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start && json.Valid([]byte(s[start:end+1])) {
		return compact(s[start : end+1])
	}
	return nil, ErrNoParse
}

func compact(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, ErrNoParse
	}
	return json.RawMessage(buf.Bytes()), nil
}
