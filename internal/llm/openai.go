package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// openAI talks to any OpenAI-compatible chat completions endpoint.
type openAI struct {
	hc     *http.Client
	url    string
	apiKey string
	model  string
}

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaRequest struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResponseFormat struct {
	Type       string        `json:"type"`
	JSONSchema *oaJSONSchema `json:"json_schema,omitempty"`
}

type oaJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// upstreamError carries a non-2xx status from the provider.
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string {
	return fmt.Sprintf("llm upstream %d: %s", e.status, e.msg)
}

func (e upstreamError) Temporary() bool { return e.status/100 == 5 }

func newOpenAI(cfg Config, defaultBase, defaultModel string) (*openAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: missing api key")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &openAI{
		hc:     &http.Client{Timeout: cfg.Timeout},
		url:    strings.TrimRight(base, "/") + "/chat/completions",
		apiKey: cfg.APIKey,
		model:  model,
	}, nil
}

func (c *openAI) Name() string { return "openai/" + c.model }

func (c *openAI) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	payload := oaRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, oaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, oaMessage{Role: m.Role, Content: m.Content})
	}
	if len(req.Schema) > 0 {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		payload.ResponseFormat = &oaResponseFormat{
			Type:       "json_schema",
			JSONSchema: &oaJSONSchema{Name: name, Schema: req.Schema, Strict: true},
		}
	} else {
		payload.ResponseFormat = &oaResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, upstreamError{status: resp.StatusCode, msg: strings.TrimSpace(string(slurp))}
	}

	var out oaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", ErrNoParse)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, ErrNoParse
	}
	return ExtractJSON(out.Choices[0].Message.Content)
}
