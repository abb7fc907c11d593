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

// google implements Client against the Gemini generateContent REST API.
type google struct {
	apiKey  string
	model   string
	baseURL string
	hc      *http.Client
}

type googleRequest struct {
	Contents          []googleContent  `json:"contents"`
	SystemInstruction *googleContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenConfig `json:"generationConfig,omitempty"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newGoogle(cfg Config) (*google, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: missing api key")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &google{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: strings.TrimRight(base, "/"),
		hc:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (g *google) Name() string { return "google/" + g.model }

// Complete asks for application/json output. Gemini's schema dialect differs
// from JSON Schema, so the schema travels in the system instruction instead.
func (g *google) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	payload := googleRequest{
		GenerationConfig: &googleGenConfig{
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxTokens,
			ResponseMimeType: "application/json",
		},
	}
	system := req.System
	if len(req.Schema) > 0 {
		system = strings.TrimSpace(system + "\n\nReturn JSON matching this schema:\n" + string(req.Schema))
	}
	if system != "" {
		payload.SystemInstruction = &googleContent{Parts: []googlePart{{Text: system}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		payload.Contents = append(payload.Contents, googleContent{Role: role, Parts: []googlePart{{Text: m.Content}}})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError{status: resp.StatusCode, msg: strings.TrimSpace(string(respBody))}
	}

	var out googleResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", ErrNoParse)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("google API error: %s (code %d)", out.Error.Message, out.Error.Code)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoParse
	}
	return ExtractJSON(out.Candidates[0].Content.Parts[0].Text)
}
