package feedback

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/lines"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/persona"
)

// maxRawAnnotations bounds how many model annotations are normalized,
// whatever the script length.
const maxRawAnnotations = 500

// Cache stores finalized analyses by input digest.
type Cache interface {
	GetAnalysis(ctx context.Context, key string) (annotation.PersonaAnalysis, bool, error)
	SetAnalysis(ctx context.Context, key string, analysis annotation.PersonaAnalysis) error
}

// Result is one persona's outcome. Err records why a stub was served; the
// analysis is always usable.
type Result struct {
	Persona  persona.Persona
	Analysis annotation.PersonaAnalysis
	Cached   bool
	Err      error
}

type Requester struct {
	client llm.Client
	policy *annotation.Policy
	cache  Cache
}

func NewRequester(client llm.Client, policy *annotation.Policy, cache Cache) *Requester {
	if policy == nil {
		policy = annotation.NewPolicy(annotation.DefaultPolicyConfig())
	}
	return &Requester{client: client, policy: policy, cache: cache}
}

func (r *Requester) Policy() *annotation.Policy { return r.policy }

// Request runs one persona against the indexed script. Model and parse
// failures yield a stub with Err set; only a cancelled context is returned
// as an error.
func (r *Requester) Request(ctx context.Context, p persona.Persona, items []lines.IndexedLine) (Result, error) {
	name := p.DisplayName()
	lineCount := lines.Count(items)
	result := Result{Persona: p}

	key := r.cacheKey(p, items)
	if r.cache != nil {
		cached, ok, err := r.cache.GetAnalysis(ctx, key)
		if err != nil {
			log.Printf("feedback: cache lookup for %s: %v", name, err)
		} else if ok {
			cached.PersonaName = name
			result.Analysis = cached
			result.Cached = true
			return result, nil
		}
	}

	req := BuildRequest(r.policy.Config(), p, items, r.policy.MaxRequested(lineCount))
	raw, err := r.client.Complete(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if err != nil {
		result.Analysis = annotation.Stub(name)
		result.Err = err
		return result, nil
	}

	analysis, err := r.Finalize(name, raw, lineCount)
	if err != nil {
		result.Analysis = annotation.Stub(name)
		result.Err = err
		return result, nil
	}
	result.Analysis = analysis

	if r.cache != nil {
		if err := r.cache.SetAnalysis(ctx, key, analysis); err != nil {
			log.Printf("feedback: cache store for %s: %v", name, err)
		}
	}
	return result, nil
}

// Finalize validates the model's JSON and runs it through normalization and
// policy. It fails with llm.ErrNoParse when the payload is not an object or
// its annotations are not a list.
func (r *Requester) Finalize(personaName string, raw json.RawMessage, lineCount int) (annotation.PersonaAnalysis, error) {
	cfg := r.policy.Config()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return annotation.PersonaAnalysis{}, fmt.Errorf("decode analysis: %w", llm.ErrNoParse)
	}
	list, ok := payload["annotations"].([]any)
	if !ok {
		return annotation.PersonaAnalysis{}, fmt.Errorf("annotations missing: %w", llm.ErrNoParse)
	}

	// Policy.Apply does the real capping; this only bounds a runaway reply.
	if len(list) > maxRawAnnotations {
		list = list[:maxRawAnnotations]
	}
	raws := make([]annotation.Raw, 0, len(list))
	for _, item := range list {
		// non-object items carry no line to anchor to
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raws = append(raws, annotation.Raw{
			Line:     obj["line"],
			Comment:  obj["comment"],
			Category: obj["category"],
			Severity: obj["severity"],
			Reaction: obj["reaction"],
		})
	}

	final := r.policy.Apply(annotation.NormalizeAll(raws, lineCount, cfg.CommentMaxChars), lineCount)
	overall := annotation.NormalizeOverall(payload["overall"], cfg.OverallMaxChars)
	overall.Liked = r.policy.ReconcileLiked(overall.Liked, final)
	return annotation.PersonaAnalysis{
		PersonaName: personaName,
		Overall:     overall,
		Annotations: final,
	}, nil
}

func (r *Requester) cacheKey(p persona.Persona, items []lines.IndexedLine) string {
	cfg, _ := json.Marshal(r.policy.Config())
	h := sha256.New()
	for _, part := range []string{PromptVersion, r.client.Name(), persona.Card(p), lines.Numbered(items), string(cfg)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsStub reports whether a result carries a fallback analysis.
func (res Result) IsStub() bool { return res.Err != nil }

// NoParse reports whether a stub came from unusable model output rather
// than a transport failure.
func (res Result) NoParse() bool { return errors.Is(res.Err, llm.ErrNoParse) }
