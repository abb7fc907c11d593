// Package feedback asks the model for one persona's line-anchored feedback
// and turns whatever comes back into a policy-compliant PersonaAnalysis.
package feedback

import (
	"fmt"
	"math"
	"strings"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/lines"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/persona"
)

// PromptVersion is part of the cache key; bump it whenever the instructions
// change.
const PromptVersion = "v3"

func systemPrompt(cfg annotation.PolicyConfig, maxAnnotations int) string {
	marker := "Fact-check"
	if len(cfg.FactCheckMarkers) > 0 {
		marker = cfg.FactCheckMarkers[0]
	}
	var b strings.Builder
	b.WriteString("You are the reader described in the PERSONA block, reading a script line by line.\n")
	b.WriteString("Language: write every comment in the language of the script. Never mix languages.\n")
	b.WriteString("Tone: concise and conversational, as if scribbling in a margin. At most one emoji or exclamation per comment. ")
	b.WriteString("Never comment on spelling, grammar or punctuation.\n")
	b.WriteString("Priority: prefer issues and suggestions over praise. Praise only what genuinely works for you.\n")
	fmt.Fprintf(&b, "Fact checks: at most one comment may start with \"%s:\", only for a claim you doubt.\n", marker)
	fmt.Fprintf(&b, "Reactions: set \"reaction\" on at most %d%% of annotations, otherwise null. ", int(math.Round(cfg.ReactionRatio*100)))
	b.WriteString("\"dislike\" is reserved for high-severity issues.\n")
	fmt.Fprintf(&b, "Limits: at most %d annotations, each comment at most %d characters, ", maxAnnotations, cfg.CommentMaxChars)
	fmt.Fprintf(&b, "overall comment at most %d characters. Use the line numbers shown before each line.\n", cfg.OverallMaxChars)
	b.WriteString("Answer with JSON only.")
	return b.String()
}

// BuildRequest assembles the model call for one persona: the system rules,
// the persona card and the numbered script as two user turns, and the
// output schema.
func BuildRequest(cfg annotation.PolicyConfig, p persona.Persona, items []lines.IndexedLine, maxAnnotations int) llm.Request {
	return llm.Request{
		System: systemPrompt(cfg, maxAnnotations),
		Messages: []llm.Message{
			{Role: "user", Content: persona.Card(p)},
			{Role: "user", Content: "SCRIPT\n" + lines.Numbered(items)},
		},
		SchemaName:  "persona_analysis",
		Schema:      Schema(cfg, maxAnnotations),
		Temperature: 0.7,
	}
}
