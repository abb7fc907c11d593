package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Normalize coerces a raw model annotation into a valid Annotation. It never
// fails: the line is clamped to [1, lineCount], the comment is cut to
// commentMax characters and unknown enum values fall back to their defaults.
func Normalize(raw Raw, lineCount, commentMax int) Annotation {
	if lineCount < 1 {
		lineCount = 1
	}
	return Annotation{
		Line:     clampLine(raw.Line, lineCount),
		Comment:  Truncate(coerceString(raw.Comment), commentMax),
		Category: ParseCategory(raw.Category),
		Severity: ParseSeverity(raw.Severity),
		Reaction: ParseReaction(raw.Reaction),
	}
}

// NormalizeAll normalizes every raw annotation in order.
func NormalizeAll(raws []Raw, lineCount, commentMax int) []Annotation {
	out := make([]Annotation, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw, lineCount, commentMax))
	}
	return out
}

// ParseCategory returns the category named by v, or suggestion.
func ParseCategory(v any) Category {
	s, _ := v.(string)
	switch Category(s) {
	case CategoryIssue, CategorySuggestion, CategoryQuestion, CategoryPraise:
		return Category(s)
	default:
		return CategorySuggestion
	}
}

// ParseSeverity returns the severity named by v, or medium.
func ParseSeverity(v any) Severity {
	s, _ := v.(string)
	switch Severity(s) {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s)
	default:
		return SeverityMedium
	}
}

// ParseReaction keeps exactly "like" or "dislike"; anything else is absent.
func ParseReaction(v any) Reaction {
	s, _ := v.(string)
	switch Reaction(s) {
	case ReactionLike, ReactionDislike:
		return Reaction(s)
	default:
		return ReactionNone
	}
}

// NormalizeOverall coerces the model's overall verdict. Anything that is not
// an object yields an empty, not-liked verdict.
func NormalizeOverall(v any, commentMax int) Overall {
	obj, ok := v.(map[string]any)
	if !ok {
		return Overall{}
	}
	return Overall{
		Comment: Truncate(coerceString(obj["comment"]), commentMax),
		Liked:   ParseBool(obj["liked"]),
	}
}

// ParseBool accepts JSON booleans and their common string spellings.
func ParseBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		return err == nil && parsed
	default:
		return false
	}
}

// Truncate cuts s to at most limit characters. A non-positive limit leaves s
// unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func coerceString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64, bool:
		return fmt.Sprint(value)
	default:
		return ""
	}
}

func clampLine(v any, lineCount int) int {
	f, ok := coerceNumber(v)
	if !ok || math.IsNaN(f) {
		return 1
	}
	// compare as float first so huge values cannot overflow int
	if f < 1 {
		return 1
	}
	if f >= float64(lineCount) {
		return lineCount
	}
	return int(f)
}

func coerceNumber(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
