package annotation

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Policy applies the business rules over normalized annotations. It holds no
// mutable state and is safe for concurrent use.
type Policy struct {
	cfg    PolicyConfig
	marker *regexp.Regexp
}

func NewPolicy(cfg PolicyConfig) *Policy {
	cfg = cfg.withDefaults()
	return &Policy{cfg: cfg, marker: markerPattern(cfg.FactCheckMarkers)}
}

// Config returns the effective constants, defaults included.
func (p *Policy) Config() PolicyConfig {
	return p.cfg
}

// MaxPerPersona is clamp(ceil(lineCount/LinesPerSlot), Min, Max).
func (p *Policy) MaxPerPersona(lineCount int) int {
	if lineCount < 1 {
		lineCount = 1
	}
	slots := (lineCount + p.cfg.LinesPerSlot - 1) / p.cfg.LinesPerSlot
	if slots < p.cfg.MinPerPersona {
		return p.cfg.MinPerPersona
	}
	if slots > p.cfg.MaxPerPersona {
		return p.cfg.MaxPerPersona
	}
	return slots
}

// MaxReactions is max(MinReactions, floor(ReactionRatio*n)).
func (p *Policy) MaxReactions(n int) int {
	quota := int(math.Floor(p.cfg.ReactionRatio * float64(n)))
	if quota < p.cfg.MinReactions {
		return p.cfg.MinReactions
	}
	return quota
}

// MaxRequested bounds how many annotations a persona is asked for.
func (p *Policy) MaxRequested(lineCount int) int {
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount < p.cfg.MaxRequested {
		return lineCount
	}
	return p.cfg.MaxRequested
}

// Apply deduplicates per line, orders by actionability, caps the count,
// enforces reaction sparsity and keeps a single fact-check marker. The
// output never holds more annotations than the input.
func (p *Policy) Apply(items []Annotation, lineCount int) []Annotation {
	out := dedupeByLine(items)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	if limit := p.MaxPerPersona(lineCount); len(out) > limit {
		out = out[:limit]
	}
	p.limitReactions(out)
	p.enforceSingleFactCheck(out)
	return out
}

// IsFactCheck reports whether comment starts with a fact-check marker.
func (p *Policy) IsFactCheck(comment string) bool {
	return p.marker.MatchString(comment)
}

func dedupeByLine(items []Annotation) []Annotation {
	index := make(map[int]int, len(items))
	out := make([]Annotation, 0, len(items))
	for _, item := range items {
		pos, seen := index[item.Line]
		if !seen {
			index[item.Line] = len(out)
			out = append(out, item)
			continue
		}
		if better(item, out[pos]) {
			out[pos] = item
		}
	}
	return out
}

// better reports whether a should replace b on the same line.
func better(a, b Annotation) bool {
	if a.Category.rank() != b.Category.rank() {
		return a.Category.rank() < b.Category.rank()
	}
	if a.Severity.rank() != b.Severity.rank() {
		return a.Severity.rank() < b.Severity.rank()
	}
	return utf8.RuneCountInString(a.Comment) < utf8.RuneCountInString(b.Comment)
}

func less(a, b Annotation) bool {
	if a.Category.rank() != b.Category.rank() {
		return a.Category.rank() < b.Category.rank()
	}
	if a.Severity.rank() != b.Severity.rank() {
		return a.Severity.rank() < b.Severity.rank()
	}
	return a.Line < b.Line
}

func (p *Policy) limitReactions(items []Annotation) {
	quota := p.MaxReactions(len(items))
	kept := 0
	for i := range items {
		if items[i].Reaction == ReactionNone {
			continue
		}
		if items[i].Reaction == ReactionDislike && !(items[i].Category == CategoryIssue && items[i].Severity == SeverityHigh) {
			items[i].Reaction = ReactionNone
			continue
		}
		if kept >= quota {
			items[i].Reaction = ReactionNone
			continue
		}
		kept++
	}
}

func (p *Policy) enforceSingleFactCheck(items []Annotation) {
	var marked []int
	for i := range items {
		if p.IsFactCheck(items[i].Comment) {
			marked = append(marked, i)
		}
	}
	if len(marked) <= 1 {
		return
	}

	keep := marked[0]
	if pos, ok := firstWith(items, marked, CategoryIssue, SeverityHigh); ok {
		keep = pos
	} else if pos, ok := firstWith(items, marked, CategoryIssue, SeverityMedium); ok {
		keep = pos
	}

	for _, pos := range marked {
		if pos == keep {
			continue
		}
		items[pos].Comment = p.stripMarker(items[pos].Comment)
		if items[pos].Category == CategoryIssue && items[pos].Severity != SeverityHigh {
			items[pos].Category = CategoryQuestion
		}
	}
}

func firstWith(items []Annotation, positions []int, category Category, severity Severity) (int, bool) {
	for _, pos := range positions {
		if items[pos].Category == category && items[pos].Severity == severity {
			return pos, true
		}
	}
	return 0, false
}

func (p *Policy) stripMarker(comment string) string {
	for p.marker.MatchString(comment) {
		comment = p.marker.ReplaceAllString(comment, "")
	}
	return strings.TrimSpace(comment)
}

func markerPattern(labels []string) *regexp.Regexp {
	quoted := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
		if label == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(label))
	}
	if len(quoted) == 0 {
		return markerPattern(DefaultPolicyConfig().FactCheckMarkers)
	}
	return regexp.MustCompile(`(?i)^\s*(?:` + strings.Join(quoted, "|") + `)\s*:\s*`)
}
