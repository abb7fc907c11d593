// Package annotation turns untrusted model judgments into a bounded,
// policy-compliant set of line-anchored annotations.
package annotation

type Category string

const (
	CategoryIssue      Category = "issue"
	CategorySuggestion Category = "suggestion"
	CategoryQuestion   Category = "question"
	CategoryPraise     Category = "praise"
)

// Categories lists the closed set in rank order.
var Categories = []Category{CategoryIssue, CategorySuggestion, CategoryQuestion, CategoryPraise}

// rank orders categories by how actionable they are; lower wins.
func (c Category) rank() int {
	switch c {
	case CategoryIssue:
		return 0
	case CategorySuggestion:
		return 1
	case CategoryQuestion:
		return 2
	case CategoryPraise:
		return 3
	default:
		return 1
	}
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	default:
		return 1
	}
}

type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// Raw is an annotation as the model sent it. Every field is decoded as an
// untyped JSON value because none of them can be trusted.
type Raw struct {
	Line     any `json:"line"`
	Comment  any `json:"comment"`
	Category any `json:"category"`
	Severity any `json:"severity"`
	Reaction any `json:"reaction"`
}

// Annotation is a validated piece of line-anchored feedback.
type Annotation struct {
	Line     int      `json:"line"`
	Comment  string   `json:"comment"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Reaction Reaction `json:"reaction,omitempty"`
}

// Overall is a persona's summary verdict on the whole script.
type Overall struct {
	Comment string `json:"comment"`
	Liked   bool   `json:"liked"`
}

// PersonaAnalysis is the finalized feedback of one persona for one run.
type PersonaAnalysis struct {
	PersonaName string       `json:"persona_name"`
	Overall     Overall      `json:"overall"`
	Annotations []Annotation `json:"annotations"`
}

// Stub is the analysis reported for a persona whose response could not be
// used at all.
func Stub(personaName string) PersonaAnalysis {
	return PersonaAnalysis{
		PersonaName: personaName,
		Overall:     Overall{Comment: "", Liked: false},
		Annotations: []Annotation{},
	}
}
