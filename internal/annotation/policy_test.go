package annotation

import (
	"fmt"
	"math/rand"
	"testing"
)

func TestApplyDedupKeepsMostActionable(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 2, Comment: "lovely", Category: CategoryPraise, Severity: SeverityLow},
		{Line: 2, Comment: "this claim is wrong", Category: CategoryIssue, Severity: SeverityHigh},
	}, 3)
	if len(got) != 1 {
		t.Fatalf("expected one annotation, got %d", len(got))
	}
	if got[0].Category != CategoryIssue || got[0].Severity != SeverityHigh {
		t.Fatalf("expected issue/high to win, got %#v", got[0])
	}
}

func TestApplyDedupTieBreaks(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 1, Comment: "medium issue", Category: CategoryIssue, Severity: SeverityMedium},
		{Line: 1, Comment: "low issue", Category: CategoryIssue, Severity: SeverityLow},
		{Line: 4, Comment: "a longer suggestion here", Category: CategorySuggestion, Severity: SeverityLow},
		{Line: 4, Comment: "shorter", Category: CategorySuggestion, Severity: SeverityLow},
		{Line: 5, Comment: "same", Category: CategoryQuestion, Severity: SeverityLow},
		{Line: 5, Comment: "also", Category: CategoryQuestion, Severity: SeverityLow},
	}, 6)
	want := map[int]string{1: "medium issue", 4: "shorter", 5: "same"}
	if len(got) != len(want) {
		t.Fatalf("expected %d annotations, got %#v", len(want), got)
	}
	for _, item := range got {
		if want[item.Line] != item.Comment {
			t.Fatalf("line %d: expected %q, got %q", item.Line, want[item.Line], item.Comment)
		}
	}
}

func TestApplyOrdersByRankThenLine(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 1, Category: CategoryPraise, Severity: SeverityLow},
		{Line: 6, Category: CategoryIssue, Severity: SeverityLow},
		{Line: 3, Category: CategoryIssue, Severity: SeverityHigh},
		{Line: 2, Category: CategoryIssue, Severity: SeverityLow},
		{Line: 4, Category: CategoryQuestion, Severity: SeverityMedium},
	}, 60)
	order := make([]int, 0, len(got))
	for _, item := range got {
		order = append(order, item.Line)
	}
	if fmt.Sprint(order) != fmt.Sprint([]int{3, 2, 6, 4, 1}) {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestMaxPerPersona(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	tests := map[int]int{0: 3, 1: 3, 12: 3, 36: 3, 37: 4, 60: 5, 96: 8, 500: 8}
	for lineCount, want := range tests {
		if got := policy.MaxPerPersona(lineCount); got != want {
			t.Fatalf("lineCount %d: expected %d, got %d", lineCount, want, got)
		}
	}
}

func TestMaxRequested(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	if got := policy.MaxRequested(3); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := policy.MaxRequested(400); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestApplyReactionRules(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 1, Category: CategoryIssue, Severity: SeverityHigh, Reaction: ReactionDislike},
		{Line: 2, Category: CategoryIssue, Severity: SeverityMedium, Reaction: ReactionDislike},
		{Line: 3, Category: CategoryPraise, Severity: SeverityLow, Reaction: ReactionLike},
	}, 3)
	if got[0].Line != 1 || got[0].Reaction != ReactionDislike {
		t.Fatalf("expected dislike on issue/high to survive, got %#v", got[0])
	}
	if got[1].Reaction != ReactionNone {
		t.Fatalf("expected dislike on issue/medium to be cleared, got %#v", got[1])
	}
	if got[2].Reaction != ReactionNone {
		t.Fatalf("expected quota of one reaction to clear the like, got %#v", got[2])
	}
	if got[1].Category != CategoryIssue {
		t.Fatalf("clearing a reaction must not recategorize, got %#v", got[1])
	}
}

func TestApplySingleFactCheck(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 1, Comment: "Fact-check: the tower is 300m", Category: CategoryIssue, Severity: SeverityMedium},
		{Line: 2, Comment: "vérification : cette date est fausse", Category: CategoryIssue, Severity: SeverityHigh},
		{Line: 3, Comment: "FACT-CHECK: source?", Category: CategoryIssue, Severity: SeverityLow},
	}, 3)
	marked := 0
	for _, item := range got {
		if policy.IsFactCheck(item.Comment) {
			marked++
			if item.Line != 2 {
				t.Fatalf("expected the issue/high fact-check to be kept, got line %d", item.Line)
			}
		}
	}
	if marked != 1 {
		t.Fatalf("expected exactly one fact-check marker, got %d in %#v", marked, got)
	}
	byLine := map[int]Annotation{}
	for _, item := range got {
		byLine[item.Line] = item
	}
	if byLine[1].Comment != "the tower is 300m" || byLine[1].Category != CategoryQuestion {
		t.Fatalf("expected line 1 to be stripped and demoted, got %#v", byLine[1])
	}
	if byLine[3].Comment != "source?" || byLine[3].Category != CategoryQuestion {
		t.Fatalf("expected line 3 to be stripped and demoted, got %#v", byLine[3])
	}
}

func TestApplyFactCheckFallsBackToFirst(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 1, Comment: "Fact-check: one", Category: CategoryQuestion, Severity: SeverityLow},
		{Line: 2, Comment: "Fact-check: two", Category: CategorySuggestion, Severity: SeverityLow},
	}, 3)
	// suggestion sorts first, so it is the first marked one encountered
	if got[0].Line != 2 || got[0].Comment != "Fact-check: two" {
		t.Fatalf("expected first encountered marker to be kept, got %#v", got)
	}
	if got[1].Comment != "one" || got[1].Category != CategoryQuestion {
		t.Fatalf("expected second marker stripped, got %#v", got[1])
	}
}

func TestApplyFactCheckKeepsHighSeverityIssueCategory(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	got := policy.Apply([]Annotation{
		{Line: 1, Comment: "Fact-check: a", Category: CategoryIssue, Severity: SeverityHigh},
		{Line: 2, Comment: "Fact-check: b", Category: CategoryIssue, Severity: SeverityHigh},
	}, 3)
	if got[1].Comment != "b" || got[1].Category != CategoryIssue {
		t.Fatalf("expected a high-severity duplicate to stay an issue, got %#v", got[1])
	}
}

func TestReconcileLiked(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	issue := func(s Severity) Annotation { return Annotation{Category: CategoryIssue, Severity: s} }
	praise := Annotation{Category: CategoryPraise, Severity: SeverityLow}

	tests := []struct {
		name  string
		liked bool
		items []Annotation
		want  bool
	}{
		{name: "high issue vetoes", liked: true, items: []Annotation{issue(SeverityHigh), praise}, want: false},
		{name: "praise rescues", liked: false, items: []Annotation{praise, praise}, want: true},
		{name: "three medium without praise", liked: true, items: []Annotation{issue(SeverityMedium), issue(SeverityMedium), issue(SeverityMedium)}, want: false},
		{name: "three medium with praise", liked: true, items: []Annotation{issue(SeverityMedium), issue(SeverityMedium), issue(SeverityMedium), praise}, want: true},
		{name: "mixed medium and low", liked: true, items: []Annotation{issue(SeverityMedium), issue(SeverityMedium), issue(SeverityLow), issue(SeverityLow)}, want: false},
		{name: "mild stays liked", liked: true, items: []Annotation{issue(SeverityMedium), issue(SeverityLow)}, want: true},
		{name: "empty false rescued", liked: false, items: nil, want: true},
		{name: "two medium not rescued", liked: false, items: []Annotation{issue(SeverityMedium), issue(SeverityMedium)}, want: false},
		{name: "false with high stays false", liked: false, items: []Annotation{issue(SeverityHigh), praise}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ReconcileLiked(tt.liked, tt.items); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestApplyProperties(t *testing.T) {
	policy := NewPolicy(DefaultPolicyConfig())
	rng := rand.New(rand.NewSource(7))
	reactions := []Reaction{ReactionNone, ReactionLike, ReactionDislike}
	prefixes := []string{"", "", "Fact-check: ", "Vérification: "}

	for round := 0; round < 500; round++ {
		lineCount := 1 + rng.Intn(150)
		n := rng.Intn(60)
		input := make([]Annotation, 0, n)
		for i := 0; i < n; i++ {
			input = append(input, Annotation{
				Line:     1 + rng.Intn(lineCount),
				Comment:  prefixes[rng.Intn(len(prefixes))] + fmt.Sprintf("note %d", rng.Intn(1000)),
				Category: Categories[rng.Intn(len(Categories))],
				Severity: Severities[rng.Intn(len(Severities))],
				Reaction: reactions[rng.Intn(len(reactions))],
			})
		}

		got := policy.Apply(input, lineCount)

		if len(got) > len(input) {
			t.Fatalf("round %d: output grew from %d to %d", round, len(input), len(got))
		}
		if len(got) > policy.MaxPerPersona(lineCount) {
			t.Fatalf("round %d: %d annotations exceed cap %d", round, len(got), policy.MaxPerPersona(lineCount))
		}
		seen := map[int]bool{}
		reacted, marked := 0, 0
		for _, item := range got {
			if seen[item.Line] {
				t.Fatalf("round %d: line %d appears twice", round, item.Line)
			}
			seen[item.Line] = true
			if item.Reaction != ReactionNone {
				reacted++
			}
			if item.Reaction == ReactionDislike && (item.Category != CategoryIssue || item.Severity != SeverityHigh) {
				t.Fatalf("round %d: dislike on %s/%s", round, item.Category, item.Severity)
			}
			if policy.IsFactCheck(item.Comment) {
				marked++
			}
		}
		if reacted > policy.MaxReactions(len(got)) {
			t.Fatalf("round %d: %d reactions exceed quota %d", round, reacted, policy.MaxReactions(len(got)))
		}
		if marked > 1 {
			t.Fatalf("round %d: %d fact-check markers", round, marked)
		}

		again := policy.Apply(input, lineCount)
		if fmt.Sprint(again) != fmt.Sprint(got) {
			t.Fatalf("round %d: policy is not deterministic", round)
		}
	}
}

func TestNewPolicyFillsDefaults(t *testing.T) {
	policy := NewPolicy(PolicyConfig{MaxPerPersona: 5, FactCheckMarkers: []string{"  "}})
	cfg := policy.Config()
	if cfg.MinPerPersona != 3 || cfg.MaxPerPersona != 5 || cfg.CommentMaxChars != 120 {
		t.Fatalf("unexpected effective config %#v", cfg)
	}
	if !policy.IsFactCheck("fact-check: x") {
		t.Fatal("expected blank marker list to fall back to the default spellings")
	}
}
