package annotation

// Tally counts the surviving annotations that matter for the liked verdict.
type Tally struct {
	IssuesHigh   int
	IssuesMedium int
	IssuesLow    int
	Praises      int
}

func Count(items []Annotation) Tally {
	var t Tally
	for _, item := range items {
		switch item.Category {
		case CategoryIssue:
			switch item.Severity {
			case SeverityHigh:
				t.IssuesHigh++
			case SeverityMedium:
				t.IssuesMedium++
			case SeverityLow:
				t.IssuesLow++
			}
		case CategoryPraise:
			t.Praises++
		}
	}
	return t
}

// ReconcileLiked corrects the model's own verdict against the final
// annotation mix. A single severe issue always vetoes liked=true; a false
// verdict on mild content is rescued more easily than the reverse.
func (p *Policy) ReconcileLiked(liked bool, final []Annotation) bool {
	t := Count(final)
	th := p.cfg.Liked
	if liked {
		switch {
		case t.IssuesHigh >= th.VetoHighIssues:
			return false
		case t.IssuesMedium >= th.MediumIssuesWithoutPraise && t.Praises == 0:
			return false
		case t.IssuesMedium >= th.MixedMediumIssues && t.IssuesLow >= th.MixedLowIssues && t.Praises == 0:
			return false
		}
		return true
	}
	if t.IssuesHigh == 0 && (t.Praises >= 1 || t.IssuesMedium <= th.RescueMaxMediumIssues) {
		return true
	}
	return false
}
