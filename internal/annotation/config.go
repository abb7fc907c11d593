package annotation

// PolicyConfig holds the tunable constants of the annotation pipeline. The
// liked thresholds were hand-tuned against example transcripts.
type PolicyConfig struct {
	CommentMaxChars  int             `yaml:"comment_max_chars" json:"comment_max_chars"`
	OverallMaxChars  int             `yaml:"overall_max_chars" json:"overall_max_chars"`
	MaxRequested     int             `yaml:"max_requested" json:"max_requested"`
	LinesPerSlot     int             `yaml:"lines_per_slot" json:"lines_per_slot"`
	MinPerPersona    int             `yaml:"min_per_persona" json:"min_per_persona"`
	MaxPerPersona    int             `yaml:"max_per_persona" json:"max_per_persona"`
	ReactionRatio    float64         `yaml:"reaction_ratio" json:"reaction_ratio"`
	MinReactions     int             `yaml:"min_reactions" json:"min_reactions"`
	FactCheckMarkers []string        `yaml:"fact_check_markers" json:"fact_check_markers"`
	Liked            LikedThresholds `yaml:"liked" json:"liked"`
}

// LikedThresholds drive ReconcileLiked.
type LikedThresholds struct {
	// VetoHighIssues high-severity issues force liked=false.
	VetoHighIssues int `yaml:"veto_high_issues" json:"veto_high_issues"`
	// MediumIssuesWithoutPraise medium issues with no praise force liked=false.
	MediumIssuesWithoutPraise int `yaml:"medium_issues_without_praise" json:"medium_issues_without_praise"`
	// MixedMediumIssues and MixedLowIssues together, with no praise, force liked=false.
	MixedMediumIssues int `yaml:"mixed_medium_issues" json:"mixed_medium_issues"`
	MixedLowIssues    int `yaml:"mixed_low_issues" json:"mixed_low_issues"`
	// RescueMaxMediumIssues is the most medium issues a false verdict may
	// carry and still be rescued to true without praise.
	RescueMaxMediumIssues int `yaml:"rescue_max_medium_issues" json:"rescue_max_medium_issues"`
}

// DefaultPolicyConfig returns the production constants.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		CommentMaxChars:  120,
		OverallMaxChars:  140,
		MaxRequested:     50,
		LinesPerSlot:     12,
		MinPerPersona:    3,
		MaxPerPersona:    8,
		ReactionRatio:    0.2,
		MinReactions:     1,
		FactCheckMarkers: []string{"Fact-check", "Vérification"},
		Liked: LikedThresholds{
			VetoHighIssues:            1,
			MediumIssuesWithoutPraise: 3,
			MixedMediumIssues:         2,
			MixedLowIssues:            2,
			RescueMaxMediumIssues:     1,
		},
	}
}

// withDefaults fills zero values from DefaultPolicyConfig so a partial YAML
// override stays usable.
func (c PolicyConfig) withDefaults() PolicyConfig {
	d := DefaultPolicyConfig()
	if c.CommentMaxChars <= 0 {
		c.CommentMaxChars = d.CommentMaxChars
	}
	if c.OverallMaxChars <= 0 {
		c.OverallMaxChars = d.OverallMaxChars
	}
	if c.MaxRequested <= 0 {
		c.MaxRequested = d.MaxRequested
	}
	if c.LinesPerSlot <= 0 {
		c.LinesPerSlot = d.LinesPerSlot
	}
	if c.MinPerPersona <= 0 {
		c.MinPerPersona = d.MinPerPersona
	}
	if c.MaxPerPersona <= 0 {
		c.MaxPerPersona = d.MaxPerPersona
	}
	if c.MaxPerPersona < c.MinPerPersona {
		c.MaxPerPersona = c.MinPerPersona
	}
	if c.ReactionRatio <= 0 {
		c.ReactionRatio = d.ReactionRatio
	}
	if c.MinReactions <= 0 {
		c.MinReactions = d.MinReactions
	}
	if len(c.FactCheckMarkers) == 0 {
		c.FactCheckMarkers = d.FactCheckMarkers
	}
	if c.Liked == (LikedThresholds{}) {
		c.Liked = d.Liked
	}
	return c
}
