package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("COHORTE_MAX_PARALLEL", "")
	t.Setenv("ARCHIVE_ENDPOINT", "")
	cfg := Load()
	if cfg.Addr != ":8787" || cfg.MaxParallel != 4 || cfg.MaxPersonas != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ArchiveEndpoint != "" || cfg.ArchiveBucket != "cohorte-runs" {
		t.Fatalf("archive should default to disabled: %+v", cfg)
	}
	if cfg.AnalysisCacheTTL != 24*time.Hour {
		t.Fatalf("unexpected cache ttl %s", cfg.AnalysisCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("COHORTE_MAX_PARALLEL", "8")
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("LLM_TIMEOUT_SECONDS", "5")
	t.Setenv("ARCHIVE_USE_SSL", "true")
	cfg := Load()
	if cfg.Addr != ":9000" || cfg.MaxParallel != 8 || cfg.LLM.Provider != "mock" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.LLM.Timeout != 5*time.Second || !cfg.ArchiveUseSSL {
		t.Fatalf("unexpected parsed values: %+v", cfg)
	}
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("COHORTE_MAX_PARALLEL", "lots")
	t.Setenv("ARCHIVE_USE_SSL", "maybe")
	cfg := Load()
	if cfg.MaxParallel != 4 || cfg.ArchiveUseSSL {
		t.Fatalf("expected fallbacks, got %+v", cfg)
	}
}

func TestLoadPolicyPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := "comment_max_chars: 80\nfact_check_markers: [\"Check\"]\nliked:\n  veto_high_issues: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if cfg.CommentMaxChars != 80 || cfg.FactCheckMarkers[0] != "Check" || cfg.Liked.VetoHighIssues != 2 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.OverallMaxChars != 140 || cfg.Liked.MediumIssuesWithoutPraise != 3 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadPolicyErrors(t *testing.T) {
	if cfg, err := LoadPolicy(""); err != nil || cfg.CommentMaxChars != 120 {
		t.Fatalf("empty path should give defaults, got %+v %v", cfg, err)
	}
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("comment_max_chars: [nope"), 0o644)
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected parse error")
	}
}
