package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	a, b := NewID("doc"), NewID("doc")
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if !strings.HasPrefix(a, "doc_") || len(a) != len("doc_")+32 {
		t.Fatalf("unexpected id %q", a)
	}
	if got := NewID(""); len(got) != 32 || strings.Contains(got, "_") {
		t.Fatalf("unexpected bare id %q", got)
	}
}
