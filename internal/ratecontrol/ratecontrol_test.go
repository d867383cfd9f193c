package ratecontrol

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLimits(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "adapters.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	old := defaultPaths
	defaultPaths = []string{path}
	t.Cleanup(func() {
		defaultPaths = old
		Reload()
	})
	Reload()
}

func TestLimitForAdapterOverride(t *testing.T) {
	writeLimits(t, `
adapter_limits:
  default_rps: 3
  overrides:
    pubmed:
      rps: 10
      burst: 2
`)

	l := LimitForAdapter("PubMed")
	if l.RPS != 10 {
		t.Fatalf("expected RPS 10, got %v", l.RPS)
	}
	if l.Burst != 2 {
		t.Fatalf("expected burst 2, got %d", l.Burst)
	}
}

func TestLimitForAdapterDefault(t *testing.T) {
	writeLimits(t, `
adapter_limits:
  default_rps: 3
`)

	l := LimitForAdapter("local-index")
	if l.RPS != 3 {
		t.Fatalf("expected RPS 3, got %v", l.RPS)
	}
	if l.Burst != 1 {
		t.Fatalf("expected burst 1, got %d", l.Burst)
	}
}

func TestLimitForAdapterFallback(t *testing.T) {
	writeLimits(t, "adapter_limits: {}\n")

	l := LimitForAdapter("unknown")
	if l.RPS != 1 || l.Burst != 1 {
		t.Fatalf("expected conservative fallback, got %+v", l)
	}
}

func TestLimiterForUsesBudget(t *testing.T) {
	writeLimits(t, `
adapter_limits:
  overrides:
    arxiv:
      rps: 0.5
`)

	lim := LimiterFor("arxiv")
	if lim.Limit() != 0.5 {
		t.Fatalf("expected limit 0.5, got %v", lim.Limit())
	}
}
