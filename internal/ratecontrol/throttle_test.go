package ratecontrol

import (
	"context"
	"testing"
	"time"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
)

type stubAdapter struct {
	calls int
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) Capability() retrieval.Capability { return retrieval.CapabilityGeneral }

func (s *stubAdapter) Query(context.Context, string) ([]evidence.Evidence, error) {
	s.calls++
	return nil, nil
}

func TestThrottleDelegates(t *testing.T) {
	writeLimits(t, "adapter_limits:\n  default_rps: 1000\n")

	stub := &stubAdapter{}
	a := Throttle(stub)

	if a.Name() != "stub" {
		t.Fatalf("expected delegated name, got %s", a.Name())
	}
	if _, err := a.Query(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected 1 call, got %d", stub.calls)
	}
}

func TestThrottleHonorsCancellation(t *testing.T) {
	writeLimits(t, `
adapter_limits:
  overrides:
    stub:
      rps: 0.001
`)

	a := Throttle(&stubAdapter{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Burst of 1 passes, the second call has to wait past the deadline.
	if _, err := a.Query(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Query(ctx, "second"); err == nil {
		t.Fatal("expected context error on throttled call")
	}
}
