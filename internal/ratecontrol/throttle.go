package ratecontrol

import (
	"context"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
)

// throttled gates one adapter behind its configured budget.
type throttled struct {
	inner retrieval.Adapter
}

// Throttle wraps an adapter so every query waits on the adapter's
// rate budget before going out.
func Throttle(a retrieval.Adapter) retrieval.Adapter {
	return &throttled{inner: a}
}

func (t *throttled) Name() string { return t.inner.Name() }

func (t *throttled) Capability() retrieval.Capability { return t.inner.Capability() }

func (t *throttled) Query(ctx context.Context, question string) ([]evidence.Evidence, error) {
	if err := Wait(ctx, t.inner.Name()); err != nil {
		return nil, err
	}
	return t.inner.Query(ctx, question)
}
