// Package retrieval defines the adapter contract the fusion loop fans
// out over, and the capability gate that decides which adapters see a
// given question.
package retrieval

import (
	"context"
	"strings"

	"github.com/ikaris-ai/ikaris/internal/evidence"
)

// Capability tags what kind of questions an adapter is good for.
type Capability string

const (
	// CapabilityGeneral adapters are queried for every question.
	CapabilityGeneral Capability = "general"
	// CapabilityBiomedical adapters are queried only when the question
	// trips the biomedical heuristic.
	CapabilityBiomedical Capability = "biomedical"
)

// Adapter is a retrieval backend. Query must normalize results into
// canonical Evidence at its own boundary and must tolerate questions it
// has nothing for (empty slice, nil error). Errors never cross into the
// fusion result; the caller logs them and treats the adapter as having
// contributed zero items.
type Adapter interface {
	Name() string
	Capability() Capability
	Query(ctx context.Context, question string) ([]evidence.Evidence, error)
}

// Terms that gate biomedical fan-out. Matching is substring on the
// folded question, so "genetics" and "proteins" match too.
var biomedicalTerms = []string{
	"gene", "protein", "clinical", "trial", "pathway",
	"disease", "drug", "cancer", "enzyme", "receptor",
	"mutation", "therapy", "medical", "patient", "dna", "rna",
}

// IsBiomedical reports whether a question should fan out to
// biomedical-capability adapters.
func IsBiomedical(question string) bool {
	q := strings.ToLower(question)
	for _, term := range biomedicalTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// Registry holds the enabled adapters in registration order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Register appends an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// ForQuestion selects the adapters to query for one question: every
// general adapter, plus biomedical adapters when the heuristic fires.
func (r *Registry) ForQuestion(question string) []Adapter {
	bio := IsBiomedical(question)
	selected := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		switch a.Capability() {
		case CapabilityBiomedical:
			if bio {
				selected = append(selected, a)
			}
		default:
			selected = append(selected, a)
		}
	}
	return selected
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	return r.adapters
}
