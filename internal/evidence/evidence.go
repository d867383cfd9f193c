// Package evidence defines the canonical unit of retrieved knowledge and
// the merge/dedup/rank pipeline every fusion pass runs over it.
package evidence

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ikaris-ai/ikaris/internal/state"
)

// Well-known source tags. Adapters may introduce new tags; the fusion core
// treats them opaquely.
const (
	SourceLocalIndex = "local-index"
	SourceBiomedical = "biomedical-index"
	SourceNotes      = "notes"
	SourceArxiv      = "arxiv"
)

// Evidence is a normalized retrieval result. Two items with equal
// (Source, ID) are the same evidence regardless of the other fields.
type Evidence struct {
	Source    string                 `json:"source"`
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Text      string                 `json:"text"`
	Relevance float64                `json:"relevance"`
	Meta      map[string]interface{} `json:"meta"`
}

// Key returns the identity of the evidence within a fusion pass.
func (e Evidence) Key() string {
	return e.Source + "\x00" + e.ID
}

// Anchors renders citation anchors carried in Meta (parent section,
// section list, equation list) for judge and synthesis prompts.
func (e Evidence) Anchors() string {
	var parts []string
	if h, ok := e.Meta["hierarchy"].(map[string]interface{}); ok {
		if sec, ok := h["parent_section"].(string); ok && sec != "" {
			parts = append(parts, "Sec "+sec)
		}
	}
	if len(parts) == 0 {
		if secs, ok := metaStrings(e.Meta["sections"]); ok && len(secs) > 0 {
			parts = append(parts, "Sec "+secs[0])
		}
	}
	if eqs, ok := metaStrings(e.Meta["equations"]); ok && len(eqs) > 0 {
		parts = append(parts, "Eq "+strings.Join(eqs, ", "))
	}
	return strings.Join(parts, ", ")
}

func metaStrings(v interface{}) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, it := range vv {
			out = append(out, fmt.Sprintf("%v", it))
		}
		return out, true
	}
	return nil, false
}

// MarshalJSON keeps Meta non-nil on the wire so an empty map survives a
// round trip instead of decoding back as nil.
func (e Evidence) MarshalJSON() ([]byte, error) {
	type alias Evidence
	a := alias(e)
	if a.Meta == nil {
		a.Meta = map[string]interface{}{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON tolerates the legacy field names ("content" for text,
// "metadata" for meta) that older adapter payloads still emit.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source    string                 `json:"source"`
		ID        string                 `json:"id"`
		Title     string                 `json:"title"`
		Text      string                 `json:"text"`
		Content   string                 `json:"content"`
		Relevance float64                `json:"relevance"`
		Meta      map[string]interface{} `json:"meta"`
		Metadata  map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Source = raw.Source
	e.ID = raw.ID
	e.Title = raw.Title
	e.Text = raw.Text
	if e.Text == "" {
		e.Text = raw.Content
	}
	e.Relevance = raw.Relevance
	e.Meta = raw.Meta
	if e.Meta == nil {
		e.Meta = raw.Metadata
	}
	if e.Meta == nil {
		e.Meta = map[string]interface{}{}
	}
	return nil
}

// ToRef converts to the persistence representation.
func (e Evidence) ToRef() state.EvidenceRef {
	return state.EvidenceRef{
		Source:    e.Source,
		ID:        e.ID,
		Title:     e.Title,
		Text:      e.Text,
		Relevance: e.Relevance,
		Meta:      e.Meta,
	}
}

// FromRef converts from the persistence representation.
func FromRef(r state.EvidenceRef) Evidence {
	return Evidence{
		Source:    r.Source,
		ID:        r.ID,
		Title:     r.Title,
		Text:      r.Text,
		Relevance: r.Relevance,
		Meta:      r.Meta,
	}
}

// ToRefs converts a slice for storage in conversation state.
func ToRefs(items []Evidence) []state.EvidenceRef {
	refs := make([]state.EvidenceRef, 0, len(items))
	for _, e := range items {
		refs = append(refs, e.ToRef())
	}
	return refs
}

// FromRefs converts a stored slice back to evidence values.
func FromRefs(refs []state.EvidenceRef) []Evidence {
	items := make([]Evidence, 0, len(refs))
	for _, r := range refs {
		items = append(items, FromRef(r))
	}
	return items
}
