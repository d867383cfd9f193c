package evidence

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeFirstOccurrenceWins(t *testing.T) {
	items := []Evidence{
		{Source: "x", ID: "a", Text: "fresh copy", Relevance: 0.5},
		{Source: "x", ID: "a", Text: "stale copy", Relevance: 0.9},
	}
	out := Dedupe(items)

	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].Relevance, "first occurrence wins, not highest relevance")
	assert.Equal(t, "fresh copy", out[0].Text)
}

func TestDedupeDropsBlankText(t *testing.T) {
	items := []Evidence{
		{Source: "x", ID: "a", Text: ""},
		{Source: "x", ID: "b", Text: "   \n\t"},
		{Source: "x", ID: "c", Text: "kept"},
	}
	out := Dedupe(items)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)
}

func TestDedupeKeySpansSource(t *testing.T) {
	items := []Evidence{
		{Source: "local-index", ID: "a", Text: "one"},
		{Source: "biomedical-index", ID: "a", Text: "two"},
	}
	assert.Len(t, Dedupe(items), 2, "same id under different sources is not a duplicate")
}

func TestRankNonIncreasingAndTruncated(t *testing.T) {
	var items []Evidence
	for i := 0; i < 25; i++ {
		items = append(items, Evidence{
			Source:    "x",
			ID:        fmt.Sprintf("id-%d", i),
			Text:      "t",
			Relevance: float64(i%7) / 10.0,
		})
	}
	out := Rank(items)

	require.Len(t, out, MaxKept)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Relevance, out[i].Relevance)
	}
}

func TestRankStableOnTies(t *testing.T) {
	items := []Evidence{
		{Source: "x", ID: "a", Text: "t", Relevance: 0.5},
		{Source: "x", ID: "b", Text: "t", Relevance: 0.5},
		{Source: "x", ID: "c", Text: "t", Relevance: 0.5},
	}
	out := Rank(items)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
}

func TestFuseNewEvidenceBeatsCarriedDuplicate(t *testing.T) {
	carried := []Evidence{{Source: "local-index", ID: "ch1", Text: "old text", Relevance: 0.9}}
	fresh := []Evidence{{Source: "local-index", ID: "ch1", Text: "refreshed text", Relevance: 0.7}}

	out := Fuse(fresh, carried)

	require.Len(t, out, 1)
	assert.Equal(t, "refreshed text", out[0].Text)
	assert.Equal(t, 0.7, out[0].Relevance)
}

func TestEvidenceJSONRoundTrip(t *testing.T) {
	e := Evidence{
		Source:    "pubmed",
		ID:        "38012345",
		Title:     "Some trial",
		Text:      "Abstract body",
		Relevance: 0.8,
		Meta:      map[string]interface{}{},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Evidence
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, e.Source, back.Source)
	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, e.Title, back.Title)
	assert.Equal(t, e.Text, back.Text)
	assert.Equal(t, e.Relevance, back.Relevance)
	require.NotNil(t, back.Meta, "empty meta must survive the round trip")
	assert.Empty(t, back.Meta)
}

func TestEvidenceUnmarshalLegacyFields(t *testing.T) {
	raw := `{"source":"local-index","id":"c1","title":"T","content":"legacy body","relevance":0.4,"metadata":{"page":3}}`
	var e Evidence
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	assert.Equal(t, "legacy body", e.Text)
	assert.Equal(t, float64(3), e.Meta["page"])
}

func TestAnchors(t *testing.T) {
	e := Evidence{Meta: map[string]interface{}{
		"hierarchy": map[string]interface{}{"parent_section": "3.2"},
		"equations": []interface{}{"4", "5"},
	}}
	assert.Equal(t, "Sec 3.2, Eq 4, 5", e.Anchors())

	flat := Evidence{Meta: map[string]interface{}{"sections": []interface{}{"2"}}}
	assert.Equal(t, "Sec 2", flat.Anchors())

	assert.Equal(t, "", Evidence{}.Anchors())
}
