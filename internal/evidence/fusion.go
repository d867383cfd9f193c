package evidence

import (
	"sort"
	"strings"
)

// MaxKept is the evidence budget after every fusion pass.
const MaxKept = 10

// Fuse runs one fusion pass: fresh items are listed ahead of the carried
// set, duplicates collapse to the first occurrence by (source, id), items
// with blank text are dropped, survivors are ranked by relevance and
// truncated to MaxKept.
//
// Listing fresh items first is deliberate: a re-fetched id carries the
// newer payload and must win over the stale carried copy.
func Fuse(fresh, carried []Evidence) []Evidence {
	combined := make([]Evidence, 0, len(fresh)+len(carried))
	combined = append(combined, fresh...)
	combined = append(combined, carried...)
	return Rank(Dedupe(combined))
}

// Dedupe keeps the first occurrence of each (source, id) key in list
// order, discarding items whose text is empty or whitespace-only.
func Dedupe(items []Evidence) []Evidence {
	seen := make(map[string]struct{}, len(items))
	out := make([]Evidence, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		key := item.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Rank sorts by relevance descending. The sort is stable so ties keep
// the order Dedupe established, then truncates to MaxKept.
func Rank(items []Evidence) []Evidence {
	ranked := make([]Evidence, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	if len(ranked) > MaxKept {
		ranked = ranked[:MaxKept]
	}
	return ranked
}
