// Package router classifies a user utterance into one dispatch target.
// Classification is an ordered rule cascade; the first matching rule wins.
package router

import (
	"regexp"
	"strings"
)

// Decision is the dispatch target for one utterance.
type Decision string

const (
	DecisionTelemetry  Decision = "telemetry"
	DecisionBatchFetch Decision = "batch-fetch"
	DecisionResearch   Decision = "agentic-research"
	DecisionNoteAppend Decision = "note-append"
	DecisionChat       Decision = "default-chat"
)

// arxivIDPattern matches modern arXiv identifiers, e.g. 1706.03762.
var arxivIDPattern = regexp.MustCompile(`\d{4}\.\d{4,5}`)

var (
	telemetryWords  = []string{"battery", "cpu", "stats", "hardware"}
	downloadWords   = []string{"arxiv.org", "download", "fetch"}
	questionWords   = []string{"what", "how", "why", "explain"}
	biomedicalWords = []string{"pubmed", "pmid"}
	literatureWords = []string{"paper", "research", "study", "according to", "search"}
	noteWords       = []string{"note", "notes", "journal", "diary"}
)

// ArxivIDs extracts every arXiv-style identifier from the utterance.
func ArxivIDs(utterance string) []string {
	return arxivIDPattern.FindAllString(utterance, -1)
}

// Route classifies a case-folded utterance. It is pure and never fails;
// callers with no locatable user turn should use DecisionChat directly.
func Route(utterance string) Decision {
	msg := strings.ToLower(utterance)

	// 1. Hardware telemetry takes priority over everything.
	if containsAny(msg, telemetryWords) {
		return DecisionTelemetry
	}

	// 2. Identifier/download detection. A single id next to a question
	// word reads as a question about a paper, not a fetch request; two
	// or more ids always mean a batch.
	ids := ArxivIDs(msg)
	if containsAny(msg, downloadWords) || len(ids) > 0 {
		if len(ids) > 1 || !containsAny(msg, questionWords) {
			return DecisionBatchFetch
		}
	}

	// 3. Explicit biomedical identifiers go down the batch path too.
	if containsAny(msg, biomedicalWords) {
		return DecisionBatchFetch
	}

	// 4. Literature questions start a research episode.
	if containsAny(msg, literatureWords) {
		return DecisionResearch
	}

	// 5. Personal notes.
	if containsAny(msg, noteWords) {
		return DecisionNoteAppend
	}

	return DecisionChat
}

// IsBiomedicalFetch reports whether a batch-fetch utterance should take
// the PubMed sub-path instead of arXiv.
func IsBiomedicalFetch(utterance string) bool {
	return containsAny(strings.ToLower(utterance), biomedicalWords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
