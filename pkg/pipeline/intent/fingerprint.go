package intent

import (
	"sort"
	"strings"
	"time"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true, "were": true,
	"do": true, "does": true, "did": true, "can": true, "could": true, "would": true,
	"should": true, "have": true, "has": true, "had": true, "will": true, "shall": true,
	"may": true, "might": true, "and": true, "or": true, "but": true, "to": true, "of": true,
	"for": true, "in": true, "on": true, "at": true, "by": true, "with": true, "this": true,
	"that": true, "it": true, "we": true, "you": true, "they": true, "use": true, "about": true,
	"what": true, "why": true, "how": true, "when": true, "where": true, "who": true,
	"which": true, "whose": true, "there": true, "here": true,
}

// fingerprint computes the semantic fingerprint of text per §4.3.2: lower it,
// strip punctuation, drop stop words and tokens of length ≤ 2, sort the
// remaining tokens, and join with a space.
func fingerprint(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())

	kept := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	sort.Strings(kept)
	return strings.Join(kept, " ")
}

// jaccardSimilarity compares two fingerprints as token sets.
func jaccardSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(fp string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(fp) {
		set[tok] = true
	}
	return set
}

const dedupCapacity = 50

// seenEntry records one previously emitted fingerprint and when.
type seenEntry struct {
	fp string
	at time.Time
}

// dedupTracker enforces the LLM strategy's two dedup rules against the
// fingerprints tracked within deduplicationWindow: the same fingerprint, or
// one close to it (≥0.7 Jaccard), is a duplicate. Older entries no longer
// count. Entries beyond dedupCapacity evict FIFO.
type dedupTracker struct {
	window  time.Duration
	entries []seenEntry
}

func newDedupTracker(window time.Duration) *dedupTracker {
	return &dedupTracker{window: window}
}

// checkAndRecord reports whether fp duplicates a tracked fingerprint as of
// now; if not, it records fp as newly seen.
func (d *dedupTracker) checkAndRecord(fp string, now time.Time) bool {
	if fp == "" {
		return false
	}
	for _, e := range d.entries {
		if now.Sub(e.at) > d.window {
			continue
		}
		if e.fp == fp {
			return true
		}
		if jaccardSimilarity(fp, e.fp) >= 0.7 {
			return true
		}
	}
	d.entries = append(d.entries, seenEntry{fp: fp, at: now})
	if len(d.entries) > dedupCapacity {
		d.entries = d.entries[len(d.entries)-dedupCapacity:]
	}
	return false
}
