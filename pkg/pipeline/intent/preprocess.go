package intent

import (
	"sort"
	"strings"
)

var fillerWords = map[string]bool{
	"um": true, "uh": true, "er": true, "ah": true, "hmm": true, "mm": true, "mhm": true, "erm": true,
}

// domainTerms maps lower-cased mis-transcriptions to their corrected form.
// Matched longest-key-first so a longer entry always wins over a shorter key
// it contains (no key in this table contains another yet, but the ordering
// is preserved for when one is added).
var domainTerms = map[string]string{
	"span tea":         "Span<T>",
	"sea sharp":        "C#",
	"configure await":  "ConfigureAwait",
}

var domainTermKeys = sortedDomainTermKeys()

func sortedDomainTermKeys() []string {
	keys := make([]string, 0, len(domainTerms))
	for k := range domainTerms {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}

// preprocess strips filler words, collapses runs of ≥3 identical consecutive
// words to 2, and applies the domain-term correction table, per §4.3.2.
func preprocess(text string) string {
	words := strings.Fields(text)

	noFillers := make([]string, 0, len(words))
	for _, w := range words {
		if fillerWords[strings.ToLower(strings.Trim(w, ".,!?;:"))] {
			continue
		}
		noFillers = append(noFillers, w)
	}

	collapsed := collapseRepeats(noFillers)
	joined := strings.Join(collapsed, " ")
	return applyDomainTerms(joined)
}

func collapseRepeats(words []string) []string {
	out := make([]string, 0, len(words))
	i := 0
	for i < len(words) {
		j := i + 1
		for j < len(words) && strings.EqualFold(words[j], words[i]) {
			j++
		}
		run := j - i
		keep := run
		if keep > 2 {
			keep = 2
		}
		for k := 0; k < keep; k++ {
			out = append(out, words[i])
		}
		i = j
	}
	return out
}

func applyDomainTerms(text string) string {
	lower := strings.ToLower(text)
	for _, key := range domainTermKeys {
		idx := strings.Index(lower, key)
		for idx != -1 {
			text = text[:idx] + domainTerms[key] + text[idx+len(key):]
			lower = strings.ToLower(text)
			idx = strings.Index(lower, key)
		}
	}
	return text
}
