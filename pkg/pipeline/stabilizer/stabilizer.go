// Package stabilizer computes monotonic "stable text" from a window of
// recent, possibly-overlapping interim ASR hypotheses. It never raises: a
// pathological hypothesis is simply ignored, matching the teacher's
// never-error provider-adapter style (see pkg/providers/stt).
package stabilizer

import "strings"

// WordConfidence is the per-word evidence the caller may optionally supply
// alongside each hypothesis, used for the confidence-gated trim in Update.
type WordConfidence struct {
	Word       string
	Confidence float64
}

// Config controls the LCP window size and confidence gating behavior.
type Config struct {
	WindowSize                       int
	MinConfidence                    float64
	RequireRepetitionForLowConfidence bool
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:                        3,
		MinConfidence:                      0.6,
		RequireRepetitionForLowConfidence: true,
	}
}

// Stabilizer maintains the bounded hypothesis window for a single active
// utterance. It is owned exclusively by one UtteranceBuilder at a time;
// Reset() must be called when that utterance closes.
type Stabilizer struct {
	cfg Config

	window        []string
	totalSeen     int // count of non-empty hypotheses fed since the last Reset/Commit
	wordSeen      map[string]wordStat // best confidence + repetition count seen across the window

	lastPublished string
	committed     string // adopted verbatim on is_final=true
}

type wordStat struct {
	bestConfidence float64
	count          int
}

// New creates a Stabilizer with the given configuration.
func New(cfg Config) *Stabilizer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 3
	}
	return &Stabilizer{cfg: cfg, wordSeen: make(map[string]wordStat)}
}

// Reset clears all buffered hypotheses and published state. Called by the
// UtteranceBuilder whenever an utterance opens or closes.
func (s *Stabilizer) Reset() {
	s.window = nil
	s.totalSeen = 0
	s.wordSeen = make(map[string]wordStat)
	s.lastPublished = ""
	s.committed = ""
}

// Update feeds a new interim hypothesis (is_final=false) and returns the
// current stable text. Empty hypotheses are ignored and return the
// previously published value.
func (s *Stabilizer) Update(hypothesis string, words []WordConfidence) string {
	if hypothesis == "" {
		return s.published()
	}

	s.window = append(s.window, hypothesis)
	s.totalSeen++
	if len(s.window) > s.cfg.WindowSize {
		s.window = s.window[len(s.window)-s.cfg.WindowSize:]
	}

	var result string
	if s.totalSeen < 2 {
		result = s.published()
	} else {
		lcp := longestCommonPrefix(s.window)
		lcp = trimToWordBoundary(lcp, s.window[len(s.window)-1])
		// Gate against confidence/repetition evidence accumulated from
		// hypotheses seen *before* this one, then fold this one in below —
		// a word must have repeated to earn the low-confidence pass, not
		// merely co-occur once with itself.
		lcp = s.applyConfidenceGate(lcp)
		result = s.publishIfExtension(lcp)
	}

	for _, w := range words {
		key := strings.ToLower(w.Word)
		stat := s.wordSeen[key]
		if w.Confidence > stat.bestConfidence {
			stat.bestConfidence = w.Confidence
		}
		stat.count++
		s.wordSeen[key] = stat
	}

	return result
}

// Commit adopts a finalized (is_final=true) segment as authoritative stable
// text, discarding the hypothesis window. Per spec §4.1, divergence between
// the window and the committed segment is resolved in favor of the commit.
func (s *Stabilizer) Commit(finalSegment string) string {
	s.window = nil
	s.totalSeen = 0
	s.wordSeen = make(map[string]wordStat)
	trimmed := strings.TrimSpace(finalSegment)
	if trimmed == "" {
		return s.published()
	}
	if s.committed == "" {
		s.committed = trimmed
	} else {
		s.committed = s.committed + " " + trimmed
	}
	s.lastPublished = s.committed
	return s.committed
}

func (s *Stabilizer) published() string {
	if s.committed != "" {
		return s.committed
	}
	return s.lastPublished
}

// publishIfExtension enforces the monotonicity invariant: a candidate is
// only published when it is an extension of (or equal to) the previously
// published string; a candidate that would retract text is ignored and the
// prior value is returned unchanged.
func (s *Stabilizer) publishIfExtension(candidate string) string {
	combined := candidate
	if s.committed != "" {
		combined = strings.TrimRight(s.committed, " ")
		if candidate != "" {
			combined = combined + " " + candidate
		}
	}

	if strings.HasPrefix(combined, s.lastPublished) {
		s.lastPublished = combined
	}
	return s.lastPublished
}

// applyConfidenceGate walks the candidate word-by-word and drops the tail
// starting at the first word whose best-seen confidence is below
// MinConfidence and whose repetition count doesn't clear the repetition
// escape hatch. Words absent from the confidence map are always kept.
func (s *Stabilizer) applyConfidenceGate(candidate string) string {
	if s.cfg.MinConfidence <= 0 || candidate == "" {
		return candidate
	}

	words := strings.Fields(candidate)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		key := strings.ToLower(strings.Trim(w, ".,!?;:"))
		stat, seen := s.wordSeen[key]
		if !seen {
			kept = append(kept, w)
			continue
		}
		if stat.bestConfidence >= s.cfg.MinConfidence {
			kept = append(kept, w)
			continue
		}
		if s.cfg.RequireRepetitionForLowConfidence && stat.count >= 2 {
			kept = append(kept, w)
			continue
		}
		break // first disqualifying word: drop it and everything after
	}

	return strings.Join(kept, " ")
}

// longestCommonPrefix returns the longest common character-level prefix of
// all supplied strings.
func longestCommonPrefix(strs []string) string {
	if len(strs) == 0 {
		return ""
	}
	prefix := strs[0]
	for _, s := range strs[1:] {
		prefix = commonPrefix(prefix, s)
		if prefix == "" {
			return ""
		}
	}
	return prefix
}

func commonPrefix(a, b string) string {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	i := 0
	for i < n && ra[i] == rb[i] {
		i++
	}
	return string(ra[:i])
}

// isWordSeparator reports whether r is whitespace or punctuation that ends
// a word, used to decide whether trimming to a word boundary is needed.
func isWordSeparator(r byte) bool {
	switch r {
	case ' ', '\t', '\n', '.', ',', '!', '?', ';', ':':
		return true
	default:
		return false
	}
}

// trimToWordBoundary trims lcp back to its last whole-word boundary, unless
// the character immediately following lcp in newest is itself a separator
// (meaning lcp already ends exactly on a word boundary and emitting it
// verbatim doesn't expose a partial word).
func trimToWordBoundary(lcp string, newest string) string {
	if lcp == "" {
		return lcp
	}
	if len(newest) <= len(lcp) || isWordSeparator(newest[len(lcp)]) {
		// lcp reaches exactly to the end of the newest hypothesis (nothing
		// follows it to reveal a partial word) or is itself followed by a
		// separator — either way it's safe to emit verbatim.
		return lcp
	}

	lastSep := -1
	for i := 0; i < len(lcp); i++ {
		if isWordSeparator(lcp[i]) {
			lastSep = i
		}
	}
	if lastSep == -1 {
		return "" // lcp is a single partial word with no safe boundary
	}
	return strings.TrimRight(lcp[:lastSep+1], " ")
}
