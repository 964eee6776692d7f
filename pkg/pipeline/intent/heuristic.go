package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var politePrefixes = []string{"please ", "can you ", "could you ", "would you "}

type imperativeRule struct {
	subtype Subtype
	pattern *regexp.Regexp
	anchor  bool // pattern must match at the start of the stripped text
}

var (
	reStop          = regexp.MustCompile(`^(stop|cancel|nevermind|never\s*mind|quit|exit|enough|that's\s*enough)`)
	reRepeatNumber  = regexp.MustCompile(`repeat\s+(?:(?:number|#)\s*)?(\d+)`)
	reRepeatLast    = regexp.MustCompile(`(repeat|say)\s+(the\s+)?(last|previous)`)
	reRepeatGeneral = regexp.MustCompile(`^(repeat|say (that|it) again|what did you say)`)
	reContinue      = regexp.MustCompile(`^(continue|go on|next|proceed|keep going|carry on)`)
	reStartOver     = regexp.MustCompile(`(start over|from the (beginning|start)|reset|begin again)`)
	reGenerate      = regexp.MustCompile(`(generate|give me|create|make|produce).*(questions?|queries)`)
	reGenerateCount = regexp.MustCompile(`(\d+)\s+(questions?|queries)`)
	reGenerateTopic = regexp.MustCompile(`about\s+(.+)`)

	reWhWord       = regexp.MustCompile(`^(what|why|how|when|where|who|which|whose)\b`)
	reAuxWord      = regexp.MustCompile(`^(is|are|was|were|do|does|did|can|could|would|should|have|has|will|shall|may|might)\b`)
	reQuestionish  = regexp.MustCompile(`do you know|can you tell me|what's|what is`)
	reComparison   = regexp.MustCompile(`difference between|compare|vs\.?|versus|compared to`)
	reTroubleshoot = regexp.MustCompile(`why isn't|doesn't|won't|not working|error|issue|problem|fail`)
	reHowTo        = regexp.MustCompile(`^how\b|how do|how to|how can`)

	reTopicDefine = regexp.MustCompile(`(?:what is (?:a|an|the)?\s*|define\s+|explain\s+)(.+?)(\?|$)`)
	reTopicAbout  = regexp.MustCompile(`about\s+(.+?)(\?|$)`)
)

// HeuristicStrategy applies the fixed, regex-based rule table in priority
// order (imperative, then question, then default statement). It is pure and
// has no background component: Corrections() is always empty.
type HeuristicStrategy struct {
	corrections chan CorrectionEvent
}

// NewHeuristicStrategy builds a ready-to-use heuristic strategy.
func NewHeuristicStrategy() *HeuristicStrategy {
	return &HeuristicStrategy{corrections: make(chan CorrectionEvent)}
}

func (h *HeuristicStrategy) DetectCandidate(_ context.Context, in UtteranceInput) (*DetectedIntent, bool) {
	di, ok := classify(in.Text)
	if !ok || di.Confidence < 0.3 {
		return nil, false
	}
	return di, true
}

func (h *HeuristicStrategy) DetectFinal(_ context.Context, in UtteranceInput) (*DetectedIntent, bool) {
	di, ok := classify(in.Text)
	if !ok {
		return &DetectedIntent{Type: Statement, Confidence: 0.4, SourceText: in.Text, OriginalText: in.Text}, true
	}
	return di, true
}

func (h *HeuristicStrategy) SignalPause() {}

func (h *HeuristicStrategy) Corrections() <-chan CorrectionEvent { return h.corrections }

func (h *HeuristicStrategy) Close() {}

// classify runs the imperative, then question, rule tables against a
// lower-cased trimmed copy of text; source_text preserves the original.
func classify(original string) (*DetectedIntent, bool) {
	trimmed := strings.TrimSpace(original)
	lower := strings.ToLower(trimmed)

	if di, ok := classifyImperative(lower, original); ok {
		return di, true
	}
	if di, ok := classifyQuestion(lower, original); ok {
		return di, true
	}
	return nil, false
}

func classifyImperative(lower, original string) (*DetectedIntent, bool) {
	stripped := lower
	politeStripped := false
	for _, p := range politePrefixes {
		if strings.HasPrefix(stripped, p) {
			stripped = stripped[len(p):]
			politeStripped = true
			break
		}
	}

	if reStop.MatchString(stripped) {
		return &DetectedIntent{Type: Imperative, Subtype: SubtypeStop, Confidence: 0.95, SourceText: original, OriginalText: original}, true
	}
	if m := reRepeatNumber.FindStringSubmatch(stripped); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &DetectedIntent{
			Type: Imperative, Subtype: SubtypeRepeat, Confidence: 0.90,
			SourceText: original, OriginalText: original,
			Slots: map[string]string{"count": strconv.Itoa(n), "reference": "number " + m[1]},
		}, true
	}
	if reRepeatLast.MatchString(stripped) {
		return &DetectedIntent{
			Type: Imperative, Subtype: SubtypeRepeat, Confidence: 0.90,
			SourceText: original, OriginalText: original,
			Slots: map[string]string{"reference": "last"},
		}, true
	}
	if reRepeatGeneral.MatchString(stripped) {
		conf := 0.80
		if politeStripped {
			conf = 0.85
		}
		return &DetectedIntent{Type: Imperative, Subtype: SubtypeRepeat, Confidence: conf, SourceText: original, OriginalText: original}, true
	}
	if reContinue.MatchString(stripped) {
		return &DetectedIntent{Type: Imperative, Subtype: SubtypeContinue, Confidence: 0.85, SourceText: original, OriginalText: original}, true
	}
	if reStartOver.MatchString(stripped) {
		return &DetectedIntent{Type: Imperative, Subtype: SubtypeStartOver, Confidence: 0.90, SourceText: original, OriginalText: original}, true
	}
	if reGenerate.MatchString(stripped) {
		slots := map[string]string{}
		if m := reGenerateCount.FindStringSubmatch(stripped); m != nil {
			slots["count"] = m[1]
		}
		if m := reGenerateTopic.FindStringSubmatch(stripped); m != nil {
			slots["topic"] = strings.TrimSpace(m[1])
		}
		di := &DetectedIntent{Type: Imperative, Subtype: SubtypeGenerate, Confidence: 0.85, SourceText: original, OriginalText: original}
		if len(slots) > 0 {
			di.Slots = slots
		}
		return di, true
	}

	return nil, false
}

func classifyQuestion(lower, original string) (*DetectedIntent, bool) {
	total := 0.0
	if strings.HasSuffix(strings.TrimSpace(lower), "?") {
		total += 0.5
	}
	if reWhWord.MatchString(lower) {
		total += 0.4
	}
	if reAuxWord.MatchString(lower) {
		total += 0.3
	}
	if reQuestionish.MatchString(lower) {
		total += 0.3
	}
	isCompare := reComparison.MatchString(lower)
	if isCompare {
		total += 0.5
	}
	isTroubleshoot := reTroubleshoot.MatchString(lower)
	if isTroubleshoot {
		total += 0.4
	}

	if total < 0.4 {
		return nil, false
	}
	if total > 1.0 {
		total = 1.0
	}

	isHowTo := reHowTo.MatchString(lower)

	var subtype Subtype
	switch {
	case isCompare:
		subtype = SubtypeCompare
	case isHowTo:
		subtype = SubtypeHowTo
	case isTroubleshoot:
		subtype = SubtypeTroubleshoot
	default:
		subtype = SubtypeDefinition
	}

	di := &DetectedIntent{Type: Question, Subtype: subtype, Confidence: total, SourceText: original, OriginalText: original}
	if topic := extractTopic(lower); topic != "" {
		di.Slots = map[string]string{"topic": topic}
	}
	return di, true
}

func extractTopic(lower string) string {
	if m := reTopicDefine.FindStringSubmatch(lower); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reTopicAbout.FindStringSubmatch(lower); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
