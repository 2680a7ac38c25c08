package rapport

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/neo/rapport_backend/internal/types"
)

// Heuristic labels
const (
	LabelAskedQuestion     = "Asked Question"
	LabelMultipleQuestions = "Multiple Questions"
	LabelShortMessage      = "Very Short Message"
	LabelThoughtfulMessage = "Thoughtful Message"
	LabelAllCaps           = "All Caps"
	LabelProfanity         = "Profanity"
	LabelNameOveruse       = "Name Overuse"
	LabelClosedQuestion    = "Closed Question"
)

var profanityPatterns = patterns(
	`\bfuck`,
	`\bshit`,
	`\bass(hole)?\b`,
	`\bbitch`,
	`\bdamn`,
	`\bcrap\b`,
	`\bhell\b`,
	`\bbastard`,
)

var closedQuestionPatterns = patterns(
	`^(do|does|did|is|are|was|were|will|would|can|could|should|have|has|had) (you|he|she|they|it)\b`,
	`^(is|are) (there|this|that|it)\b`,
)

// scalarSignals evaluates the heuristics that sit outside the category
// table. Each fires at most once. message is already trimmed.
func (e *Engine) scalarSignals(message, personaName string) []Signal {
	h := e.tuning.Heuristics
	var out []Signal
	add := func(label string, points int) {
		out = append(out, Signal{Label: label, Points: points, Polarity: polarityOf(points)})
	}

	if isClosedQuestion(message) {
		out = append(out, Signal{Label: LabelClosedQuestion, Points: h.ClosedQuestion, Polarity: types.PolarityDamagesTrust})
	}

	switch q := strings.Count(message, "?"); {
	case q == 1:
		add(LabelAskedQuestion, h.SingleQuestion)
	case q > 1:
		add(LabelMultipleQuestions, h.MultipleQuestions)
	}

	if e.isShouting(message) {
		add(LabelAllCaps, h.AllCaps)
	}

	length := utf8.RuneCountInString(message)
	if length > 0 && length < e.tuning.ShortTextThreshold {
		add(LabelShortMessage, h.ShortText)
	}
	if length > e.tuning.LongTextThreshold {
		add(LabelThoughtfulMessage, h.LongText)
	}

	if containsProfanity(message) {
		add(LabelProfanity, h.Profanity)
	}

	if personaName != "" && countName(message, personaName) > e.tuning.NameRepeatLimit {
		add(LabelNameOveruse, h.NameRepetition)
	}

	return out
}

func isClosedQuestion(message string) bool {
	if !strings.Contains(message, "?") {
		return false
	}
	for _, p := range closedQuestionPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// isShouting reports whether the message is predominantly upper case.
// Letters are classified with unicode, so non-Latin scripts with case work
// the same way.
func (e *Engine) isShouting(message string) bool {
	letters, upper := 0, 0
	for _, r := range message {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters < e.tuning.CapsMinLetters {
		return false
	}
	return float64(upper)/float64(letters) > e.tuning.CapsRatio
}

func containsProfanity(message string) bool {
	for _, p := range profanityPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// countName counts whole-word, case-insensitive occurrences of name. Word
// boundaries are checked on Unicode letters and digits since \b is ASCII only.
func countName(message, name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(name))
	if err != nil {
		return 0
	}
	n := 0
	for _, loc := range re.FindAllStringIndex(message, -1) {
		before, _ := utf8.DecodeLastRuneInString(message[:loc[0]])
		after, _ := utf8.DecodeRuneInString(message[loc[1]:])
		if !isWordRune(before) && !isWordRune(after) {
			n++
		}
	}
	return n
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func polarityOf(points int) types.Polarity {
	if points > 0 {
		return types.PolarityBuildsTrust
	}
	return types.PolarityDamagesTrust
}
