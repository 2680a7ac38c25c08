package rapport

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo/rapport_backend/internal/types"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultTuning(), WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)
	return e
}

// maxGainMessage hits Empathy, Validation, Support and Open Question plus
// a single question mark, well above the gain ceiling.
const maxGainMessage = "I understand, that makes sense and I'm here to help. Tell me about it?"

const accusatoryShout = "ADMIT IT, YOU'RE LYING!!!"

func labels(ev Event) []string {
	out := make([]string, 0, len(ev.Signals))
	for _, s := range ev.Signals {
		out = append(out, s.Label)
	}
	return out
}

func TestClassifyOpenQuestionExample(t *testing.T) {
	e := newTestEngine(t)

	ev := e.Classify("How do you feel about what happened?", 20, "")

	assert.Equal(t, []string{LabelOpenQuestion, LabelAskedQuestion}, labels(ev))
	assert.Equal(t, 3, ev.Delta)
	assert.Equal(t, 20, ev.ScoreBefore)
	assert.Equal(t, 23, ev.ScoreAfter)
	assert.Equal(t, types.TierLow, ev.TierAfter)
	assert.Equal(t, "Rapport builders: Open Question, Asked Question. Net change: +3 points.", ev.Explanation)
}

func TestClassifyAccusatoryShoutHitsFloor(t *testing.T) {
	e := newTestEngine(t)
	floor := e.Tuning().LossFloor

	ev := e.Classify(accusatoryShout, 60, "")

	assert.Equal(t, []string{LabelAccusatory, LabelAllCaps, LabelLossCap}, labels(ev))
	assert.Equal(t, -13, ev.RawDelta)
	assert.Equal(t, floor, ev.Delta)
	assert.Equal(t, 60+floor, ev.ScoreAfter)
	assert.Equal(t, types.TierMedium, ev.TierAfter)
	assert.True(t, ev.Capped())
	assert.Contains(t, ev.Explanation, "Loss capped at -12 (raw -13).")
	assert.NotContains(t, ev.Explanation, LabelLossCap)
}

func TestClassifyIsDeterministic(t *testing.T) {
	e := newTestEngine(t)
	messages := []string{
		"",
		"   ",
		"How do you feel about what happened?",
		accusatoryShout,
		maxGainMessage,
		"Ethan, Ethan, listen Ethan, are you ok?",
		"日本語のメッセージ",
	}

	for _, msg := range messages {
		for _, score := range []int{0, 20, 41, 76, 100} {
			a := e.Classify(msg, score, "Ethan")
			b := e.Classify(msg, score, "Ethan")
			if diff := cmp.Diff(a, b); diff != "" {
				t.Errorf("Classify(%q, %d) not deterministic (-first +second):\n%s", msg, score, diff)
			}
		}
	}
}

func TestClassifyEmptyAndWhitespace(t *testing.T) {
	e := newTestEngine(t)

	for _, msg := range []string{"", "   ", "\n\t"} {
		ev := e.Classify(msg, 33, "")
		assert.Empty(t, ev.Signals, "message %q", msg)
		assert.Equal(t, 0, ev.Delta)
		assert.Equal(t, 33, ev.ScoreAfter)
		assert.Equal(t, NeutralExplanation, ev.Explanation)
	}
}

func TestClassifyClampsAtExtremes(t *testing.T) {
	e := newTestEngine(t)

	low := e.Classify(accusatoryShout+" Whatever, get over it. Answer me!", 0, "")
	assert.Equal(t, 0, low.ScoreAfter)
	assert.Equal(t, e.Tuning().LossFloor, low.Delta)
	assert.Equal(t, types.TierLow, low.TierAfter)

	high := e.Classify(maxGainMessage, 100, "")
	assert.Equal(t, 100, high.ScoreAfter)
	assert.Equal(t, e.Tuning().GainCeiling, high.Delta)
	assert.Equal(t, types.TierHigh, high.TierAfter)
}

func TestClassifyCapsAreAsymmetric(t *testing.T) {
	e := newTestEngine(t)
	tun := e.Tuning()
	require.Greater(t, -tun.LossFloor, tun.GainCeiling)

	gain := e.Classify(maxGainMessage, 50, "")
	assert.Greater(t, gain.RawDelta, tun.GainCeiling)
	assert.Equal(t, tun.GainCeiling, gain.Delta)
	assert.Equal(t, LabelGainCap, gain.Signals[len(gain.Signals)-1].Label)
	assert.Equal(t, types.PolaritySystem, gain.Signals[len(gain.Signals)-1].Polarity)
}

func TestSignalsSumToDelta(t *testing.T) {
	e := newTestEngine(t)
	for _, msg := range []string{maxGainMessage, accusatoryShout, "ok", "Is it true? Did you? Really?"} {
		ev := e.Classify(msg, 50, "")
		sum := 0
		for _, s := range ev.Signals {
			sum += s.Points
		}
		assert.Equal(t, ev.Delta, sum, "message %q", msg)
	}
}

func TestCategoryIsScoredOnce(t *testing.T) {
	e := newTestEngine(t)

	one := e.Classify("Tell me about it.", 30, "")
	stuffed := e.Classify("Tell me about it. Walk me through it. Describe it. Help me understand. Explain to me.", 30, "")

	assert.Equal(t, []string{LabelOpenQuestion}, labels(one))
	assert.Equal(t, []string{LabelOpenQuestion}, labels(stuffed))
	assert.Equal(t, one.Delta, stuffed.Delta)
}

func TestTopTierNeedsSustainedGain(t *testing.T) {
	e := newTestEngine(t)

	score := e.InitialScore()
	messages := 0
	for e.TierFor(score) != types.TierHigh {
		ev := e.Classify(maxGainMessage, score, "")
		score = ev.ScoreAfter
		messages++
		require.Less(t, messages, 100)
	}

	assert.Greater(t, messages, 1)
	assert.Equal(t, 7, messages)
}

func TestSingleDamagingMessageDropsATier(t *testing.T) {
	e := newTestEngine(t)
	bottomOfHigh := e.Tuning().HighMin()
	require.Equal(t, types.TierHigh, e.TierFor(bottomOfHigh))

	ev := e.Classify(accusatoryShout, bottomOfHigh, "")

	assert.Equal(t, types.TierMedium, ev.TierAfter)
}

func TestTierIsPureFunctionOfScore(t *testing.T) {
	e := newTestEngine(t)
	seen := map[int]types.Tier{}

	for score := 0; score <= 100; score++ {
		for _, msg := range []string{"", maxGainMessage, accusatoryShout, "Tell me more?"} {
			ev := e.Classify(msg, score, "")
			if prev, ok := seen[ev.ScoreAfter]; ok {
				assert.Equal(t, prev, ev.TierAfter)
			}
			seen[ev.ScoreAfter] = ev.TierAfter
			assert.Equal(t, e.TierFor(ev.ScoreAfter), ev.TierAfter)
			assert.GreaterOrEqual(t, ev.ScoreAfter, MinScore)
			assert.LessOrEqual(t, ev.ScoreAfter, MaxScore)
		}
	}
}

func TestTierBands(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		score int
		want  types.Tier
	}{
		{0, types.TierLow},
		{40, types.TierLow},
		{41, types.TierMedium},
		{75, types.TierMedium},
		{76, types.TierHigh},
		{100, types.TierHigh},
		{-5, types.TierLow},
		{140, types.TierHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.TierFor(tt.score), "score %d", tt.score)
	}
}

func TestScalarHeuristics(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name    string
		message string
		persona string
		want    []string
		delta   int
	}{
		{"single question", "Where were you on Friday night?", "", []string{LabelAskedQuestion}, 1},
		{"multiple questions", "Where were you? Who was there? Why?", "", []string{LabelMultipleQuestions}, -1},
		{"short text", "ok", "", []string{LabelShortMessage}, -2},
		{"long text", strings.Repeat("I was thinking about our last talk ", 4), "", []string{LabelThoughtfulMessage}, 1},
		{"all caps", "WHERE WERE YOU FRIDAY", "", []string{LabelAllCaps}, -5},
		{"caps too short to judge", "OK GO", "", []string{LabelShortMessage}, -2},
		{"profanity", "This whole thing is crap honestly", "", []string{LabelProfanity}, -4},
		{"name overuse", "Ethan, look. Ethan, listen to me. ETHAN.", "Ethan", []string{LabelNameOveruse}, -1},
		{"name used twice", "Ethan, look. Ethan, listen to me.", "Ethan", nil, 0},
		{"non-ascii name overuse", "Zoë, look. Zoë, listen to me. ZOË.", "Zoë", []string{LabelNameOveruse}, -1},
		{"name inside a longer word", "Zoëy, look. Zoëy, listen to me. Zoëy.", "Zoë", nil, 0},
		{"closed question", "Did you go to the game on Friday?", "", []string{LabelClosedQuestion, LabelAskedQuestion}, 1},
		{"curly apostrophe", "You’re lying to everyone here", "", []string{LabelAccusatory}, -8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := e.Classify(tt.message, 50, tt.persona)
			if tt.want == nil {
				assert.Empty(t, ev.Signals)
			} else {
				assert.Equal(t, tt.want, labels(ev))
			}
			assert.Equal(t, tt.delta, ev.Delta)
		})
	}
}

func TestClassifyConcurrentUse(t *testing.T) {
	e := newTestEngine(t)
	want := e.Classify(maxGainMessage, 30, "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := e.Classify(maxGainMessage, 30, "")
			assert.True(t, cmp.Equal(want, got))
		}()
	}
	wg.Wait()
}

func TestNewEngineCategoryOverrides(t *testing.T) {
	tun := DefaultTuning()
	tun.CategoryPoints = map[string]int{LabelOpenQuestion: 1}
	e, err := NewEngine(tun)
	require.NoError(t, err)

	ev := e.Classify("Tell me about it.", 30, "")
	assert.Equal(t, 1, ev.Delta)

	// The package table is untouched
	assert.Equal(t, 2, DefaultRules()[0].Points)

	tun.CategoryPoints = map[string]int{LabelAccusatory: 3}
	_, err = NewEngine(tun)
	assert.Error(t, err)

	tun.CategoryPoints = map[string]int{"Flattery": 2}
	_, err = NewEngine(tun)
	assert.Error(t, err)
}

func TestWithRulesCopiesTable(t *testing.T) {
	rules := DefaultRules()
	tun := DefaultTuning()
	tun.CategoryPoints = map[string]int{LabelOpenQuestion: 1}

	e, err := NewEngine(tun, WithRules(rules))
	require.NoError(t, err)

	assert.Equal(t, 2, rules[0].Points)
	assert.Equal(t, 1, e.Rules()[0].Points)
}
