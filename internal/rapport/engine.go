package rapport

import (
	"fmt"
	"strings"
	"time"

	"github.com/neo/rapport_backend/internal/types"
)

// Score bounds
const (
	MinScore = 0
	MaxScore = 100
)

// Synthetic signal labels recorded when a per-message cap is applied
const (
	LabelGainCap = "Gain Cap Applied"
	LabelLossCap = "Loss Cap Applied"
)

// NeutralExplanation is used when no signal fired
const NeutralExplanation = "Neutral message with no significant rapport impact."

// Signal is one matched rule or heuristic within an event
type Signal struct {
	Label    string         `json:"label"`
	Points   int            `json:"points"`
	Polarity types.Polarity `json:"polarity"`
}

// Event is the record of one scoring pass. Signals always sum to Delta.
type Event struct {
	Sequence    int        `json:"sequence"`
	Timestamp   time.Time  `json:"timestamp"`
	ScoreBefore int        `json:"score_before"`
	ScoreAfter  int        `json:"score_after"`
	RawDelta    int        `json:"raw_delta"`
	Delta       int        `json:"delta"`
	TierAfter   types.Tier `json:"tier_after"`
	Signals     []Signal   `json:"matched_signals"`
	Explanation string     `json:"explanation"`
}

// Capped reports whether a per-message cap attenuated the raw delta
func (e Event) Capped() bool {
	return e.RawDelta != e.Delta
}

// Engine classifies trainee messages. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	rules  []SignalRule
	tuning Tuning
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRules replaces the category table
func WithRules(rules []SignalRule) Option {
	return func(e *Engine) {
		e.rules = make([]SignalRule, len(rules))
		copy(e.rules, rules)
	}
}

// NewEngine validates tuning and builds an engine
func NewEngine(tuning Tuning, opts ...Option) (*Engine, error) {
	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		rules:  DefaultRules(),
		tuning: tuning,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	for label, points := range tuning.CategoryPoints {
		idx := -1
		for i := range e.rules {
			if e.rules[i].Label == label {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("unknown category in tuning: %q", label)
		}
		if polarityOf(points) != e.rules[idx].Polarity || points == 0 {
			return nil, fmt.Errorf("category %q override %d does not match its polarity %s", label, points, e.rules[idx].Polarity)
		}
		e.rules[idx].Points = points
	}

	return e, nil
}

// Default returns an engine with the built-in rules and tuning
func Default() *Engine {
	e, err := NewEngine(DefaultTuning())
	if err != nil {
		panic(fmt.Sprintf("rapport: default tuning is invalid: %v", err))
	}
	return e
}

// Tuning returns the engine's constants
func (e *Engine) Tuning() Tuning {
	return e.tuning
}

// InitialScore is the score every conversation starts from
func (e *Engine) InitialScore() int {
	return e.tuning.InitialScore
}

// Rules returns a copy of the category table
func (e *Engine) Rules() []SignalRule {
	out := make([]SignalRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// TierFor maps a score to its band. Scores outside [0,100] are clamped first.
func (e *Engine) TierFor(score int) types.Tier {
	score = clamp(score, MinScore, MaxScore)
	switch {
	case score <= e.tuning.LowMax:
		return types.TierLow
	case score <= e.tuning.MediumMax:
		return types.TierMedium
	default:
		return types.TierHigh
	}
}

// Classify scores one trainee message against currentScore. personaName
// enables the name-overuse heuristic; pass "" to skip it. Classify never
// fails: any input, including empty text, yields an event.
func (e *Engine) Classify(message string, currentScore int, personaName string) Event {
	text := normalize(message)

	var signals []Signal
	for _, rule := range e.rules {
		if rule.Match(text) {
			signals = append(signals, Signal{Label: rule.Label, Points: rule.Points, Polarity: rule.Polarity})
		}
	}
	signals = append(signals, e.scalarSignals(text, strings.TrimSpace(personaName))...)

	raw := 0
	for _, s := range signals {
		raw += s.Points
	}

	delta := raw
	switch {
	case raw > e.tuning.GainCeiling:
		delta = e.tuning.GainCeiling
		signals = append(signals, Signal{Label: LabelGainCap, Points: delta - raw, Polarity: types.PolaritySystem})
	case raw < e.tuning.LossFloor:
		delta = e.tuning.LossFloor
		signals = append(signals, Signal{Label: LabelLossCap, Points: delta - raw, Polarity: types.PolaritySystem})
	}

	after := clamp(currentScore+delta, MinScore, MaxScore)

	ev := Event{
		Timestamp:   e.now(),
		ScoreBefore: currentScore,
		ScoreAfter:  after,
		RawDelta:    raw,
		Delta:       delta,
		TierAfter:   e.TierFor(after),
		Signals:     signals,
	}
	ev.Explanation = explain(ev)
	return ev
}

func normalize(message string) string {
	r := strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")
	return strings.TrimSpace(r.Replace(message))
}

func explain(ev Event) string {
	var builders, damagers []string
	for _, s := range ev.Signals {
		switch s.Polarity {
		case types.PolarityBuildsTrust:
			builders = append(builders, s.Label)
		case types.PolarityDamagesTrust:
			damagers = append(damagers, s.Label)
		}
	}
	if len(builders) == 0 && len(damagers) == 0 {
		return NeutralExplanation
	}

	var parts []string
	if len(builders) > 0 {
		parts = append(parts, "Rapport builders: "+strings.Join(builders, ", ")+".")
	}
	if len(damagers) > 0 {
		parts = append(parts, "Rapport damagers: "+strings.Join(damagers, ", ")+".")
	}
	if ev.Capped() {
		kind := "Gain"
		if ev.Delta < 0 {
			kind = "Loss"
		}
		parts = append(parts, fmt.Sprintf("%s capped at %+d (raw %+d).", kind, ev.Delta, ev.RawDelta))
	}
	parts = append(parts, fmt.Sprintf("Net change: %+d points.", ev.Delta))
	return strings.Join(parts, " ")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
