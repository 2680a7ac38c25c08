package rapport

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HeuristicPoints holds the point value of each scalar heuristic
type HeuristicPoints struct {
	SingleQuestion    int `yaml:"single_question"`
	MultipleQuestions int `yaml:"multiple_questions"`
	ShortText         int `yaml:"short_text"`
	LongText          int `yaml:"long_text"`
	AllCaps           int `yaml:"all_caps"`
	Profanity         int `yaml:"profanity"`
	NameRepetition    int `yaml:"name_repetition"`
	ClosedQuestion    int `yaml:"closed_question"`
}

// Tuning holds every numeric constant the engine uses
type Tuning struct {
	InitialScore int `yaml:"initial_score"`

	// Tier cut points. LOW is [0, LowMax], MEDIUM is (LowMax, MediumMax],
	// HIGH is (MediumMax, 100].
	LowMax    int `yaml:"low_max"`
	MediumMax int `yaml:"medium_max"`

	// Per-message bounds on the summed delta. LossFloor is negative.
	GainCeiling int `yaml:"gain_ceiling"`
	LossFloor   int `yaml:"loss_floor"`

	Heuristics HeuristicPoints `yaml:"heuristics"`

	ShortTextThreshold int     `yaml:"short_text_threshold"`
	LongTextThreshold  int     `yaml:"long_text_threshold"`
	CapsMinLetters     int     `yaml:"caps_min_letters"`
	CapsRatio          float64 `yaml:"caps_ratio"`
	NameRepeatLimit    int     `yaml:"name_repeat_limit"`

	// CategoryPoints overrides the points of a category by label
	CategoryPoints map[string]int `yaml:"category_points"`
}

// DefaultTuning returns the built-in constants
func DefaultTuning() Tuning {
	return Tuning{
		InitialScore: 20,
		LowMax:       40,
		MediumMax:    75,
		GainCeiling:  8,
		LossFloor:    -12,
		Heuristics: HeuristicPoints{
			SingleQuestion:    1,
			MultipleQuestions: -1,
			ShortText:         -2,
			LongText:          1,
			AllCaps:           -5,
			Profanity:         -4,
			NameRepetition:    -1,
			ClosedQuestion:    0,
		},
		ShortTextThreshold: 10,
		LongTextThreshold:  100,
		CapsMinLetters:     5,
		CapsRatio:          0.8,
		NameRepeatLimit:    2,
	}
}

// HighMin is the lowest score in the HIGH band
func (t Tuning) HighMin() int {
	return t.MediumMax + 1
}

// Validate checks that the bands partition [0,100] and that the caps keep
// trust slow to build and fast to lose
func (t Tuning) Validate() error {
	if t.LowMax < 0 || t.LowMax >= t.MediumMax || t.MediumMax >= MaxScore {
		return fmt.Errorf("invalid tier bands: low_max=%d medium_max=%d", t.LowMax, t.MediumMax)
	}
	if t.GainCeiling <= 0 {
		return fmt.Errorf("gain_ceiling must be positive, got %d", t.GainCeiling)
	}
	if t.LossFloor >= 0 {
		return fmt.Errorf("loss_floor must be negative, got %d", t.LossFloor)
	}
	if -t.LossFloor <= t.GainCeiling {
		return fmt.Errorf("loss_floor magnitude (%d) must exceed gain_ceiling (%d)", -t.LossFloor, t.GainCeiling)
	}
	if t.InitialScore < MinScore || t.InitialScore > t.LowMax {
		return fmt.Errorf("initial_score %d must lie in the low band [0,%d]", t.InitialScore, t.LowMax)
	}
	if t.HighMin()-t.InitialScore <= t.GainCeiling {
		return fmt.Errorf("high band (from %d) is reachable from initial score %d in one message", t.HighMin(), t.InitialScore)
	}
	if t.CapsRatio <= 0 || t.CapsRatio > 1 {
		return fmt.Errorf("caps_ratio must be in (0,1], got %v", t.CapsRatio)
	}
	if t.ShortTextThreshold < 0 || t.LongTextThreshold <= t.ShortTextThreshold {
		return fmt.Errorf("invalid length thresholds: short=%d long=%d", t.ShortTextThreshold, t.LongTextThreshold)
	}
	return nil
}

// LoadTuning reads a YAML file and overlays it on DefaultTuning. Keys
// missing from the file keep their default values.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid tuning in %s: %w", path, err)
	}
	return t, nil
}
