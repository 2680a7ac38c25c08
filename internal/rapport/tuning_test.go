package rapport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningIsValid(t *testing.T) {
	require.NoError(t, DefaultTuning().Validate())
}

func TestTuningValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Tuning)
	}{
		{"overlapping bands", func(t *Tuning) { t.LowMax = 80 }},
		{"medium band reaches 100", func(t *Tuning) { t.MediumMax = 100 }},
		{"zero ceiling", func(t *Tuning) { t.GainCeiling = 0 }},
		{"positive floor", func(t *Tuning) { t.LossFloor = 3 }},
		{"floor not larger than ceiling", func(t *Tuning) { t.LossFloor = -8 }},
		{"initial outside low band", func(t *Tuning) { t.InitialScore = 50 }},
		{"high reachable in one message", func(t *Tuning) { t.GainCeiling = 60; t.LossFloor = -70 }},
		{"caps ratio", func(t *Tuning) { t.CapsRatio = 1.5 }},
		{"length thresholds", func(t *Tuning) { t.LongTextThreshold = 5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tun := DefaultTuning()
			tt.modify(&tun)
			assert.Error(t, tun.Validate())

			_, err := NewEngine(tun)
			assert.Error(t, err)
		})
	}
}

func TestLoadTuningOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `
gain_ceiling: 6
loss_floor: -15
heuristics:
  all_caps: -6
category_points:
  Summary: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tun, err := LoadTuning(path)
	require.NoError(t, err)

	assert.Equal(t, 6, tun.GainCeiling)
	assert.Equal(t, -15, tun.LossFloor)
	assert.Equal(t, -6, tun.Heuristics.AllCaps)
	assert.Equal(t, 1, tun.Heuristics.SingleQuestion)
	assert.Equal(t, 20, tun.InitialScore)
	assert.Equal(t, map[string]int{"Summary": 5}, tun.CategoryPoints)
}

func TestLoadTuningErrors(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("loss_floor: -4\n"), 0644))
	_, err = LoadTuning(bad)
	assert.Error(t, err)
}
