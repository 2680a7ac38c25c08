package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/rapport"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestClassifyCommand(t *testing.T) {
	t.Setenv("RAPPORT_TUNING_FILE", "")
	t.Setenv("PERSONA_DIR", "")

	out := run(t, "", "classify", "How do you feel about what happened?")

	var ev rapport.Event
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, 20, ev.ScoreBefore)
	assert.Equal(t, 23, ev.ScoreAfter)

	out = run(t, "", "classify", "--score", "50", "I understand.")
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, 50, ev.ScoreBefore)
}

func TestHashPasswordCommand(t *testing.T) {
	out := run(t, "S3cret!pass\n", "hash-password")
	assert.True(t, auth.CheckPassword(strings.TrimSpace(out), "S3cret!pass"))
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	dataDir := filepath.Join(dir, "data")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "--config", envPath, "--data-dir", dataDir})
	require.NoError(t, rootCmd.Execute())

	_, err := os.Stat(filepath.Join(dataDir, "personas"))
	require.NoError(t, err)

	env, err := os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Contains(t, string(env), "OPENAI_API_KEY=")
	assert.Regexp(t, `JWT_SECRET=\S{40,}`, string(env))
}
