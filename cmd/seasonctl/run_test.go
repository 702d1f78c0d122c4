package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "sport": "basketball",
  "seasonStart": "2025-01-06",
  "seasonEnd": "2025-03-30",
  "format": "single_round_robin",
  "simulatedAnnealingIterations": 200,
  "teams": [
    {"name": "Alpha", "venue": "Alpha Arena"},
    {"name": "Bravo", "venue": "Bravo Arena"},
    {"name": "Charlie", "venue": "Charlie Arena"},
    {"name": "Delta", "venue": "Delta Arena"}
  ]
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "season.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunSeasonWritesCSV(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := runOptions{file: writeConfig(t, sampleConfig), format: "csv", seed: 7, quiet: true}

	require.NoError(t, runSeason(context.Background(), opts, true, &stdout, &stderr))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, "Date,Weekday,Week,Home,Away,Venue,Type,Series,Game,Locked", lines[0])
	assert.Len(t, lines, 7, "four teams single round robin play six games")
}

func TestRunSeasonIsDeterministicForASeed(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	run := func() string {
		var stdout bytes.Buffer
		opts := runOptions{file: path, format: "json", seed: 99, quiet: true}
		require.NoError(t, runSeason(context.Background(), opts, true, &stdout, &bytes.Buffer{}))
		return stdout.String()
	}
	assert.Equal(t, run(), run())
}

func TestRunSeasonReportsProgressAndWritesFile(t *testing.T) {
	var stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "season.pdf")
	opts := runOptions{file: writeConfig(t, sampleConfig), out: out, format: "pdf"}

	require.NoError(t, runSeason(context.Background(), opts, false, &bytes.Buffer{}, &stderr))

	payload, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
	assert.Contains(t, stderr.String(), "completed")
}

func TestRunSeasonRejectsBadInput(t *testing.T) {
	err := runSeason(context.Background(), runOptions{file: writeConfig(t, sampleConfig), format: "xlsx"}, false, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported --format")

	bad := strings.Replace(sampleConfig, `"seasonEnd": "2025-03-30"`, `"seasonEnd": "2024-12-01"`, 1)
	err = runSeason(context.Background(), runOptions{file: writeConfig(t, bad), format: "csv", quiet: true}, false, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid season configuration:")
	assert.Contains(t, err.Error(), "seasonEnd")

	err = runSeason(context.Background(), runOptions{file: writeConfig(t, `{"sport": "x", "bogus": 1}`), format: "csv"}, false, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "decode configuration")
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--file", writeConfig(t, sampleConfig)})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ok: basketball single_round_robin, 4 teams, 3 games per team")
}
