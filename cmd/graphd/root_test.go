package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graph: 1, 2 and 3 point left at 5; 4 points nowhere
const sampleGraph = `# sample
{"id": 5, "name": "target"}
{"id": 1, "name": "a", "left": 5}
{"id": 2, "name": "b", "left": 5}
{"id": 3, "name": "c", "left": 5}
{"id": 4, "name": "d"}
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func loadedDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "db")
	out, err := execute(t, sampleGraph, "--db", db, "load", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 5 primitives")
	return db
}

func TestRunCursor(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, "", "--db", db, "run", "linksto:0:L->(fixed:0:(5))")
	require.NoError(t, err)
	assert.Contains(t, out, "_3 results_")
	assert.NotContains(t, out, "resume:")
}

func TestFreezeAndResume(t *testing.T) {
	db := loadedDB(t)

	cursor, err := execute(t, "", "--db", db, "freeze", "--after", "1", "linksto:0:L->(fixed:0:(5))")
	require.NoError(t, err)
	cursor = strings.TrimSpace(cursor)
	require.NotEmpty(t, cursor)

	out, err := execute(t, "", "--db", db, "run", cursor)
	require.NoError(t, err)
	assert.Contains(t, out, "_2 results_")
}

func TestStatsCommand(t *testing.T) {
	db := loadedDB(t)

	out, err := execute(t, "", "--db", db, "--metrics", "stats", "linksto:0:L->(fixed:0:(5))")
	require.NoError(t, err)
	assert.Contains(t, out, "statistic")
	assert.Contains(t, out, "set: ")
	assert.Contains(t, out, "graphd_iterator_events_total")
}

func TestBadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "db")

	_, err := execute(t, `{"id": 1, "left": 1099511627776}`, "--db", db, "load", "-")
	assert.ErrorContains(t, err, "invalid left target")

	_, err = execute(t, "", "--db", db, "run", "linksto:0:Q->(fixed:0:(5))")
	assert.Error(t, err)
}

func TestEnvironmentTuning(t *testing.T) {
	t.Setenv("GRAPHD_SAMPLE_TARGET", "0")
	_, err := execute(t, "", "--db", filepath.Join(t.TempDir(), "db"), "stats", "null:")
	assert.ErrorContains(t, err, "sample_target")
}
