package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCmd returns a function that executes the test command with args.
func newTestCmd(format string, out *bytes.Buffer) func(args ...string) error {
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	return func(args ...string) error {
		cmd.SetArgs(args)
		return cmd.Execute()
	}
}

func TestTestCommandMissingArgs(t *testing.T) {
	run := newTestCmd("text", &bytes.Buffer{})
	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	run := newTestCmd("text", &bytes.Buffer{})
	err := run("/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf := &bytes.Buffer{}
	run := newTestCmd("text", buf)
	require.NoError(t, run(t.TempDir()))
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	run := newTestCmd("json", buf)
	require.NoError(t, run(t.TempDir()))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "tiny", passingScenario)

	buf := &bytes.Buffer{}
	require.NoError(t, newTestCmd("text", buf)("--update", dir))
	assert.Contains(t, buf.String(), "✓ tiny (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "tiny.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"tiny"`)

	buf.Reset()
	require.NoError(t, newTestCmd("text", buf)(dir))
	assert.Contains(t, buf.String(), "✓ tiny")
	assert.Contains(t, buf.String(), "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "tiny", passingScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "tiny.golden"), []byte(`{}`), 0o644))

	buf := &bytes.Buffer{}
	err := newTestCmd("text", buf)(dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "does not match golden file")
}

func TestTestCommandMixedResultsJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "tiny", passingScenario)
	writeScenario(t, dir, "wrong", failingScenario)

	buf := &bytes.Buffer{}
	err := newTestCmd("json", buf)(dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Equal(t, 2, resp.Data.Total)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "tiny", passingScenario)
	writeScenario(t, dir, "wrong", failingScenario)

	buf := &bytes.Buffer{}
	require.NoError(t, newTestCmd("text", buf)("--filter", "ti*", dir))
	assert.Contains(t, buf.String(), "1 total")
	assert.NotContains(t, buf.String(), "wrong")
}

func TestTestCommandHarnessFixtures(t *testing.T) {
	buf := &bytes.Buffer{}
	dir := filepath.Join("..", "harness", "testdata", "scenarios")
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestTestHelpText(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "golden")
	assert.Contains(t, cmd.Long, "Exit codes")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a", passingScenario)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(passingScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "budget_limits", passingScenario)
	writeScenario(t, dir, "shared_handles", passingScenario)

	files, err := findScenarioFiles(dir, "budget*")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "budget_limits.yaml", filepath.Base(files[0]))

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestFindScenarioFilesSkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a", passingScenario)
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeScenario(t, sub, "b", passingScenario)
	golden := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(golden, 0o755))
	writeScenario(t, golden, "c", passingScenario)

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"scenarios/lifecycle.yaml", "scenarios/golden/lifecycle.golden"},
		{"scenarios/nested/budget.yml", "scenarios/nested/golden/budget.golden"},
		{"plain.yaml", "golden/plain.golden"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.expected), goldenFilePath(filepath.FromSlash(tt.input)))
		})
	}
}
