package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/document"
)

// runCLI executes the root command and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// mustCLI executes the root command and fails the test on error.
func mustCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	require.NoError(t, err, "output: %s", out)
	return out
}

// decode parses a JSON CLI response.
func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "parcad.db")
}

func argsJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// createSketch runs createSketch on plane and returns the new id.
func createSketch(t *testing.T, db, doc string, plane document.FeatureID) string {
	t.Helper()
	out := mustCLI(t, "--db", db, "--format", "json", "exec", doc, "createSketch",
		"--args", argsJSON(t, map[string]any{"plane": plane}))
	data := decode(t, out).Data.(map[string]any)
	require.Equal(t, true, data["ok"])
	return data["value"].(string)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "parcad", cmd.Use)
	assert.Contains(t, cmd.Long, "feature graphs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "list", "exec", "show", "rebuild", "validate", "merge", "compact", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "--format", "xml", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.toml"), "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInitAndList(t *testing.T) {
	db := testDB(t)

	out := mustCLI(t, "--db", db, "--format", "json", "init", "bracket", "--id", "doc1")
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "doc1", data["id"])
	assert.Equal(t, "bracket", data["name"])
	assert.Equal(t, "mm", data["units"])

	_, err := runCLI(t, "--db", db, "init", "again", "--id", "doc1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out = mustCLI(t, "--db", db, "list")
	assert.Contains(t, out, "doc1")
	assert.Contains(t, out, "bracket")
}

func TestInit_UnitsFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "parcad.toml")
	db := filepath.Join(dir, "parts.db")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf("database = %q\nunits = \"in\"\n", db)), 0o644))

	out := mustCLI(t, "--config", cfg, "init", "plate", "--id", "p")
	assert.Contains(t, out, "Created document p (plate, in)")

	out = mustCLI(t, "--config", cfg, "show", "p")
	assert.Contains(t, out, "Document: plate (in)")
}

func TestExec_EditsArePersisted(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "part", "--id", "d")

	sketch := createSketch(t, db, "d", document.XYPlaneID)
	mustCLI(t, "--db", db, "exec", "d", "renameFeature", "--args", argsJSON(t, map[string]any{"id": sketch, "name": "Profile"}))

	out := mustCLI(t, "--db", db, "show", "d")
	assert.Contains(t, out, sketch)
	assert.Contains(t, out, "Profile")
	assert.Contains(t, out, "> ")

	out = mustCLI(t, "--db", db, "--format", "json", "show", "d")
	tree := decode(t, out).Data.(map[string]any)
	assert.Len(t, tree["order"], 5)
	assert.Equal(t, sketch, tree["state"].(map[string]any)["rebuildGate"])
}

func TestExec_Rejected(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "part", "--id", "d")

	out, err := runCLI(t, "--db", db, "--format", "json", "exec", "d", "deleteFeature",
		"--args", argsJSON(t, map[string]any{"id": document.XYPlaneID}))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeToolFailed, resp.Error.Code)
	assert.Equal(t, "PROTECTED", resp.Error.Details.(map[string]any)["code"])

	out = mustCLI(t, "--db", db, "--format", "json", "show", "d")
	assert.Len(t, decode(t, out).Data.(map[string]any)["order"], 4)
}

func TestExec_CommandErrors(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "part", "--id", "d")

	tests := []struct {
		name string
		args []string
	}{
		{"bad args json", []string{"exec", "d", "getDocument", "--args", "{"}},
		{"missing document", []string{"exec", "nope", "getDocument"}},
		{"missing tool name", []string{"exec", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--db", db}, tt.args...)...)
			require.Error(t, err)
			if tt.name != "missing tool name" {
				assert.Equal(t, ExitCommandError, GetExitCode(err))
			}
		})
	}
}

func TestExec_UnknownTool(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "part", "--id", "d")

	out, err := runCLI(t, "--db", db, "exec", "d", "fly")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_TOOL_FAILED]")
}

func TestExec_List(t *testing.T) {
	out := mustCLI(t, "exec", "--list")
	assert.Contains(t, out, "createSketch - ")
	assert.Contains(t, out, "plane target (required)")

	out = mustCLI(t, "--format", "json", "exec", "--list")
	defs := decode(t, out).Data.([]any)
	assert.NotEmpty(t, defs)
}

func TestRebuildAndValidate(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "part", "--id", "d")
	sketch := createSketch(t, db, "d", document.XYPlaneID)

	out := mustCLI(t, "--db", db, "rebuild", "d", "--mode", "full")
	assert.Contains(t, out, "Rebuild (full")
	assert.Contains(t, out, "computed   "+sketch)

	out = mustCLI(t, "--db", db, "--format", "json", "rebuild", "d")
	summary := decode(t, out).Data.(map[string]any)
	assert.Equal(t, "gated", summary["mode"])
	assert.Equal(t, "computed", summary["status"].(map[string]any)[sketch])

	_, err := runCLI(t, "--db", db, "rebuild", "d", "--mode", "fast")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out = mustCLI(t, "--db", db, "validate", "d")
	assert.Contains(t, out, "✓ valid")

	out = mustCLI(t, "--db", db, "--format", "json", "validate", "d")
	report := decode(t, out).Data.(map[string]any)
	assert.Equal(t, true, report["ok"])
}

func TestMerge(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "left", "--id", "a")
	mustCLI(t, "--db", db, "init", "right", "--id", "b")
	sa := createSketch(t, db, "a", document.XYPlaneID)
	sb := createSketch(t, db, "b", document.XZPlaneID)

	out := mustCLI(t, "--db", db, "--format", "json", "merge", "a", "b")
	result := decode(t, out).Data.(map[string]any)
	assert.NotEqual(t, result["before"], result["after"])

	out = mustCLI(t, "--db", db, "show", "a")
	assert.Contains(t, out, sa)
	assert.Contains(t, out, sb)

	out = mustCLI(t, "--db", db, "merge", "a", "b")
	assert.Contains(t, out, "Already up to date")

	mustCLI(t, "--db", db, "validate", "a")
}

func TestMerge_FromOtherDatabase(t *testing.T) {
	left, right := testDB(t), testDB(t)
	mustCLI(t, "--db", left, "init", "part", "--id", "d")
	mustCLI(t, "--db", right, "init", "part", "--id", "d")
	s := createSketch(t, right, "d", document.YZPlaneID)

	mustCLI(t, "--db", left, "merge", "d", "d", "--from", right)
	out := mustCLI(t, "--db", left, "show", "d")
	assert.Contains(t, out, s)

	_, err := runCLI(t, "--db", left, "merge", "d", "missing", "--from", right)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompact(t *testing.T) {
	db := testDB(t)
	mustCLI(t, "--db", db, "init", "part", "--id", "d")
	s := createSketch(t, db, "d", document.XYPlaneID)

	out := mustCLI(t, "--db", db, "compact", "d")
	assert.Contains(t, out, "Compacted d (2 update(s) -> 1)")

	out = mustCLI(t, "--db", db, "show", "d")
	assert.Contains(t, out, s)
}

const passingScenario = `name: one_sketch
description: "A new sketch becomes the gate"
steps:
  - tool: createSketch
    args: { plane: $xy }
    as: s1
assertions:
  - type: gate
    expect: $s1
`

const failingScenario = `name: wrong_gate
description: "Expects the gate on a datum"
steps:
  - tool: createSketch
    args: { plane: $xy }
    as: s1
assertions:
  - type: gate
    expect: $xy
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTest_PassAndFail(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "one_sketch", passingScenario)

	out := mustCLI(t, "test", dir)
	assert.Contains(t, out, "✓ one_sketch")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	writeScenario(t, dir, "wrong_gate", failingScenario)
	out, err := runCLI(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 1, data["passed"])
	assert.EqualValues(t, 1, data["failed"])
}

func TestTest_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "one_sketch", passingScenario)
	writeScenario(t, dir, "wrong_gate", failingScenario)

	out := mustCLI(t, "test", dir, "--filter", "one_*")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	_, err := runCLI(t, "test", dir, "--filter", "[")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_Golden(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "one_sketch", passingScenario)

	out := mustCLI(t, "test", file, "--update")
	assert.Contains(t, out, "(golden updated)")
	golden := filepath.Join(dir, "golden", "one_sketch.golden")
	require.FileExists(t, golden)

	out = mustCLI(t, "--format", "json", "test", file)
	scenarios := decode(t, out).Data.(map[string]any)["scenarios"].([]any)
	require.Len(t, scenarios, 1)
	assert.Equal(t, GoldenMatch, scenarios[0].(map[string]any)["golden"])

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"stale"}`), 0o644))
	out, err := runCLI(t, "test", dir)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTest_MissingPath(t *testing.T) {
	_, err := runCLI(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_EmptyDirectory(t *testing.T) {
	out := mustCLI(t, "test", t.TempDir())
	assert.Contains(t, out, "No scenarios found.")
}
