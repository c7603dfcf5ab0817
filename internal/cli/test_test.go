package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: motd
description: "motd is created once"
tokens: [code-1, code-2]
manifest: |
  file: "{{target}}/motd": content: "hi"
steps:
  - run: live
    expect:
      changed: ["created motd"]
  - run: live
    expect:
      status: no changes
`

const failingScenario = `name: wrong
description: "expects a change that never happens"
tokens: [code-1]
manifest: |
  file: "{{target}}/motd": content: "hi"
steps:
  - run: live
    expect:
      status: no changes
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	return dir
}

func runTestCommand(t *testing.T, args ...string) cliRun {
	t.Helper()
	return newCLIEnv(t).run(t, append([]string{"test"}, args...)...)
}

func TestTestCommandMissingArgs(t *testing.T) {
	r := runTestCommand(t)
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	r := runTestCommand(t, "/nonexistent/scenarios")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	r := runTestCommand(t, t.TempDir())
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "No scenarios found")
}

func TestTestCommandPassAndFail(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"motd.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	r := runTestCommand(t, dir)
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "✓ motd")
	assert.Contains(t, r.stdout, "✗ wrong")
	assert.Contains(t, r.stdout, `status: expected "no changes", got "changes applied"`)
	assert.Contains(t, r.stdout, "Test Summary: 1 passed, 1 failed, 2 total")

	r = runTestCommand(t, dir, "--filter", "mo*")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"wrong.yaml": failingScenario})

	r := runTestCommand(t, "--format", "json", dir)
	assert.Equal(t, ExitFailure, r.code())
	resp, _ := decodeResponse(t, r.stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandGolden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"motd.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "motd.golden")

	r := runTestCommand(t, dir, "--update")
	require.NoError(t, r.err, r.stdout)
	assert.Contains(t, r.stdout, "✓ motd (golden updated)")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"motd","trace":[`+
			`{"changed":["created motd"],"mode":"live","status":"changes applied","step":0,"version":"code-1"},`+
			`{"mode":"live","status":"no changes","step":1,"version":"code-2"}]}`,
		string(data))

	r = runTestCommand(t, dir)
	require.NoError(t, r.err, r.stdout)

	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	r = runTestCommand(t, dir)
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "trace does not match golden file")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	r := runTestCommand(t, filepath.Join("..", "harness", "testdata", "scenarios"), "--filter", "idempotent_apply")
	require.NoError(t, r.err, r.stdout)
	assert.Contains(t, r.stdout, "✓ idempotent_apply")
}
