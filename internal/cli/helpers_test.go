package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// cliEnv is a scratch environment with a config file, an environment
// directory and a target directory.
type cliEnv struct {
	dir       string
	config    string
	manifests string
	modules   string
	target    string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	e := cliEnv{
		dir:       dir,
		config:    filepath.Join(dir, "keel.yaml"),
		manifests: filepath.Join(dir, "environments", "production", "manifests"),
		modules:   filepath.Join(dir, "environments", "production", "modules"),
		target:    filepath.Join(dir, "target"),
	}
	for _, d := range []string{e.manifests, e.modules, e.target} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	cfg := fmt.Sprintf("node: web01\nenvironment_path: %s\nstate_dir: %s\n",
		filepath.Join(dir, "environments"), filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

// manifest writes site.cue, expanding {{target}}.
func (e cliEnv) manifest(t *testing.T, src string) {
	t.Helper()
	src = strings.ReplaceAll(src, "{{target}}", filepath.ToSlash(e.target))
	require.NoError(t, os.WriteFile(filepath.Join(e.manifests, "site.cue"), []byte(src), 0o644))
}

// module writes <module>/files/<path> on the module path.
func (e cliEnv) module(t *testing.T, rel, data string) {
	t.Helper()
	module, path, _ := strings.Cut(rel, "/")
	p := filepath.Join(e.modules, module, "files", filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
}

func (e cliEnv) targetPath(rel string) string {
	return filepath.Join(e.target, filepath.FromSlash(rel))
}

func (e cliEnv) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(e.targetPath(rel))
	require.NoError(t, err)
	return string(data)
}

type cliRun struct {
	stdout string
	stderr string
	err    error
}

func (r cliRun) code() int {
	return GetExitCode(r.err)
}

// run executes keel with the environment's config.
func (e cliEnv) run(t *testing.T, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(t.Context())
	return cliRun{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// decodeResponse decodes a JSON CLI response, keeping data raw.
func decodeResponse(t *testing.T, out string) (CLIResponse, json.RawMessage) {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	return raw.CLIResponse, raw.Data
}
