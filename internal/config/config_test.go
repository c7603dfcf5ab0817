package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, "keel.yaml", `
node: web01
environment: staging
environment_path: /srv/keel/environments
state_dir: /srv/keel/state
workers: 8
default_checksum: md5
log_level: debug
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "web01", cfg.Node)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "md5", cfg.DefaultChecksum)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "/srv/keel/state/content", cfg.ContentDir)
	assert.Equal(t, []string{"/srv/keel/environments/staging/modules"}, cfg.ModulePath)
	assert.Equal(t, "/srv/keel/environments/staging/manifests", cfg.ManifestDir())
	assert.Equal(t, "/srv/keel/state/keel.db", cfg.DatabasePath())
	assert.Equal(t, "/srv/keel/state/agent.lock", cfg.LockPath())
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "keel.jsonc", `{
	// the node this agent converges
	"node": "db01",
	"state_dir": "/srv/keel",
	/* modules are shared between environments */
	"module_path": ["/srv/modules", "/opt/modules",],
}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db01", cfg.Node)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, []string{"/srv/modules", "/opt/modules"}, cfg.ModulePath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "sha256", cfg.DefaultChecksum)
}

func TestLoadFileExpandsVariables(t *testing.T) {
	t.Setenv("KEEL_TEST_ROOT", "/data")
	path := writeConfig(t, "keel.yaml", `
node: web01
state_dir: ${KEEL_TEST_ROOT}/keel
content_dir: ${KEEL_STATE_DIR}/blobs
environment_path: ${KEEL_TEST_MISSING:-/etc/keel/envs}
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/keel", cfg.StateDir)
	assert.Equal(t, "/data/keel/blobs", cfg.ContentDir)
	assert.Equal(t, "/etc/keel/envs", cfg.EnvironmentPath)
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	for name, data := range map[string]string{
		"keel.yaml":  "node: web01\nnodes: [a]\n",
		"keel.jsonc": `{"node": "web01", "nodes": ["a"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, name, data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "nodes")
		})
	}
}

func TestLoadFileValidation(t *testing.T) {
	path := writeConfig(t, "keel.yaml", `
node: "bad node"
workers: 0
default_checksum: crc32
log_level: loud
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `invalid node name "bad node"`)
	assert.Contains(t, msg, "workers must be at least 1")
	assert.Contains(t, msg, "default_checksum")
	assert.Contains(t, msg, "invalid log_level")
}

func TestLoadFileRejectsTimeDefaultChecksum(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "keel.yaml", "default_checksum: mtime\n"))
	assert.ErrorContains(t, err, "cannot apply to inline content")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "keel.yaml", "node: from-env\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Node)

	explicit := writeConfig(t, "other.yaml", "node: from-flag\n")
	cfg, err = Load(explicit)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Node)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/keel/content", cfg.ContentDir)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "keel.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}
