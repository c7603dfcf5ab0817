package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keel/internal/ir"
)

const appManifest = `
file: "{{target}}/app.conf": source: "keel:///modules/app/app.conf"
file: "{{target}}/motd": { content: "managed by keel\n", mode: "0640" }
`

func TestCompileText(t *testing.T) {
	e := newCLIEnv(t)
	e.module(t, "app/app.conf", "listen 8080\n")
	e.manifest(t, appManifest)

	r := e.run(t, "compile")
	require.NoError(t, r.err, r.stdout)

	assert.Contains(t, r.stdout, "for web01 (production): 2 resource(s)")
	assert.Contains(t, r.stdout, e.targetPath("app.conf")+"  ensure=present checksum=sha256 entries=1")
	assert.Contains(t, r.stdout, e.targetPath("motd")+"  ensure=present checksum=sha256 mode=0640 entries=1")
}

func TestCompileJSON(t *testing.T) {
	e := newCLIEnv(t)
	e.module(t, "app/app.conf", "listen 8080\n")
	e.manifest(t, appManifest)

	r := e.run(t, "--format", "json", "compile")
	require.NoError(t, r.err)

	resp, data := decodeResponse(t, r.stdout)
	assert.Equal(t, "ok", resp.Status)
	var cat ir.Catalog
	require.NoError(t, json.Unmarshal(data, &cat))
	assert.Equal(t, "web01", cat.Node)
	assert.Len(t, cat.Resources, 2)
	require.NoError(t, ir.VerifyDigest(cat))
}

func TestCompileDoesNotCache(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/motd": content: "hi"`)

	require.NoError(t, e.run(t, "compile").err)

	r := e.run(t, "catalog")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "Error [E009]")
}

func TestCompileOutputToFile(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/motd": content: "hi"`)
	out := filepath.Join(e.dir, "catalog.json")

	r := e.run(t, "compile", "--output", out)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Wrote catalog to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var cat ir.Catalog
	require.NoError(t, json.Unmarshal(data, &cat))
	assert.Equal(t, e.targetPath("motd"), cat.Resources[0].Path)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		code     string
	}{
		{"invalid checksum", `file: "{{target}}/a": { content: "a", checksum: "crc32" }`, ErrCodeChecksum},
		{"invalid mode", `file: "{{target}}/a": { content: "a", mode: "rwx" }`, ErrCodeMode},
		{"missing source", `file: "{{target}}/a": source: "keel:///modules/app/missing"`, ErrCodeSource},
		{"syntax error", `file: {`, ErrCodeBuildFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCLIEnv(t)
			e.manifest(t, tt.manifest)

			r := e.run(t, "compile")
			require.Error(t, r.err)
			assert.Equal(t, ExitFailure, r.code())
			assert.Contains(t, r.stdout, "✗ Compilation failed")
			assert.Contains(t, r.stdout, tt.code+": ")
		})
	}
}

func TestCompileErrorJSON(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/a": { content: "a", checksum: "crc32" }`)

	r := e.run(t, "--format", "json", "compile")
	require.Error(t, r.err)

	resp, _ := decodeResponse(t, r.stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeChecksum, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "file."+e.targetPath("a")+".checksum", details["field"])
}

func TestCompileNoManifests(t *testing.T) {
	e := newCLIEnv(t)

	r := e.run(t, "compile")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, ErrCodeNoManifests)
}
