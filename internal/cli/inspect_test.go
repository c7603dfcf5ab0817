package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keel/internal/ir"
)

func TestCatalogCommand(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/motd": content: "hi"`)

	r := e.run(t, "catalog")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "Error [E009]: no cached catalog for web01")

	require.Equal(t, ExitChanges, e.run(t, "agent").code())

	r = e.run(t, "catalog")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "for web01 (production): 1 resource(s)")
	assert.Contains(t, r.stdout, "Digest ")

	r = e.run(t, "--node", "db01", "catalog")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "no cached catalog for db01")
}

func TestStateCommand(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `
file: "{{target}}/a": content: "a"
file: "{{target}}/b": content: "b"
`)

	r := e.run(t, "state")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "No resource state recorded.")

	r = e.run(t, "--format", "json", "state")
	require.NoError(t, r.err)
	_, data := decodeResponse(t, r.stdout)
	assert.JSONEq(t, `[]`, string(data))

	require.Equal(t, ExitChanges, e.run(t, "agent").code())

	r = e.run(t, "--format", "json", "state")
	require.NoError(t, r.err)
	_, data = decodeResponse(t, r.stdout)
	var states []ir.ResourceState
	require.NoError(t, json.Unmarshal(data, &states))
	require.Len(t, states, 2)
	assert.Equal(t, e.targetPath("a"), states[0].Path)
	assert.Equal(t, e.targetPath("b"), states[1].Path)
	assert.Equal(t, ir.ChecksumSHA256, states[0].ChecksumType)
}

func TestReportCommand(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/motd": content: "hi"`)

	r := e.run(t, "report")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "Error [E005]: no run report for web01")

	require.Equal(t, ExitChanges, e.run(t, "agent").code())
	require.Equal(t, ExitSuccess, e.run(t, "agent", "--use-cached-catalog").code())

	r = e.run(t, "--format", "json", "report")
	require.NoError(t, r.err)
	_, data := decodeResponse(t, r.stdout)
	var report ir.RunReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "web01", report.Node)
	assert.Equal(t, ir.ModeCached, report.Mode)
	assert.Equal(t, ir.StatusNoChanges, report.Status)
	assert.NotEmpty(t, report.FinishedAt)
}
