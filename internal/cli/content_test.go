package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keel/internal/content"
)

func listBlobs(t *testing.T, e cliEnv) []string {
	t.Helper()
	r := e.run(t, "--format", "json", "content", "list")
	require.NoError(t, r.err, r.stdout)
	_, data := decodeResponse(t, r.stdout)
	var uris []string
	require.NoError(t, json.Unmarshal(data, &uris))
	return uris
}

func TestContentListAndEvict(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/motd": content: "hi"`)
	assert.Empty(t, listBlobs(t, e))

	require.NoError(t, e.run(t, "compile").err)
	h := content.HashBlob([]byte("hi"))
	assert.Equal(t, []string{h.URI()}, listBlobs(t, e))

	r := e.run(t, "content", "evict", h.String())
	require.NoError(t, r.err)
	assert.Empty(t, listBlobs(t, e))

	r = e.run(t, "content", "evict", h.URI())
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "Error [E005]")

	r = e.run(t, "content", "evict", "not-a-hash")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "Error [E001]")
}

func TestContentPrune(t *testing.T) {
	e := newCLIEnv(t)
	e.manifest(t, `file: "{{target}}/motd": content: "v1"`)

	r := e.run(t, "content", "prune")
	assert.Equal(t, ExitFailure, r.code())
	assert.Contains(t, r.stdout, "refusing to prune")

	require.Equal(t, ExitChanges, e.run(t, "agent").code())
	e.manifest(t, `file: "{{target}}/motd": content: "v2"`)
	require.Equal(t, ExitChanges, e.run(t, "agent").code())
	assert.Len(t, listBlobs(t, e), 2)

	r = e.run(t, "content", "prune")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Removed 1 blob(s), kept 1")
	assert.Equal(t, []string{content.HashBlob([]byte("v2")).URI()}, listBlobs(t, e))
}

func TestParseBlobRef(t *testing.T) {
	h := content.HashBlob([]byte("x"))
	_, err := parseBlobRef(h.URI())
	require.NoError(t, err)
	got, err := parseBlobRef(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)
}
