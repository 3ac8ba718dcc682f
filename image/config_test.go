package image

import (
	"encoding/json"
	"testing"
	"time"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPreservesUnknownFields(t *testing.T) {
	hex := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	raw := []byte(`{
		"architecture": "amd64",
		"os": "linux",
		"rootfs": {"type": "layers", "diff_ids": ["sha256:` + hex + `"]},
		"history": [{"created": "2024-01-01T00:00:00Z", "created_by": "build"}]
	}`)

	var cfg Config
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, "layers", cfg.RootFS.Type)
	require.Len(t, cfg.RootFS.DiffIDs, 1)
	assert.Equal(t, digest.Digest("sha256:"+hex), cfg.RootFS.DiffIDs[0])
	assert.Contains(t, cfg.Extra, "architecture")
	assert.Contains(t, cfg.Extra, "os")

	out, err := json.Marshal(cfg)
	require.NoError(t, err)

	var roundtrip map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &roundtrip))
	assert.Equal(t, "amd64", roundtrip["architecture"])
	assert.Contains(t, roundtrip, "rootfs")
	assert.Contains(t, roundtrip, "history")
}

func TestHistoryEntryEmptyLayer(t *testing.T) {
	h := HistoryEntry{Created: time.Now(), EmptyLayer: true}
	b, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"empty_layer":true`)
}
