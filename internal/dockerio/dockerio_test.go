package dockerio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksLikeReference(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "image.tar")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	assert.False(t, LooksLikeReference("-"))
	assert.False(t, LooksLikeReference(existing))
	assert.False(t, LooksLikeReference(filepath.Join(dir, "plain-outfile.tar")))
	assert.True(t, LooksLikeReference("alpine:latest"))
	assert.True(t, LooksLikeReference("registry.example.com/app:v1"))
}

func TestNewTempTagIsUniqueAndLowercase(t *testing.T) {
	a := NewTempTag()
	b := NewTempTag()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, lower(a))
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c - 'A' + 'a'
		}
	}
	return string(out)
}
