package layerspec

import (
	"strings"
	"testing"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkDigest(prefix string) digest.Digest {
	hex := prefix + strings.Repeat("0", 64-len(prefix))
	return digest.NewDigestFromEncoded(digest.SHA256, hex)
}

func TestCount(t *testing.T) {
	_, err := Count(0)
	require.Error(t, err)

	s, err := Count(2)
	require.NoError(t, err)

	diffIDs := []digest.Digest{mkDigest("a1"), mkDigest("b2"), mkDigest("c3")}
	rng, err := Resolve(s, diffIDs)
	require.NoError(t, err)
	assert.Equal(t, Range{K: 1, L: 3}, rng)
}

func TestCountClampedToLength(t *testing.T) {
	s, err := Count(5)
	require.NoError(t, err)

	diffIDs := []digest.Digest{mkDigest("a1"), mkDigest("b2")}
	rng, err := Resolve(s, diffIDs)
	require.NoError(t, err)
	assert.Equal(t, Range{K: 0, L: 2}, rng)
}

func TestDigestPrefixTooShort(t *testing.T) {
	_, err := DigestPrefix("abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")
}

func TestDigestPrefixResolves(t *testing.T) {
	s, err := DigestPrefix("sha256:abcd1234")
	require.NoError(t, err)

	diffIDs := []digest.Digest{mkDigest("11111111"), mkDigest("abcd1234")}
	rng, err := Resolve(s, diffIDs)
	require.NoError(t, err)
	assert.Equal(t, Range{K: 1, L: 2}, rng)
}

func TestDigestPrefixAmbiguous(t *testing.T) {
	s, err := DigestPrefix("abcd1234")
	require.NoError(t, err)

	diffIDs := []digest.Digest{mkDigest("abcd1234"), mkDigest("abcd1234")}
	_, err = Resolve(s, diffIDs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestDigestPrefixNotFound(t *testing.T) {
	s, err := DigestPrefix("deadbeef")
	require.NoError(t, err)

	diffIDs := []digest.Digest{mkDigest("11111111")}
	_, err = Resolve(s, diffIDs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
