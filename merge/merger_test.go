package merge

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	st "github.com/motiejus/squash/internal/squashtest"
	"github.com/motiejus/squash/internal/scratch"
)

type bufSource struct{ b []byte }

func (s bufSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.b)), nil
}

func sourcesOf(layers ...st.Tarball) []LayerSource {
	out := make([]LayerSource, len(layers))
	for i, l := range layers {
		out[i] = bufSource{l.Buffer().Bytes()}
	}
	return out
}

func newRoot(t *testing.T) *scratch.Root {
	t.Helper()
	dir := t.TempDir()
	root, err := scratch.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })
	return root
}

func TestMergeWhiteoutDropsLowerFile(t *testing.T) {
	layers := sourcesOf(
		st.Tarball{st.File{Name: "a"}, st.File{Name: "b"}},
		st.Tarball{st.File{Name: "c"}, st.Whiteout("", "a")},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	assert.ElementsMatch(t, []st.Extractable{
		st.File{Name: "b"},
		st.File{Name: "c"},
		st.File{Name: ".wh.a"},
	}, got)
}

func TestMergeOpaqueDirectory(t *testing.T) {
	layers := sourcesOf(
		st.Tarball{st.Dir{Name: "etc"}, st.File{Name: "etc/foo"}, st.File{Name: "etc/bar"}},
		st.Tarball{st.Dir{Name: "etc"}, st.File{Name: "etc/baz"}, st.Opaque("etc")},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	assert.ElementsMatch(t, []st.Extractable{
		st.Dir{Name: "etc"},
		st.File{Name: "etc/baz"},
		st.File{Name: "etc/.wh..wh..opq"},
	}, got)
}

func TestMergeWhiteoutOfOpaqueDirectoryOmitsOpaqueMarker(t *testing.T) {
	layers := sourcesOf(
		st.Tarball{st.Dir{Name: "etc"}, st.File{Name: "etc/foo"}},
		st.Tarball{st.Opaque("etc")},
		st.Tarball{st.Whiteout("", "etc")},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	assert.ElementsMatch(t, []st.Extractable{
		st.File{Name: ".wh.etc"},
	}, got)
}

func TestMergeNoWhiteoutLeakage(t *testing.T) {
	layers := sourcesOf(
		st.Tarball{st.File{Name: "a"}},
		st.Tarball{st.Whiteout("", "a")},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	for _, e := range got {
		if f, ok := e.(st.File); ok {
			assert.NotContains(t, f.Name, ".wh.a")
		}
	}
}

func TestMergeDirectoryRecreateKeepsChildren(t *testing.T) {
	layers := sourcesOf(
		st.Tarball{st.Dir{Name: "dir", Uid: 0}, st.File{Name: "dir/a"}},
		st.Tarball{st.Dir{Name: "dir", Uid: 7}},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	assert.ElementsMatch(t, []st.Extractable{
		st.Dir{Name: "dir", Uid: 7},
		st.File{Name: "dir/a"},
	}, got)
}

func TestMergeHardlinkWithinRangeCopiesContent(t *testing.T) {
	layers := sourcesOf(
		st.Tarball{st.File{Name: "a", Contents: bytes.NewBufferString("hello")}},
		st.Tarball{st.Hardlink{Name: "b", Target: "a"}},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	assert.ElementsMatch(t, []st.Extractable{
		st.File{Name: "a", Contents: bytes.NewBufferString("hello")},
		st.File{Name: "b", Contents: bytes.NewBufferString("hello")},
	}, got)
}

func TestMergeHardlinkBelowRangePassesThroughVerbatim(t *testing.T) {
	// "a" lives in a layer below the merge range and is never replayed
	// here; only the layer holding the hardlink to it is merged.
	layers := sourcesOf(
		st.Tarball{st.Hardlink{Name: "b", Target: "a"}},
	)

	var out bytes.Buffer
	_, err := New(newRoot(t), nil).Merge(layers, &out)
	require.NoError(t, err)

	got := st.Extract(t, &out)
	assert.ElementsMatch(t, []st.Extractable{
		st.Hardlink{Name: "b", Target: "a"},
	}, got)
}

func TestMergeDiffIDDeterministic(t *testing.T) {
	layers := sourcesOf(st.Tarball{st.File{Name: "a"}})

	var out1, out2 bytes.Buffer
	d1, err := New(newRoot(t), nil).Merge(layers, &out1)
	require.NoError(t, err)
	d2, err := New(newRoot(t), nil).Merge(sourcesOf(st.Tarball{st.File{Name: "a"}}), &out2)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Equal(t, out1.Bytes(), out2.Bytes())
}
