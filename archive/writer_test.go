package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBytesWritesContent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteBytes("manifest.json", 0644, []byte("hello")))
	require.NoError(t, w.Close())

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "manifest.json", hdr.Name)
	assert.Equal(t, int64(5), hdr.Size)

	body, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestWriteEntryRejectsShortBody(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	hdr := &tar.Header{Name: "a", Typeflag: tar.TypeReg, Size: 10}
	err := w.WriteEntry(hdr, bytes.NewReader([]byte("short")))
	require.Error(t, err)
}

func TestWriteEntryNilBodyWritesEmptyEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	hdr := &tar.Header{Name: "marker", Typeflag: tar.TypeReg, Size: 0}
	require.NoError(t, w.WriteEntry(hdr, nil))
	require.NoError(t, w.Close())

	tr := tar.NewReader(&buf)
	got, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "marker", got.Name)
	assert.Equal(t, int64(0), got.Size)
}

func TestBytesWrittenTracksOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteBytes("a", 0644, []byte("12345")))
	require.NoError(t, w.Close())
	assert.Equal(t, int64(buf.Len()), w.BytesWritten())
}
