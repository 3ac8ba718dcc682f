package cmdsquash

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	goflags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiejus/squash/image"
	st "github.com/motiejus/squash/internal/squashtest"
	"github.com/motiejus/squash/internal/cmd"
	"github.com/motiejus/squash/internal/scratch"
)

func TestExecuteCountViaStdoutAndFile(t *testing.T) {
	img := st.BuildImage(t, st.Image{Layers: []st.Tarball{
		{st.File{Name: "a"}},
		{st.File{Name: "b"}},
	}})

	dir := t.TempDir()
	infile := filepath.Join(dir, "in.tar")
	require.NoError(t, os.WriteFile(infile, img.Bytes(), 0644))

	var stdout bytes.Buffer
	c := &CmdSquash{BaseCommand: cmd.BaseCommand{Stdout: &stdout}}
	c.PositionalArgs.Infile = goflags.Filename(infile)
	c.PositionalArgs.Outfile = "-"
	c.Count = 1

	require.NoError(t, c.Execute(nil))

	root, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	defer root.Close()

	parsed, err := image.Parse(bytes.NewReader(stdout.Bytes()), root)
	require.NoError(t, err)
	assert.Len(t, parsed.Layers, 2)
}

func TestExecuteRejectsBothSelectors(t *testing.T) {
	c := &CmdSquash{}
	c.Count = 1
	c.DigestPrefix = "deadbeef"
	_, err := c.spec()
	require.Error(t, err)
}

func TestExecuteRejectsNoSelector(t *testing.T) {
	c := &CmdSquash{}
	_, err := c.spec()
	require.Error(t, err)
}

func TestExecuteInfileDoesNotExist(t *testing.T) {
	c := &CmdSquash{}
	c.Count = 1
	c.PositionalArgs.Infile = goflags.Filename(filepath.Join(t.TempDir(), "missing.tar"))
	c.PositionalArgs.Outfile = "-"
	err := c.Execute(nil)
	require.Error(t, err)
}

func TestExecuteTooManyArgs(t *testing.T) {
	c := &CmdSquash{}
	err := c.Execute([]string{"extra"})
	require.Error(t, err)
}

func TestExecuteMissingInputSelector(t *testing.T) {
	c := &CmdSquash{}
	c.Count = 1
	c.PositionalArgs.Outfile = "-"
	err := c.Execute(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--infile or --source")
}

func TestExecuteOutfileRemovedOnFailure(t *testing.T) {
	img := st.BuildImage(t, st.Image{Layers: []st.Tarball{{st.File{Name: "a"}}}})
	dir := t.TempDir()
	infile := filepath.Join(dir, "in.tar")
	require.NoError(t, os.WriteFile(infile, img.Bytes(), 0644))
	outfile := filepath.Join(dir, "out.tar")

	c := &CmdSquash{}
	c.PositionalArgs.Infile = goflags.Filename(infile)
	c.PositionalArgs.Outfile = outfile
	c.DigestPrefix = "deadbeefdeadbeef"

	err := c.Execute(nil)
	require.Error(t, err)

	_, statErr := os.Stat(outfile)
	assert.True(t, os.IsNotExist(statErr), "partial outfile must be unlinked after a failing squash")
}

func TestExecuteMissingOutputSelector(t *testing.T) {
	img := st.BuildImage(t, st.Image{Layers: []st.Tarball{{st.File{Name: "a"}}}})
	dir := t.TempDir()
	infile := filepath.Join(dir, "in.tar")
	require.NoError(t, os.WriteFile(infile, img.Bytes(), 0644))

	c := &CmdSquash{}
	c.Count = 1
	c.PositionalArgs.Infile = goflags.Filename(infile)
	err := c.Execute(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--outfile or --load")
}
