package rootfs

import (
	"io"
	"os"

	"github.com/motiejus/squash/image"
	"github.com/motiejus/squash/internal/scratch"
	"github.com/motiejus/squash/merge"
)

// RootFS accepts a Docker image archive and flattens every layer into a
// single tarball. It is the degenerate case of squashing: merging the
// full layer range [0, L) and unwrapping the result from image-archive
// framing into a bare tar stream.
type RootFS struct {
	rd         io.Reader
	scratchDir string
	opts       options
}

// New creates a new RootFS'er reading from rd.
func New(rd io.Reader, opt ...Option) *RootFS {
	r := &RootFS{rd: rd, scratchDir: os.TempDir()}
	for _, o := range opt {
		o.apply(&r.opts)
	}
	if r.opts.scratchDir != "" {
		r.scratchDir = r.opts.scratchDir
	}
	return r
}

// WriteTo writes the flattened filesystem to w as an uncompressed tar
// stream.
func (r *RootFS) WriteTo(w io.Writer) (n int64, err error) {
	root, err := scratch.New(r.scratchDir)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := root.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	img, err := image.Parse(r.rd, root)
	if err != nil {
		return 0, err
	}

	sources := make([]merge.LayerSource, len(img.Layers))
	for i, l := range img.Layers {
		sources[i] = l
	}

	counting := &countingWriter{w: w}
	m := merge.New(root, nil).WithPathPrefix(r.opts.filePrefix)
	if _, err := m.Merge(sources, counting); err != nil {
		return counting.n, err
	}
	return counting.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
