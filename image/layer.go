package image

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/motiejus/squash/internal/squasherr"
)

// Open returns a stream of l's uncompressed tar bytes. The caller must
// close the returned reader.
func (l LayerRef) Open() (io.ReadCloser, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, squasherr.IoErrorf(err, "open layer %s", l.Path)
	}
	if l.Compression != CompressionGzip {
		return f, nil
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, squasherr.Malformedf("invalid gzip layer %s: %v", l.Path, err)
	}
	return gzipReadCloser{gr, f}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	f *os.File
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
