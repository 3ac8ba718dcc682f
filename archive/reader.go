// Package archive implements the streaming tar reader and writer shared by
// the image parser and the merger. It is deliberately agnostic of Docker's
// image schema — it knows tar entries and path safety, nothing else.
package archive

import (
	"archive/tar"
	"io"

	"github.com/motiejus/squash/internal/squasherr"
)

// Entry is one tar entry: its header (with Name already validated and
// normalized) and a bounded reader over its body. The body must be fully
// read or discarded before calling Next again.
type Entry struct {
	Header *tar.Header
	Body   io.Reader
}

// Reader streams tar entries from an underlying io.Reader, validating path
// safety on every entry before handing it to the caller. It is used both
// for the outer image archive and for each layer's inner tar stream, so
// the same defense applies uniformly.
type Reader struct {
	tr *tar.Reader
}

// NewReader wraps r as a Reader. r is consumed strictly forward; it need
// not be seekable.
func NewReader(r io.Reader) *Reader {
	return &Reader{tr: tar.NewReader(r)}
}

// Next advances to the next entry and returns it. It returns io.EOF when
// the stream is exhausted. Entries with an unsafe path are rejected with
// UnsafePath before being returned; a symlink or hardlink whose target is
// unsafe is rejected the same way.
func (r *Reader) Next() (*Entry, error) {
	hdr, err := r.tr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, squasherr.Malformedf("reading tar entry: %v", err)
	}

	clean, err := ValidatePath(hdr.Name)
	if err != nil {
		return nil, err
	}
	hdr.Name = clean

	if hdr.Typeflag == tar.TypeSymlink || hdr.Typeflag == tar.TypeLink {
		target, err := ValidateLinkTarget(hdr.Linkname)
		if err != nil {
			return nil, err
		}
		hdr.Linkname = target
	}

	if !recognizedTypeflag(hdr.Typeflag) {
		return nil, squasherr.Malformedf("unsupported typeflag %q for entry %q", hdr.Typeflag, hdr.Name)
	}

	return &Entry{Header: hdr, Body: r.tr}, nil
}

func recognizedTypeflag(t byte) bool {
	switch t {
	case tar.TypeReg, tar.TypeRegA, tar.TypeDir, tar.TypeSymlink, tar.TypeLink,
		tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		return true
	default:
		return false
	}
}
