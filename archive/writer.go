package archive

import (
	"archive/tar"
	"bytes"
	"io"

	"github.com/motiejus/squash/internal/bytecounter"
	"github.com/motiejus/squash/internal/squasherr"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// Writer emits a deterministic, uncompressed tar archive. Entries must be
// written in the order the caller wants them to appear on the wire; the
// archive writer itself imposes no reordering, since callers (the
// rebuilder) already know the required order: manifest.json, config,
// then each layer blob and its legacy sidecars.
type Writer struct {
	tw      *tar.Writer
	counter *bytecounter.ByteCounter
}

// NewWriter wraps w, counting total bytes written for the caller's
// human-facing summary.
func NewWriter(w io.Writer) *Writer {
	bc := bytecounter.New(w)
	return &Writer{tw: tar.NewWriter(bc), counter: bc}
}

// WriteEntry writes hdr followed by body (if non-nil), which must produce
// exactly hdr.Size bytes.
func (w *Writer) WriteEntry(hdr *tar.Header, body io.Reader) error {
	if err := w.tw.WriteHeader(hdr); err != nil {
		return squasherr.IoErrorf(err, "write tar header %s", hdr.Name)
	}
	if body == nil {
		return nil
	}
	n, err := io.Copy(w.tw, body)
	if err != nil {
		return squasherr.IoErrorf(err, "write tar body %s", hdr.Name)
	}
	if n != hdr.Size {
		return squasherr.Malformedf("entry %s: wrote %d bytes, header declared %d", hdr.Name, n, hdr.Size)
	}
	return nil
}

// WriteBytes is a convenience for small, fully-buffered entries such as
// manifest.json and the config blob.
func (w *Writer) WriteBytes(name string, mode int64, b []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     mode,
		Size:     int64(len(b)),
	}
	return w.WriteEntry(hdr, bytesReader(b))
}

// BytesWritten reports the total number of bytes written to the
// underlying sink so far.
func (w *Writer) BytesWritten() int64 { return w.counter.N }

// Close flushes the tar trailer. It does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		return squasherr.IoErrorf(err, "close archive writer")
	}
	return nil
}
