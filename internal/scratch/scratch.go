// Package scratch manages a scoped on-disk workspace the merger spools
// regular-file content into. It never keeps a layer body whole in memory;
// it also never needs to reproduce real ownership or permission bits,
// since metadata is tracked separately and applied only to tar headers at
// write time.
package scratch

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/motiejus/squash/internal/squasherr"
)

// Root is a scoped scratch workspace rooted under a caller-chosen
// directory. Close removes everything under it, aggregating any errors
// encountered along the way instead of stopping at the first one.
type Root struct {
	dir    string
	opened []*os.File
}

// New creates a fresh, uniquely named subdirectory under base and returns
// a handle scoping all further allocations to it. base must already exist.
func New(base string) (*Root, error) {
	dir := filepath.Join(base, "squash-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, squasherr.IoErrorf(err, "create scratch root %s", dir)
	}
	return &Root{dir: dir}, nil
}

// Path returns the scratch root's absolute path.
func (r *Root) Path() string { return r.dir }

// File allocates a new, empty regular file under the scratch root and
// returns an open handle to it. The caller owns the handle's lifecycle but
// Root.Close will also close any handle still open at teardown.
func (r *Root) File(name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, squasherr.IoErrorf(err, "create scratch file %s", name)
	}
	r.opened = append(r.opened, f)
	return f, nil
}

// Close closes any scratch files still open and removes the scratch root
// and everything under it, aggregating every error encountered.
func (r *Root) Close() error {
	var err error
	for _, f := range r.opened {
		if cerr := f.Close(); cerr != nil && !isClosed(cerr) {
			err = multierr.Append(err, cerr)
		}
	}
	if rerr := os.RemoveAll(r.dir); rerr != nil {
		err = multierr.Append(err, squasherr.IoErrorf(rerr, "remove scratch root %s", r.dir))
	}
	if err != nil {
		return squasherr.IoErrorf(err, "close scratch root %s", r.dir)
	}
	return nil
}

func isClosed(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, os.ErrClosed)
}
