// Package merge implements the whiteout-aware replay-and-reserialize
// algorithm: given a contiguous suffix of an image's layers, it produces
// one equivalent layer by materializing their net filesystem delta and
// re-emitting it as a fresh, deterministic tar stream.
package merge

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/motiejus/squash/archive"
	"github.com/motiejus/squash/internal/scratch"
	"github.com/motiejus/squash/internal/squasherr"
)

// LayerSource is the subset of image.LayerRef the merger needs: an
// openable stream of uncompressed tar bytes. Kept as an interface so
// merge does not depend on image's parsing concerns.
type LayerSource interface {
	Open() (io.ReadCloser, error)
}

// record is one path's materialized state in M: its tar header (already
// carrying the final Name/Linkname) and, for regular files, where its
// content lives in the scratch workspace.
type record struct {
	header      *tar.Header
	contentPath string
}

// Merger accumulates the net filesystem delta of a layer range into a
// scratch-backed tree M, plus the Deletions and Opaques side tables, then
// serializes the result as one new layer.
type Merger struct {
	scratch   *scratch.Root
	log       *logrus.Logger
	prefix    string
	tree      map[string]*record
	deletions map[string]bool
	opaques   map[string]bool
	current   map[string]bool
	nfiles    int
}

// New returns a Merger that spools regular-file content beneath root.
// log may be nil, in which case a discard logger is used.
func New(root *scratch.Root, log *logrus.Logger) *Merger {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Merger{
		scratch:   root,
		log:       log,
		tree:      map[string]*record{},
		deletions: map[string]bool{},
		opaques:   map[string]bool{},
	}
}

// WithPathPrefix prepends prefix to every path the merger emits while
// serializing. Used by the rootfs export, which lays the flattened
// filesystem under a caller-chosen root inside the output tarball.
func (m *Merger) WithPathPrefix(prefix string) *Merger {
	m.prefix = prefix
	return m
}

// Merge replays layers in ascending order into M, then serializes the
// result to w. It returns the new diff_id, computed by streaming the
// serialized bytes through a SHA-256 hasher in the same pass.
func (m *Merger) Merge(layers []LayerSource, w io.Writer) (digest.Digest, error) {
	for i, l := range layers {
		if err := m.replay(l); err != nil {
			if serr, ok := err.(*squasherr.Error); ok {
				return "", squasherr.Wrap(serr.Kind, err, "replay layer "+itoa(i))
			}
			return "", squasherr.IoErrorf(err, "replay layer %d", i)
		}
	}
	return m.serialize(w)
}

func (m *Merger) replay(l LayerSource) error {
	rc, err := l.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	// Paths written by this layer; its own opaque markers never hide them.
	m.current = map[string]bool{}

	ar := archive.NewReader(rc)
	for {
		entry, err := ar.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.apply(entry); err != nil {
			return err
		}
	}
}

func (m *Merger) apply(entry *archive.Entry) error {
	hdr := entry.Header
	name := strings.TrimSuffix(hdr.Name, "/")
	dir := path.Dir(name)
	base := path.Base(name)

	if base == ".wh..wh..opq" {
		m.log.WithField("path", dir).Debug("opaque marker")
		// The marker hides what earlier layers put under dir; dir itself
		// and this layer's own entries under it stay.
		prefix := dir + "/"
		for k := range m.tree {
			if strings.HasPrefix(k, prefix) && !m.current[k] {
				delete(m.tree, k)
			}
		}
		m.opaques[dir] = true
		return nil
	}
	if strings.HasPrefix(base, ".wh.") {
		target := path.Join(dir, strings.TrimPrefix(base, ".wh."))
		m.log.WithField("path", target).Debug("whiteout")
		m.removeSubtree(target)
		m.deletions[target] = true
		delete(m.opaques, target)
		return nil
	}

	// A path recreated by a later entry is no longer deleted, and an
	// opaque ancestor stops mattering for exactly this path once the
	// path itself is rewritten fresh.
	delete(m.deletions, name)
	delete(m.opaques, name)
	m.current[name] = true

	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeRegA:
		return m.applyRegular(name, hdr, entry.Body)
	case tar.TypeLink:
		return m.applyHardlink(name, hdr)
	case tar.TypeDir:
		// A directory re-created over an existing directory merges
		// metadata only; its already-materialized children survive.
		if existing, ok := m.tree[name]; !ok || existing.header.Typeflag != tar.TypeDir {
			m.removeSubtree(name)
		}
		m.tree[name] = &record{header: cloneHeader(hdr, name)}
		return nil
	default:
		m.removeSubtree(name)
		m.tree[name] = &record{header: cloneHeader(hdr, name)}
		return nil
	}
}

func (m *Merger) applyRegular(name string, hdr *tar.Header, body io.Reader) error {
	m.removeSubtree(name)
	m.nfiles++
	f, err := m.scratch.File("f" + itoa(m.nfiles))
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		return squasherr.IoErrorf(err, "spool %s", name)
	}
	if err := f.Close(); err != nil {
		return squasherr.IoErrorf(err, "spool %s", name)
	}
	h := cloneHeader(hdr, name)
	h.Size = n
	m.tree[name] = &record{header: h, contentPath: f.Name()}
	return nil
}

// applyHardlink resolves a hardlink against M only. A target already
// materialized in M is copied by content, since the serialized output's
// entry order is lexicographic rather than chronological and cannot be
// trusted to place a hardlink after whatever the target resolves to. A
// target not yet in M belongs to a layer below the merge range; it is
// preserved as a verbatim hardlink, which resolves correctly because the
// new layer is always applied on top of the already-extracted lower
// layers.
func (m *Merger) applyHardlink(name string, hdr *tar.Header) error {
	target, err := archive.ValidateLinkTarget(hdr.Linkname)
	if err != nil {
		return err
	}
	if rec, ok := m.tree[target]; ok && rec.contentPath != "" {
		h := cloneHeader(rec.header, name)
		h.Typeflag = tar.TypeReg
		h.Size = rec.header.Size
		m.removeSubtree(name)
		m.tree[name] = &record{header: h, contentPath: rec.contentPath}
		return nil
	}
	h := cloneHeader(hdr, name)
	h.Linkname = target
	m.removeSubtree(name)
	m.tree[name] = &record{header: h}
	return nil
}

// removeSubtree drops path and everything nested under it from M.
func (m *Merger) removeSubtree(p string) {
	delete(m.tree, p)
	prefix := p + "/"
	for k := range m.tree {
		if strings.HasPrefix(k, prefix) {
			delete(m.tree, k)
		}
	}
}

func cloneHeader(hdr *tar.Header, name string) *tar.Header {
	h := *hdr
	h.Name = name
	return &h
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// serialize writes M plus Deletions and Opaques to w in deterministic
// lexicographic order, hashing the stream as it writes to produce the new
// diff_id. Whiteout and opaque markers are emitted as zero-length regular
// files with mode 0 and the canonical names.
func (m *Merger) serialize(w io.Writer) (digest.Digest, error) {
	type entry struct {
		path string
		rec  *record // nil for a synthetic whiteout/opaque marker
	}

	entries := make([]entry, 0, len(m.tree)+len(m.deletions)+len(m.opaques))
	for p, rec := range m.tree {
		entries = append(entries, entry{path: p, rec: rec})
	}
	for p := range m.deletions {
		entries = append(entries, entry{path: whiteoutName(p)})
	}
	for p := range m.opaques {
		entries = append(entries, entry{path: opaqueName(p)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	digester := digest.Canonical.Digester()
	tw := io.MultiWriter(w, digester.Hash())
	aw := archive.NewWriter(tw)

	for _, e := range entries {
		if e.rec == nil {
			hdr := &tar.Header{Name: m.prefix + e.path, Typeflag: tar.TypeReg, Mode: 0}
			if err := aw.WriteEntry(hdr, nil); err != nil {
				return "", err
			}
			continue
		}
		var body io.Reader
		var f *os.File
		if e.rec.contentPath != "" {
			var err error
			f, err = openReadOnly(e.rec.contentPath)
			if err != nil {
				return "", err
			}
			body = f
		}
		hdr := e.rec.header
		if m.prefix != "" {
			h := *hdr
			h.Name = m.prefix + hdr.Name
			if h.Linkname != "" && h.Typeflag == tar.TypeLink {
				h.Linkname = m.prefix + h.Linkname
			}
			hdr = &h
		}
		err := aw.WriteEntry(hdr, body)
		if f != nil {
			f.Close()
		}
		if err != nil {
			return "", err
		}
	}
	if err := aw.Close(); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}

func openReadOnly(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, squasherr.IoErrorf(err, "open scratch file %s", path)
	}
	return f, nil
}

func whiteoutName(p string) string {
	dir, base := path.Split(p)
	return path.Join(dir, ".wh."+base)
}

func opaqueName(dir string) string {
	return path.Join(dir, ".wh..wh..opq")
}
