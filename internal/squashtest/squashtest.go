// Package squashtest builds and inspects tar fixtures for the squash
// engine's tests: individual layer tarballs, whiteout/opaque markers, and
// whole Docker v1.2 image archives with a consistent config and manifest.
package squashtest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/json"
	"io"
	"testing"
	"time"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

// Tarrer writes one tar entry.
type Tarrer interface {
	Tar(*tar.Writer) error
}

// Tarball is an ordered list of tar entries, such as one layer's delta.
type Tarball []Tarrer

// Buffer serializes the tarball.
func (tb Tarball) Buffer() *bytes.Buffer {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, member := range tb {
		if err := member.Tar(tw); err != nil {
			panic(err)
		}
	}
	tw.Close()
	return &buf
}

// Gzip serializes and gzip-compresses the tarball.
func (tb Tarball) Gzip() *bytes.Buffer {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write(tb.Buffer().Bytes())
	gw.Close()
	return &buf
}

// Extractable is an empty interface for comparing extracted tar entries
// in test assertions.
type Extractable interface{}

// Dir is a directory entry.
type Dir struct {
	Name string
	Uid  int
}

// File is a regular file entry.
type File struct {
	Name     string
	Uid      int
	Contents *bytes.Buffer
}

// Hardlink is a TypeLink entry pointing at Target.
type Hardlink struct {
	Name   string
	Target string
}

// Symlink is a TypeSymlink entry pointing at Target.
type Symlink struct {
	Name   string
	Target string
}

// Whiteout builds the ".wh.<base>" marker that deletes dir+"/"+base.
func Whiteout(dir, base string) File {
	name := base
	if dir != "" && dir != "." {
		name = dir + "/.wh." + base
	} else {
		name = ".wh." + base
	}
	return File{Name: name}
}

// Opaque builds the ".wh..wh..opq" marker for dir.
func Opaque(dir string) File {
	if dir == "" || dir == "." {
		return File{Name: ".wh..wh..opq"}
	}
	return File{Name: dir + "/.wh..wh..opq"}
}

func (d Dir) Tar(tw *tar.Writer) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     d.Name,
		Mode:     0755,
		Uid:      d.Uid,
	})
}

func (f File) Tar(tw *tar.Writer) error {
	var contents []byte
	if f.Contents != nil {
		contents = f.Contents.Bytes()
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     f.Name,
		Mode:     0644,
		Uid:      f.Uid,
		Size:     int64(len(contents)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(contents)
	return err
}

func (h Hardlink) Tar(tw *tar.Writer) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeLink,
		Name:     h.Name,
		Linkname: h.Target,
	})
}

func (s Symlink) Tar(tw *tar.Writer) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     s.Name,
		Linkname: s.Target,
	})
}

// Extract reads every entry in r back into comparable Extractable values.
func Extract(t *testing.T, r io.Reader) []Extractable {
	t.Helper()
	ret := []Extractable{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		var elem Extractable
		switch hdr.Typeflag {
		case tar.TypeDir:
			elem = Dir{Name: hdr.Name, Uid: hdr.Uid}
		case tar.TypeLink:
			elem = Hardlink{Name: hdr.Name, Target: hdr.Linkname}
		case tar.TypeSymlink:
			elem = Symlink{Name: hdr.Name, Target: hdr.Linkname}
		case tar.TypeReg:
			f := File{Name: hdr.Name, Uid: hdr.Uid}
			if hdr.Size > 0 {
				var buf bytes.Buffer
				io.Copy(&buf, tr)
				f.Contents = &buf
			}
			elem = f
		}
		ret = append(ret, elem)
	}
	return ret
}

// Image describes the layers to assemble into a full Docker v1.2 archive.
type Image struct {
	Layers []Tarball
	// Gzip compresses every layer blob when set, exercising the parser's
	// decompression path.
	Gzip bool
	// History overrides the generated one-entry-per-layer history. The
	// number of non-empty entries must equal len(Layers).
	History []HistoryEntry
}

// HistoryEntry mirrors image.HistoryEntry without importing the image
// package, keeping this fixture package dependency-free of it.
type HistoryEntry struct {
	CreatedBy  string
	EmptyLayer bool
}

type manifestJSON []struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags,omitempty"`
	Layers   []string `json:"Layers"`
}

type configJSON struct {
	RootFS  rootfsJSON    `json:"rootfs"`
	History []historyJSON `json:"history"`
}

type rootfsJSON struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}

type historyJSON struct {
	Created    time.Time `json:"created"`
	CreatedBy  string    `json:"created_by,omitempty"`
	EmptyLayer bool      `json:"empty_layer,omitempty"`
}

// BuildImage assembles img into a complete image archive: a config blob
// with accurate diff_ids and one history entry per layer, a manifest
// referencing the layers by legacy path, and the layer blobs themselves.
func BuildImage(t *testing.T, img Image) *bytes.Buffer {
	t.Helper()

	diffIDs := make([]string, len(img.Layers))
	layerNames := make([]string, len(img.Layers))
	layerBlobs := make([][]byte, len(img.Layers))

	for i, l := range img.Layers {
		raw := l.Buffer().Bytes()
		sum := sha256.Sum256(raw)
		diffIDs[i] = digest.NewDigestFromBytes(digest.SHA256, sum[:]).String()
		if img.Gzip {
			layerBlobs[i] = l.Gzip().Bytes()
		} else {
			layerBlobs[i] = raw
		}
		layerNames[i] = "layer" + itoa(i) + "/layer.tar"
	}

	var history []historyJSON
	if img.History != nil {
		nonEmpty := 0
		for _, h := range img.History {
			if !h.EmptyLayer {
				nonEmpty++
			}
		}
		require.Equal(t, len(img.Layers), nonEmpty, "history non-empty entries must match layer count")
		history = make([]historyJSON, len(img.History))
		for i, h := range img.History {
			history[i] = historyJSON{
				Created:    time.Unix(0, 0).UTC(),
				CreatedBy:  h.CreatedBy,
				EmptyLayer: h.EmptyLayer,
			}
		}
	} else {
		history = make([]historyJSON, len(img.Layers))
		for i := range history {
			history[i] = historyJSON{Created: time.Unix(0, 0).UTC(), CreatedBy: "test"}
		}
	}

	cfg := configJSON{
		RootFS:  rootfsJSON{Type: "layers", DiffIDs: diffIDs},
		History: history,
	}
	cfgBytes, err := json.Marshal(cfg)
	require.NoError(t, err)
	cfgSum := sha256.Sum256(cfgBytes)
	cfgName := digest.NewDigestFromBytes(digest.SHA256, cfgSum[:]).Hex() + ".json"

	manifest := manifestJSON{{Config: cfgName, Layers: layerNames}}
	manifestBytes, err := json.Marshal(manifest)
	require.NoError(t, err)

	out := Tarball{
		File{Name: "manifest.json", Contents: bytes.NewBuffer(manifestBytes)},
		File{Name: cfgName, Contents: bytes.NewBuffer(cfgBytes)},
	}
	for i, name := range layerNames {
		out = append(out, File{Name: name, Contents: bytes.NewBuffer(layerBlobs[i])})
	}
	return out.Buffer()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
