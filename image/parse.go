package image

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/gzip"
	digest "github.com/opencontainers/go-digest"

	"github.com/motiejus/squash/archive"
	"github.com/motiejus/squash/internal/scratch"
	"github.com/motiejus/squash/internal/squasherr"
)

// Compression identifies how a layer blob is stored on disk.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
)

// LayerRef describes one layer blob found in the archive: where its raw
// (as-stored) bytes live in the scratch workspace, how they're
// compressed, and the diff_id declared for it by the config.
type LayerRef struct {
	Path           string
	Compression    Compression
	DeclaredDiffID digest.Digest
}

// Image is the parsed, cross-referenced contents of one Docker v1.2 image
// archive: its manifest entry, its config, and its layer blobs in
// manifest order.
type Image struct {
	Manifest Manifest
	Config   Config
	Layers   []LayerRef
}

// Parse reads r as a Docker v1.2 image archive in a single pass, spooling
// every regular-file entry into root and cross-referencing manifest.json,
// the config blob, and each layer blob it names. Layer diff_ids are
// verified against the config's declared rootfs.diff_ids by re-streaming
// the already-spooled bytes through a SHA-256 hasher.
func Parse(r io.Reader, root *scratch.Root) (*Image, error) {
	ar := archive.NewReader(r)

	paths := map[string]string{}
	n := 0
	for {
		entry, err := ar.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if entry.Header.Typeflag != tar.TypeReg && entry.Header.Typeflag != tar.TypeRegA {
			continue
		}
		n++
		scratchName := "in" + strconv.Itoa(n)
		f, err := root.File(scratchName)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(f, entry.Body); err != nil {
			f.Close()
			return nil, squasherr.IoErrorf(err, "spool %s", entry.Header.Name)
		}
		if err := f.Close(); err != nil {
			return nil, squasherr.IoErrorf(err, "spool %s", entry.Header.Name)
		}
		paths[entry.Header.Name] = f.Name()
	}

	manifestPath, ok := paths["manifest.json"]
	if !ok {
		return nil, squasherr.Malformedf("archive missing manifest.json")
	}
	var manifests ManifestList
	if err := readJSON(manifestPath, &manifests); err != nil {
		return nil, squasherr.Malformedf("decode manifest.json: %v", err)
	}
	if len(manifests) == 0 {
		return nil, squasherr.Malformedf("manifest.json has no image entries")
	}
	manifest := manifests[0]

	configPath, ok := paths[manifest.Config]
	if !ok {
		return nil, squasherr.Malformedf("manifest references missing config blob %s", manifest.Config)
	}
	var config Config
	if err := readJSON(configPath, &config); err != nil {
		return nil, squasherr.Malformedf("decode config %s: %v", manifest.Config, err)
	}

	if config.RootFS.Type != "layers" {
		return nil, squasherr.Malformedf("unsupported rootfs.type %q", config.RootFS.Type)
	}

	nonEmpty := 0
	for _, h := range config.History {
		if !h.EmptyLayer {
			nonEmpty++
		}
	}
	if len(manifest.Layers) != len(config.RootFS.DiffIDs) || len(manifest.Layers) != nonEmpty {
		return nil, squasherr.Malformedf(
			"layer count mismatch: manifest=%d diff_ids=%d non-empty history=%d",
			len(manifest.Layers), len(config.RootFS.DiffIDs), nonEmpty)
	}

	layers := make([]LayerRef, len(manifest.Layers))
	for i, layerPath := range manifest.Layers {
		spooled, ok := paths[layerPath]
		if !ok {
			return nil, squasherr.Malformedf("manifest references missing layer blob %s", layerPath)
		}
		comp, err := sniffCompression(spooled)
		if err != nil {
			return nil, err
		}
		declared := config.RootFS.DiffIDs[i]
		got, err := diffIDOf(spooled, comp)
		if err != nil {
			return nil, err
		}
		if got != declared {
			return nil, squasherr.DigestMismatch(layerPath, declared.String(), got.String())
		}
		layers[i] = LayerRef{Path: spooled, Compression: comp, DeclaredDiffID: declared}
	}

	return &Image{Manifest: manifest, Config: config, Layers: layers}, nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

func sniffCompression(path string) (Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, squasherr.IoErrorf(err, "open %s", path)
	}
	defer f.Close()
	magic := make([]byte, 2)
	n, _ := io.ReadFull(f, magic)
	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return CompressionGzip, nil
	}
	return CompressionNone, nil
}

// diffIDOf streams the uncompressed bytes of the layer at path through a
// SHA-256 digest, without ever holding the layer body whole in memory.
func diffIDOf(path string, comp Compression) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", squasherr.IoErrorf(err, "open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if comp == CompressionGzip {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return "", squasherr.Malformedf("invalid gzip layer %s: %v", path, err)
		}
		defer gr.Close()
		r = gr
	}

	d, err := digest.Canonical.FromReader(r)
	if err != nil {
		return "", squasherr.IoErrorf(err, "hash %s", path)
	}
	return d, nil
}
