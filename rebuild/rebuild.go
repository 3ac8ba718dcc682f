// Package rebuild constructs the new config, manifest, and legacy
// per-layer sidecars for a squashed image, given the merge range the
// layer selector resolved and the blob the merger produced.
package rebuild

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/motiejus/squash/image"
	"github.com/motiejus/squash/internal/scratch"
	"github.com/motiejus/squash/internal/squasherr"
	"github.com/motiejus/squash/layerspec"
)

// LayerBlob is one output layer: its archive path and the scratch file
// holding its uncompressed tar bytes.
type LayerBlob struct {
	Name        string
	ContentPath string
	Size        int64
}

// Sidecar is one small, fully-buffered output file (a legacy per-layer
// json/VERSION, the config, or the manifest).
type Sidecar struct {
	Name    string
	Content []byte
}

// Output is everything the archive writer needs to emit the squashed
// image, already in the deterministic order spec'd for the writer:
// manifest, config, then each layer blob and its sidecars.
type Output struct {
	Manifest Sidecar
	Config   Sidecar
	Layers   []LayerBlob
	Sidecars []Sidecar
}

// legacyJSON is the minimal per-layer metadata Docker's legacy v1.2
// layout expects alongside each layer.tar.
type legacyJSON struct {
	ID      string `json:"id"`
	Parent  string `json:"parent,omitempty"`
	Created string `json:"created"`
}

// Rebuild assembles the squashed image's manifest, config, and legacy
// sidecars. mergedContentPath must hold the merger's uncompressed output
// tar bytes; mergedDiffID and mergedSize describe it.
func Rebuild(
	img *image.Image,
	rng layerspec.Range,
	mergedDiffID digest.Digest,
	mergedContentPath string,
	mergedSize int64,
	createdBy string,
	outputTag string,
	now time.Time,
	root *scratch.Root,
) (*Output, error) {
	diffIDs := append(append([]digest.Digest{}, img.Config.RootFS.DiffIDs[:rng.K]...), mergedDiffID)
	history := append(historyPrefix(img.Config.History, rng.K), syntheticHistoryEntry(createdBy, now))

	cfg := img.Config
	cfg.RootFS.DiffIDs = diffIDs
	cfg.History = history

	configBytes, err := json.Marshal(cfg)
	if err != nil {
		return nil, squasherr.IoErrorf(err, "marshal config")
	}
	configDigest := digest.Canonical.FromBytes(configBytes)
	configName := configDigest.Hex() + ".json"

	ids := legacyIDChain(diffIDs)

	layers := make([]LayerBlob, 0, len(diffIDs))
	sidecars := make([]Sidecar, 0, len(diffIDs)*2)
	layerPaths := make([]string, 0, len(diffIDs))

	for i := 0; i < rng.K; i++ {
		contentPath, size, err := uncompressedPath(img.Layers[i], root)
		if err != nil {
			return nil, err
		}
		layerPaths = append(layerPaths, addLegacyLayer(&layers, &sidecars, ids, i, contentPath, size, now))
	}
	layerPaths = append(layerPaths, addLegacyLayer(&layers, &sidecars, ids, rng.K, mergedContentPath, mergedSize, now))

	var repoTags []string
	if outputTag != "" {
		repoTags = []string{outputTag}
	}
	manifestBytes, err := json.Marshal(image.ManifestList{{
		Config:   configName,
		RepoTags: repoTags,
		Layers:   layerPaths,
	}})
	if err != nil {
		return nil, squasherr.IoErrorf(err, "marshal manifest")
	}

	return &Output{
		Manifest: Sidecar{Name: "manifest.json", Content: manifestBytes},
		Config:   Sidecar{Name: configName, Content: configBytes},
		Layers:   layers,
		Sidecars: sidecars,
	}, nil
}

func addLegacyLayer(layers *[]LayerBlob, sidecars *[]Sidecar, ids []string, i int, contentPath string, size int64, now time.Time) string {
	id := ids[i]
	layerPath := id + "/layer.tar"
	*layers = append(*layers, LayerBlob{Name: layerPath, ContentPath: contentPath, Size: size})

	parent := ""
	if i > 0 {
		parent = ids[i-1]
	}
	lj, _ := json.Marshal(legacyJSON{ID: id, Parent: parent, Created: now.UTC().Format(time.RFC3339)})
	*sidecars = append(*sidecars,
		Sidecar{Name: id + "/json", Content: lj},
		Sidecar{Name: id + "/VERSION", Content: []byte("1.0")},
	)
	return layerPath
}

// uncompressedPath returns a path to l's uncompressed bytes, decompressing
// into a fresh scratch file when the original blob was stored gzipped:
// the output archive stores every layer uncompressed.
func uncompressedPath(l image.LayerRef, root *scratch.Root) (string, int64, error) {
	if l.Compression != image.CompressionGzip {
		return l.Path, sizeOf(l.Path), nil
	}
	rc, err := l.Open()
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	f, err := root.File(fmt.Sprintf("decompressed-%s", l.DeclaredDiffID.Hex()))
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, rc)
	if err != nil {
		f.Close()
		return "", 0, squasherr.IoErrorf(err, "decompress retained layer %s", l.Path)
	}
	if err := f.Close(); err != nil {
		return "", 0, squasherr.IoErrorf(err, "decompress retained layer %s", l.Path)
	}
	return f.Name(), n, nil
}

func sizeOf(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func syntheticHistoryEntry(createdBy string, now time.Time) image.HistoryEntry {
	if createdBy == "" {
		createdBy = "squash"
	}
	return image.HistoryEntry{Created: now.UTC(), CreatedBy: createdBy}
}

// historyPrefix returns the longest prefix of history that contains
// exactly k non-empty-layer entries, including any empty-layer entries
// interleaved up to (but not past) the (k+1)-th non-empty entry.
func historyPrefix(history []image.HistoryEntry, k int) []image.HistoryEntry {
	nonEmpty := 0
	for i, h := range history {
		if !h.EmptyLayer {
			nonEmpty++
			if nonEmpty > k {
				out := make([]image.HistoryEntry, i)
				copy(out, history[:i])
				return out
			}
		}
	}
	out := make([]image.HistoryEntry, len(history))
	copy(out, history)
	return out
}
