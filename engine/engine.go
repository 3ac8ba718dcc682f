// Package engine orchestrates one squash invocation end to end: parse,
// select, merge, rebuild, write. It owns the scratch workspace for the
// duration of the call and tears it down on every exit path.
package engine

import (
	"archive/tar"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/motiejus/squash/archive"
	"github.com/motiejus/squash/image"
	"github.com/motiejus/squash/internal/scratch"
	"github.com/motiejus/squash/internal/squasherr"
	"github.com/motiejus/squash/layerspec"
	"github.com/motiejus/squash/merge"
	"github.com/motiejus/squash/rebuild"
)

// Squash reads a Docker v1.2 image archive from r, collapses the layer
// range spec resolves into one equivalent layer, and writes the rewritten
// archive to w.
func Squash(r io.Reader, w io.Writer, spec layerspec.Spec, opt ...Option) (err error) {
	opts := Options{scratchRoot: os.TempDir()}
	for _, o := range opt {
		o.apply(&opts)
	}

	root, err := scratch.New(opts.scratchRoot)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := root.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}()

	img, err := image.Parse(r, root)
	if err != nil {
		return err
	}

	rng, err := layerspec.Resolve(spec, img.Config.RootFS.DiffIDs)
	if err != nil {
		return err
	}

	if opts.logger != nil {
		opts.logger.WithField("k", rng.K).WithField("l", rng.L).Debug("resolved merge range")
	}

	sources := make([]merge.LayerSource, 0, rng.L-rng.K)
	for _, l := range img.Layers[rng.K:rng.L] {
		sources = append(sources, l)
	}

	mergedFile, err := root.File("merged-layer")
	if err != nil {
		return err
	}
	diffID, err := merge.New(root, opts.logger).Merge(sources, mergedFile)
	if err != nil {
		return err
	}
	if err := mergedFile.Close(); err != nil {
		return squasherr.IoErrorf(err, "close merged layer")
	}
	mergedSize, err := fileSize(mergedFile.Name())
	if err != nil {
		return err
	}

	out, err := rebuild.Rebuild(img, rng, diffID, mergedFile.Name(), mergedSize, opts.createdBy, opts.outputTag, time.Now(), root)
	if err != nil {
		return err
	}

	return writeArchive(w, out)
}

func writeArchive(w io.Writer, out *rebuild.Output) error {
	aw := archive.NewWriter(w)
	if err := aw.WriteBytes(out.Manifest.Name, 0644, out.Manifest.Content); err != nil {
		return err
	}
	if err := aw.WriteBytes(out.Config.Name, 0644, out.Config.Content); err != nil {
		return err
	}
	for i, l := range out.Layers {
		if err := writeLayerBlob(aw, l); err != nil {
			return err
		}
		// Each layer's sidecars (json, VERSION) immediately follow it.
		for _, sc := range out.Sidecars[i*2 : i*2+2] {
			if err := aw.WriteBytes(sc.Name, 0644, sc.Content); err != nil {
				return err
			}
		}
	}
	return aw.Close()
}

func writeLayerBlob(aw *archive.Writer, l rebuild.LayerBlob) error {
	f, err := os.Open(l.ContentPath)
	if err != nil {
		return squasherr.IoErrorf(err, "open %s", l.ContentPath)
	}
	defer f.Close()
	hdr := &tar.Header{Name: l.Name, Typeflag: tar.TypeReg, Mode: 0644, Size: l.Size}
	return aw.WriteEntry(hdr, f)
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, squasherr.IoErrorf(err, "stat %s", path)
	}
	return fi.Size(), nil
}
