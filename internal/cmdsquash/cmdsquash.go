// Package cmdsquash wires engine.Squash up to a go-flags command.
package cmdsquash

import (
	"errors"
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	goflags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/motiejus/squash/engine"
	"github.com/motiejus/squash/internal/bytecounter"
	"github.com/motiejus/squash/internal/cmd"
	"github.com/motiejus/squash/internal/dockerio"
	"github.com/motiejus/squash/layerspec"
)

// CmdSquash is the "squash" verb: collapse a contiguous suffix of an
// image's layers into one.
type CmdSquash struct {
	cmd.BaseCommand

	PositionalArgs struct {
		Infile  goflags.Filename `long:"infile" description:"Input image archive, '-' is stdin, or a name:tag to export via 'docker save'"`
		Outfile string           `long:"outfile" description:"Output path, stdout is '-', or a name:tag to load via 'docker load'"`
	} `positional-args:"yes"`

	Source       string `long:"source" description:"name:tag to export via 'docker save' instead of --infile"`
	Load         string `long:"load" description:"name:tag to load into the daemon via 'docker load' instead of --outfile"`
	Count        int    `long:"count" description:"Merge the topmost N layers"`
	DigestPrefix string `long:"digest-prefix" description:"Merge from the layer whose diff_id starts with this prefix (>= 8 hex chars)"`
	CreatedBy    string `long:"created-by" description:"Text recorded in the new layer's history entry"`
	OutputTag    string `long:"tag" description:"name:tag recorded in the output manifest"`
	ScratchRoot  string `long:"scratch-root" description:"Directory under which the scratch workspace is created"`
	Verbose      bool   `short:"v" long:"verbose" description:"Emit debug-level progress logging"`
}

func (c *CmdSquash) Execute(args []string) (err error) {
	if len(args) != 0 {
		return errors.New("too many args")
	}

	spec, err := c.spec()
	if err != nil {
		return err
	}

	scratchRoot := c.ScratchRoot
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}

	rd, closeIn, err := c.openInput(scratchRoot)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeIn()) }()

	out, outputTag, closeOut, err := c.openOutput(scratchRoot)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeOut(err)) }()

	counter := bytecounter.New(out)

	opts := []engine.Option{engine.WithScratchRoot(scratchRoot)}
	if c.CreatedBy != "" {
		opts = append(opts, engine.WithCreatedBy(c.CreatedBy))
	}
	if outputTag != "" {
		opts = append(opts, engine.WithOutputTag(outputTag))
	}
	if c.Verbose {
		log := logrus.New()
		log.SetLevel(logrus.DebugLevel)
		opts = append(opts, engine.WithLogger(log))
	}

	if err := engine.Squash(rd, counter, spec, opts...); err != nil {
		return err
	}

	if c.Verbose {
		fmt.Fprintf(c.stderr(), "wrote %s\n", units.HumanSize(float64(counter.N)))
	}
	return nil
}

func (c *CmdSquash) spec() (layerspec.Spec, error) {
	switch {
	case c.Count > 0 && c.DigestPrefix != "":
		return layerspec.Spec{}, errors.New("specify exactly one of --count or --digest-prefix")
	case c.Count > 0:
		return layerspec.Count(c.Count)
	case c.DigestPrefix != "":
		return layerspec.DigestPrefix(c.DigestPrefix)
	default:
		return layerspec.Spec{}, errors.New("specify one of --count or --digest-prefix")
	}
}

// openInput resolves --source or --infile into a readable stream. A
// --source export is spooled to scratchRoot and cleaned up by the
// returned close function.
func (c *CmdSquash) openInput(scratchRoot string) (io.Reader, func() error, error) {
	source := c.Source
	name := string(c.PositionalArgs.Infile)
	if source == "" && dockerio.LooksLikeReference(name) {
		source = name
	}
	if source != "" {
		path, err := dockerio.Export(source, scratchRoot)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() error { return multierr.Append(f.Close(), os.Remove(path)) }, nil
	}
	if name == "" {
		return nil, nil, errors.New("specify --infile or --source")
	}
	if name == "-" {
		return c.stdin(), func() error { return nil }, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// openOutput resolves --load or --outfile into a writable sink, and the
// output_tag the engine should embed in the archive's manifest. The
// returned close function receives the operation's outcome so it can
// unlink a partial file instead of leaving it behind: spec.md requires
// partial output to be unlinked before the error is returned, for every
// output path.
func (c *CmdSquash) openOutput(scratchRoot string) (io.Writer, string, func(error) error, error) {
	load := c.Load
	if load == "" && dockerio.LooksLikeReference(c.PositionalArgs.Outfile) {
		load = c.PositionalArgs.Outfile
	}
	if load != "" {
		f, err := os.CreateTemp(scratchRoot, "squash-load-*.tar")
		if err != nil {
			return nil, "", nil, err
		}
		tempTag := dockerio.NewTempTag()
		finalTag := load
		closeFn := func(opErr error) error {
			path := f.Name()
			err := f.Close()
			if err == nil && opErr == nil {
				err = dockerio.Load(path, tempTag, finalTag)
			}
			return multierr.Append(err, os.Remove(path))
		}
		return f, tempTag, closeFn, nil
	}

	name := c.PositionalArgs.Outfile
	if name == "" {
		return nil, "", nil, errors.New("specify --outfile or --load")
	}
	if name == "-" {
		return c.stdout(), c.OutputTag, func(error) error { return nil }, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, "", nil, err
	}
	closeFn := func(opErr error) error {
		err := f.Close()
		if opErr != nil {
			err = multierr.Append(err, os.Remove(name))
		}
		return err
	}
	return f, c.OutputTag, closeFn, nil
}

func (c *CmdSquash) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *CmdSquash) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *CmdSquash) stderr() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}
