// Package cmdrootfs wires rootfs.RootFS up to a go-flags command.
package cmdrootfs

import (
	"errors"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
	"go.uber.org/multierr"

	"github.com/motiejus/squash/internal/cmd"
	"github.com/motiejus/squash/rootfs"
)

// CmdRootFS is the "flatten" verb: collapse every layer of an image into
// one bare tarball, the degenerate case of squashing the whole image.
type CmdRootFS struct {
	cmd.BaseCommand

	PositionalArgs struct {
		Infile  goflags.Filename `long:"infile" description:"Input image archive, '-' is stdin"`
		Outfile string           `long:"outfile" description:"Output path, stdout is '-'"`
	} `positional-args:"yes" required:"yes"`

	FilePrefix  string `long:"prefix" description:"Path prefix to apply to every entry in the flattened tarball"`
	ScratchRoot string `long:"scratch-root" description:"Directory under which the scratch workspace is created"`
}

func (c *CmdRootFS) Execute(args []string) (err error) {
	if len(args) != 0 {
		return errors.New("too many args")
	}

	rd, closeIn, err := c.open(string(c.PositionalArgs.Infile))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeIn()) }()

	out, closeOut, err := c.create(c.PositionalArgs.Outfile)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeOut()) }()

	opts := []rootfs.Option{}
	if c.FilePrefix != "" {
		opts = append(opts, rootfs.WithFilePrefix(c.FilePrefix))
	}
	if c.ScratchRoot != "" {
		opts = append(opts, rootfs.WithScratchRoot(c.ScratchRoot))
	}

	_, err = rootfs.New(rd, opts...).WriteTo(out)
	return err
}

func (c *CmdRootFS) open(name string) (io.Reader, func() error, error) {
	if name == "-" {
		return c.stdin(), func() error { return nil }, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (c *CmdRootFS) create(name string) (io.Writer, func() error, error) {
	if name == "-" {
		return c.stdout(), func() error { return nil }, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (c *CmdRootFS) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *CmdRootFS) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}
