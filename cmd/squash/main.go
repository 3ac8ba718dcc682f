// Command squash collapses a contiguous suffix of a Docker image's layers
// into one, preserving runtime behavior while reducing layer count.
package main

import (
	"errors"
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"

	"github.com/motiejus/squash/internal/cmdmanpage"
	"github.com/motiejus/squash/internal/cmdrootfs"
	"github.com/motiejus/squash/internal/cmdsquash"
	"github.com/motiejus/squash/internal/squasherr"
)

func main() {
	os.Exit(run())
}

func run() int {
	parser := goflags.NewParser(nil, goflags.Default)
	parser.ShortDescription = "collapse Docker image layers"

	if _, err := parser.AddCommand("squash", "Squash a suffix of an image's layers", "", &cmdsquash.CmdSquash{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if _, err := parser.AddCommand("flatten", "Flatten every layer of an image into one bare tarball", "", &cmdrootfs.CmdRootFS{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if _, err := parser.AddCommand("manpage", "Print the manual page", "", cmdmanpage.NewCommand(parser)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*goflags.Error); ok && fe.Type == goflags.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var serr *squasherr.Error
	if errors.As(err, &serr) {
		return serr.Kind.ExitCode()
	}
	return 1
}
