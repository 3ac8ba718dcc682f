package engine

import (
	"github.com/sirupsen/logrus"
)

// Options configures one Squash invocation: scratch root, an optional
// output tag, the history string recorded for the new synthetic layer,
// and an optional logger. The layer specification is passed to Squash
// as its own argument.
type Options struct {
	scratchRoot string
	createdBy   string
	outputTag   string
	logger      *logrus.Logger
}

// Option mutates Options, following the same functional-options pattern
// as rootfs.Option.
type Option interface {
	apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) apply(o *Options) { f(o) }

// WithScratchRoot sets the directory under which the scratch workspace is
// created. Default: OS temp.
func WithScratchRoot(dir string) Option {
	return optionFunc(func(o *Options) { o.scratchRoot = dir })
}

// WithCreatedBy sets the string recorded in the new history entry.
func WithCreatedBy(s string) Option {
	return optionFunc(func(o *Options) { o.createdBy = s })
}

// WithOutputTag embeds name:tag in the rebuilt manifest's RepoTags.
func WithOutputTag(tag string) Option {
	return optionFunc(func(o *Options) { o.outputTag = tag })
}

// WithLogger attaches a structured logger for verbose-mode progress. Nil
// (the default) discards all log output.
func WithLogger(l *logrus.Logger) Option {
	return optionFunc(func(o *Options) { o.logger = l })
}
