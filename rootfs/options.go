package rootfs

type options struct {
	filePrefix string
	scratchDir string
}

type Option interface {
	apply(*options)
}

type filePrefixOption string

func (p filePrefixOption) apply(opts *options) {
	opts.filePrefix = string(p)
}

// WithFilePrefix adds a prefix to all files in the output archive.
func WithFilePrefix(p string) Option {
	return filePrefixOption(p)
}

type scratchRootOption string

func (s scratchRootOption) apply(opts *options) {
	opts.scratchDir = string(s)
}

// WithScratchRoot sets the directory under which the scratch workspace is
// created, overriding os.TempDir.
func WithScratchRoot(dir string) Option {
	return scratchRootOption(dir)
}
