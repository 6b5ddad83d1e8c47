package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BuildFlags selects the mode of the root command.
type BuildFlags struct {
	Clean bool `flag:"clean" desc:"Remove the output directory before building" default:"false"`
	Watch bool `flag:"watch,w" desc:"Rebuild on change and type-check in the background" default:"false"`
	Serve bool `flag:"serve,s" desc:"Serve the output directory" default:"false"`
	Open  bool `flag:"open" desc:"Open a browser at the listen URL" default:"false"`
}

// Register adds the flags to fs.
func (f *BuildFlags) Register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.Clean, "clean", false, "Remove the output directory before building")
	fs.BoolVarP(&f.Watch, "watch", "w", false, "Rebuild on change and type-check in the background")
	fs.BoolVarP(&f.Serve, "serve", "s", false, "Serve the output directory")
	fs.BoolVar(&f.Open, "open", false, "Open a browser at the listen URL (requires --serve)")
}

// Validate rejects flag combinations that cannot work together.
func (f *BuildFlags) Validate() error {
	if f.Open && !f.Serve {
		return fmt.Errorf("--open requires --serve")
	}
	return nil
}

// LiveReload reports whether the live-reload client is compiled in.
func (f *BuildFlags) LiveReload() bool {
	return f.Watch && f.Serve
}
