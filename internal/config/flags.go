package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Flags are the command-line overrides applied on top of the config file.
type Flags struct {
	fs *pflag.FlagSet

	Config      string
	Debug       bool
	Backend     string
	Dataset     string
	Width       int
	Height      int
	Fullscreen  bool
	Budget      int
	Target      float32
	FocusRadius float32
	Metrics     string
}

// BindFlags registers the viewer flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.Config, "config", "c", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging and node bounds")
	fs.StringVar(&f.Backend, "backend", "", "Dataset backend (archive or badger)")
	fs.StringVarP(&f.Dataset, "dataset", "d", "", "Dataset path")
	fs.IntVar(&f.Width, "width", 0, "Window width")
	fs.IntVar(&f.Height, "height", 0, "Window height")
	fs.BoolVar(&f.Fullscreen, "fullscreen", false, "Run in fullscreen mode")
	fs.IntVar(&f.Budget, "budget", 0, "Maximum resident points, 0 for no limit")
	fs.Float32Var(&f.Target, "target", 0, "Target resolution in samples per pixel")
	fs.Float32Var(&f.FocusRadius, "focus-radius", 0, "Radius of full detail around the focus point")
	fs.StringVar(&f.Metrics, "metrics", "", "Serve metrics on this address")
	return f
}

// ConfigPath returns the explicit config path if provided via --config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.Config
}

// SetPositional treats a single positional argument as the dataset path when
// --dataset was not given.
func (f *Flags) SetPositional(args []string) error {
	switch {
	case len(args) == 0:
		return nil
	case len(args) > 1:
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args[1:], " "))
	case f.fs == nil:
		return errors.New("flags are not bound")
	case f.changed("dataset"):
		return fmt.Errorf("dataset given twice: %q and %q", f.Dataset, args[0])
	}
	if err := f.fs.Set("dataset", args[0]); err != nil {
		return fmt.Errorf("setting dataset: %w", err)
	}
	return nil
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// apply copies the flags that were set on the command line into cfg.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
		cfg.Window.ShowBounds = true
	}
	if f.changed("backend") {
		cfg.Dataset.Backend = f.Backend
	}
	if f.changed("dataset") {
		cfg.Dataset.Path = f.Dataset
	}
	if f.changed("width") {
		cfg.Window.Width = f.Width
	}
	if f.changed("height") {
		cfg.Window.Height = f.Height
	}
	if f.changed("fullscreen") {
		cfg.Window.Fullscreen = f.Fullscreen
	}
	if f.changed("budget") {
		cfg.LOD.Budget = f.Budget
	}
	if f.changed("target") {
		cfg.LOD.TargetResolution = f.Target
	}
	if f.changed("focus-radius") {
		cfg.LOD.FocusRadius = f.FocusRadius
	}
	if f.changed("metrics") {
		cfg.Metrics.Enabled = f.Metrics != ""
		cfg.Metrics.Addr = f.Metrics
	}
}
