// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package config parses the process configuration of
// vkdemo from command-line flags and an optional TOML
// file. Values are applied in order of increasing
// precedence: defaults, file, explicit flags.
package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/wsi"
)

// ErrUsage means that the configuration is invalid.
// The process exits with status 2.
var ErrUsage = errors.New("config: usage error")

// ErrHelp is returned by Parse when help was requested.
var ErrHelp = pflag.ErrHelp

// Config holds every process option.
type Config struct {
	Width      int
	Height     int
	Fullscreen bool
	Window     wsi.Kind
	Validation bool
	VSync      bool
	GPU        int
	Overlay    bool
	// Frames limits how many frames are presented.
	// Zero means no limit.
	Frames   int
	LogLevel string
	// File is the configuration file that was loaded,
	// if any.
	File string

	ListGPUs         bool
	ListScreens      bool
	ListFormats      bool
	ListPresentModes bool
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Width:    1280,
		Height:   720,
		Window:   wsi.Auto,
		Overlay:  true,
		LogLevel: "info",
	}
}

// Listing returns whether an enumerate-and-exit mode was
// requested.
func (c *Config) Listing() bool {
	return c.ListGPUs || c.ListScreens || c.ListFormats || c.ListPresentModes
}

// file is the layout of the configuration file.
type file struct {
	Size       string `toml:"size"`
	Fullscreen bool   `toml:"fullscreen"`
	Window     string `toml:"window"`
	Validation bool   `toml:"validation"`
	VSync      bool   `toml:"vsync"`
	GPU        int    `toml:"gpu"`
	Overlay    bool   `toml:"overlay"`
	Frames     int    `toml:"frames"`
	LogLevel   string `toml:"log_level"`
}

// flags holds the values bound to a flag set.
type flags struct {
	set        *pflag.FlagSet
	size       string
	fullscreen bool
	window     string
	validation bool
	vsync      bool
	gpu        int
	noOverlay  bool
	frames     int
	logLevel   string
	file       string
	listGPUs   bool
	listScr    bool
	listFmts   bool
	listModes  bool
}

func newFlags(name string) *flags {
	f := &flags{set: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	s := f.set
	s.SortFlags = false
	s.StringVarP(&f.size, "size", "s", "1280x720", "window or mode size, as WxH")
	s.BoolVar(&f.fullscreen, "fullscreen", false, "request a fullscreen window")
	s.StringVarP(&f.window, "window", "w", "auto", "window backend: "+kindList())
	s.BoolVarP(&f.validation, "validation", "v", false, "enable API validation (implies debug logging)")
	s.BoolVar(&f.vsync, "vsync", false, "synchronize presentation with the display")
	s.IntVarP(&f.gpu, "gpu", "g", 0, "index of the GPU to use (see --listgpus)")
	s.BoolVar(&f.noOverlay, "no-overlay", false, "start with the text overlay hidden")
	s.IntVar(&f.frames, "frames", 0, "quit after this many frames (0 means no limit)")
	s.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	s.StringVarP(&f.file, "config", "c", "", "TOML configuration file")
	s.BoolVar(&f.listGPUs, "listgpus", false, "list the available GPUs and exit")
	s.BoolVar(&f.listScr, "list-screens", false, "list the outputs of the window backend and exit")
	s.BoolVar(&f.listFmts, "list-formats", false, "list the supported surface formats and exit")
	s.BoolVar(&f.listModes, "list-present-modes", false, "list the supported present modes and exit")
	return f
}

func kindList() string {
	var names []string
	for _, k := range wsi.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

// Parse parses args (without the program name).
// It returns ErrHelp if -h or --help is present, and an
// error wrapping ErrUsage if the configuration is invalid.
func Parse(args []string) (Config, error) {
	f := newFlags("vkdemo")
	f.set.SetOutput(io.Discard)
	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Config{}, ErrHelp
		}
		return Config{}, errors.Wrap(ErrUsage, err.Error())
	}
	if f.set.NArg() > 0 {
		return Config{}, errors.Wrapf(ErrUsage, "unexpected argument %q", f.set.Arg(0))
	}

	cfg := Default()
	if f.file != "" {
		if err := cfg.load(f.file); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.apply(f); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Usage writes the flag descriptions to w.
func Usage(w io.Writer) {
	f := newFlags("vkdemo")
	fmt.Fprintf(w, "Usage: vkdemo [flags]\n\nFlags:\n%s", f.set.FlagUsages())
}

// load applies the keys set in the TOML file at path.
// Unknown keys are rejected.
func (c *Config) load(path string) error {
	var fc file
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return errors.Wrapf(ErrUsage, "config file: %v", err)
	}
	if und := md.Undecoded(); len(und) > 0 {
		return errors.Wrapf(ErrUsage, "config file %s: unknown key %q", path, und[0].String())
	}
	c.File = path
	if md.IsDefined("size") {
		if c.Width, c.Height, err = ParseSize(fc.Size); err != nil {
			return err
		}
	}
	if md.IsDefined("window") {
		if c.Window, err = parseKind(fc.Window); err != nil {
			return err
		}
	}
	set := func(key string, dst *bool, v bool) {
		if md.IsDefined(key) {
			*dst = v
		}
	}
	set("fullscreen", &c.Fullscreen, fc.Fullscreen)
	set("validation", &c.Validation, fc.Validation)
	set("vsync", &c.VSync, fc.VSync)
	set("overlay", &c.Overlay, fc.Overlay)
	if md.IsDefined("gpu") {
		c.GPU = fc.GPU
	}
	if md.IsDefined("frames") {
		c.Frames = fc.Frames
	}
	if md.IsDefined("log_level") {
		c.LogLevel = fc.LogLevel
	}
	logging.Logger().Debug("configuration file loaded", "path", path, "keys", len(md.Keys()))
	return nil
}

// apply applies the flags that were explicitly set.
func (c *Config) apply(f *flags) error {
	changed := f.set.Changed
	var err error
	if changed("size") {
		if c.Width, c.Height, err = ParseSize(f.size); err != nil {
			return err
		}
	}
	if changed("window") {
		if c.Window, err = parseKind(f.window); err != nil {
			return err
		}
	}
	if changed("fullscreen") {
		c.Fullscreen = f.fullscreen
	}
	if changed("validation") {
		c.Validation = f.validation
	}
	if changed("vsync") {
		c.VSync = f.vsync
	}
	if changed("gpu") {
		c.GPU = f.gpu
	}
	if changed("no-overlay") {
		c.Overlay = !f.noOverlay
	}
	if changed("frames") {
		c.Frames = f.frames
	}
	if changed("log-level") {
		c.LogLevel = f.logLevel
	}
	c.ListGPUs = f.listGPUs
	c.ListScreens = f.listScr
	c.ListFormats = f.listFmts
	c.ListPresentModes = f.listModes
	return nil
}

// Validate checks c.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return errors.Wrapf(ErrUsage, "invalid size %dx%d", c.Width, c.Height)
	case c.GPU < 0:
		return errors.Wrapf(ErrUsage, "invalid gpu index %d", c.GPU)
	case c.Frames < 0:
		return errors.Wrapf(ErrUsage, "invalid frame count %d", c.Frames)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}
	return nil
}

// ParseSize parses a size given as WxH.
// Both dimensions must be positive.
func ParseSize(s string) (width, height int, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		width, err = strconv.Atoi(ws)
		if err == nil {
			height, err = strconv.Atoi(hs)
		}
	}
	if !ok || err != nil || width <= 0 || height <= 0 {
		return 0, 0, errors.Wrapf(ErrUsage, "invalid size %q (want WxH)", s)
	}
	return width, height, nil
}

func parseKind(s string) (wsi.Kind, error) {
	k, err := wsi.ParseKind(s)
	if err != nil {
		return 0, errors.Wrap(ErrUsage, err.Error())
	}
	return k, nil
}
