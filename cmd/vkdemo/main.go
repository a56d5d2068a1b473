// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Command vkdemo opens a window (or takes over a display)
// and renders an animated scene with a text overlay.
//
// Exit status is 0 on quit or after a listing, 1 on a
// fatal failure and 2 on a usage error.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/gviegas/vkdemo/config"
	"github.com/gviegas/vkdemo/driver"
	"github.com/gviegas/vkdemo/engine"
	"github.com/gviegas/vkdemo/internal/logging"
	"github.com/gviegas/vkdemo/wsi"

	_ "github.com/gviegas/vkdemo/driver/vk"
	_ "github.com/gviegas/vkdemo/wsi/display"
	_ "github.com/gviegas/vkdemo/wsi/kms"
	_ "github.com/gviegas/vkdemo/wsi/wayland"
	_ "github.com/gviegas/vkdemo/wsi/xcb"
)

// Exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// env is what run needs from the outside world.
type env struct {
	stdout, stderr io.Writer
	loadDriver     func() (driver.Driver, error)
	openBackend    func(k wsi.Kind, opts wsi.Options) (wsi.Backend, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], env{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		loadDriver:  func() (driver.Driver, error) { return engine.LoadDriver("vulkan") },
		openBackend: wsi.Open,
	})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, e env) int {
	cfg, err := config.Parse(args)
	switch {
	case errors.Is(err, config.ErrHelp):
		config.Usage(e.stdout)
		return exitOK
	case err != nil:
		fmt.Fprintf(e.stderr, "vkdemo: %v\n", err)
		config.Usage(e.stderr)
		return exitUsage
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	if cfg.Validation {
		level = slog.LevelDebug
	}
	engine.SetLogger(logging.New(e.stderr, "vkdemo", level))
	defer engine.SetLogger(nil)
	if cfg.File != "" {
		logging.Logger().Info("configuration loaded", "file", cfg.File)
	}

	drv, err := e.loadDriver()
	if err != nil {
		return fatal(e, err)
	}
	if cfg.ListGPUs {
		if _, err := engine.ListGPUs(drv, e.stdout); err != nil {
			return fatal(e, err)
		}
		return exitOK
	}

	be, err := e.openBackend(cfg.Window, wsi.Options{
		Title:      "vkdemo",
		Width:      cfg.Width,
		Height:     cfg.Height,
		Fullscreen: cfg.Fullscreen,
		VSync:      cfg.VSync,
		Driver:     drv,
	})
	if err != nil {
		return fatal(e, err)
	}
	if cfg.ListScreens {
		defer be.Destroy()
		screens, err := be.Screens()
		if err != nil {
			return fatal(e, err)
		}
		for i, s := range screens {
			fmt.Fprintf(e.stdout, "%d: %s\n", i, s)
		}
		return exitOK
	}

	ecfg := engine.DefaultConfig()
	ecfg.GPU = cfg.GPU
	ecfg.Validation = cfg.Validation
	ecfg.VSync = cfg.VSync
	ecfg.Overlay = cfg.Overlay
	ecfg.Frames = cfg.Frames
	scene := newDemo()
	r := engine.NewRenderer(drv, be, scene, ecfg)
	defer r.Destroy()
	if err := r.Init("vkdemo"); err != nil {
		return fatal(e, err)
	}
	scene.attach(r.Overlay())

	if cfg.ListFormats || cfg.ListPresentModes {
		if err := list(e.stdout, r, cfg); err != nil {
			return fatal(e, err)
		}
		return exitOK
	}

	if err := r.Run(ctx); err != nil {
		return fatal(e, err)
	}
	logging.Logger().Info("quit", "frames", r.Frames())
	return exitOK
}

// list prints the formats and present modes that the swap
// chain could have chosen.
func list(w io.Writer, r *engine.Renderer, cfg config.Config) error {
	sc := r.SwapChain()
	if cfg.ListFormats {
		fmts, err := sc.Formats()
		if err != nil {
			return err
		}
		for _, f := range fmts {
			mark := ""
			if f.Format == sc.Format() {
				mark = " (selected)"
			}
			fmt.Fprintf(w, "format %s colorspace %d%s\n", f.Format, f.ColorSpace, mark)
		}
	}
	if cfg.ListPresentModes {
		modes, err := sc.PresentModes()
		if err != nil {
			return err
		}
		for _, m := range modes {
			fmt.Fprintf(w, "present mode %s\n", m)
		}
	}
	return nil
}

func fatal(e env, err error) int {
	logging.Logger().Error("fatal error", "err", err, "fatal", engine.IsFatal(err))
	fmt.Fprintf(e.stderr, "vkdemo: %v\n", err)
	return exitFatal
}
