// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/vkdemo/wsi"
)

func writeFile(t *testing.T, s string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vkdemo.toml")
	require.NoError(t, os.WriteFile(path, []byte(s), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 720, cfg.Height)
	assert.Equal(t, wsi.Auto, cfg.Window)
	assert.True(t, cfg.Overlay)
	assert.False(t, cfg.Listing())
}

func TestFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-s", "800x600", "--fullscreen", "-w", "xcb", "-v", "--vsync",
		"-g", "1", "--no-overlay", "--frames=30", "--log-level", "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, Config{
		Width:      800,
		Height:     600,
		Fullscreen: true,
		Window:     wsi.XCB,
		Validation: true,
		VSync:      true,
		GPU:        1,
		Overlay:    false,
		Frames:     30,
		LogLevel:   "debug",
	}, cfg)

	cfg, err = Parse([]string{"--listgpus", "--list-screens", "--list-formats", "--list-present-modes"})
	require.NoError(t, err)
	assert.True(t, cfg.ListGPUs && cfg.ListScreens && cfg.ListFormats && cfg.ListPresentModes)
	assert.True(t, cfg.Listing())

	cfg, err = Parse([]string{"--window=wayland-shell"})
	require.NoError(t, err)
	assert.Equal(t, wsi.WaylandShell, cfg.Window)
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--size", "800"},
		{"--size", "0x600"},
		{"--size", "axb"},
		{"-w", "win32"},
		{"--gpu", "-1"},
		{"--gpu", "one"},
		{"--frames", "-2"},
		{"--log-level", "verbose"},
		{"--bogus"},
		{"extra"},
		{"-c", filepath.Join(t.TempDir(), "missing.toml")},
	} {
		_, err := Parse(args)
		assert.ErrorIs(t, err, ErrUsage, "%v", args)
	}

	_, err := Parse([]string{"--help"})
	assert.ErrorIs(t, err, ErrHelp)
}

func TestFile(t *testing.T) {
	path := writeFile(t, `
size = "1024x768"
window = "kms"
vsync = true
overlay = false
gpu = 2
frames = 100
log_level = "warn"
`)
	cfg, err := Parse([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 768, cfg.Height)
	assert.Equal(t, wsi.KMS, cfg.Window)
	assert.True(t, cfg.VSync)
	assert.False(t, cfg.Overlay)
	assert.Equal(t, 2, cfg.GPU)
	assert.Equal(t, 100, cfg.Frames)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, path, cfg.File)
	// Keys absent from the file keep their defaults.
	assert.False(t, cfg.Fullscreen)
	assert.False(t, cfg.Validation)
}

func TestPrecedence(t *testing.T) {
	path := writeFile(t, `
size = "1024x768"
window = "kms"
vsync = true
`)
	cfg, err := Parse([]string{"-c", path, "-s", "640x480", "--vsync=false"})
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
	assert.False(t, cfg.VSync)
	assert.Equal(t, wsi.KMS, cfg.Window)

	// A flag left at its default does not override the file.
	cfg, err = Parse([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
}

func TestFileErrors(t *testing.T) {
	for _, s := range []string{
		`size = "big"`,
		`window = "win32"`,
		`colour = "red"`,
		`gpu = "zero"`,
		`size = `,
	} {
		_, err := Parse([]string{"-c", writeFile(t, s)})
		assert.ErrorIs(t, err, ErrUsage, "%s", s)
	}
}

func TestParseSize(t *testing.T) {
	w, h, err := ParseSize("1920X1080")
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
	for _, s := range []string{"", "x", "10x", "x10", "-1x10", "10x10x10"} {
		_, _, err := ParseSize(s)
		assert.ErrorIs(t, err, ErrUsage, "%q", s)
	}
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)
	for _, s := range []string{"--size", "--listgpus", "--list-present-modes", "wayland-shell", "--config"} {
		assert.Contains(t, buf.String(), s)
	}
}
