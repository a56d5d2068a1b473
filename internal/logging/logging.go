// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package logging holds the structured logger shared by
// every package in the module.
// Library code logs through Logger, which discards all
// records until an application calls SetLogger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	charm "github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// nopHandler drops every record.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(nopHandler{})) }

// SetLogger replaces the logger used by the module.
// Passing nil restores the silent default.
// It is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logger.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger { return logger.Load() }

// ParseLevel converts a level name (debug, info, warn or
// error) into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.Errorf("logging: unknown level %q", s)
}

// New creates a logger that writes human-readable records
// to w, starting at the given level.
func New(w io.Writer, prefix string, level slog.Level) *slog.Logger {
	h := charm.NewWithOptions(w, charm.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
		Level:           charmLevel(level),
	})
	return slog.New(h)
}

func charmLevel(l slog.Level) charm.Level {
	switch {
	case l <= slog.LevelDebug:
		return charm.DebugLevel
	case l <= slog.LevelInfo:
		return charm.InfoLevel
	case l <= slog.LevelWarn:
		return charm.WarnLevel
	}
	return charm.ErrorLevel
}
