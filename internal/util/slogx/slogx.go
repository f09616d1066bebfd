package slogx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mattn/go-colorable"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max-size-mb"`
	MaxBackups int    `toml:"max-backups"`
	MaxAgeDays int    `toml:"max-age-days"`
	Compress   bool   `toml:"compress"`
}

func (o *Options) FillDefaults() {
	if o.Level == "" {
		o.Level = "info"
	}
	if o.Format == "" {
		o.Format = "text"
	}
	if o.MaxSizeMB == 0 {
		o.MaxSizeMB = 64
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = 8
	}
	if o.MaxAgeDays == 0 {
		o.MaxAgeDays = 30
	}
}

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
	default:
		return 0, fmt.Errorf("bad log level %q", s)
	}
}

// New builds a logger writing either to stderr or to a rotating file. The returned closer must be
// called on shutdown to flush the file.
func New(o Options) (*slog.Logger, io.Closer, error) {
	o.FillDefaults()
	lvl, err := ParseLevel(o.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	if o.File != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   o.Compress,
		}
		w, closer = lj, lj
	} else {
		w = colorable.NewColorableStderr()
	}
	hOpts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(o.Format) {
	case "json":
		h = slog.NewJSONHandler(w, hOpts)
	case "text":
		h = slog.NewTextHandler(w, hOpts)
	default:
		return nil, nil, fmt.Errorf("bad log format %q", o.Format)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type discardHandler struct{}

func DiscardLogger() *slog.Logger {
	return slog.New(Discard())
}

// Discard() is adapted from https://go-review.googlesource.com/c/go/+/547956. Hopefully it will
// eventually land into stable and we'll be able to remove this.
func Discard() slog.Handler {
	return discardHandler{}
}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func Err(err error) slog.Attr {
	return slog.String("err", err.Error())
}
