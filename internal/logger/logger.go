// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide structured logger used by the gssnegotiate command.
// Library packages take a *slog.Logger instead; pass them Logger().
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	// shared by every handler so that SetLevel also applies to loggers already handed out
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	format   = "text"
	output   io.Writer = os.Stderr
	useColor bool
	slogger  *slog.Logger
)

func init() {
	useColor = isTerminal(output)
	reconfigure()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// reconfigure rebuilds the handler; callers must not hold mu
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init configures the logger.  Empty fields keep their current setting.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var w io.Writer
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w = os.Stdout
		case "stderr":
			w = os.Stderr
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w = f
		}

		mu.Lock()
		output = w
		useColor = isTerminal(w)
		mu.Unlock()
	}

	if cfg.Level != "" {
		if err := SetLevel(cfg.Level); err != nil {
			return err
		}
	}
	if cfg.Format != "" {
		if err := SetFormat(cfg.Format); err != nil {
			return err
		}
	}

	reconfigure()
	return nil
}

// InitWithWriter sends log output to w, without color.  Used by tests.
func InitWithWriter(w io.Writer, lvl, form string) {
	mu.Lock()
	output = w
	useColor = false
	mu.Unlock()

	_ = SetLevel(lvl)
	_ = SetFormat(form)
	reconfigure()
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetLevel sets the minimum level of every logger returned by this package.
func SetLevel(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// SetFormat selects text or json output.  Loggers obtained earlier keep their format.
func SetFormat(s string) error {
	s = strings.ToLower(s)
	if s != "text" && s != "json" {
		return fmt.Errorf("unknown log format %q", s)
	}

	mu.Lock()
	format = s
	mu.Unlock()

	reconfigure()
	return nil
}

// Logger returns the current logger, for injection into library packages.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with additional attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}
