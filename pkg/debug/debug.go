// Package debug configures process logging and provides category-based
// debug output for gatehouse.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): controlled via GATEHOUSE_DEBUG env or config
//   - Levels (HOW MUCH detail): controlled via GATEHOUSE_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("cors", "preflight denied", "origin", origin)
//	if debug.Enabled("credential") { /* expensive formatting */ }
//
// Categories: cors, credential, admission, auth, config, proxy, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, request headers seen by the admission filter are logged.
const LevelTrace = slog.LevelDebug - 4

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	// Initialize from environment for immediate availability.
	categories = parseCategories(os.Getenv("GATEHOUSE_DEBUG"))
}

// Options configures process logging.
type Options struct {
	// Categories is a comma-separated list of debug categories.
	Categories string

	// Level is the minimum slog level (ERROR, WARN, INFO, DEBUG, TRACE).
	Level string

	// Format selects the handler: "text" (default) or "json".
	Format string

	// File, when set, receives log output in addition to stderr and is
	// rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init configures the debug system and installs the default slog logger.
// Environment variables override the given options. The returned closer
// releases the log file, if any.
func Init(opts Options) io.Closer {
	cats := os.Getenv("GATEHOUSE_DEBUG")
	if cats == "" {
		cats = opts.Categories
	}
	categories = parseCategories(cats)

	level := os.Getenv("GATEHOUSE_LOG_LEVEL")
	if level == "" {
		level = opts.Level
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stderr, rot)
		closer = rot
	}

	slog.SetDefault(slog.New(NewHandler(out, opts.Format, ParseLevel(level))))
	return closer
}

// NewHandler builds a text or JSON slog handler at the given level.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	ho := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when GATEHOUSE_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
