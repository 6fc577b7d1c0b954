// Package logging holds the process-wide structured logger. Every record
// carries service=imagefeed; packages tag their records with Component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

const service = "imagefeed"

// Options selects the level ("debug", "info", "warn", "error"), the
// handler format and the destination (stderr when nil).
type Options struct {
	Level  string
	JSON   bool
	Output io.Writer
}

var def atomic.Pointer[slog.Logger]

func init() { Configure(Options{}) }

func Configure(opts Options) {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	def.Store(slog.New(h).With("service", service))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the current logger; safe to call from any goroutine.
func L() *slog.Logger { return def.Load() }

// With returns L() with the given attributes attached.
func With(args ...any) *slog.Logger { return L().With(args...) }

// Component returns L() tagged with component=name. The result is bound to
// the handler configured at call time.
func Component(name string, args ...any) *slog.Logger {
	return L().With(append([]any{"component", name}, args...)...)
}

// InitFromEnv reads IMAGEFEED_LOG_LEVEL and IMAGEFEED_LOG_JSON.
func InitFromEnv() {
	json, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("IMAGEFEED_LOG_JSON")))
	Configure(Options{Level: os.Getenv("IMAGEFEED_LOG_LEVEL"), JSON: json})
}
