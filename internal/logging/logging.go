// Package logging builds the structured logger used by the external
// collaborator layer (cmd/webget and internal/conn). The synchronous
// core packages never log: they are pure state machines exercised
// directly by their callers and tests.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New builds an slog.Logger writing to stderr: plain JSON when json is
// set (daemon/non-terminal use), otherwise a colorized tint handler for
// interactive terminal use. The caller picks; stderr is not inspected.
func New(verbose bool, json bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
