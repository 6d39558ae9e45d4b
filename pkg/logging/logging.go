// Package logging builds the slog logger the binaries use. No library
// package takes a slog logger; the Badger block store logs through the
// logrus logger in its StoreConfig.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a colorized stderr logger at the given level.
func New(level slog.Level) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	})

	return slog.New(handler)
}
