// Package log provides the zerolog-backed structured logger used across
// selgo. The library is quiet by default (warn level); applications raise
// the level or swap the logger entirely.
//
// Typed warnings and errors from pkg/errors implement
// zerolog.LogObjectMarshaler, so they are emitted as structured objects:
//
//	log.SetLevel(zerolog.DebugLevel)
//	logger := log.WithComponent("tuning")
//	logger.Debug().Float64("lambda", lmb).Msg("fit scheduled")
package log

import (
	"os"
	"sync"

	"github.com/rs/zerolog"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
)

func init() {
	// Route pkg/errors warnings through the structured logger.
	selgoErrors.SetZerologWarnFunc(func(warning error) {
		l := Logger()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			l.Warn().Object("warning", obj).Msg(warning.Error())
			return
		}
		l.Warn().Err(warning).Msg("warning")
	})
}

// Logger returns the current library logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the library logger. Useful for tests and for
// applications that already own a zerolog instance.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetLevel adjusts the level of the current logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(level)
}

// WithComponent returns a child logger tagged with a component name, e.g.
// "penalized", "tuning" or "pipeline".
func WithComponent(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}
