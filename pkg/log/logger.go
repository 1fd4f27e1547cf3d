// Package log provides the structured logging facade used by readout
// estimators. It is a thin layer over zerolog: estimators obtain a named
// logger at construction time and emit progress events through it, so
// callers can redirect, silence, or capture training output without the
// estimators knowing where it goes.
package log

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// SetOutput redirects the root logger to w. All loggers created afterwards
// by GetLogger and GetLoggerWithName write to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel sets the minimum level emitted by the root logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	root = root.Level(level)
}

// GetLogger returns the root logger.
func GetLogger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// GetLoggerWithName returns a logger tagged with a model name.
//
// Example:
//
//	logger := log.GetLoggerWithName("SoftmaxRegression")
//	logger.Info().Int("iteration", i).Msg("newton-raphson iteration")
func GetLoggerWithName(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("model", name).Logger()
}

// NewTestLogger returns a logger that writes to an in-memory buffer, for
// asserting on (or on the absence of) log output in tests.
func NewTestLogger() (zerolog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return zerolog.New(buf), buf
}
