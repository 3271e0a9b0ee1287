// Package logging provides the shared zap logger for cite-agent.
// Subsystems get named sub-loggers so log lines can be filtered by
// component (auth, backend, orchestrator, tools, gate, usage).
package logging

import (
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root *zap.Logger
)

// Initialize builds the process-wide logger. Debug mode switches to the
// development config and lowers the level to Debug. Safe to call more than
// once; the last call wins.
func Initialize(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug || envDebug() {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	// Answers go to stdout; logs stay on stderr.
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

func envDebug() bool {
	v, err := strconv.ParseBool(os.Getenv("CITEAGENT_DEBUG"))
	return err == nil && v
}

// L returns the root logger, falling back to a no-op logger before
// Initialize has run (keeps library code usable from tests).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return zap.NewNop()
	}
	return root
}

// Named returns a sub-logger for a subsystem.
func Named(subsystem string) *zap.Logger {
	return L().Named(subsystem)
}

// Sync flushes buffered log entries. Called from the CLI on exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Convenience accessors for the major subsystems.

func Auth() *zap.Logger         { return Named("auth") }
func Backend() *zap.Logger      { return Named("backend") }
func Orchestrator() *zap.Logger { return Named("orchestrator") }
func Tools() *zap.Logger        { return Named("tools") }
func Gate() *zap.Logger         { return Named("gate") }
func Usage() *zap.Logger        { return Named("usage") }
