// Package logging provides categorized zap-backed logging for cardcheck.
// Each subsystem gets a named logger; verbosity is a process-wide toggle
// set once at startup. Credentials are never logged by any helper here.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup and CLI wiring
	CategoryEngine   Category = "engine"   // verification pipeline orchestration
	CategoryExtract  Category = "extract"  // claim extraction
	CategoryCodegen  Category = "codegen"  // verification program generation
	CategorySandbox  Category = "sandbox"  // sandboxed program execution
	CategorySearch   Category = "search"   // evidence search capabilities
	CategoryEvaluate Category = "evaluate" // batch evaluation
	CategoryRisk     Category = "risk"     // risk assessment
	CategoryStream   Category = "stream"   // progress streaming
	CategorySnapshot Category = "snapshot" // snapshot loading
	CategoryAPI      Category = "api"      // completion-service calls
	CategoryServer   Category = "server"   // HTTP server
	CategoryRulepack Category = "rulepack" // legacy pattern-rulepack mode
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize installs the process-wide root logger. Safe to call more than
// once; later calls replace the root and invalidate cached category loggers.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns the sugared logger for a category, creating it on first use.
// Before Initialize is called, loggers are no-ops so library code can log
// unconditionally.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	l := base.Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Convenience helpers, one set per busy subsystem.

func Engine(format string, args ...interface{})       { Get(CategoryEngine).Infof(format, args...) }
func EngineDebug(format string, args ...interface{})  { Get(CategoryEngine).Debugf(format, args...) }
func EngineWarn(format string, args ...interface{})   { Get(CategoryEngine).Warnf(format, args...) }
func EngineError(format string, args ...interface{})  { Get(CategoryEngine).Errorf(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debugf(format, args...) }
func SandboxWarn(format string, args ...interface{})  { Get(CategorySandbox).Warnf(format, args...) }
func SearchDebug(format string, args ...interface{})  { Get(CategorySearch).Debugf(format, args...) }
func APIWarn(format string, args ...interface{})      { Get(CategoryAPI).Warnf(format, args...) }
func StreamWarn(format string, args ...interface{})   { Get(CategoryStream).Warnf(format, args...) }
func Server(format string, args ...interface{})       { Get(CategoryServer).Infof(format, args...) }
func ServerWarn(format string, args ...interface{})   { Get(CategoryServer).Warnf(format, args...) }
func Boot(format string, args ...interface{})         { Get(CategoryBoot).Infof(format, args...) }
