// Package logging sets up the per-subsystem structured loggers used across
// the game server core. It mirrors lnd's convention of one named logger
// per package (ltndLog, srvrLog, rpcsLog, ...) but backs each with a
// *zap.SugaredLogger instead of btclog.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init configures the process-wide global zap logger from a level name
// ("debug", "info", "warn", "error") and a development flag that selects
// the console encoder instead of JSON. Subsystem loggers obtained via
// Named always read the current global, so it is safe to call Init after
// package-level Named() vars have already been constructed elsewhere.
func Init(level string, development bool) error {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}

// Named returns the subsystem logger for name, always reflecting whatever
// global logger is currently installed (the zap no-op default until Init
// is called, which is fine for tests that skip Init entirely).
func Named(name string) *zap.SugaredLogger {
	return zap.L().Named(name).Sugar()
}

// Sync flushes any buffered log entries. Call once at shutdown.
func Sync() {
	_ = zap.L().Sync()
}
