// Package log provides the diagnostics engine's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that feeds a formatter/outputs
// pipeline, so output stays consistent across the codebase while remaining
// interoperable with the slog ecosystem.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("session"), log.Int("peers", 2))
//	l.Info("peers connected", log.Str("addr", "127.0.0.1:51317"))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config supporting
// text or JSON formatting. To integrate with libraries expecting *log.Logger
// (pebble, net/http), use RedirectStdLog.
package log
