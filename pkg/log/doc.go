// Package log provides the logging abstraction shared by flowrig components.
//
// Components never write to stdout/stderr directly. They accept a Logger
// through a functional option and default to [NoopLogger], so embedding
// flowrig in a test binary is silent unless the caller opts in.
//
// # Usage
//
// Use the zerolog adapter:
//
//	logger := log.NewZerologAdapter(log.LevelInfo)
//	orch := lifecycle.NewOrchestrator(engine, lifecycle.WithLogger(logger))
//
// Or wrap an existing zerolog.Logger:
//
//	logger := log.NewZerologAdapterWithLogger(zl)
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package log
