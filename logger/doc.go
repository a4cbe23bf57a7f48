// Package logger provides structured logging for gormock using zerolog.
//
// Loggers are named and component-scoped. Unlike a service logger the
// level is kept per instance, so a verbose test does not raise the level
// of every other test in the binary.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//	  output: "stderr"
//
// # Usage
//
//	log := logger.NewDefault("gormock").WithComponent("mock.scope")
//	log.Debug("scope entered", logger.Fields("depth", 1))
package logger
