// Package logging assembles the structured slog loggers used across
// harvester.
//
// It owns the console/JSON handlers, centralizes level plumbing, and exposes
// attr helpers so components emit log lines with a consistent shape. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
