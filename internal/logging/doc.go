// Package logging constructs the slog loggers used across lectern.
//
// Console output goes through a tinted handler when attached to a terminal,
// JSON output through the standard slog JSON handler. Daemon runs additionally
// append to a log file under the configured log directory.
package logging
