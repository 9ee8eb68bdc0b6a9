// Package main hosts the lectern CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP calls
// against the daemon API, falling back to direct queue-document access for
// read and maintenance operations when no daemon is running. It centralizes
// configuration resolution and client construction so subcommands can focus on
// user experience instead of wiring.
package main
