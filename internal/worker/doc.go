// Package worker launches the external video-processing program and speaks
// its wire protocol: one JSON result object on stdout at exit, and
// line-oriented PROGRESS: frames on stderr while running.
//
// The worker's internals are opaque; this package only governs how it is
// invoked, monitored, and terminated.
package worker
