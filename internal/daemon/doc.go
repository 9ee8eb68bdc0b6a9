// Package daemon coordinates the long-running lectern process.
//
// It wires configuration, the queue store, the event bus, and the processing
// loop into a single lifecycle with flock-based locking to prevent multiple
// instances, and exposes the loopback HTTP API the CLI talks to. Handlers
// translate between HTTP payloads and queue/loop operations; mutations made
// here rather than inside the loop are followed by a state broadcast so event
// subscribers stay current.
package daemon
