// Package queue persists lectern's job queue as a single JSON document.
//
// The document is the interface contract with the upstream application: an
// ordered job list (insertion order is FIFO precedence) plus a processing
// flag and the id of the in-flight job. Every store call is a full
// read-modify-write of the document with an atomic rewrite; there is no
// cross-call locking. That is safe only because exactly one processing loop
// exists per machine — concurrent independent writers are unsupported and
// degrade to last-write-wins.
//
// Load never fails: a missing or corrupt document yields an empty state, and
// any job persisted as processing is normalized back to pending (a processing
// status surviving a reload means the owning process died mid-job).
package queue
