// Package notifications sends optional ntfy pushes for queue outcomes.
// When no topic is configured every call is a no-op.
package notifications
