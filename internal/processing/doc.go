// Package processing runs the singleton loop that drains the queue.
//
// Exactly one loop exists per running application; it polls the store for
// pending work, claims one job at a time, delegates it to the worker runner,
// applies the terminal outcome, and publishes events. Failures while running
// a job are fully isolated: the job is marked failed and the loop keeps
// polling. Only Stop ends the loop.
package processing
