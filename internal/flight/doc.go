// Package flight implements the single-flight gate used by the refresh coordinator.
//
// # Components
//
//   - [Group]: owns the in-flight flag and the FIFO queue of waiters.
//   - [Outcome]: the value every waiter receives exactly once per attempt.
//
// # Architecture boundaries
//
// This package owns the check-and-set of the in-flight flag and the drain of the
// waiter queue. It does NOT perform the refresh exchange, touch the credential
// store, or decide what a failure means for the session; the root package does.
//
// # What this package must NOT do
//
//   - Perform I/O or block while holding its mutex.
//   - Import printdesk or any sibling internal package.
//   - Deliver more than one Outcome to a waiter.
package flight
