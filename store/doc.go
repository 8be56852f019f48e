// Package store implements the key-value substrates that hold client credentials.
//
// # Backends
//
//   - [MemoryStore]: process-local map, the default.
//   - [RedisStore]: shared substrate so several workers see one credential pair.
//   - [FileStore]: JSON document on disk with 0600 permissions, optionally sealed
//     with a passphrase.
//
// # Architecture boundaries
//
// This package owns persistence only. Absent keys are reported through the ok
// result of Get, never as an error. Which keys exist and what they mean is
// decided by the printdesk credential adapter.
//
// # What this package must NOT do
//
//   - Interpret or validate token contents.
//   - Import printdesk.
//   - Log values.
package store
