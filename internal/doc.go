// Package internal holds helpers private to printdesk.
//
// # Sub-packages
//
//   - cli: the printdesk command tree
//   - flight: the single-flight gate behind token refresh
//   - obs: zap logger, trace correlation, and OTLP setup
//
// # What this package must NOT do
//
//   - Export types that appear in the public printdesk API.
package internal
