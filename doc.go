// Package printdesk is the authenticated API client of the print desk admin
// front end. It attaches bearer tokens to outgoing requests, refreshes the
// access token exactly once when any number of concurrent requests hit 401,
// replays them with the new token, and forces re-authentication when the
// refresh itself fails.
//
// A [Client] is safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// printdesk is the public surface. It exposes [Client], [Builder], [Config],
// [CredentialStore], and the error and event types. The single-flight gate
// lives in internal/flight; storage backends live in store/.
//
// # What this package must NOT do
//
//   - Issue tokens. Login happens elsewhere and hands the pair to [Client.SetTokens].
//   - Retry ordinary failures. Only a first 401 is ever replayed.
//   - Log token values.
package printdesk
