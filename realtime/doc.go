// Package realtime opens the print desk notification channel over a websocket.
//
// The channel authenticates with the same access token the API client uses,
// read from the shared credential store at dial time. It does not take part
// in token refresh: a rejected handshake is reported as
// [ErrHandshakeUnauthorized] and the caller decides when to redial.
//
// # What this package must NOT do
//
//   - Refresh or write credentials.
//   - Log token values.
package realtime
