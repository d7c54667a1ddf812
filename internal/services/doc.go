// Package services implements [ShimService], the client the CLI uses to talk to a running shim.
//
// # Envelope
//
// Every shim endpoint except /input and /health replies with {success, error, auth, data}.
// A success:false reply is converted to an error wrapping one of the shared sentinels:
//   - [shared.ErrNotAuthenticated] : the shim has no session yet
//   - [shared.ErrAuthFailed] : /auth was rejected
//   - [shared.ErrUpstream] : the retailer answered a proxied call with an error
//   - [shared.ErrInvalidRequest] : the shim rejected the request with 400
//   - [shared.ErrServiceUnavailable] : the shim could not be reached
//
// # Retry
//
// Get, Put and Post re-authenticate once with the configured account and repeat the call when it fails.
// Invalid requests are not retried.
//
// # Library
//
// [ShimService.Library] fetches 1.0/library through the shim and simplifies every item into a [models.Book].
package services
