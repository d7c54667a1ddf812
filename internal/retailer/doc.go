// Package retailer talks to the audiobook retailer's API on behalf of a registered device.
//
// # Device Registration
//
// [Authenticator.Login] signs in with email, password and a country code and registers this process as a device.
// The retailer may interrupt the sign-in with any number of out-of-band [Challenge]s (captcha, one-time
// password, verification code, approval). Each one is handed to a [ChallengeSolver], which blocks until
// somebody supplies an answer; the answer is posted back and the sign-in continues.
//
// [Authenticator.Refresh] renews an expired access token with the stored refresh token using the OAuth2
// refresh-token grant.
//
// # Authenticated Calls
//
// [Client] issues GET, PUT and POST requests with the registration's bearer token. Paths are resolved
// against the locale's API domain unless they are absolute URLs. Requests are rate limited.
//
// # Errors
//
// Non-2xx responses become an [*APIError] that wraps [shared.ErrUpstream] and carries the retailer's
// message verbatim.
package retailer
