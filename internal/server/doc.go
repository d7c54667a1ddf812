// Package server exposes a [session.Manager] over HTTP.
//
// # Endpoints
//
//	POST /auth    {email, password, countryCode}  -> {success, auth}
//	GET  /get     ?url=...&params={...}           -> {success, data}
//	PUT  /put     {url, params}                   -> {success, data}
//	POST /post    {url, params}                   -> {success}
//	POST /input   {answer}                        -> {answer}
//	GET  /health                                  -> {status, authenticated, source, pending}
//
// Every failure is reported as {success:false, error}. Malformed requests get a 400; anything that fails after
// the request was understood (authentication, upstream errors, no session) is a 200 so callers only have one
// shape to check.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] uses [http.ServeMux]
// internally and filters on method. [Middleware] wraps handlers in reverse order (last added executes first).
//
// # Challenge Answers
//
// [InputHandler] is the only way answers reach a sign-in blocked on a challenge. It implements [Handler] so it
// registers its own route.
package server
