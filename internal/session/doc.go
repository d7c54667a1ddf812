// Package session owns the process-wide retailer session.
//
// A [Manager] authenticates in two stages. It first tries the encrypted credential file, refreshing the access
// token when needed. When that fails for any reason it falls back to an interactive sign-in, where every
// challenge the retailer raises is announced through a [Notifier] and the flow blocks on a [Rendezvous] until
// an answer is delivered with [Manager.Answer].
//
// Once a session exists, [Manager.Forward] and its Get, Put and Post shorthands relay requests through the
// session's authenticated client. Without a session they fail with [shared.ErrNotAuthenticated] and perform no
// network I/O.
package session
