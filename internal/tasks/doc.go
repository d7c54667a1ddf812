// Package tasks runs the long library operations with real-time progress reporting.
//
// # Cover Downloads
//
// [DownloadCovers] fetches every book's cover with a pool of workers sharing one rate limiter.
// A failed download is recorded against its ASIN and does not stop the others.
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on a caller-supplied channel. Sends never block:
// an update is dropped when the channel is full, and a nil channel disables reporting.
package tasks
