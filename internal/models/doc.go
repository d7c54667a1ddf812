// Package models defines the audiobook library entities shared by the CLI, cache and exporters.
//
// [Book] is the simplified library entry built from the retailer's library response. [PersistedBook] wraps a
// Book with cache timestamps and implements [Model], so repositories can store it through [Repository].
//
// Progress and time remaining are pointers: the retailer omits listening status for titles that were never
// started, and a nil value keeps that distinct from zero.
package models
