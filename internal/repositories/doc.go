// Package repositories implements SQLite persistence for the audiobook library cache.
//
// [BookRepository] implements [models.Repository] for [models.PersistedBook], keyed by ASIN, and adds
// [BookRepository.Upsert] so a fresh library fetch can overwrite cached progress in place.
//
// [LibraryCache] stores a whole fetch in one transaction and serves the cached copy back for offline use.
package repositories
