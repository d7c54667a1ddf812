package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/abx/internal/models"
)

// LibraryCache stores library fetches for offline listing.
type LibraryCache struct {
	db   *sql.DB
	repo *BookRepository
}

// NewLibraryCache creates a cache over db, which must have migrations applied.
func NewLibraryCache(db *sql.DB) *LibraryCache {
	return &LibraryCache{db: db, repo: NewBookRepository(db)}
}

// Store upserts every book of lib in a single transaction. A book that fails validation aborts the whole write.
func (c *LibraryCache) Store(lib *models.Library) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := lib.FetchedAt
	if now.IsZero() {
		now = time.Now()
	}

	for _, b := range lib.Books {
		if err := upsertBook(tx, b, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit library: %w", err)
	}
	return nil
}

// Load returns the cached library. FetchedAt is the most recent update time, zero when the cache is empty.
func (c *LibraryCache) Load() (*models.Library, error) {
	cached, err := c.repo.List(nil)
	if err != nil {
		return nil, err
	}

	lib := &models.Library{Books: make([]models.Book, 0, len(cached))}
	for _, p := range cached {
		lib.Books = append(lib.Books, p.Book())
		if p.UpdatedAt().After(lib.FetchedAt) {
			lib.FetchedAt = p.UpdatedAt()
		}
	}
	return lib, nil
}
