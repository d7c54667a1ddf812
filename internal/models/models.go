package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Book is a simplified audiobook library entry.
type Book struct {
	ASIN            string   `json:"asin"`
	Title           string   `json:"title"`
	ImageURL        string   `json:"image_url"`
	ProgressPercent *float64 `json:"progress_percent"`
	TotalLengthMin  int      `json:"total_length_min"`
	LengthLeftSec   *int     `json:"length_left_sec"`
}

// Progress returns the percent complete, or 0 when the title was never started.
func (b Book) Progress() float64 {
	if b.ProgressPercent == nil {
		return 0
	}
	return *b.ProgressPercent
}

// Remaining returns the listening time left. Unstarted titles report their full length.
func (b Book) Remaining() time.Duration {
	if b.LengthLeftSec == nil {
		return time.Duration(b.TotalLengthMin) * time.Minute
	}
	return time.Duration(*b.LengthLeftSec) * time.Second
}

// Library is the result of one library fetch.
type Library struct {
	Books     []Book    `json:"books"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PersistedBook is a [Book] stored in the library cache.
type PersistedBook struct {
	book      Book
	createdAt time.Time
	updatedAt time.Time
}

// NewPersistedBook wraps b with fresh timestamps.
func NewPersistedBook(b Book) *PersistedBook {
	now := time.Now()
	return &PersistedBook{book: b, createdAt: now, updatedAt: now}
}

// ID returns the book's ASIN.
func (p *PersistedBook) ID() string           { return p.book.ASIN }
func (p *PersistedBook) Book() Book           { return p.book }
func (p *PersistedBook) CreatedAt() time.Time { return p.createdAt }
func (p *PersistedBook) UpdatedAt() time.Time { return p.updatedAt }

func (p *PersistedBook) SetBook(b Book)           { p.book = b }
func (p *PersistedBook) SetCreatedAt(t time.Time) { p.createdAt = t }
func (p *PersistedBook) SetUpdatedAt(t time.Time) { p.updatedAt = t }

// Validate checks that the book has an ASIN and title and that its progress is a percentage.
func (p *PersistedBook) Validate() error {
	if strings.TrimSpace(p.book.ASIN) == "" {
		return errors.New("asin is required")
	}
	if strings.TrimSpace(p.book.Title) == "" {
		return fmt.Errorf("title is required for %s", p.book.ASIN)
	}
	if pct := p.book.ProgressPercent; pct != nil && (*pct < 0 || *pct > 100) {
		return fmt.Errorf("progress %.1f%% out of range for %s", *pct, p.book.ASIN)
	}
	if p.book.TotalLengthMin < 0 {
		return fmt.Errorf("negative length for %s", p.book.ASIN)
	}
	return nil
}
