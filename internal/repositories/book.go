package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/abx/internal/models"
)

const bookColumns = "asin, title, image_url, progress_percent, total_length_min, length_left_sec, created_at, updated_at"

// BookRepository implements models.Repository[*models.PersistedBook] for the library cache.
type BookRepository struct {
	db *sql.DB
}

// NewBookRepository creates a new BookRepository with the given database connection
func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create inserts a new book; it fails if the ASIN is already cached.
func (r *BookRepository) Create(book *models.PersistedBook) error {
	if err := book.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	b := book.Book()
	query := `INSERT INTO books (` + bookColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		b.ASIN,
		b.Title,
		b.ImageURL,
		nullFloat(b.ProgressPercent),
		b.TotalLengthMin,
		nullInt(b.LengthLeftSec),
		book.CreatedAt(),
		book.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}

	return nil
}

// Get retrieves a book by ASIN
func (r *BookRepository) Get(asin string) (*models.PersistedBook, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE asin = ?`
	return scanBook(r.db.QueryRow(query, asin))
}

// Update overwrites a cached book's fields and bumps updated_at.
func (r *BookRepository) Update(book *models.PersistedBook) error {
	if err := book.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	book.SetUpdatedAt(now)
	b := book.Book()

	query := `
		UPDATE books
		SET title = ?, image_url = ?, progress_percent = ?, total_length_min = ?, length_left_sec = ?, updated_at = ?
		WHERE asin = ?
	`

	result, err := r.db.Exec(query,
		b.Title,
		b.ImageURL,
		nullFloat(b.ProgressPercent),
		b.TotalLengthMin,
		nullInt(b.LengthLeftSec),
		now,
		b.ASIN,
	)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}

	return requireAffected(result, "book", b.ASIN)
}

// Delete removes a book from the cache
func (r *BookRepository) Delete(asin string) error {
	result, err := r.db.Exec("DELETE FROM books WHERE asin = ?", asin)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return requireAffected(result, "book", asin)
}

// Upsert inserts b or refreshes the cached copy, keeping the original created_at.
func (r *BookRepository) Upsert(b models.Book) error {
	return upsertBook(r.db, b, time.Now())
}

func upsertBook(db execer, b models.Book, now time.Time) error {
	if err := models.NewPersistedBook(b).Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO books (` + bookColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asin) DO UPDATE SET
			title = excluded.title,
			image_url = excluded.image_url,
			progress_percent = excluded.progress_percent,
			total_length_min = excluded.total_length_min,
			length_left_sec = excluded.length_left_sec,
			updated_at = excluded.updated_at
	`

	_, err := db.Exec(query,
		b.ASIN,
		b.Title,
		b.ImageURL,
		nullFloat(b.ProgressPercent),
		b.TotalLengthMin,
		nullInt(b.LengthLeftSec),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert book %s: %w", b.ASIN, err)
	}
	return nil
}

// List retrieves cached books ordered by title.
//
// Supported criteria: "title" (substring match) and "in_progress" (bool; true keeps started, unfinished books).
func (r *BookRepository) List(criteria map[string]any) ([]*models.PersistedBook, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE 1 = 1`
	args := []any{}

	if title, ok := criteria["title"].(string); ok && title != "" {
		query += " AND title LIKE ?"
		args = append(args, "%"+title+"%")
	}

	if inProgress, ok := criteria["in_progress"].(bool); ok && inProgress {
		query += " AND progress_percent > 0 AND progress_percent < 100"
	}

	query += " ORDER BY title COLLATE NOCASE ASC, asin ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []*models.PersistedBook
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return books, nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*models.PersistedBook, error) {
	var (
		b          models.Book
		progress   sql.NullFloat64
		lengthLeft sql.NullInt64
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := row.Scan(&b.ASIN, &b.Title, &b.ImageURL, &progress, &b.TotalLengthMin, &lengthLeft, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan book: %w", err)
	}

	if progress.Valid {
		b.ProgressPercent = &progress.Float64
	}
	if lengthLeft.Valid {
		left := int(lengthLeft.Int64)
		b.LengthLeftSec = &left
	}

	book := models.NewPersistedBook(b)
	book.SetCreatedAt(createdAt)
	book.SetUpdatedAt(updatedAt)
	return book, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
