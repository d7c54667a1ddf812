// package formatter renders an audiobook library as CSV, Markdown or plain text and downloads cover images
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/abx/internal/models"
	"github.com/desertthunder/abx/internal/shared"
)

// Format is an export format name accepted on the command line.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common alias ("md", "txt").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidRequest, name)
	}
}

// Export renders lib in format.
func Export(lib *models.Library, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(lib)
	case FormatMarkdown:
		return ExportToMarkdown(lib, nil)
	case FormatJSON:
		return shared.MarshalJSON(lib, true)
	default:
		return ExportToText(lib)
	}
}

// ExportToCSV converts a library to CSV with columns: ASIN, Title, Progress, Length (min), Left (sec), Image URL.
//
// Unstarted titles leave Progress and Left empty.
func ExportToCSV(lib *models.Library) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ASIN", "Title", "Progress", "Length (min)", "Left (sec)", "Image URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, book := range lib.Books {
		progress, left := "", ""
		if book.ProgressPercent != nil {
			progress = strconv.FormatFloat(*book.ProgressPercent, 'f', -1, 64)
		}
		if book.LengthLeftSec != nil {
			left = strconv.Itoa(*book.LengthLeftSec)
		}

		record := []string{
			book.ASIN,
			book.Title,
			progress,
			strconv.Itoa(book.TotalLengthMin),
			left,
			book.ImageURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a library to Markdown. covers maps ASINs to local image files to embed.
func ExportToMarkdown(lib *models.Library, covers map[string]string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Library\n\n")
	buf.WriteString(fmt.Sprintf("**Books**: %d\n", len(lib.Books)))
	if !lib.FetchedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("**Fetched**: %s\n", lib.FetchedAt.Format(time.RFC1123)))
	}
	buf.WriteString("\n## Books\n\n")

	for i, book := range lib.Books {
		buf.WriteString(fmt.Sprintf("%d. %s [%s]\n", i+1, book.Title, status(book)))
		if cover := covers[book.ASIN]; cover != "" {
			buf.WriteString(fmt.Sprintf("   ![%s](%s)\n", book.ASIN, cover))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a library to plain text format
func ExportToText(lib *models.Library) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Books: %d\n\n", len(lib.Books)))
	for i, book := range lib.Books {
		buf.WriteString(fmt.Sprintf("%d. %s (%s) - %s\n", i+1, book.Title, book.ASIN, status(book)))
	}

	return buf.Bytes(), nil
}

// status renders "not started", "finished" or "42.5%, 3h 21m left".
func status(b models.Book) string {
	switch {
	case b.ProgressPercent == nil || *b.ProgressPercent == 0:
		return fmt.Sprintf("not started, %s", FormatDuration(b.Remaining()))
	case *b.ProgressPercent >= 100:
		return "finished"
	default:
		return fmt.Sprintf("%s%%, %s left", strconv.FormatFloat(*b.ProgressPercent, 'f', 1, 64), FormatDuration(b.Remaining()))
	}
}

// FormatDuration renders d as "3h 21m", or "45m" under an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// CoverResult reports the covers saved by [WriteCovers], keyed by ASIN, and the ones that failed.
type CoverResult struct {
	Files  map[string]string
	Failed map[string]error
}

// WriteCovers downloads every book's cover into dir as {asin}.jpg. Individual failures are collected, not fatal.
func WriteCovers(ctx context.Context, client *http.Client, lib *models.Library, dir string) (*CoverResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &CoverResult{Files: map[string]string{}, Failed: map[string]error{}}
	for _, book := range lib.Books {
		if book.ImageURL == "" {
			continue
		}

		data, err := DownloadImage(ctx, client, book.ImageURL)
		if err != nil {
			result.Failed[book.ASIN] = err
			continue
		}

		path := filepath.Join(dir, book.ASIN+".jpg")
		if err := os.WriteFile(path, data, 0644); err != nil {
			result.Failed[book.ASIN] = fmt.Errorf("failed to save cover: %w", err)
			continue
		}
		result.Files[book.ASIN] = path
	}

	return result, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
	Covers    *CoverResult
}

// WriteMarkdownExport writes {dir}/README.md and, when withCovers is set, {dir}/covers/{asin}.jpg.
func WriteMarkdownExport(ctx context.Context, client *http.Client, lib *models.Library, dir string, withCovers bool) (*MarkdownExportResult, error) {
	if dir == "" {
		dir = "library"
	}

	var covers *CoverResult
	if withCovers {
		cr, err := WriteCovers(ctx, client, lib, filepath.Join(dir, "covers"))
		if err != nil {
			return nil, err
		}
		covers = cr
	}

	return WriteMarkdownFiles(lib, dir, covers)
}

// WriteMarkdownFiles writes {dir}/README.md, linking the covers already saved under {dir}/covers.
func WriteMarkdownFiles(lib *models.Library, dir string, covers *CoverResult) (*MarkdownExportResult, error) {
	if dir == "" {
		dir = "library"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: dir, Files: []string{}, Covers: covers}

	links := map[string]string{}
	if covers != nil {
		for asin, path := range covers.Files {
			links[asin] = filepath.Join("covers", filepath.Base(path))
			result.Files = append(result.Files, path)
		}
	}

	mdData, err := ExportToMarkdown(lib, links)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(dir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteExport renders lib in format to path. Defaults to library.{ext} in the working directory.
func WriteExport(lib *models.Library, format Format, path string) (string, error) {
	if path == "" {
		path = "library." + extension(format)
	}

	data, err := Export(lib, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}

func extension(f Format) string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	default:
		return "txt"
	}
}
