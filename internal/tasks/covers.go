package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/desertthunder/abx/internal/formatter"
	"github.com/desertthunder/abx/internal/models"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers = 5
	maxWorkers     = 10
	defaultRate    = 5.0
)

// CoverOpts configures [DownloadCovers].
type CoverOpts struct {
	NumWorkers int          // Concurrent downloads (default: 5, max: 10)
	RateLimit  float64      // Downloads started per second (default: 5)
	HTTPClient *http.Client // Passed to [formatter.DownloadImage]
}

type coverJob struct {
	book models.Book
	path string
}

type coverOutcome struct {
	job coverJob
	err error
}

// DownloadCovers saves each book's cover to dir as {asin}.jpg. Books without an image URL are skipped.
//
// Cancelling ctx stops queueing. Books that were never attempted are reported as failed.
func DownloadCovers(ctx context.Context, prog chan<- ProgressUpdate, lib *models.Library, dir string, opts CoverOpts) (*formatter.CoverResult, error) {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRate
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	queue := make([]coverJob, 0, len(lib.Books))
	for _, b := range lib.Books {
		if b.ImageURL != "" {
			queue = append(queue, coverJob{book: b, path: filepath.Join(dir, b.ASIN+".jpg")})
		}
	}

	result := &formatter.CoverResult{Files: map[string]string{}, Failed: map[string]error{}}
	total := len(queue)
	sendProgress(prog, queueCoversUpdate(total))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan coverJob)
	outcomes := make(chan coverOutcome, total)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go coverWorker(ctx, &wg, opts.HTTPClient, jobs, outcomes)
	}

	go func() {
		defer close(jobs)
		skip := func(from int, err error) {
			for _, job := range queue[from:] {
				outcomes <- coverOutcome{job: job, err: err}
			}
		}
		for i, job := range queue {
			if err := limiter.Wait(ctx); err != nil {
				skip(i, err)
				return
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				skip(i, ctx.Err())
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	completed := 0
	for out := range outcomes {
		completed++
		asin := out.job.book.ASIN
		if out.err != nil {
			result.Failed[asin] = out.err
			sendProgress(prog, coverFailedUpdate(completed, total, out.job.book, out.err))
			continue
		}
		result.Files[asin] = out.job.path
		sendProgress(prog, coverSavedUpdate(completed, total, out.job.book))
	}

	return result, nil
}

// coverWorker downloads and writes the covers it receives on jobs.
func coverWorker(ctx context.Context, wg *sync.WaitGroup, client *http.Client, jobs <-chan coverJob, outcomes chan<- coverOutcome) {
	defer wg.Done()

	for job := range jobs {
		data, err := formatter.DownloadImage(ctx, client, job.book.ImageURL)
		if err == nil {
			if werr := os.WriteFile(job.path, data, 0644); werr != nil {
				err = fmt.Errorf("failed to save cover: %w", werr)
			}
		}
		outcomes <- coverOutcome{job: job, err: err}
	}
}
