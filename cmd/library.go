package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/abx/internal/formatter"
	"github.com/desertthunder/abx/internal/models"
	"github.com/desertthunder/abx/internal/repositories"
	"github.com/desertthunder/abx/internal/shared"
	"github.com/desertthunder/abx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Library fetches the library through the shim, caches it, and prints or exports it.
//
// With --cached the shim is not contacted.
func (r *Runner) Library(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	output := cmd.String("output")
	covers := cmd.Bool("covers")

	db, err := shared.OpenLibraryDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open library cache: %w", err)
	}
	defer db.Close()
	cache := repositories.NewLibraryCache(db)

	var lib *models.Library
	if cmd.Bool("cached") {
		if lib, err = cache.Load(); err != nil {
			return fmt.Errorf("failed to read library cache: %w", err)
		}
		if len(lib.Books) == 0 {
			r.logger.Warn("library cache is empty, run 'abx library' without --cached first")
		}
	} else {
		if lib, err = r.shim.Library(ctx); err != nil {
			return err
		}
		if err := cache.Store(lib); err != nil {
			r.logger.Warn("failed to cache library", "error", err)
		} else {
			r.logger.Info("library cached", "books", len(lib.Books), "path", r.config.Database.Path)
		}
	}

	switch {
	case format == formatter.FormatMarkdown && (output != "" || covers):
		result, err := r.exportMarkdown(ctx, lib, output, covers)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d books to %s\n", len(lib.Books), result.Directory)
	case output != "":
		path, err := formatter.WriteExport(lib, format, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d books to %s\n", len(lib.Books), path)
	default:
		data, err := formatter.Export(lib, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if format == formatter.FormatJSON {
			return r.writePlain("\n")
		}
		return nil
	}
}

// exportMarkdown writes the Markdown export, downloading covers concurrently when asked.
func (r *Runner) exportMarkdown(ctx context.Context, lib *models.Library, dir string, covers bool) (*formatter.MarkdownExportResult, error) {
	if dir == "" {
		dir = "library"
	}
	if !covers {
		return formatter.WriteMarkdownFiles(lib, dir, nil)
	}

	prog := make(chan tasks.ProgressUpdate, len(lib.Books)+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range prog {
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	cr, err := tasks.DownloadCovers(ctx, prog, lib, filepath.Join(dir, "covers"), tasks.CoverOpts{
		RateLimit:  r.config.Retailer.RateLimit,
		HTTPClient: r.httpClient,
	})
	close(prog)
	<-done
	if err != nil {
		return nil, err
	}

	for asin, err := range cr.Failed {
		r.logger.Warn("cover download failed", "asin", asin, "error", err)
	}
	return formatter.WriteMarkdownFiles(lib, dir, cr)
}
