package tasks

import (
	"fmt"

	"github.com/desertthunder/abx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	QueueCovers Phase = iota
	DownloadCover
)

func (p Phase) String() string {
	switch p {
	case QueueCovers:
		return "queue_covers"
	case DownloadCover:
		return "download_cover"
	default:
		return ""
	}
}

// sendProgress sends update without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func queueCoversUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   QueueCovers,
		Total:   total,
		Message: fmt.Sprintf("Downloading %d covers...", total),
	}
}

func coverSavedUpdate(step, total int, book models.Book) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DownloadCover,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, book.Title),
	}
}

func coverFailedUpdate(step, total int, book models.Book, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DownloadCover,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, book.Title, err),
	}
}
