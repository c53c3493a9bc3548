package tracking

import "time"

// Status represents the lifecycle of a tracked notebook file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// NoteFile is one tracked notebook file.
type NoteFile struct {
	ID           int64
	Path         string
	ContentHash  string
	ModifiedAt   time.Time
	Status       Status
	LastRunID    string
	ErrorMessage string
	PagesUpdated int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PageResult is the recognition outcome for one page of one run.
type PageResult struct {
	PageIndex             int
	LineCount             int
	Text                  string
	DerivedFromBackground bool
}

// Summary aggregates tracked file counts per lifecycle state.
type Summary struct {
	Total      int
	Processing int
	Completed  int
	Failed     int
	Skipped    int
}
