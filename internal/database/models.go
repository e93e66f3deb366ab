package database

import (
	"errors"
	"fmt"
	"time"

	"image-tagger/internal/fingerprint"
)

// Status is the processing state of one image.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// statusNone is the state of a path that has no record yet.
const statusNone Status = ""

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	statusNone:       {StatusPending, StatusFailed},
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusPending, StatusFailed},
	StatusCompleted:  {StatusPending},
	StatusFailed:     {StatusPending},
}

// ValidTransition reports whether a record may move from one status to another.
func ValidTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(path string, from, to Status) error {
	if ValidTransition(from, to) {
		return nil
	}
	name := string(from)
	if from == statusNone {
		name = "none"
	}
	return fmt.Errorf("%s: %s -> %s: %w", path, name, to, ErrInvalidTransition)
}

// Folder is a watched directory.
type Folder struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Recursive bool      `json:"recursive"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileFingerprint is the stored identity of a discovered file.
type FileFingerprint struct {
	Path string
	fingerprint.Fingerprint
	LastSeen time.Time
}

// Record is the processing record of one image.
type Record struct {
	Path            string                  `json:"path"`
	FolderID        int64                   `json:"folderId"`
	Status          Status                  `json:"status"`
	Attempts        int                     `json:"attempts"`
	CycleAttempts   int                     `json:"cycleAttempts"`
	LastError       string                  `json:"lastError,omitempty"`
	LastAttemptedAt time.Time               `json:"lastAttemptedAt"`
	LastSucceededAt time.Time               `json:"lastSucceededAt"`
	Description     string                  `json:"description,omitempty"`
	Tags            []string                `json:"tags"`
	Processed       fingerprint.Fingerprint `json:"-"`
	MetadataWritten bool                    `json:"metadataWritten"`
	MetadataError   string                  `json:"metadataError,omitempty"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// Outcome is what a successful processing attempt persists.
type Outcome struct {
	Description     string
	Tags            []string
	Fingerprint     fingerprint.Fingerprint
	MetadataWritten bool
	MetadataError   string
}

// Description is the searchable result of a Completed record.
type Description struct {
	Path        string
	Description string
	Tags        []string
}
