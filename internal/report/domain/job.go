package domain

import "time"

// Dispatch statuses returned to callers.
const (
	StatusCached = "cached"
	StatusQueued = "queued"
)

// UnknownTemplate is recorded in the audit log when a job fails before its
// staged payload could be read.
const UnknownTemplate = "<unknown>"

// StagedPayload is the render input written under the fingerprint key
// before a job is enqueued. Workers only ever read it; redeliveries read
// the same object again.
type StagedPayload struct {
	Template string         `json:"template"`
	Params   map[string]any `json:"params"`
}

// DispatchResult is what the edge returns for a submit.
type DispatchResult struct {
	Status string `json:"status"`
	ID     string `json:"id"`

	// AgeSeconds is set only when Status is StatusCached.
	AgeSeconds *int `json:"age_seconds,omitempty"`
}

// AuditRecord describes one render attempt. Every delivery of a message
// produces exactly one record, whatever its outcome.
type AuditRecord struct {
	RunID     string
	Template  string
	PayloadID string
	Duration  time.Duration
	Success   bool
	ErrorMsg  *string
	CreatedAt time.Time
}

// ArtifactKey is the object key of the rendered PDF for a fingerprint.
func ArtifactKey(id string) string {
	return id + ".pdf"
}
