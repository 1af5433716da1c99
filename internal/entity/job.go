package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sessionscribe/sessionscribe/constants"
)

// Job is one end-to-end processing attempt for a single uploaded audio file.
// It lives only in memory while its stages run; local files are removed when
// the job ends, whatever the outcome.
type Job struct {
	ID                  uuid.UUID
	ChatID              int64
	RemoteRef           string // transport file identifier, resolved to a URL at fetch time
	FileName            string // original upload name, may be empty for voice notes
	LocalRawPath        string
	LocalNormalizedPath string
	Transcript          string
	Note                string
}

// JobRecord is one row in the job ledger. The ledger is an audit log; the
// pipeline never reads it back.
type JobRecord struct {
	JobID      uuid.UUID           `json:"job_id"`
	ChatID     int64               `json:"chat_id"`
	Status     constants.JobStatus `json:"status"`
	Stage      constants.Stage     `json:"stage"`
	Error      *string             `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	DurationMS *int64              `json:"duration_ms,omitempty"`
}

// EditField names the staged artifact field a pending edit targets.
type EditField string

const (
	EditSubject EditField = "subject"
	EditBody    EditField = "body"
)

// PendingEdit binds one chat's next free-text message to a staged report
// field. Single-shot: consumed by the first text message, overwritten by a
// newer edit request.
type PendingEdit struct {
	ChatID    int64
	ReportID  string
	Field     EditField
	CreatedAt time.Time
}
