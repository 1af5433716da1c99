package constants

// JobStatus is the canonical status for rows in the job ledger.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued  JobStatus = "QUEUED"  // accepted, waiting for a worker
	JobStatusRunning JobStatus = "RUNNING" // at least one stage started
	JobStatusStaged  JobStatus = "STAGED"  // report staged and offered for review
	JobStatusFailed  JobStatus = "FAILED"  // terminal failure
)

// Stage names a pipeline stage. Ledger rows record the last stage reached.
type Stage string

const (
	StageFetch      Stage = "FETCH"
	StageTranscode  Stage = "TRANSCODE"
	StageTranscribe Stage = "TRANSCRIBE"
	StageGenerate   Stage = "GENERATE"
	StageDeliver    Stage = "DELIVER"
)
