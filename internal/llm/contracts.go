package llm

import "context"

// NoteGenerator is the interface the pipeline depends on. Implementations
// turn a session transcription into a structured session report.
type NoteGenerator interface {
	GenerateNote(ctx context.Context, transcript string) (string, error)
}
