package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sessionscribe/sessionscribe/constants"
	"github.com/sessionscribe/sessionscribe/internal/entity"
)

type fakeLedger struct {
	recs []entity.JobRecord
}

func (f *fakeLedger) Start(context.Context, uuid.UUID, int64) error               { return nil }
func (f *fakeLedger) MarkStage(context.Context, uuid.UUID, constants.Stage) error { return nil }
func (f *fakeLedger) FinishStaged(context.Context, uuid.UUID) error               { return nil }
func (f *fakeLedger) FinishFailure(context.Context, uuid.UUID, constants.Stage, string) error {
	return nil
}
func (f *fakeLedger) List(context.Context) ([]entity.JobRecord, error) { return f.recs, nil }
func (f *fakeLedger) Close() error                                     { return nil }

func TestJobsXLSX(t *testing.T) {
	started := time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)
	finished := started.Add(42 * time.Second)
	durMS := int64(42000)
	errText := "NO_AUDIO_STREAM: no audio streams detected"

	okID := uuid.New()
	failID := uuid.New()
	led := &fakeLedger{recs: []entity.JobRecord{
		{
			JobID:      okID,
			ChatID:     77,
			Status:     constants.JobStatusStaged,
			Stage:      constants.StageDeliver,
			StartedAt:  started,
			FinishedAt: &finished,
			DurationMS: &durMS,
		},
		{
			JobID:     failID,
			ChatID:    78,
			Status:    constants.JobStatusFailed,
			Stage:     constants.StageTranscode,
			Error:     &errText,
			StartedAt: started,
		},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := NewExporter(led, logger).JobsXLSX(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, b)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, []string{
		"Job ID", "Chat ID", "Status", "Stage", "Error", "Started At", "Finished At", "Duration (ms)",
	}, rows[0])

	require.Equal(t, okID.String(), rows[1][0])
	require.Equal(t, "STAGED", rows[1][2])
	require.Equal(t, "DELIVER", rows[1][3])
	require.Equal(t, "2026-08-24 09:30:42", rows[1][6])

	require.Equal(t, failID.String(), rows[2][0])
	require.Equal(t, "FAILED", rows[2][2])
	require.Equal(t, "TRANSCODE", rows[2][3])
	require.Contains(t, rows[2][4], "NO_AUDIO_STREAM")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefghij", 5))
	require.Equal(t, "a", truncate("abc", 1))
}
