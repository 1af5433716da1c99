// Package ledger keeps an audit row per processing job in embedded SQLite.
// The pipeline writes it at stage boundaries and never reads it back; a
// ledger failure must never fail a job.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sessionscribe/sessionscribe/constants"
	"github.com/sessionscribe/sessionscribe/internal/entity"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id      TEXT PRIMARY KEY,
	chat_id     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	error       TEXT,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	duration_ms INTEGER
);
`

type Ledger interface {
	Start(ctx context.Context, jobID uuid.UUID, chatID int64) error
	MarkStage(ctx context.Context, jobID uuid.UUID, stage constants.Stage) error
	FinishStaged(ctx context.Context, jobID uuid.UUID) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, stage constants.Stage, message string) error
	List(ctx context.Context) ([]entity.JobRecord, error)
	Close() error
}

type sqliteLedger struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the ledger database and ensures the schema exists.
func Open(ctx context.Context, path string, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// Single writer; SQLite serializes writes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}

	logger.Info("ledger opened", "path", path)
	return &sqliteLedger{db: db, log: logger}, nil
}

func (l *sqliteLedger) Start(ctx context.Context, jobID uuid.UUID, chatID int64) error {
	query, args, err := sq.Insert("jobs").
		Columns("job_id", "chat_id", "status", "stage", "started_at").
		Values(jobID.String(), chatID, string(constants.JobStatusQueued), string(constants.StageFetch), time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		l.log.Error("ledger start failed", "job_id", jobID, "err", err)
		return err
	}
	l.log.Info("ledger job started", "job_id", jobID, "chat_id", chatID)
	return nil
}

func (l *sqliteLedger) MarkStage(ctx context.Context, jobID uuid.UUID, stage constants.Stage) error {
	query, args, err := sq.Update("jobs").
		Set("status", string(constants.JobStatusRunning)).
		Set("stage", string(stage)).
		Where(sq.Eq{"job_id": jobID.String()}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		l.log.Error("ledger mark stage failed", "job_id", jobID, "stage", stage, "err", err)
		return err
	}
	return nil
}

func (l *sqliteLedger) FinishStaged(ctx context.Context, jobID uuid.UUID) error {
	return l.finish(ctx, jobID, constants.JobStatusStaged, nil, nil)
}

func (l *sqliteLedger) FinishFailure(ctx context.Context, jobID uuid.UUID, stage constants.Stage, message string) error {
	return l.finish(ctx, jobID, constants.JobStatusFailed, &stage, &message)
}

func (l *sqliteLedger) finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, stage *constants.Stage, message *string) error {
	var startedAt time.Time
	query, args, err := sq.Select("started_at").
		From("jobs").
		Where(sq.Eq{"job_id": jobID.String()}).
		ToSql()
	if err != nil {
		return err
	}
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&startedAt); err != nil {
		l.log.Error("ledger finish lookup failed", "job_id", jobID, "err", err)
		return err
	}

	now := time.Now().UTC()
	update := sq.Update("jobs").
		Set("status", string(status)).
		Set("finished_at", now).
		Set("duration_ms", now.Sub(startedAt).Milliseconds()).
		Where(sq.Eq{"job_id": jobID.String()})
	if stage != nil {
		update = update.Set("stage", string(*stage))
	}
	if message != nil {
		update = update.Set("error", *message)
	}

	query, args, err = update.ToSql()
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		l.log.Error("ledger finish failed", "job_id", jobID, "status", status, "err", err)
		return err
	}

	if status == constants.JobStatusFailed {
		l.log.Warn("ledger job finished (FAILED)", "job_id", jobID, "error", deref(message))
	} else {
		l.log.Info("ledger job finished", "job_id", jobID, "status", status)
	}
	return nil
}

func (l *sqliteLedger) List(ctx context.Context) ([]entity.JobRecord, error) {
	query, args, err := sq.Select("job_id", "chat_id", "status", "stage", "error", "started_at", "finished_at", "duration_ms").
		From("jobs").
		OrderBy("started_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []entity.JobRecord
	for rows.Next() {
		var (
			rec        entity.JobRecord
			jobID      string
			errMsg     sql.NullString
			finishedAt sql.NullTime
			durationMS sql.NullInt64
		)
		if err := rows.Scan(&jobID, &rec.ChatID, &rec.Status, &rec.Stage, &errMsg, &rec.StartedAt, &finishedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		id, err := uuid.Parse(jobID)
		if err != nil {
			return nil, fmt.Errorf("ledger job_id %q: %w", jobID, err)
		}
		rec.JobID = id
		if errMsg.Valid {
			rec.Error = &errMsg.String
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			rec.FinishedAt = &t
		}
		if durationMS.Valid {
			d := durationMS.Int64
			rec.DurationMS = &d
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *sqliteLedger) Close() error {
	return l.db.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
