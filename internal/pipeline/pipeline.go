// Package pipeline orchestrates one audio job end to end: fetch, transcode,
// transcribe, generate, deliver & stage. Each stage is one Execute call; the
// continuation comes back as the next task so the queue can interleave jobs.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sessionscribe/sessionscribe/constants"
	"github.com/sessionscribe/sessionscribe/internal/async"
	"github.com/sessionscribe/sessionscribe/internal/common"
	"github.com/sessionscribe/sessionscribe/internal/entity"
	"github.com/sessionscribe/sessionscribe/internal/ledger"
	"github.com/sessionscribe/sessionscribe/internal/llm"
	"github.com/sessionscribe/sessionscribe/internal/staging"
	"github.com/sessionscribe/sessionscribe/internal/stt"
)

// Gateway is the slice of the chat transport the pipeline needs: resolving an
// upload reference to a fetchable URL and messaging the user.
type Gateway interface {
	FileURL(ctx context.Context, remoteRef string) (string, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendChunked(ctx context.Context, chatID int64, text string) error
	SendReviewControls(ctx context.Context, chatID int64, reportID, subject string) error
}

// Transcoder normalizes a raw upload into the speech encoding the
// transcription API expects.
type Transcoder interface {
	Transcode(ctx context.Context, inPath, outPath string) error
}

type Config struct {
	WorkDir         string        // scratch dir for per-job audio files
	StagingTTL      time.Duration // review window for staged reports
	DownloadTimeout time.Duration
}

// Pipeline implements async.Executor. Every job ends with exactly one terminal
// chat message: the review control message on success, a stage-specific
// failure text otherwise. Local files are removed on every exit path.
type Pipeline struct {
	gateway    Gateway
	transcoder Transcoder
	stt        stt.Transcriber
	generator  llm.NoteGenerator
	store      staging.Store
	ledger     ledger.Ledger
	log        *slog.Logger

	httpClient *http.Client
	workDir    string
	ttl        time.Duration
}

func New(cfg Config, gw Gateway, tc Transcoder, tr stt.Transcriber, gen llm.NoteGenerator, store staging.Store, led ledger.Ledger, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "sessionscribe")
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = 6 * time.Hour
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = time.Minute
	}
	return &Pipeline{
		gateway:    gw,
		transcoder: tc,
		stt:        tr,
		generator:  gen,
		store:      store,
		ledger:     led,
		log:        logger,
		httpClient: &http.Client{Timeout: cfg.DownloadTimeout},
		workDir:    cfg.WorkDir,
		ttl:        cfg.StagingTTL,
	}
}

// Execute runs one stage. On success it returns the continuation task (nil
// after the final stage). On failure it has already messaged the user, closed
// the ledger row, and removed local files before returning the error.
func (p *Pipeline) Execute(ctx context.Context, task async.Task) (next *async.Task, err error) {
	job := task.Job

	defer func() {
		if r := recover(); r != nil {
			perr := common.Unexpected("stage panicked", fmt.Errorf("stage %s: %v", task.Stage, r))
			p.log.Error("pipeline.stage.panic", "job_id", job.ID, "stage", task.Stage, "panic", r)
			p.fail(ctx, job, task.Stage, perr)
			next, err = nil, perr
		}
	}()

	if lerr := p.ledger.MarkStage(ctx, job.ID, task.Stage); lerr != nil {
		p.log.Warn("pipeline.ledger.mark_failed", "job_id", job.ID, "stage", task.Stage, "err", lerr)
	}

	switch task.Stage {
	case constants.StageFetch:
		err = p.fetch(ctx, job)
	case constants.StageTranscode:
		err = p.transcode(ctx, job)
	case constants.StageTranscribe:
		err = p.transcribe(ctx, job)
	case constants.StageGenerate:
		err = p.generate(ctx, job)
	case constants.StageDeliver:
		err = p.deliver(ctx, job)
	default:
		err = common.Unexpected(fmt.Sprintf("unknown stage %q", task.Stage), nil)
	}

	if err != nil {
		p.fail(ctx, job, task.Stage, err)
		return nil, err
	}

	if n, ok := nextStage(task.Stage); ok {
		return &async.Task{Job: job, Stage: n, SubmittedAt: time.Now()}, nil
	}

	// Final stage done: the report is staged and offered for review.
	if lerr := p.ledger.FinishStaged(ctx, job.ID); lerr != nil {
		p.log.Warn("pipeline.ledger.finish_failed", "job_id", job.ID, "err", lerr)
	}
	p.cleanup(job)
	return nil, nil
}

func nextStage(s constants.Stage) (constants.Stage, bool) {
	switch s {
	case constants.StageFetch:
		return constants.StageTranscode, true
	case constants.StageTranscode:
		return constants.StageTranscribe, true
	case constants.StageTranscribe:
		return constants.StageGenerate, true
	case constants.StageGenerate:
		return constants.StageDeliver, true
	default:
		return "", false
	}
}

func (p *Pipeline) fetch(ctx context.Context, job *entity.Job) error {
	url, err := p.gateway.FileURL(ctx, job.RemoteRef)
	if err != nil {
		return common.TransportFailure("resolve file "+job.RemoteRef, err)
	}

	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return common.TransportFailure("create work dir", err)
	}
	job.LocalRawPath = filepath.Join(p.workDir, job.ID.String()+"-src"+uploadExt(url, job.FileName))

	n, err := p.download(ctx, url, job.LocalRawPath)
	if err != nil {
		return common.TransportFailure("download audio", err)
	}
	p.log.Info("pipeline.fetch.ok", "job_id", job.ID, "bytes", n, "path", job.LocalRawPath)
	return nil
}

// uploadExt picks a filename extension for the raw download, preferring the
// transport URL over the original upload name. Voice notes carry no name.
func uploadExt(url, fileName string) string {
	if ext := path.Ext(url); ext != "" && len(ext) <= 8 {
		return strings.ToLower(ext)
	}
	if ext := path.Ext(fileName); ext != "" {
		return strings.ToLower(ext)
	}
	return ".oga"
}

func (p *Pipeline) download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("download: status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", dest, err)
	}
	return n, nil
}

func (p *Pipeline) transcode(ctx context.Context, job *entity.Job) error {
	job.LocalNormalizedPath = filepath.Join(p.workDir, job.ID.String()+".ogg")
	return p.transcoder.Transcode(ctx, job.LocalRawPath, job.LocalNormalizedPath)
}

func (p *Pipeline) transcribe(ctx context.Context, job *entity.Job) error {
	text, err := p.stt.Transcribe(ctx, job.LocalNormalizedPath)
	if err != nil {
		return err
	}
	job.Transcript = text
	p.log.Info("pipeline.transcribe.ok", "job_id", job.ID, "chars", len(text))
	return nil
}

func (p *Pipeline) generate(ctx context.Context, job *entity.Job) error {
	note, err := p.generator.GenerateNote(ctx, job.Transcript)
	if err != nil {
		return err
	}
	job.Note = note
	p.log.Info("pipeline.generate.ok", "job_id", job.ID, "chars", len(note))
	return nil
}

// deliver sends the note, stages it for review, and posts the control message.
// A staged artifact must not outlive a failed control send, so staged keys
// from this attempt are deleted before the stage reports failure.
func (p *Pipeline) deliver(ctx context.Context, job *entity.Job) error {
	if err := p.gateway.SendChunked(ctx, job.ChatID, job.Note); err != nil {
		return common.TransportFailure("send note", err)
	}

	reportID := uuid.NewString()
	subject := staging.DefaultSubject(time.Now())

	if err := p.store.Put(ctx, staging.SubjectKey(reportID), subject, p.ttl); err != nil {
		return common.Unexpected("stage subject", err)
	}
	if err := p.store.Put(ctx, staging.MessageKey(reportID), job.Note, p.ttl); err != nil {
		p.unstage(ctx, reportID)
		return common.Unexpected("stage body", err)
	}

	if err := p.gateway.SendReviewControls(ctx, job.ChatID, reportID, subject); err != nil {
		p.unstage(ctx, reportID)
		return common.TransportFailure("send review controls", err)
	}

	p.log.Info("pipeline.job.staged", "job_id", job.ID, "report_id", reportID, "chat_id", job.ChatID)
	return nil
}

func (p *Pipeline) unstage(ctx context.Context, reportID string) {
	if err := p.store.Delete(ctx, staging.SubjectKey(reportID), staging.MessageKey(reportID)); err != nil {
		p.log.Warn("pipeline.unstage.failed", "report_id", reportID, "err", err)
	}
}

// fail runs the terminal path: one user message, ledger close, file cleanup.
func (p *Pipeline) fail(ctx context.Context, job *entity.Job, stage constants.Stage, cause error) {
	text := failureText(stage, cause)
	if err := p.gateway.SendText(ctx, job.ChatID, text); err != nil {
		p.log.Error("pipeline.notify.failed", "job_id", job.ID, "chat_id", job.ChatID, "err", err)
	}
	if err := p.ledger.FinishFailure(ctx, job.ID, stage, cause.Error()); err != nil {
		p.log.Warn("pipeline.ledger.finish_failed", "job_id", job.ID, "err", err)
	}
	p.cleanup(job)
	p.log.Error("pipeline.job.failed", "job_id", job.ID, "stage", stage, "code", common.CodeOf(cause), "err", cause)
}

// failureText maps a failed stage to its user message. Unexpected errors get
// the generic apology regardless of stage.
func failureText(stage constants.Stage, cause error) string {
	if common.IsCode(cause, common.CodeUnexpected) {
		return common.MsgUnexpected
	}
	switch stage {
	case constants.StageFetch:
		return common.MsgFetchFailed
	case constants.StageTranscode:
		return common.MsgTranscodeFailed
	case constants.StageTranscribe:
		return common.MsgTranscribeFailed
	case constants.StageGenerate:
		return common.MsgGenerateFailed
	default:
		return common.MsgUnexpected
	}
}

// cleanup removes the job's local files. Missing files are a no-op; a job
// that failed before fetch has nothing to remove.
func (p *Pipeline) cleanup(job *entity.Job) {
	for _, f := range []string{job.LocalRawPath, job.LocalNormalizedPath} {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			p.log.Warn("pipeline.cleanup.failed", "job_id", job.ID, "path", f, "err", err)
		}
	}
}
