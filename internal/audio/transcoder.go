package audio

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sessionscribe/sessionscribe/internal/common"
)

// Config holds the external binaries and encoding parameters.
type Config struct {
	FFmpeg  string // binary name or absolute path; if empty -> "ffmpeg"
	FFprobe string // binary name or absolute path; if empty -> "ffprobe"
	Bitrate string // target audio bitrate, default "16k"
}

// Transcoder normalizes arbitrary audio containers into a mono,
// speech-optimized Opus file suited for transcription upload.
type Transcoder struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTranscoder(cfg Config, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.FFprobe == "" {
		cfg.FFprobe = "ffprobe"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "16k"
	}
	return &Transcoder{cfg: cfg, runner: execRunner{}, logger: logger}
}

// HasAudioStream probes the input and reports whether it carries at least one
// audio stream. A probe failure is a transcode failure, not "no audio".
func (t *Transcoder) HasAudioStream(ctx context.Context, path string) (bool, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	}
	out, _, err := t.runner.Run(ctx, t.cfg.FFprobe, args...)
	if err != nil {
		return false, common.TranscodeFailure("ffprobe failed", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// Transcode converts inPath to a mono low-bitrate Opus file at outPath.
// It fails with NoAudioStream when the input has no audio stream at all.
func (t *Transcoder) Transcode(ctx context.Context, inPath, outPath string) error {
	start := time.Now()

	ok, err := t.HasAudioStream(ctx, inPath)
	if err != nil {
		return err
	}
	if !ok {
		return common.NoAudioStream("input has no audio stream")
	}

	_, stderr, err := t.runner.Run(ctx, t.cfg.FFmpeg, buildFFmpegArgs(inPath, outPath, t.cfg.Bitrate)...)
	if err != nil {
		return common.TranscodeFailure(truncate(string(stderr), 1<<10), err)
	}

	t.logger.Info("audio.transcode.ok",
		"in", inPath,
		"out", outPath,
		"bitrate", t.cfg.Bitrate,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// buildFFmpegArgs builds CLI args for mono 16kHz Opus output.
func buildFFmpegArgs(inPath, outPath, bitrate string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libopus",
		"-b:a", bitrate,
		"-application", "voip",
		outPath,
	}
}
