package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sessionscribe/sessionscribe/internal/async"
	"github.com/sessionscribe/sessionscribe/internal/audio"
	"github.com/sessionscribe/sessionscribe/internal/bot"
	"github.com/sessionscribe/sessionscribe/internal/config"
	"github.com/sessionscribe/sessionscribe/internal/diagnostics"
	"github.com/sessionscribe/sessionscribe/internal/ledger"
	"github.com/sessionscribe/sessionscribe/internal/llm"
	"github.com/sessionscribe/sessionscribe/internal/llm/anthropic"
	"github.com/sessionscribe/sessionscribe/internal/llm/openai"
	"github.com/sessionscribe/sessionscribe/internal/logging"
	"github.com/sessionscribe/sessionscribe/internal/mail"
	"github.com/sessionscribe/sessionscribe/internal/pipeline"
	"github.com/sessionscribe/sessionscribe/internal/review"
	"github.com/sessionscribe/sessionscribe/internal/staging"
	"github.com/sessionscribe/sessionscribe/internal/stt"
)

// drainTimeout bounds how long shutdown waits for in-flight jobs to finish
// their remaining stages.
const drainTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := staging.Open(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to open staging store", "error", err, "addr", cfg.Redis.Addr)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	// Refuse to start in a broken environment; a missing ffmpeg would
	// otherwise only surface on the first upload.
	if diagnostics.Failed(diagnostics.NewChecker(logger).Run(ctx, cfg, rdb)) {
		logger.Error("startup diagnostics failed")
		os.Exit(1)
	}

	led, err := ledger.Open(ctx, cfg.Ledger.Path, logger)
	if err != nil {
		logger.Error("failed to open job ledger", "error", err, "path", cfg.Ledger.Path)
		os.Exit(1)
	}
	defer func() { _ = led.Close() }()

	store := staging.NewRedisStore(rdb, logger)
	transcoder := audio.NewTranscoder(audio.Config{
		FFmpeg:  cfg.Audio.FFmpegPath,
		FFprobe: cfg.Audio.FFprobePath,
		Bitrate: cfg.Audio.Bitrate,
	}, logger)
	transcriber := stt.NewClient(stt.Config{
		BaseURL:  cfg.STT.BaseURL,
		APIKey:   cfg.STT.APIKey,
		Model:    cfg.STT.Model,
		Language: cfg.STT.Language,
		Timeout:  cfg.STT.Timeout,
	}, logger)
	generator := newGenerator(cfg.LLM, logger)

	mailer, err := mail.NewSMTPSender(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}, logger)
	if err != nil {
		logger.Error("failed to build mail sender", "error", err)
		os.Exit(1)
	}

	api, err := bot.Connect(cfg.Telegram, logger)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	// The sender is the only piece the pipeline and review machine need from
	// the bot, so it is built first and the update-consuming gateway last.
	sender := bot.NewSender(api, logger)

	pipe := pipeline.New(pipeline.Config{
		WorkDir:         cfg.Audio.ResolveWorkDir(),
		StagingTTL:      cfg.Redis.StagingTTL,
		DownloadTimeout: cfg.Telegram.DownloadTimeout,
	}, sender, transcoder, transcriber, generator, store, led, logger)

	queue := async.NewTaskQueue(pipe, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithStageTimeout(cfg.Queue.StageTimeout),
	)

	machine := review.New(review.Config{
		StagingTTL: cfg.Redis.StagingTTL,
		Recipients: cfg.Mail.Recipients(),
	}, sender, store, mailer, logger)

	gateway := bot.NewGateway(sender, cfg.Telegram, queue, machine, led)

	// gRPC health endpoint
	lis, err := net.Listen("tcp", cfg.Health.Addr)
	if err != nil {
		logger.Error("failed to listen on health address", "addr", cfg.Health.Addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	// Empty service name means overall server health.
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("scribed starting", "health_addr", cfg.Health.Addr, "workers", cfg.Queue.Workers)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("health server error", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		if err := gateway.Run(ctx); err != nil {
			slog.Error("bot gateway error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down, draining in-flight jobs")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	queue.Shutdown(drainCtx)
	cancel()
	grpcServer.GracefulStop()
}

func newGenerator(cfg config.LLMConfig, logger *slog.Logger) llm.NoteGenerator {
	switch cfg.Provider {
	case config.LLMProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			Timeout:   cfg.Anthropic.Timeout,
		}, logger)
	default:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.OpenAI.Timeout,
		}, logger)
	}
}
