// Package bot is the Telegram edge: it admits audio uploads as pipeline jobs,
// routes button presses and free text to the review flow, and owns all
// outbound chat messages.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/sessionscribe/sessionscribe/constants"
	"github.com/sessionscribe/sessionscribe/internal/async"
	"github.com/sessionscribe/sessionscribe/internal/common"
	"github.com/sessionscribe/sessionscribe/internal/config"
	"github.com/sessionscribe/sessionscribe/internal/entity"
	"github.com/sessionscribe/sessionscribe/internal/ledger"
)

// API is the part of the Telegram client the gateway uses. *tgbotapi.BotAPI
// satisfies it.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	ListenForWebhook(pattern string) tgbotapi.UpdatesChannel
}

// Enqueuer admits the first stage of a new job.
type Enqueuer interface {
	Enqueue(ctx context.Context, task async.Task) error
}

// Reviewer consumes button presses and pending free text.
type Reviewer interface {
	HandleCallback(ctx context.Context, chatID int64, data string) error
	HandleText(ctx context.Context, chatID int64, text string) (handled bool, err error)
}

// Gateway is the inbound half of the edge: it consumes updates and routes
// them. Sending goes through the embedded Sender, which is also handed to the
// pipeline and the review machine on its own.
type Gateway struct {
	*Sender
	cfg    config.TelegramConfig
	queue  Enqueuer
	review Reviewer
	ledger ledger.Ledger

	srv *http.Server // webhook mode only
}

// Connect authenticates the bot account with the Telegram API.
func Connect(cfg config.TelegramConfig, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	api.Debug = cfg.Debug
	logger.Info("telegram connected", "username", api.Self.UserName)
	return api, nil
}

func NewGateway(sender *Sender, cfg config.TelegramConfig, queue Enqueuer, review Reviewer, led ledger.Ledger) *Gateway {
	return &Gateway{Sender: sender, cfg: cfg, queue: queue, review: review, ledger: led}
}

// Run consumes updates until ctx is cancelled. Dispatch is synchronous: all
// long-running work is queued, so one update never holds the loop for long.
func (g *Gateway) Run(ctx context.Context) error {
	updates, err := g.updates()
	if err != nil {
		return err
	}
	g.log.Info("bot.listening", "mode", g.cfg.Mode)

	for {
		select {
		case <-ctx.Done():
			g.stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			g.Dispatch(ctx, update)
		}
	}
}

func (g *Gateway) updates() (tgbotapi.UpdatesChannel, error) {
	switch g.cfg.Mode {
	case config.TelegramModeWebhook:
		wh, err := tgbotapi.NewWebhook(g.cfg.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("webhook config: %w", err)
		}
		if _, err := g.api.Request(wh); err != nil {
			return nil, fmt.Errorf("register webhook: %w", err)
		}
		updates := g.api.ListenForWebhook("/")
		g.srv = &http.Server{Addr: g.cfg.WebhookAddr}
		go func() {
			if err := g.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				g.log.Error("bot.webhook.server_failed", "addr", g.cfg.WebhookAddr, "err", err)
			}
		}()
		return updates, nil

	default: // polling
		// A leftover webhook blocks getUpdates.
		if _, err := g.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			g.log.Warn("bot.webhook.delete_failed", "err", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = g.cfg.UpdateTimeout
		return g.api.GetUpdatesChan(u), nil
	}
}

func (g *Gateway) stop() {
	if g.srv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.srv.Shutdown(shCtx)
		return
	}
	g.api.StopReceivingUpdates()
}

// Dispatch routes one update. It never returns an error: every failure is
// either surfaced to the user as a chat message or logged.
func (g *Gateway) Dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		g.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		g.handleMessage(ctx, update.Message)
	}
}

func (g *Gateway) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Answer first so the client stops the button spinner.
	if _, err := g.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		g.log.Warn("bot.callback.answer_failed", "err", err)
	}
	if cb.Message == nil {
		g.log.Warn("bot.callback.no_message", "data", cb.Data)
		return
	}
	chatID := cb.Message.Chat.ID
	if err := g.review.HandleCallback(ctx, chatID, cb.Data); err != nil {
		g.log.Error("bot.callback.failed", "chat_id", chatID, "data", cb.Data, "err", err)
	}
}

func (g *Gateway) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "start", "restart":
			_ = g.SendText(ctx, chatID, common.MsgGreeting)
		default:
			g.log.Debug("bot.command.ignored", "chat_id", chatID, "command", msg.Command())
		}

	case msg.Document != nil:
		doc := msg.Document
		if !constants.IsAllowedDocument(doc.FileName, doc.MimeType) {
			g.log.Info("bot.upload.rejected", "chat_id", chatID, "file_name", doc.FileName, "mime", doc.MimeType)
			_ = g.SendText(ctx, chatID, common.MsgInvalidFile)
			return
		}
		g.admit(ctx, chatID, doc.FileID, doc.FileName)

	case msg.Audio != nil:
		g.admit(ctx, chatID, msg.Audio.FileID, msg.Audio.FileName)

	case msg.Voice != nil:
		g.admit(ctx, chatID, msg.Voice.FileID, "")

	case msg.Text != "":
		handled, err := g.review.HandleText(ctx, chatID, msg.Text)
		if err != nil {
			g.log.Error("bot.text.review_failed", "chat_id", chatID, "err", err)
			return
		}
		if !handled {
			g.log.Debug("bot.text.ignored", "chat_id", chatID)
		}

	default:
		// Stickers, photos, video and the rest: nothing we can transcribe.
		_ = g.SendText(ctx, chatID, common.MsgNotAudio)
	}
}

// admit registers a job for an accepted upload and queues its first stage.
func (g *Gateway) admit(ctx context.Context, chatID int64, fileID, fileName string) {
	job := &entity.Job{ID: uuid.New(), ChatID: chatID, RemoteRef: fileID, FileName: fileName}

	if err := g.ledger.Start(ctx, job.ID, chatID); err != nil {
		g.log.Warn("bot.ledger.start_failed", "job_id", job.ID, "err", err)
	}

	task := async.Task{Job: job, Stage: constants.StageFetch, SubmittedAt: time.Now()}
	if err := g.queue.Enqueue(ctx, task); err != nil {
		g.log.Error("bot.job.rejected", "job_id", job.ID, "chat_id", chatID, "err", err)
		if lerr := g.ledger.FinishFailure(ctx, job.ID, constants.StageFetch, "queue full: job rejected"); lerr != nil {
			g.log.Warn("bot.ledger.finish_failed", "job_id", job.ID, "err", lerr)
		}
		_ = g.SendText(ctx, chatID, common.MsgUnexpected)
		return
	}

	g.log.Info("bot.job.admitted", "job_id", job.ID, "chat_id", chatID, "file_id", fileID, "file_name", fileName)
	_ = g.SendText(ctx, chatID, common.MsgAck)
}
