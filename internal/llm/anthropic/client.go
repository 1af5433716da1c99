// Package anthropic provides a NoteGenerator backed by the Messages API.
package anthropic

import (
	"context"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/sessionscribe/sessionscribe/internal/common"
	"github.com/sessionscribe/sessionscribe/internal/llm"
)

// Config for the Anthropic client.
type Config struct {
	APIKey    string
	Model     string // e.g. "claude-sonnet-4-20250514"
	MaxTokens int    // default 2048
	Timeout   time.Duration
}

type Client struct {
	cfg    Config
	client anthropic.Client
	log    *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(cfg.Timeout),
		),
		log: logger,
	}
}

// GenerateNote implements llm.NoteGenerator over the Messages API.
func (c *Client) GenerateNote(ctx context.Context, transcript string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.generate.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(transcript),
	)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: llm.BuildSystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(llm.BuildUserPrompt(transcript))),
		},
	})
	if err != nil {
		c.log.Error("llm.generate.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.GenerationFailure("anthropic request", err)
	}
	if len(msg.Content) == 0 {
		return "", common.GenerationFailure("empty response content", nil)
	}

	note := strings.TrimSpace(msg.Content[0].Text)
	if note == "" {
		return "", common.GenerationFailure("empty completion", nil)
	}

	c.log.Info("llm.generate.ok",
		"req_id", rid,
		"note_len", len(note),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return note, nil
}
