// Package mail delivers finished reports over SMTP.
package mail

import (
	"context"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/sessionscribe/sessionscribe/internal/common"
)

// Sender delivers one subject/body pair to one recipient.
type Sender interface {
	Send(ctx context.Context, subject, body, recipient string) error
}

// Config for the SMTP sender.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender implements Sender on a go-mail client.
type SMTPSender struct {
	cfg    Config
	client *gomail.Client
	logger *slog.Logger
}

func NewSMTPSender(cfg Config, logger *slog.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, common.TransportFailure("smtp client", err)
	}
	return &SMTPSender{cfg: cfg, client: client, logger: logger}, nil
}

// Send builds a plain-text message and delivers it in one dial.
func (s *SMTPSender) Send(ctx context.Context, subject, body, recipient string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return common.TransportFailure("invalid from address", err)
	}
	if err := msg.To(recipient); err != nil {
		return common.TransportFailure("invalid recipient address", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("mail.send.failed", "recipient", recipient, "error", err)
		return common.TransportFailure("smtp send", err)
	}

	s.logger.Info("mail.send.ok",
		"recipient", recipient,
		"subject_len", len(subject),
		"body_len", len(body),
	)
	return nil
}
