// Package review drives the edit/send workflow for a staged report. The
// machine is stateless between interactions apart from the staging store and
// one single-shot pending input request per chat; every control embeds the
// report id it applies to.
package review

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sessionscribe/sessionscribe/internal/common"
	"github.com/sessionscribe/sessionscribe/internal/entity"
	"github.com/sessionscribe/sessionscribe/internal/mail"
	"github.com/sessionscribe/sessionscribe/internal/staging"
)

// Callback actions. Button data on the wire is "<action>:<report_id>".
const (
	ActionEditSubject = "edit_subject"
	ActionEditMessage = "edit_message"
	ActionSendEmail   = "send_email"
)

// Messenger is the slice of the chat transport the review flow needs.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendChunked(ctx context.Context, chatID int64, text string) error
	SendReviewControls(ctx context.Context, chatID int64, reportID, subject string) error
}

type Config struct {
	StagingTTL        time.Duration // fresh TTL applied by every successful edit
	PendingStaleAfter time.Duration // pending input older than this is dropped
	Recipients        []string
}

type Machine struct {
	messenger Messenger
	store     staging.Store
	mailer    mail.Sender
	log       *slog.Logger

	ttl        time.Duration
	staleAfter time.Duration
	recipients []string

	mu      sync.Mutex
	pending map[int64]entity.PendingEdit
}

func New(cfg Config, m Messenger, store staging.Store, mailer mail.Sender, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = 6 * time.Hour
	}
	if cfg.PendingStaleAfter <= 0 {
		cfg.PendingStaleAfter = 15 * time.Minute
	}
	return &Machine{
		messenger:  m,
		store:      store,
		mailer:     mailer,
		log:        logger,
		ttl:        cfg.StagingTTL,
		staleAfter: cfg.PendingStaleAfter,
		recipients: cfg.Recipients,
		pending:    make(map[int64]entity.PendingEdit),
	}
}

// parseToken splits callback data on the first colon only; the report id
// itself may contain colons.
func parseToken(data string) (action, reportID string, ok bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HandleCallback routes one pressed button. Malformed or unknown tokens are
// logged and ignored.
func (m *Machine) HandleCallback(ctx context.Context, chatID int64, data string) error {
	action, reportID, ok := parseToken(data)
	if !ok {
		m.log.Warn("review.callback.malformed", "chat_id", chatID, "data", data)
		return nil
	}

	switch action {
	case ActionEditSubject:
		return m.beginEdit(ctx, chatID, reportID, entity.EditSubject, common.MsgPromptSubject)
	case ActionEditMessage:
		return m.beginEdit(ctx, chatID, reportID, entity.EditBody, common.MsgPromptMessage)
	case ActionSendEmail:
		return m.sendEmail(ctx, chatID, reportID)
	default:
		m.log.Warn("review.callback.unknown_action", "chat_id", chatID, "action", action)
		return nil
	}
}

func (m *Machine) beginEdit(ctx context.Context, chatID int64, reportID string, field entity.EditField, prompt string) error {
	if !m.artifactLive(ctx, reportID) {
		return m.messenger.SendText(ctx, chatID, common.MsgReportNotFound)
	}

	// Overwrites any earlier pending request for this chat: single-shot,
	// latest wins, no queueing.
	m.mu.Lock()
	m.pending[chatID] = entity.PendingEdit{
		ChatID:    chatID,
		ReportID:  reportID,
		Field:     field,
		CreatedAt: time.Now(),
	}
	m.mu.Unlock()

	m.log.Info("review.edit.pending", "chat_id", chatID, "report_id", reportID, "field", field)
	return m.messenger.SendText(ctx, chatID, prompt)
}

// HandleText consumes the chat's pending input request, if any. Returns false
// when the text was not claimed by the review flow and should be ignored.
func (m *Machine) HandleText(ctx context.Context, chatID int64, text string) (bool, error) {
	m.mu.Lock()
	p, ok := m.pending[chatID]
	if ok {
		delete(m.pending, chatID)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	if age := time.Since(p.CreatedAt); age > m.staleAfter {
		m.log.Info("review.edit.stale_dropped", "chat_id", chatID, "report_id", p.ReportID, "age", age)
		return false, nil
	}

	if !m.artifactLive(ctx, p.ReportID) {
		return true, m.messenger.SendText(ctx, chatID, common.MsgReportNotFound)
	}

	key := staging.SubjectKey(p.ReportID)
	if p.Field == entity.EditBody {
		key = staging.MessageKey(p.ReportID)
	}
	if err := m.store.Put(ctx, key, text, m.ttl); err != nil {
		m.log.Error("review.edit.store_failed", "chat_id", chatID, "report_id", p.ReportID, "err", err)
		return true, m.messenger.SendText(ctx, chatID, common.MsgReportNotFound)
	}

	m.log.Info("review.edit.applied", "chat_id", chatID, "report_id", p.ReportID, "field", p.Field)
	return true, m.redisplay(ctx, chatID, p.ReportID)
}

func (m *Machine) sendEmail(ctx context.Context, chatID int64, reportID string) error {
	body, found, err := m.store.Get(ctx, staging.MessageKey(reportID))
	if err != nil {
		m.log.Error("review.send.read_failed", "report_id", reportID, "err", err)
		return m.messenger.SendText(ctx, chatID, common.MsgReportNotFound)
	}
	if !found {
		return m.messenger.SendText(ctx, chatID, common.MsgReportNotFound)
	}

	// The body has no default; the subject falls back to a fresh date stamp.
	subject, sfound, err := m.store.Get(ctx, staging.SubjectKey(reportID))
	if err != nil || !sfound {
		subject = staging.DefaultSubject(time.Now())
	}

	for _, rcpt := range m.recipients {
		if err := m.mailer.Send(ctx, subject, body, rcpt); err != nil {
			// Keys are kept so the user can press send again.
			m.log.Error("review.send.mail_failed", "report_id", reportID, "recipient", rcpt, "err", err)
			return m.messenger.SendText(ctx, chatID, common.MsgMailFailed)
		}
	}

	if err := m.store.Delete(ctx, staging.SubjectKey(reportID), staging.MessageKey(reportID)); err != nil {
		m.log.Warn("review.send.cleanup_failed", "report_id", reportID, "err", err)
	}
	m.log.Info("review.report.sent", "report_id", reportID, "chat_id", chatID, "recipients", len(m.recipients))
	return m.messenger.SendText(ctx, chatID, common.MsgReportSent)
}

// artifactLive reports whether the staged body still exists. The body key is
// the artifact's liveness anchor: without it there is nothing to send, so
// every action starts here.
func (m *Machine) artifactLive(ctx context.Context, reportID string) bool {
	_, found, err := m.store.Get(ctx, staging.MessageKey(reportID))
	if err != nil {
		m.log.Error("review.store.get_failed", "report_id", reportID, "err", err)
		return false
	}
	return found
}

// redisplay returns the flow to ready: current body chunks, then the control
// message with the current subject.
func (m *Machine) redisplay(ctx context.Context, chatID int64, reportID string) error {
	body, found, err := m.store.Get(ctx, staging.MessageKey(reportID))
	if err != nil || !found {
		return m.messenger.SendText(ctx, chatID, common.MsgReportNotFound)
	}
	subject, sfound, err := m.store.Get(ctx, staging.SubjectKey(reportID))
	if err != nil || !sfound {
		subject = staging.DefaultSubject(time.Now())
	}

	if err := m.messenger.SendChunked(ctx, chatID, body); err != nil {
		return err
	}
	return m.messenger.SendReviewControls(ctx, chatID, reportID, subject)
}
