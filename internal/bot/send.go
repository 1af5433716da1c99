package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sessionscribe/sessionscribe/internal/review"
)

// TransportTextLimit is the longest single message the chat transport
// accepts, in runes.
const TransportTextLimit = 4095

// Sender is the outbound half of the Telegram edge. The pipeline and the
// review machine talk to the chat through it, so it is built before either
// and knows about neither.
type Sender struct {
	api API
	log *slog.Logger
}

func NewSender(api API, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{api: api, log: logger}
}

// FileURL resolves an upload reference to a fetchable URL.
func (s *Sender) FileURL(_ context.Context, remoteRef string) (string, error) {
	return s.api.GetFileDirectURL(remoteRef)
}

// SplitMessage cuts text into rune-bounded chunks of at most
// TransportTextLimit. Concatenating the chunks reproduces text exactly; an
// empty text yields no chunks.
func SplitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(runes)+TransportTextLimit-1)/TransportTextLimit)
	for start := 0; start < len(runes); start += TransportTextLimit {
		end := start + TransportTextLimit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// SendText sends one plain-text message.
func (s *Sender) SendText(_ context.Context, chatID int64, text string) error {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.log.Error("bot.send.failed", "chat_id", chatID, "err", err)
		return err
	}
	return nil
}

// SendChunked sends text as sequential transport-sized messages. Generated
// notes regularly exceed the single-message limit.
func (s *Sender) SendChunked(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitMessage(text) {
		if err := s.SendText(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SendReviewControls posts the control message for a staged report: the
// current subject plus the three action buttons bound to its report id.
func (s *Sender) SendReviewControls(_ context.Context, chatID int64, reportID, subject string) error {
	msg := tgbotapi.NewMessage(chatID, controlText(subject))
	msg.ReplyMarkup = reviewKeyboard(reportID)
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error("bot.controls.send_failed", "chat_id", chatID, "report_id", reportID, "err", err)
		return err
	}
	return nil
}

// controlText renders the control message, trimmed to the transport limit so
// an oversized user-edited subject cannot make the send fail.
func controlText(subject string) string {
	text := "Subject: " + subject
	if runes := []rune(text); len(runes) > TransportTextLimit {
		return string(runes[:TransportTextLimit])
	}
	return text
}

func reviewKeyboard(reportID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Edit subject", review.ActionEditSubject+":"+reportID),
			tgbotapi.NewInlineKeyboardButtonData("Edit message", review.ActionEditMessage+":"+reportID),
			tgbotapi.NewInlineKeyboardButtonData("Send email", review.ActionSendEmail+":"+reportID),
		),
	)
}
