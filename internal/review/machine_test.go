package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sessionscribe/sessionscribe/internal/common"
	"github.com/sessionscribe/sessionscribe/internal/entity"
	"github.com/sessionscribe/sessionscribe/internal/staging"
)

const chatID = int64(5)

type control struct {
	reportID string
	subject  string
}

type fakeMessenger struct {
	texts    []string
	chunks   []string
	controls []control
}

func (f *fakeMessenger) SendText(_ context.Context, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendChunked(_ context.Context, _ int64, text string) error {
	f.chunks = append(f.chunks, text)
	return nil
}

func (f *fakeMessenger) SendReviewControls(_ context.Context, _ int64, reportID, subject string) error {
	f.controls = append(f.controls, control{reportID: reportID, subject: subject})
	return nil
}

type mailCall struct {
	subject   string
	body      string
	recipient string
}

type fakeMailer struct {
	sent   []mailCall
	failAt int // 1-based send index that fails, 0 = never
}

func (f *fakeMailer) Send(_ context.Context, subject, body, recipient string) error {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, mailCall{subject: subject, body: body, recipient: recipient})
	return nil
}

type rig struct {
	machine *Machine
	msg     *fakeMessenger
	mailer  *fakeMailer
	mr      *miniredis.Miniredis
	store   staging.Store
}

func newRig(t *testing.T) *rig {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := staging.NewRedisStore(rdb, logger)

	msg := &fakeMessenger{}
	mailer := &fakeMailer{}
	machine := New(Config{
		StagingTTL:        time.Hour,
		PendingStaleAfter: 15 * time.Minute,
		Recipients:        []string{"clinic@example.com", "records@example.com"},
	}, msg, store, mailer, logger)

	return &rig{machine: machine, msg: msg, mailer: mailer, mr: mr, store: store}
}

func (r *rig) stage(t *testing.T, reportID, subject, body string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.store.Put(ctx, staging.SubjectKey(reportID), subject, time.Hour))
	require.NoError(t, r.store.Put(ctx, staging.MessageKey(reportID), body, time.Hour))
}

func TestEditSubjectThenSend(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Session report 2026-08-24", "staged body text")

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_subject:r1"))
	require.Equal(t, []string{common.MsgPromptSubject}, rig.msg.texts)

	handled, err := rig.machine.HandleText(ctx, chatID, "Session Notes")
	require.NoError(t, err)
	require.True(t, handled)

	// Back to ready: body chunks plus controls showing the new subject.
	require.Equal(t, []string{"staged body text"}, rig.msg.chunks)
	require.Equal(t, []control{{reportID: "r1", subject: "Session Notes"}}, rig.msg.controls)

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "send_email:r1"))

	// One mail per recipient, edited subject, original body.
	require.Equal(t, []mailCall{
		{subject: "Session Notes", body: "staged body text", recipient: "clinic@example.com"},
		{subject: "Session Notes", body: "staged body text", recipient: "records@example.com"},
	}, rig.mailer.sent)

	require.Empty(t, rig.mr.Keys(), "staged keys must be deleted after send")
	require.Equal(t, common.MsgReportSent, rig.msg.texts[len(rig.msg.texts)-1])
}

func TestEditMessageReplacesBodyOnly(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Keep this subject", "old body")

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_message:r1"))
	require.Equal(t, []string{common.MsgPromptMessage}, rig.msg.texts)

	handled, err := rig.machine.HandleText(ctx, chatID, "new body")
	require.NoError(t, err)
	require.True(t, handled)

	body, found, err := rig.store.Get(ctx, staging.MessageKey("r1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "new body", body)

	subject, found, err := rig.store.Get(ctx, staging.SubjectKey("r1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Keep this subject", subject)

	require.Equal(t, []string{"new body"}, rig.msg.chunks)
}

func TestSendAfterExpiry(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Subject", "body")
	rig.mr.FastForward(2 * time.Hour)

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "send_email:r1"))

	require.Equal(t, []string{common.MsgReportNotFound}, rig.msg.texts)
	require.Empty(t, rig.mailer.sent, "no mail may be sent for an expired report")
}

func TestSendRecomputesDefaultSubject(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	// Only the body survives; the subject key has expired independently.
	require.NoError(t, rig.store.Put(ctx, staging.MessageKey("r1"), "body", time.Hour))

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "send_email:r1"))

	require.Len(t, rig.mailer.sent, 2)
	require.Equal(t, staging.DefaultSubject(time.Now()), rig.mailer.sent[0].subject)
	require.Equal(t, common.MsgReportSent, rig.msg.texts[len(rig.msg.texts)-1])
}

func TestSecondEditRequestOverwritesFirst(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Subject", "old body")

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_subject:r1"))
	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_message:r1"))

	handled, err := rig.machine.HandleText(ctx, chatID, "replacement text")
	require.NoError(t, err)
	require.True(t, handled)

	// The later request won: the text landed in the body, not the subject.
	body, _, err := rig.store.Get(ctx, staging.MessageKey("r1"))
	require.NoError(t, err)
	require.Equal(t, "replacement text", body)

	subject, _, err := rig.store.Get(ctx, staging.SubjectKey("r1"))
	require.NoError(t, err)
	require.Equal(t, "Subject", subject)
}

func TestCallbackParsesFirstColonOnly(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "a:b:c", "Subject", "body")

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_subject:a:b:c"))

	p, ok := rig.machine.pending[chatID]
	require.True(t, ok)
	require.Equal(t, "a:b:c", p.ReportID)
	require.Equal(t, entity.EditSubject, p.Field)
}

func TestStalePendingIsDropped(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Subject", "body")

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_subject:r1"))

	rig.machine.mu.Lock()
	p := rig.machine.pending[chatID]
	p.CreatedAt = time.Now().Add(-16 * time.Minute)
	rig.machine.pending[chatID] = p
	rig.machine.mu.Unlock()

	handled, err := rig.machine.HandleText(ctx, chatID, "too late")
	require.NoError(t, err)
	require.False(t, handled)

	subject, _, err := rig.store.Get(ctx, staging.SubjectKey("r1"))
	require.NoError(t, err)
	require.Equal(t, "Subject", subject)
	require.Empty(t, rig.machine.pending, "stale request is still consumed")
}

func TestTextWithoutPendingIsIgnored(t *testing.T) {
	rig := newRig(t)

	handled, err := rig.machine.HandleText(context.Background(), chatID, "hello there")
	require.NoError(t, err)
	require.False(t, handled)
	require.Empty(t, rig.msg.texts)
}

func TestEditOnMissingArtifact(t *testing.T) {
	rig := newRig(t)

	require.NoError(t, rig.machine.HandleCallback(context.Background(), chatID, "edit_subject:gone"))

	require.Equal(t, []string{common.MsgReportNotFound}, rig.msg.texts)
	require.Empty(t, rig.machine.pending)
}

func TestArtifactExpiresWhilePending(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Subject", "body")

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "edit_subject:r1"))
	rig.mr.FastForward(2 * time.Hour)

	handled, err := rig.machine.HandleText(ctx, chatID, "New subject")
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, common.MsgReportNotFound, rig.msg.texts[len(rig.msg.texts)-1])
	require.Empty(t, rig.mr.Keys(), "an expired artifact must not be resurrected by an edit")
}

func TestMailFailureKeepsArtifact(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()
	rig.stage(t, "r1", "Subject", "body")
	rig.mailer.failAt = 2

	require.NoError(t, rig.machine.HandleCallback(ctx, chatID, "send_email:r1"))

	require.Equal(t, []string{common.MsgMailFailed}, rig.msg.texts)
	require.Len(t, rig.mailer.sent, 1)
	require.Len(t, rig.mr.Keys(), 2, "keys are kept so send can be retried")
}

func TestMalformedCallbacksIgnored(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	for _, data := range []string{"garbage", "edit_subject:", ":r1", "archive:r1", ""} {
		require.NoError(t, rig.machine.HandleCallback(ctx, chatID, data))
	}
	require.Empty(t, rig.msg.texts)
	require.Empty(t, rig.machine.pending)
}
