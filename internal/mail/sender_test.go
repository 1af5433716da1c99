package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionscribe/sessionscribe/internal/common"
)

func TestNewSMTPSenderDefaults(t *testing.T) {
	s, err := NewSMTPSender(Config{Host: "smtp.example.com", From: "bot@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 587, s.cfg.Port)
}

func TestSendRejectsBadAddresses(t *testing.T) {
	// Addresses are validated before any dial, so no SMTP server is needed.
	tests := []struct {
		name      string
		from      string
		recipient string
	}{
		{"bad recipient", "bot@example.com", "not-an-address"},
		{"bad from", "broken", "dr.a@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSMTPSender(Config{Host: "smtp.invalid", From: tt.from}, nil)
			require.NoError(t, err)

			err = s.Send(context.Background(), "Subject", "Body", tt.recipient)
			require.Error(t, err)
			assert.True(t, common.IsCode(err, common.CodeTransportFailure))
		})
	}
}
