package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreach/clinic-reminder-bot/internal/transport"
)

type recordingSender struct {
	mu    sync.Mutex
	sends []sentMessage
	err   error
}

type sentMessage struct {
	identity string
	text     string
}

func (s *recordingSender) Send(_ context.Context, identity, text string, _ *transport.SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sends = append(s.sends, sentMessage{identity: identity, text: text})
	return nil
}

type recordingEmail struct {
	messages []EmailMessage
}

func (e *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

func TestRescheduleRequested(t *testing.T) {
	sender := &recordingSender{}
	esc := NewEscalator(sender, "195305791", time.UTC, nil)

	err := esc.RescheduleRequested(context.Background(), "@ivan", "да")
	require.NoError(t, err)

	require.Len(t, sender.sends, 1)
	assert.Equal(t, "195305791", sender.sends[0].identity)
	assert.Contains(t, sender.sends[0].text, "ПЕРЕНАЗНАЧИТЬ")
	assert.Contains(t, sender.sends[0].text, "@ivan")
}

func TestReviewSubmittedWithEmailMirror(t *testing.T) {
	sender := &recordingSender{}
	email := &recordingEmail{}
	esc := NewEscalator(sender, "manager@c.us", time.UTC, nil).WithEmail(email, "ops@clinic.ru", "Дежурный менеджер")

	err := esc.ReviewSubmitted(context.Background(), "7-916-123-45-67", "2026-08-31:2:плохо:7-916-123-45-67")
	require.NoError(t, err)

	require.Len(t, sender.sends, 1)
	assert.Contains(t, sender.sends[0].text, "ОСТАВИЛ ОТЗЫВ")
	require.Len(t, email.messages, 1)
	assert.Equal(t, "ops@clinic.ru", email.messages[0].To)
	assert.Contains(t, email.messages[0].Body, "плохо")
}

func TestEscalatorUnconfiguredIsNoop(t *testing.T) {
	sender := &recordingSender{}
	esc := NewEscalator(sender, "", time.UTC, nil)

	require.NoError(t, esc.RescheduleRequested(context.Background(), "x", "y"))
	assert.Empty(t, sender.sends)
}

func TestEscalatorSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	esc := NewEscalator(sender, "195305791", time.UTC, nil)

	err := esc.RescheduleRequested(context.Background(), "x", "y")
	require.Error(t, err)
}
