// Package followup schedules one-shot delayed messages. A follow-up is
// fire-and-forget: once scheduled it fires even if the user's dialog has moved
// on, which is the accepted behavior for the post-reschedule reminder.
package followup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

// Scheduler fires delayed one-shot sends.
type Scheduler struct {
	sender  transport.Sender
	timeout time.Duration
	logger  *logging.Logger

	mu      sync.Mutex
	stopped bool
}

// NewScheduler creates a follow-up scheduler sending through the given
// transport.
func NewScheduler(sender transport.Sender, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		sender:  sender,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Schedule arranges for text to be sent to identity after delay. Returns the
// job id, or an empty string when the scheduler has been stopped.
func (s *Scheduler) Schedule(identity, text string, delay time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("followup: scheduler stopped, dropping job", "identity", identity)
		return ""
	}

	id := uuid.NewString()
	time.AfterFunc(delay, func() {
		s.fire(id, identity, text)
	})
	s.logger.Info("followup scheduled", "id", id, "identity", identity, "delay", delay.String())
	return id
}

// Stop prevents new schedules. Already-scheduled jobs still fire.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Scheduler) fire(id, identity, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.sender.Send(ctx, identity, text, nil); err != nil {
		s.logger.Error("followup send failed", "error", err, "id", id, "identity", identity)
		return
	}
	s.logger.Info("followup sent", "id", id, "identity", identity)
}
