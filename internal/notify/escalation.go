package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

// Escalator delivers operational alerts to the clinic manager: reschedule
// requests and submitted reviews. The primary channel is a chat message to a
// fixed per-transport escalation identity; an optional email mirror can be
// attached.
type Escalator struct {
	sender      transport.Sender
	identity    string
	email       EmailSender
	emailTo     string
	emailToName string
	loc         *time.Location
	logger      *logging.Logger
}

// NewEscalator creates an escalator for one transport's manager identity.
// email may be nil.
func NewEscalator(sender transport.Sender, identity string, loc *time.Location, logger *logging.Logger) *Escalator {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Escalator{
		sender:   sender,
		identity: identity,
		loc:      loc,
		logger:   logger,
	}
}

// WithEmail attaches an email mirror; every alert is also sent to the given
// address. Returns the escalator for chaining.
func (e *Escalator) WithEmail(email EmailSender, to, toName string) *Escalator {
	e.email = email
	e.emailTo = to
	e.emailToName = toName
	return e
}

// RescheduleRequested alerts the manager that a client asked to be rebooked.
func (e *Escalator) RescheduleRequested(ctx context.Context, client, message string) error {
	text := fmt.Sprintf(
		"НУЖНО ПЕРЕНАЗНАЧИТЬ ОЧЕРЕДЬ КЛИЕНТУ 🔴🔴🔴:\nКлиент: %s\nВремя по МСК: %s\nСообщение:\n%s",
		client, e.now(), message,
	)
	return e.deliver(ctx, "Запрос на перезапись", text)
}

// ReviewSubmitted alerts the manager about a newly recorded review.
func (e *Escalator) ReviewSubmitted(ctx context.Context, client, review string) error {
	text := fmt.Sprintf(
		"КЛИЕНТ ОСТАВИЛ ОТЗЫВ 🔴🔴🔴:\nКлиент: %s\nВремя по МСК: %s\nОтзыв:\n%s",
		client, e.now(), review,
	)
	return e.deliver(ctx, "Новый отзыв", text)
}

func (e *Escalator) deliver(ctx context.Context, subject, text string) error {
	if e == nil || e.identity == "" {
		return nil
	}

	err := e.sender.Send(ctx, e.identity, text, nil)
	if err != nil {
		e.logger.Error("escalation send failed", "error", err, "manager", e.identity)
	}

	if e.email != nil && e.emailTo != "" {
		emailErr := e.email.Send(ctx, EmailMessage{
			To:      e.emailTo,
			ToName:  e.emailToName,
			Subject: subject,
			Body:    text,
		})
		if emailErr != nil {
			e.logger.Error("escalation email failed", "error", emailErr, "to", e.emailTo)
			if err == nil {
				err = emailErr
			}
		}
	}

	if err != nil {
		return fmt.Errorf("notify: escalation: %w", err)
	}
	return nil
}

func (e *Escalator) now() string {
	return time.Now().In(e.loc).Format("2006-01-02 15:04:05 -07:00")
}
