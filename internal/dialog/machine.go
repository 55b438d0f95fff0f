package dialog

import (
	"context"
	"fmt"
	"time"

	"github.com/medreach/clinic-reminder-bot/internal/observability/metrics"
	"github.com/medreach/clinic-reminder-bot/internal/store"
	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

// Escalator alerts the clinic manager about events that need a human.
type Escalator interface {
	RescheduleRequested(ctx context.Context, client, message string) error
	ReviewSubmitted(ctx context.Context, client, review string) error
}

// Followups schedules one-shot delayed messages.
type Followups interface {
	Schedule(identity, text string, delay time.Duration) string
}

// Config parameterizes a Machine for one transport.
type Config struct {
	Transport transport.Transport
	// UserIDColumn is the registration-table column holding this transport's
	// user ids.
	UserIDColumn string

	RebookingBaseURL  string
	RebookingClientID string
	RebookingPhone    string
	ReviewSiteURL     string

	FollowupDelay     time.Duration
	ScoreThanksDelay  time.Duration
	DetailThanksDelay time.Duration

	// Location is the clinic timezone used for review dates.
	Location *time.Location
}

// Machine drives the per-identity dialog: given the stored stage, an inbound
// event and the stored payload it decides the replies, the table mutations and
// the next stage. It is transport-agnostic; one instance exists per transport,
// each with its own state store.
type Machine struct {
	cfg       Config
	states    StateStore
	tables    *store.Tables
	sender    transport.Sender
	escalator Escalator
	followups Followups
	locks     *identityLocks
	metrics   *metrics.DialogMetrics
	logger    *logging.Logger
}

// NewMachine creates a dialog machine.
func NewMachine(
	cfg Config,
	states StateStore,
	tables *store.Tables,
	sender transport.Sender,
	escalator Escalator,
	followups Followups,
	m *metrics.DialogMetrics,
	logger *logging.Logger,
) *Machine {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FollowupDelay <= 0 {
		cfg.FollowupDelay = 15 * time.Minute
	}
	return &Machine{
		cfg:       cfg,
		states:    states,
		tables:    tables,
		sender:    sender,
		escalator: escalator,
		followups: followups,
		locks:     newIdentityLocks(),
		metrics:   m,
		logger:    logger,
	}
}

// Seed starts a flow for an identity: the scan coordinator uses it to place a
// user at a stage with the appointment row as payload. Serialized with
// inbound handling for the same identity.
func (m *Machine) Seed(ctx context.Context, identity string, state State) error {
	unlock := m.locks.acquire(identity)
	defer unlock()
	if err := m.states.Set(ctx, identity, state); err != nil {
		return fmt.Errorf("dialog: seed %s: %w", identity, err)
	}
	return nil
}

// HandleEvent processes one inbound event. Events for the same identity are
// serialized; invalid input at any stage reprompts and holds position.
func (m *Machine) HandleEvent(ctx context.Context, ev transport.InboundEvent) error {
	unlock := m.locks.acquire(ev.Identity)
	defer unlock()

	state, err := m.states.Get(ctx, ev.Identity)
	if err != nil {
		m.observe(StageIdle, "error")
		return fmt.Errorf("dialog: get state: %w", err)
	}

	if ev.Kind == transport.KindStart {
		return m.handleStart(ctx, ev)
	}

	switch state.Stage {
	case StageAwaitingPhone:
		return m.handlePhone(ctx, ev)
	case StageAwaitingConfirmation:
		return m.handleConfirmation(ctx, ev, state)
	case StageAwaitingReschedule:
		return m.handleReschedule(ctx, ev, state)
	case StageAwaitingReviewScore:
		return m.handleReviewScore(ctx, ev, state)
	case StageAwaitingReviewDetail:
		return m.handleReviewDetail(ctx, ev, state)
	default:
		// Unsolicited message outside any flow.
		m.observe(StageIdle, "ignored")
		return nil
	}
}

func (m *Machine) handleStart(ctx context.Context, ev transport.InboundEvent) error {
	registered, err := m.tables.Users.ValueExists(ev.Identity, m.cfg.UserIDColumn)
	if err != nil {
		m.observe(StageIdle, "error")
		return fmt.Errorf("dialog: check registration: %w", err)
	}
	if registered {
		m.observe(StageIdle, "held")
		return m.send(ctx, ev.Identity, msgAlreadyRegistered, nil)
	}

	// Transports that carry the sender's phone on the start event skip the
	// contact exchange entirely.
	if phone, ok := NormalizePhone(ev.Contact); ok {
		row := store.Row{
			store.ColRegPhone:  phone,
			m.cfg.UserIDColumn: ev.Identity,
		}
		if err := m.tables.Users.Append(row); err != nil {
			m.observe(StageIdle, "error")
			return fmt.Errorf("dialog: register user: %w", err)
		}
		m.logger.Info("user registered", "transport", string(m.cfg.Transport), "identity", ev.Identity)
		m.observe(StageIdle, "advanced")
		return m.send(ctx, ev.Identity, msgPhoneSaved, nil)
	}

	if err := m.states.Set(ctx, ev.Identity, State{Stage: StageAwaitingPhone}); err != nil {
		m.observe(StageIdle, "error")
		return fmt.Errorf("dialog: enter awaiting_phone: %w", err)
	}
	m.observe(StageIdle, "advanced")
	return m.send(ctx, ev.Identity, msgGreeting(ev.DisplayName), &transport.SendOptions{RequestContact: true})
}

func (m *Machine) handlePhone(ctx context.Context, ev transport.InboundEvent) error {
	raw := ev.Contact
	if ev.Kind != transport.KindContact {
		raw = ev.Text
	}

	phone, ok := NormalizePhone(raw)
	if !ok {
		m.observe(StageAwaitingPhone, "held")
		return m.send(ctx, ev.Identity, msgNoPhone, nil)
	}

	registered, err := m.tables.Users.ValueExists(ev.Identity, m.cfg.UserIDColumn)
	if err != nil {
		m.observe(StageAwaitingPhone, "error")
		return fmt.Errorf("dialog: check registration: %w", err)
	}
	if !registered {
		row := store.Row{
			store.ColRegPhone:  phone,
			m.cfg.UserIDColumn: ev.Identity,
		}
		if err := m.tables.Users.Append(row); err != nil {
			m.observe(StageAwaitingPhone, "error")
			return fmt.Errorf("dialog: register user: %w", err)
		}
		m.logger.Info("user registered", "transport", string(m.cfg.Transport), "identity", ev.Identity)
	}

	if err := m.states.Clear(ctx, ev.Identity); err != nil {
		m.observe(StageAwaitingPhone, "error")
		return fmt.Errorf("dialog: clear state: %w", err)
	}
	m.observe(StageAwaitingPhone, "advanced")
	return m.send(ctx, ev.Identity, msgPhoneSaved, &transport.SendOptions{RemoveKeyboard: true})
}

func (m *Machine) handleConfirmation(ctx context.Context, ev transport.InboundEvent, state State) error {
	switch {
	case isYes(ev.Text):
		if _, err := m.tables.Tomorrow.FindAndReplace(
			store.ColPhone, state.Row[store.ColPhone], store.ColConfirmation, store.FlagSet,
		); err != nil {
			m.observe(StageAwaitingConfirmation, "error")
			return fmt.Errorf("dialog: confirm appointment: %w", err)
		}
		if err := m.states.Clear(ctx, ev.Identity); err != nil {
			m.observe(StageAwaitingConfirmation, "error")
			return fmt.Errorf("dialog: clear state: %w", err)
		}
		m.observe(StageAwaitingConfirmation, "advanced")
		return m.send(ctx, ev.Identity, msgConfirmed(state.Row[store.ColStartTime]),
			&transport.SendOptions{RemoveKeyboard: true, Markdown: true})

	case isNo(ev.Text):
		if _, err := m.tables.Tomorrow.FindAndReplace(
			store.ColPhone, state.Row[store.ColPhone], store.ColConfirmation, store.FlagDeclined,
		); err != nil {
			m.observe(StageAwaitingConfirmation, "error")
			return fmt.Errorf("dialog: decline appointment: %w", err)
		}
		if err := m.states.Set(ctx, ev.Identity, State{Stage: StageAwaitingReschedule, Row: state.Row}); err != nil {
			m.observe(StageAwaitingConfirmation, "error")
			return fmt.Errorf("dialog: enter awaiting_reschedule_choice: %w", err)
		}
		m.observe(StageAwaitingConfirmation, "advanced")
		return m.send(ctx, ev.Identity, msgRescheduleOffer, &transport.SendOptions{YesNoKeyboard: true})

	default:
		m.observe(StageAwaitingConfirmation, "held")
		return m.send(ctx, ev.Identity, msgNoSuchOption, &transport.SendOptions{YesNoKeyboard: true})
	}
}

func (m *Machine) handleReschedule(ctx context.Context, ev transport.InboundEvent, state State) error {
	switch {
	case isYes(ev.Text):
		if _, err := m.tables.Tomorrow.FindAndReplace(
			store.ColPhone, state.Row[store.ColPhone], store.ColReschedule, store.FlagSet,
		); err != nil {
			m.observe(StageAwaitingReschedule, "error")
			return fmt.Errorf("dialog: request reschedule: %w", err)
		}
		if _, err := m.tables.Tomorrow.FindAndReplace(
			store.ColPhone, state.Row[store.ColPhone], store.ColConfirmation, store.FlagDeclined,
		); err != nil {
			m.observe(StageAwaitingReschedule, "error")
			return fmt.Errorf("dialog: decline on reschedule: %w", err)
		}

		if err := m.send(ctx, ev.Identity, msgManagerWillCall, nil); err != nil {
			m.logger.Error("reschedule reply failed", "error", err, "identity", ev.Identity)
		}
		if err := m.escalator.RescheduleRequested(ctx, clientLabel(ev), ev.Text); err != nil {
			m.logger.Error("reschedule escalation failed", "error", err, "identity", ev.Identity)
		}
		if err := m.send(ctx, ev.Identity, msgRebookingLink(m.rebookingURL(state.Row)),
			&transport.SendOptions{RemoveKeyboard: true, Markdown: true}); err != nil {
			m.logger.Error("rebooking link reply failed", "error", err, "identity", ev.Identity)
		}
		m.followups.Schedule(ev.Identity, msgFollowup(m.cfg.RebookingPhone), m.cfg.FollowupDelay)

		if err := m.states.Clear(ctx, ev.Identity); err != nil {
			m.observe(StageAwaitingReschedule, "error")
			return fmt.Errorf("dialog: clear state: %w", err)
		}
		m.observe(StageAwaitingReschedule, "advanced")
		return nil

	case isNo(ev.Text):
		if _, err := m.tables.Tomorrow.FindAndReplace(
			store.ColPhone, state.Row[store.ColPhone], store.ColReschedule, store.FlagDeclined,
		); err != nil {
			m.observe(StageAwaitingReschedule, "error")
			return fmt.Errorf("dialog: decline reschedule: %w", err)
		}
		if err := m.states.Clear(ctx, ev.Identity); err != nil {
			m.observe(StageAwaitingReschedule, "error")
			return fmt.Errorf("dialog: clear state: %w", err)
		}
		m.observe(StageAwaitingReschedule, "advanced")
		return m.send(ctx, ev.Identity, msgDeclineThanks, &transport.SendOptions{RemoveKeyboard: true})

	default:
		m.observe(StageAwaitingReschedule, "held")
		return m.send(ctx, ev.Identity, msgNoSuchOption, &transport.SendOptions{YesNoKeyboard: true})
	}
}

func (m *Machine) handleReviewScore(ctx context.Context, ev transport.InboundEvent, state State) error {
	score := ev.Text
	if !isScore(score) {
		m.observe(StageAwaitingReviewScore, "held")
		return m.send(ctx, ev.Identity, msgScorePrompt, nil)
	}

	if score == "5" {
		if err := m.send(ctx, ev.Identity, msgReviewSiteLink(m.cfg.ReviewSiteURL),
			&transport.SendOptions{Markdown: true}); err != nil {
			m.logger.Error("review link reply failed", "error", err, "identity", ev.Identity)
		}
		if _, err := m.tables.Reviews.FindAndReplace(
			store.ColPhone, state.Row[store.ColPhone], store.ColReview, score,
		); err != nil {
			m.observe(StageAwaitingReviewScore, "error")
			return fmt.Errorf("dialog: record score: %w", err)
		}
		if err := m.states.Clear(ctx, ev.Identity); err != nil {
			m.observe(StageAwaitingReviewScore, "error")
			return fmt.Errorf("dialog: clear state: %w", err)
		}
		m.observe(StageAwaitingReviewScore, "advanced")
		if err := m.pace(ctx, m.cfg.ScoreThanksDelay); err != nil {
			return err
		}
		return m.send(ctx, ev.Identity, msgReviewThanks, nil)
	}

	if err := m.states.Set(ctx, ev.Identity, State{
		Stage: StageAwaitingReviewDetail,
		Row:   state.Row,
		Score: score,
	}); err != nil {
		m.observe(StageAwaitingReviewScore, "error")
		return fmt.Errorf("dialog: enter awaiting_review_detail: %w", err)
	}
	m.observe(StageAwaitingReviewScore, "advanced")
	return m.send(ctx, ev.Identity, msgReviewTellMore, nil)
}

func (m *Machine) handleReviewDetail(ctx context.Context, ev transport.InboundEvent, state State) error {
	phone, _, err := m.tables.Users.GetByKey(m.cfg.UserIDColumn, ev.Identity, store.ColRegPhone)
	if err != nil {
		m.observe(StageAwaitingReviewDetail, "error")
		return fmt.Errorf("dialog: resolve reviewer phone: %w", err)
	}

	date := time.Now().In(m.cfg.Location).Format(time.DateOnly)
	record := fmt.Sprintf("%s:%s:%s:%s", date, state.Score, ev.Text, phone)

	if err := m.escalator.ReviewSubmitted(ctx, clientLabel(ev), record); err != nil {
		m.logger.Error("review escalation failed", "error", err, "identity", ev.Identity)
	}
	if _, err := m.tables.Reviews.FindAndReplace(
		store.ColPhone, state.Row[store.ColPhone], store.ColReview, record,
	); err != nil {
		m.observe(StageAwaitingReviewDetail, "error")
		return fmt.Errorf("dialog: record review: %w", err)
	}
	if err := m.states.Clear(ctx, ev.Identity); err != nil {
		m.observe(StageAwaitingReviewDetail, "error")
		return fmt.Errorf("dialog: clear state: %w", err)
	}
	m.observe(StageAwaitingReviewDetail, "advanced")
	if err := m.pace(ctx, m.cfg.DetailThanksDelay); err != nil {
		return err
	}
	return m.send(ctx, ev.Identity, msgReviewThanks, nil)
}

func (m *Machine) send(ctx context.Context, identity, text string, opts *transport.SendOptions) error {
	if err := m.sender.Send(ctx, identity, text, opts); err != nil {
		return fmt.Errorf("dialog: send to %s: %w", identity, err)
	}
	return nil
}

// pace delays the next outbound reply so consecutive messages do not arrive
// in the same instant.
func (m *Machine) pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) rebookingURL(row store.Row) string {
	return fmt.Sprintf("%s/client/%s/doctor/%s?clinic=%s",
		m.cfg.RebookingBaseURL, m.cfg.RebookingClientID,
		row[store.ColDoctorID], row[store.ColClinicID])
}

func (m *Machine) observe(stage Stage, outcome string) {
	name := string(stage)
	if name == "" {
		name = "idle"
	}
	m.metrics.ObserveEvent(string(m.cfg.Transport), name, outcome)
}

func clientLabel(ev transport.InboundEvent) string {
	if ev.DisplayName != "" {
		return ev.DisplayName
	}
	return ev.Identity
}
