// Package scan implements the periodic inbox sweep: it reads the three
// appointment tables, resolves each row's phone to a transport identity, and
// starts the matching outbound flow.
package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medreach/clinic-reminder-bot/internal/dialog"
	"github.com/medreach/clinic-reminder-bot/internal/observability/metrics"
	"github.com/medreach/clinic-reminder-bot/internal/store"
	"github.com/medreach/clinic-reminder-bot/internal/transport"
	"github.com/medreach/clinic-reminder-bot/pkg/logging"
)

// Seeder places an identity at a dialog stage with a payload. Satisfied by
// *dialog.Machine, which serializes seeding with live event handling.
type Seeder interface {
	Seed(ctx context.Context, identity string, state dialog.State) error
}

// Config parameterizes a Coordinator for one transport.
type Config struct {
	Transport transport.Transport
	// UserIDColumn is the registration-table column resolved against.
	UserIDColumn string
	Interval     time.Duration
	// Concurrency bounds how many rows of one table are in flight at once.
	Concurrency int
}

// Coordinator runs the recurring scan. At most one run is active at a time; a
// tick that fires while a run is still active is skipped, not queued.
type Coordinator struct {
	cfg     Config
	tables  *store.Tables
	seeder  Seeder
	sender  transport.Sender
	running atomic.Bool
	metrics *metrics.ScanMetrics
	logger  *logging.Logger
}

// NewCoordinator creates a scan coordinator.
func NewCoordinator(
	cfg Config,
	tables *store.Tables,
	seeder Seeder,
	sender transport.Sender,
	m *metrics.ScanMetrics,
	logger *logging.Logger,
) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Coordinator{
		cfg:     cfg,
		tables:  tables,
		seeder:  seeder,
		sender:  sender,
		metrics: m,
		logger:  logger,
	}
}

// Start scans immediately, then on every interval tick until ctx is canceled.
func (c *Coordinator) Start(ctx context.Context) {
	c.runGuarded(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runGuarded(ctx)
		}
	}
}

func (c *Coordinator) runGuarded(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Warn("scan still running, skipping tick", "transport", string(c.cfg.Transport))
		c.metrics.ObserveSkippedRun()
		return
	}
	defer c.running.Store(false)

	if err := c.RunOnce(ctx); err != nil {
		c.logger.Error("scan run failed", "error", err, "transport", string(c.cfg.Transport))
	}
}

// RunOnce executes one scan over all three inbox tables. The three table
// scans run concurrently; a failure on one row never aborts the others.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	started := time.Now()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		c.scanTable(ctx, "tomorrow", c.tables.Tomorrow, c.notifyTomorrow)
	}()
	go func() {
		defer wg.Done()
		c.scanTable(ctx, "2hours", c.tables.TwoHours, c.notifySameDay)
	}()
	go func() {
		defer wg.Done()
		c.scanTable(ctx, "reviews", c.tables.Reviews, c.notifyReview)
	}()
	wg.Wait()

	elapsed := time.Since(started)
	c.metrics.ObserveRun(string(c.cfg.Transport), elapsed.Seconds())
	c.logger.Info("scan finished", "transport", string(c.cfg.Transport), "elapsed", elapsed.String())
	return ctx.Err()
}

// scanTable fans rows out to worker goroutines bounded by a semaphore. Rows
// are independent units of work.
func (c *Coordinator) scanTable(ctx context.Context, name string, table *store.Table, handle func(ctx context.Context, identity string, row store.Row) error) {
	rows, err := table.Rows()
	if err != nil {
		c.logger.Error("scan: table read failed", "error", err, "table", name)
		return
	}

	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(row store.Row) {
			defer wg.Done()
			defer func() { <-sem }()

			identity, ok, err := c.resolve(row)
			if err != nil {
				c.logger.Error("scan: row resolution failed", "error", err, "table", name)
				c.metrics.ObserveRow(string(c.cfg.Transport), name, "failed")
				return
			}
			if !ok {
				// Unregistered phone: invisible to the user by design.
				c.logger.Debug("scan: no identity for row", "table", name, "phone", row[store.ColPhone])
				c.metrics.ObserveRow(string(c.cfg.Transport), name, "skipped")
				return
			}
			if err := handle(ctx, identity, row); err != nil {
				c.logger.Error("scan: row handling failed", "error", err, "table", name, "identity", identity)
				c.metrics.ObserveRow(string(c.cfg.Transport), name, "failed")
				return
			}
			c.metrics.ObserveRow(string(c.cfg.Transport), name, "sent")
		}(row)
	}
	wg.Wait()
}

// resolve maps a row's phone to this transport's user id. Unrecognized or
// unregistered phones resolve to not-found, never an error.
func (c *Coordinator) resolve(row store.Row) (string, bool, error) {
	phone, ok := dialog.NormalizePhone(row[store.ColPhone])
	if !ok {
		return "", false, nil
	}
	identity, found, err := c.tables.Users.GetByKey(store.ColRegPhone, phone, c.cfg.UserIDColumn)
	if err != nil {
		return "", false, fmt.Errorf("scan: resolve %s: %w", phone, err)
	}
	if !found || identity == "" {
		return "", false, nil
	}
	return identity, true, nil
}

// notifyTomorrow asks for a confirmation and opens the confirmation dialog.
func (c *Coordinator) notifyTomorrow(ctx context.Context, identity string, row store.Row) error {
	msg := dialog.MsgConfirmRequest(row[store.ColStartTime])
	if err := c.sender.Send(ctx, identity, msg, &transport.SendOptions{YesNoKeyboard: true, Markdown: true}); err != nil {
		return fmt.Errorf("send confirmation request: %w", err)
	}
	if err := c.seeder.Seed(ctx, identity, dialog.State{
		Stage: dialog.StageAwaitingConfirmation,
		Row:   row,
	}); err != nil {
		return err
	}
	return nil
}

// notifySameDay sends the 2-hour reminder. No dialog is opened.
func (c *Coordinator) notifySameDay(ctx context.Context, identity string, row store.Row) error {
	if err := c.sender.Send(ctx, identity, dialog.MsgSameDayReminder, &transport.SendOptions{RemoveKeyboard: true}); err != nil {
		return fmt.Errorf("send same-day reminder: %w", err)
	}
	return nil
}

// notifyReview asks for a 1-5 score and opens the review dialog.
func (c *Coordinator) notifyReview(ctx context.Context, identity string, row store.Row) error {
	if err := c.sender.Send(ctx, identity, dialog.MsgReviewPrompt, nil); err != nil {
		return fmt.Errorf("send review prompt: %w", err)
	}
	if err := c.seeder.Seed(ctx, identity, dialog.State{
		Stage: dialog.StageAwaitingReviewScore,
		Row:   row,
	}); err != nil {
		return err
	}
	return nil
}
