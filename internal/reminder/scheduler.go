package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/mail"
	"github.com/eventcollab/videochat/internal/metrics"
)

// reminderStore is the subset of *Store the scheduler depends on,
// narrowed so tests can substitute a fake repository.
type reminderStore interface {
	SelectDue(ctx context.Context, now time.Time, window time.Duration) ([]DueReminder, error)
	Delete(ctx context.Context, id int64) error
}

// mailSender is the subset of *mail.Sink the scheduler depends on.
type mailSender interface {
	Send(ctx context.Context, subject, recipient, plainBody, htmlBody string) error
}

// Scheduler wakes on a fixed tick, scans due reminders within a
// look-ahead window, and hands each to the mail sink. Delivery is
// at-least-once: a row is deleted only after Send returns nil.
type Scheduler struct {
	store reminderStore
	sink  mailSender

	tick   time.Duration
	window time.Duration
}

// NewScheduler builds a Scheduler. tick defaults to 60s and window to
// 5 minutes when zero.
func NewScheduler(store *Store, sink *mail.Sink, tick, window time.Duration) *Scheduler {
	if tick <= 0 {
		tick = 60 * time.Second
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Scheduler{store: store, sink: sink, tick: tick, window: window}
}

// Run blocks, ticking until ctx is cancelled. Every tick's failure is
// contained to that tick: the loop itself never exits early.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.tick)
	defer cancel()

	now := time.Now().UTC()
	due, err := s.store.SelectDue(ctx, now, s.window)
	if err != nil {
		logging.Error(ctx, "reminder scheduler tick failed to load due reminders", zap.Error(err))
		metrics.ReminderTicks.WithLabelValues("error").Inc()
		return
	}

	metrics.ReminderDue.Set(float64(len(due)))

	sent, skipped := 0, 0
	for _, r := range due {
		if strings.TrimSpace(r.UserEmail) == "" {
			continue
		}
		if s.processReminder(ctx, r) {
			sent++
		} else {
			skipped++
		}
	}

	logging.Info(ctx, "reminder scheduler tick complete",
		zap.Int("due", len(due)), zap.Int("sent", sent), zap.Int("skipped", skipped))
	metrics.ReminderTicks.WithLabelValues("success").Inc()
}

// processReminder composes and sends one reminder's notification,
// deleting the row only on confirmed delivery. Returns true when the
// reminder was sent this tick, whether or not the row delete that follows
// succeeded.
func (s *Scheduler) processReminder(ctx context.Context, r DueReminder) bool {
	subject := fmt.Sprintf("Reminder: %s", r.EventTitle)
	plain, html := buildReminderBody(r)

	if err := s.sink.Send(ctx, subject, r.UserEmail, plain, html); err != nil {
		logging.Warn(ctx, "reminder send failed, will retry next tick",
			zap.Int64("reminder_id", r.ID), zap.String("recipient", logging.RedactEmail(r.UserEmail)), zap.Error(err))
		metrics.ReminderSent.WithLabelValues("error").Inc()
		return false
	}

	if err := s.store.Delete(ctx, r.ID); err != nil {
		logging.Error(ctx, "reminder sent but delete failed, may re-send next tick",
			zap.Int64("reminder_id", r.ID), zap.Error(err))
		metrics.ReminderSent.WithLabelValues("success").Inc()
		return true
	}

	metrics.ReminderSent.WithLabelValues("success").Inc()
	return true
}

func buildReminderBody(r DueReminder) (plain, html string) {
	when := r.EventDate.Format("Monday, January 2, 2006 at 3:04 PM MST")

	var p strings.Builder
	fmt.Fprintf(&p, "Hello,\n\n")
	fmt.Fprintf(&p, "This is a reminder for the event \"%s\", happening %s.\n\n", r.EventTitle, when)
	if r.EventLocation != "" {
		fmt.Fprintf(&p, "Location: %s\n\n", r.EventLocation)
	}
	if r.EventDescription != "" {
		fmt.Fprintf(&p, "%s\n\n", r.EventDescription)
	}
	fmt.Fprintf(&p, "Event ID: %d\n", r.EventID)

	var h strings.Builder
	fmt.Fprintf(&h, "<p>Hello,</p>")
	fmt.Fprintf(&h, "<p>This is a reminder for the event <strong>%s</strong>, happening %s.</p>", r.EventTitle, when)
	if r.EventLocation != "" {
		fmt.Fprintf(&h, "<p>Location: %s</p>", r.EventLocation)
	}
	if r.EventDescription != "" {
		fmt.Fprintf(&h, "<p>%s</p>", r.EventDescription)
	}
	fmt.Fprintf(&h, "<p style=\"color:#888;font-size:12px\">Event ID: %d</p>", r.EventID)

	return p.String(), h.String()
}
