// Package jobs runs the portal's scheduled work: the sponsorship
// expiration sweep and the reviewer reminder.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/notify"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// Config holds the cron schedules and reminder threshold
type Config struct {
	ExpirationSchedule string
	ReminderSchedule   string
	ReminderAge        time.Duration
}

// Scheduler owns the cron runner. Job bodies are exported-adjacent
// methods so tests drive them directly without waiting on schedules.
type Scheduler struct {
	cron       *cron.Cron
	store      records.Store
	directory  enterprise.Directory
	dispatcher *notify.Dispatcher
	logger     *observability.Logger
	cfg        Config
	now        func() time.Time
}

// NewScheduler creates the scheduler without starting it
func NewScheduler(store records.Store, directory enterprise.Directory, dispatcher *notify.Dispatcher,
	logger *observability.Logger, cfg Config) *Scheduler {
	if cfg.ExpirationSchedule == "" {
		cfg.ExpirationSchedule = "15 2 * * *"
	}
	if cfg.ReminderSchedule == "" {
		cfg.ReminderSchedule = "0 8 * * 1"
	}
	if cfg.ReminderAge <= 0 {
		cfg.ReminderAge = 7 * 24 * time.Hour
	}
	return &Scheduler{
		cron:       cron.New(),
		store:      store,
		directory:  directory,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start registers the jobs and begins the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.ExpirationSchedule, func() { s.SweepExpirations(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.ReminderSchedule, func() { s.RemindReviewers(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("expiration_schedule", s.cfg.ExpirationSchedule).
		WithField("reminder_schedule", s.cfg.ReminderSchedule).
		Info("scheduled jobs started")
	return nil
}

// Stop halts the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SweepExpirations finds sponsorships that lapsed since the last sweep,
// appends a history row for each, and tells the sponsor.
func (s *Scheduler) SweepExpirations(ctx context.Context) {
	due, err := s.store.ExpireDue(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("expiration sweep failed")
		return
	}
	if len(due) == 0 {
		return
	}

	for _, sp := range due {
		if err := s.store.AppendHistory(ctx, records.HistoryEntry{
			UserID:    sp.UserID,
			Change:    records.ChangeExpire,
			Reason:    "sponsorship expiration reached",
			ChangedBy: "system",
		}); err != nil {
			s.logger.WithField("user", sp.UserID).WithError(err).
				Error("failed to record expiration")
			continue
		}

		sponsor, err := s.directory.Lookup(ctx, sp.SponsorID)
		if err != nil {
			s.logger.WithField("sponsor", sp.SponsorID).WithError(err).
				Warn("sponsor did not resolve; expiration notice skipped")
			continue
		}
		s.dispatcher.Dispatch(ctx, notify.KindExpiration, notify.ExpirationNotice(sponsor, sp))
	}
	s.logger.WithField("expired", len(due)).Info("expiration sweep complete")
}

// RemindReviewers nudges the active roster about requests pending
// longer than the configured age.
func (s *Scheduler) RemindReviewers(ctx context.Context) {
	pending, err := s.store.PendingOlderThan(ctx, s.cfg.ReminderAge)
	if err != nil {
		s.logger.WithError(err).Error("reviewer reminder failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	reviewers, err := s.store.ActiveReviewers(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to load review roster for reminder")
		return
	}
	var emails []string
	for _, r := range reviewers {
		agent, err := s.directory.Lookup(ctx, r.UserID)
		if err != nil || agent.Email == "" {
			continue
		}
		emails = append(emails, agent.Email)
	}
	if len(emails) == 0 {
		s.logger.Warn("no reviewer addresses resolved; reminder skipped")
		return
	}

	s.dispatcher.Dispatch(ctx, notify.KindReminder, notify.ReminderNotice(emails, pending))
}
