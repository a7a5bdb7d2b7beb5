// Package jobs runs the scheduled maintenance sweeps: marking overdue loans
// and refreshing stale credit scores.
package jobs

import (
	"context"
	"fmt"

	"github.com/credlend/credit-service/internal/config"
	"github.com/credlend/credit-service/internal/service"
	"github.com/credlend/credit-service/internal/utils/email"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner owns the cron scheduler for background maintenance.
type Runner struct {
	svc    *service.Service
	sender *email.Sender
	cfg    *config.Config
	log    *logrus.Logger
	cron   *cron.Cron
}

// NewRunner initializes a new runner
func NewRunner(svc *service.Service, sender *email.Sender, cfg *config.Config, log *logrus.Logger) *Runner {
	return &Runner{
		svc:    svc,
		sender: sender,
		cfg:    cfg,
		log:    log,
		cron:   cron.New(),
	}
}

// Start registers the overdue sweep and the stale-score refresh and starts
// the scheduler.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.OverdueSweepSpec, r.sweepOverdue); err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}
	if _, err := r.cron.AddFunc(r.cfg.ScoreRefreshSpec, r.refreshScores); err != nil {
		return fmt.Errorf("failed to schedule score refresh: %w", err)
	}
	r.cron.Start()
	r.log.Infof("Scheduler started: overdue sweep %q, score refresh %q",
		r.cfg.OverdueSweepSpec, r.cfg.ScoreRefreshSpec)
	return nil
}

// Stop halts the scheduler. Jobs already running finish on their own.
func (r *Runner) Stop() {
	r.cron.Stop()
}

func (r *Runner) sweepOverdue() {
	loans, height, err := r.svc.SweepOverdue(context.Background())
	if err != nil {
		r.log.Errorf("Overdue sweep failed: %v", err)
		return
	}
	if len(loans) == 0 {
		return
	}
	r.log.Infof("Overdue sweep marked %d loan(s) at height %d", len(loans), height)

	if !r.sender.Enabled() {
		return
	}
	if err := r.sender.SendOverdueNotice(r.cfg.NotifyEmail, loans, height); err != nil {
		r.log.Errorf("Overdue notice delivery failed: %v", err)
	}
}

func (r *Runner) refreshScores() {
	accounts, err := r.svc.StaleAccounts(context.Background())
	if err != nil {
		r.log.Errorf("Stale account listing failed: %v", err)
		return
	}
	refreshed := 0
	for _, account := range accounts {
		if _, err := r.svc.RecomputeScore(context.Background(), account); err != nil {
			r.log.Errorf("Score refresh failed for %s: %v", account, err)
			continue
		}
		refreshed++
	}
	if refreshed == 0 {
		return
	}
	r.log.Infof("Score refresh recomputed %d profile(s)", refreshed)

	if !r.sender.Enabled() {
		return
	}
	if err := r.sender.SendScoreRefreshSummary(r.cfg.NotifyEmail, refreshed); err != nil {
		r.log.Errorf("Refresh summary delivery failed: %v", err)
	}
}
