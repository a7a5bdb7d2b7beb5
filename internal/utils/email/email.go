package email

import (
	"fmt"
	"net/smtp"

	"github.com/credlend/credit-service/internal/config"
	"github.com/credlend/credit-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether SMTP delivery is configured.
func (s *Sender) Enabled() bool {
	return s.cfg.SMTPHost != "" && s.cfg.NotifyEmail != ""
}

// SendOverdueNotice emails the operations mailbox about loans newly marked
// overdue by the sweep.
func (s *Sender) SendOverdueNotice(to string, loans []*models.Loan, height int64) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("%d loan(s) marked overdue at height %d", len(loans), height)

	body := "The following loans passed their due height without full repayment:\n\n"
	for _, l := range loans {
		body += fmt.Sprintf(
			"  loan %d: borrower=%s amount=%d collateral=%d due_at=%d\n",
			l.ID, l.Borrower, l.Amount, l.CollateralAmount, l.DueAt,
		)
	}
	body += "\nEach borrower's profile has been charged a missed payment.\n"
	body += "\nBest regards,\nCredit Service"
	e.Text = []byte(body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send overdue notice to %s: %v", to, err)
		return fmt.Errorf("failed to send overdue notice: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// SendScoreRefreshSummary emails the operations mailbox after a scheduled
// score refresh touched at least one stale profile.
func (s *Sender) SendScoreRefreshSummary(to string, refreshed int) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Refreshed scores for %d stale profile(s)", refreshed)

	body := fmt.Sprintf(
		"The scheduled score refresh recomputed %d profile(s) whose last update\n"+
			"was older than the staleness window.\n",
		refreshed,
	)
	body += "\nBest regards,\nCredit Service"
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send refresh summary to %s: %v", to, err)
		return fmt.Errorf("failed to send refresh summary: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
