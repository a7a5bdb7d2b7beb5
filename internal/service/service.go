package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/credlend/credit-service/internal/models"
	"github.com/credlend/credit-service/internal/repository"
	"github.com/credlend/credit-service/internal/scoring"
	"github.com/sirupsen/logrus"
)

// Service implements the public credit-ledger operations. Each operation
// runs inside one database transaction under a service-wide mutex, which
// reproduces the host ledger's execution model: a total order of atomic,
// all-or-nothing operations.
type Service struct {
	repo *repository.Repository
	log  *logrus.Logger
	cfg  Options

	mu sync.Mutex
}

// Options tunes background-maintenance behavior.
type Options struct {
	// ScoreStaleAfter is the number of heights after which a profile is
	// considered stale and eligible for the scheduled score refresh.
	ScoreStaleAfter int64
}

// NewService initializes a new service
func NewService(repo *repository.Repository, log *logrus.Logger, cfg Options) *Service {
	if cfg.ScoreStaleAfter <= 0 {
		cfg.ScoreStaleAfter = scoring.RecentActivityWindow
	}
	return &Service{repo: repo, log: log, cfg: cfg}
}

// CallerAccount extracts the authenticated account identity from the request
// context. The auth middleware stores it under the "account" key.
func CallerAccount(ctx context.Context) (string, error) {
	account, ok := ctx.Value("account").(string)
	if !ok || account == "" {
		return "", fmt.Errorf("account not found in context")
	}
	return account, nil
}

// GetOrCreateProfile returns the account's credit profile, creating it with
// defaults on first contact. Creation bumps the global user counter exactly
// once; a repeat call returns the stored profile unchanged.
func (s *Service) GetOrCreateProfile(ctx context.Context, account string) (*models.CreditProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var profile *models.CreditProfile
	err := s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.NextCounter(repository.CounterHeight)
		if err != nil {
			return err
		}
		profile, err = s.getOrCreateProfile(tx, account, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) getOrCreateProfile(tx *repository.Tx, account string, now int64) (*models.CreditProfile, error) {
	p, err := tx.GetProfile(account)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	p = &models.CreditProfile{
		Account:                account,
		Score:                  scoring.DefaultScore,
		AverageCollateralRatio: scoring.DefaultCollateralRatio,
		LastUpdated:            now,
	}
	if err := tx.InsertProfile(p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProfileCreation, err)
	}
	if _, err := tx.NextCounter(repository.CounterUsers); err != nil {
		return nil, err
	}
	s.log.Infof("Profile created for account %s", account)
	return p, nil
}

// RecomputeScore rescores an account's profile from its stored statistics
// and persists the new score and update height. The full breakdown of the
// formula is returned for transparency.
func (s *Service) RecomputeScore(ctx context.Context, account string) (*models.ScoreReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report *models.ScoreReport
	err := s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.NextCounter(repository.CounterHeight)
		if err != nil {
			return err
		}
		profile, err := tx.GetProfile(account)
		if err != nil {
			return err
		}
		if profile == nil {
			return models.ErrLoanNotFound
		}

		previous := profile.Score
		newScore, breakdown := scoring.Recompute(profile, now)
		paymentRatio, missedRatio := scoring.PaymentRatios(profile)

		profile.Score = newScore
		profile.LastUpdated = now
		if err := tx.UpdateProfile(profile); err != nil {
			return err
		}

		report = &models.ScoreReport{
			NewScore:        newScore,
			PreviousScore:   previous,
			PaymentRatio:    paymentRatio,
			MissedRatio:     missedRatio,
			CollateralRatio: profile.AverageCollateralRatio,
			TotalLoans:      profile.TotalLoans,
			Breakdown:       breakdown,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Score recomputed for %s: %d -> %d", account, report.PreviousScore, report.NewScore)
	return report, nil
}

// StaleAccounts lists accounts whose profile has not been touched within the
// staleness window. Read-only; does not advance the chain height.
func (s *Service) StaleAccounts(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []string
	err := s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.Counter(repository.CounterHeight)
		if err != nil {
			return err
		}
		accounts, err = tx.ListStaleAccounts(now, s.cfg.ScoreStaleAfter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Stats returns platform-wide lending statistics. Read-only.
func (s *Service) Stats(ctx context.Context) (*models.PlatformStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats *models.PlatformStats
	err := s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.Counter(repository.CounterHeight)
		if err != nil {
			return err
		}
		stats, err = tx.PlatformStats(now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
