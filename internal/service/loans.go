package service

import (
	"context"

	"github.com/credlend/credit-service/internal/models"
	"github.com/credlend/credit-service/internal/repository"
	"github.com/credlend/credit-service/internal/scoring"
)

// ApplyForLoan validates a loan request, fixes an interest rate from the
// caller's current score tier, creates the loan and updates the caller's
// profile statistics. The loan id is allocated inside the transaction only
// after validation passes, so a rejected application never consumes an id.
func (s *Service) ApplyForLoan(ctx context.Context, amount, collateral, duration int64) (*models.LoanOffer, error) {
	account, err := CallerAccount(ctx)
	if err != nil {
		return nil, err
	}

	if amount <= 0 || collateral <= 0 ||
		collateral < amount*scoring.MinCollateralPct/100 ||
		duration < scoring.MinDuration || duration > scoring.MaxDuration {
		return nil, models.ErrInvalidParameter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var offer *models.LoanOffer
	err = s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.NextCounter(repository.CounterHeight)
		if err != nil {
			return err
		}
		profile, err := s.getOrCreateProfile(tx, account, now)
		if err != nil {
			return err
		}
		if profile.Score < scoring.MinScore {
			return models.ErrInsufficientScore
		}

		// Rate tier is fixed from the score as it stands before this loan.
		rate := scoring.InterestRate(profile.Score)

		id, err := tx.NextCounter(repository.CounterLoans)
		if err != nil {
			return err
		}
		loan := &models.Loan{
			ID:               id,
			Borrower:         account,
			Amount:           amount,
			CollateralAmount: collateral,
			InterestRate:     rate,
			DueAt:            now + duration,
			CreatedAt:        now,
		}
		if err := tx.InsertLoan(loan); err != nil {
			return err
		}

		// Running mean of per-loan collateral ratios, weighted by loan count.
		ratio := collateral * 100 / amount
		profile.AverageCollateralRatio = (profile.AverageCollateralRatio*profile.TotalLoans + ratio) / (profile.TotalLoans + 1)
		profile.TotalLoans++
		profile.TotalBorrowed += amount
		profile.LastUpdated = now
		if err := tx.UpdateProfile(profile); err != nil {
			return err
		}

		offer = &models.LoanOffer{LoanID: id, InterestRate: rate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Loan %d originated for %s: amount=%d rate=%d%%", offer.LoanID, account, amount, offer.InterestRate)
	return offer, nil
}

// GetLoan returns a loan by id. Read-only.
func (s *Service) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var loan *models.Loan
	err := s.repo.Transact(func(tx *repository.Tx) error {
		var err error
		loan, err = tx.GetLoan(id)
		if err != nil {
			return err
		}
		if loan == nil {
			return models.ErrLoanNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// MarkOverdue flags an unpaid loan past its due height as defaulted and
// charges the borrower's profile with a missed payment. Marking is
// idempotent: a loan already flagged is left untouched.
func (s *Service) MarkOverdue(ctx context.Context, loanID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.NextCounter(repository.CounterHeight)
		if err != nil {
			return err
		}
		_, err = s.markOverdue(tx, loanID, now)
		return err
	})
}

func (s *Service) markOverdue(tx *repository.Tx, loanID, now int64) (*models.Loan, error) {
	loan, err := tx.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, models.ErrLoanNotFound
	}
	if loan.IsPaid {
		return nil, models.ErrAlreadyPaid
	}
	if loan.Defaulted {
		return nil, nil
	}
	if now <= loan.DueAt {
		return nil, models.ErrInvalidParameter
	}

	loan.Defaulted = true
	if err := tx.UpdateLoan(loan); err != nil {
		return nil, err
	}

	profile, err := tx.GetProfile(loan.Borrower)
	if err != nil {
		return nil, err
	}
	profile.MissedPayments++
	profile.LastUpdated = now
	if err := tx.UpdateProfile(profile); err != nil {
		return nil, err
	}

	s.log.Infof("Loan %d marked overdue, borrower %s charged a missed payment", loan.ID, loan.Borrower)
	return loan, nil
}

// SweepOverdue marks every unpaid, unflagged loan past its due height as
// defaulted in one atomic pass, returning the loans it marked and the height
// the sweep ran at.
func (s *Service) SweepOverdue(ctx context.Context) ([]*models.Loan, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked []*models.Loan
	var height int64
	err := s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.NextCounter(repository.CounterHeight)
		if err != nil {
			return err
		}
		height = now

		overdue, err := tx.ListOverdueLoans(now)
		if err != nil {
			return err
		}
		for _, l := range overdue {
			loan, err := s.markOverdue(tx, l.ID, now)
			if err != nil {
				return err
			}
			if loan != nil {
				marked = append(marked, loan)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return marked, height, nil
}
