package service

import (
	"context"

	"github.com/credlend/credit-service/internal/models"
	"github.com/credlend/credit-service/internal/repository"
)

// MakePayment records a repayment against the caller's loan. Every payment
// overwrites the (caller, loan) payment record; a payment covering the full
// principal closes the loan and credits the borrower's profile. A partial
// payment changes nothing beyond the record.
func (s *Service) MakePayment(ctx context.Context, loanID, amount int64) error {
	account, err := CallerAccount(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var closed bool
	err = s.repo.Transact(func(tx *repository.Tx) error {
		now, err := tx.NextCounter(repository.CounterHeight)
		if err != nil {
			return err
		}

		loan, err := tx.GetLoan(loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return models.ErrLoanNotFound
		}
		if loan.Borrower != account {
			return models.ErrNotAuthorized
		}
		if loan.IsPaid {
			return models.ErrAlreadyPaid
		}
		if amount <= 0 {
			return models.ErrInvalidAmount
		}

		record := &models.PaymentRecord{
			Account:    account,
			LoanID:     loanID,
			PaidAmount: amount,
			PaidAt:     now,
			WasOnTime:  now <= loan.DueAt,
		}
		if err := tx.UpsertPayment(record); err != nil {
			return err
		}

		if amount < loan.Amount {
			return nil
		}

		loan.IsPaid = true
		if err := tx.UpdateLoan(loan); err != nil {
			return err
		}
		profile, err := tx.GetProfile(account)
		if err != nil {
			return err
		}
		profile.SuccessfulPayments++
		profile.TotalRepaid += amount
		profile.LastUpdated = now
		if err := tx.UpdateProfile(profile); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return err
	}

	if closed {
		s.log.Infof("Loan %d fully repaid by %s", loanID, account)
	} else {
		s.log.Infof("Partial payment of %d recorded for loan %d by %s", amount, loanID, account)
	}
	return nil
}

// LatestPayment returns the most recent payment record the caller made
// against a loan. Read-only.
func (s *Service) LatestPayment(ctx context.Context, loanID int64) (*models.PaymentRecord, error) {
	account, err := CallerAccount(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var record *models.PaymentRecord
	err = s.repo.Transact(func(tx *repository.Tx) error {
		loan, err := tx.GetLoan(loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return models.ErrLoanNotFound
		}
		record, err = tx.GetPayment(account, loanID)
		if err != nil {
			return err
		}
		if record == nil {
			return models.ErrLoanNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
