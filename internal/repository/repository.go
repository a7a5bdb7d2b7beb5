package repository

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/credlend/credit-service/internal/models"
)

//go:embed sql/ddl.sql
var ddl embed.FS

// Counter names persisted in the counters table.
const (
	CounterUsers  = "user_count"
	CounterLoans  = "loan_seq"
	CounterHeight = "chain_height"
)

// Repository provides database operations for the profile, loan and payment
// stores. The SQL is kept portable between postgres (lib/pq) and sqlite:
// positional $N placeholders numbered in order of appearance, ON CONFLICT
// upserts, no dialect-specific types.
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository and bootstraps the schema from
// the embedded DDL. Bootstrapping is idempotent.
func NewRepository(db *sql.DB) (*Repository, error) {
	b, err := ddl.ReadFile("sql/ddl.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Transact runs fn inside a single database transaction. Any error returned
// by fn rolls back every write fn made, so each public operation is
// all-or-nothing.
func (r *Repository) Transact(fn func(tx *Tx) error) error {
	dbTx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: dbTx}); err != nil {
		dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx exposes store operations bound to one transaction.
type Tx struct {
	tx *sql.Tx
}

// GetProfile returns the profile for an account, or nil when absent.
func (t *Tx) GetProfile(account string) (*models.CreditProfile, error) {
	p := &models.CreditProfile{}
	query := `
		SELECT account, score, total_loans, successful_payments, missed_payments,
		       total_borrowed, total_repaid, average_collateral_ratio, last_updated
		FROM profiles
		WHERE account = $1`
	err := t.tx.QueryRow(query, account).
		Scan(&p.Account, &p.Score, &p.TotalLoans, &p.SuccessfulPayments, &p.MissedPayments,
			&p.TotalBorrowed, &p.TotalRepaid, &p.AverageCollateralRatio, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// InsertProfile creates a new profile row.
func (t *Tx) InsertProfile(p *models.CreditProfile) error {
	query := `
		INSERT INTO profiles (account, score, total_loans, successful_payments, missed_payments,
		                      total_borrowed, total_repaid, average_collateral_ratio, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := t.tx.Exec(query, p.Account, p.Score, p.TotalLoans, p.SuccessfulPayments,
		p.MissedPayments, p.TotalBorrowed, p.TotalRepaid, p.AverageCollateralRatio, p.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// UpdateProfile overwrites the mutable fields of an existing profile.
func (t *Tx) UpdateProfile(p *models.CreditProfile) error {
	query := `
		UPDATE profiles
		SET score = $1, total_loans = $2, successful_payments = $3, missed_payments = $4,
		    total_borrowed = $5, total_repaid = $6, average_collateral_ratio = $7, last_updated = $8
		WHERE account = $9`
	_, err := t.tx.Exec(query, p.Score, p.TotalLoans, p.SuccessfulPayments, p.MissedPayments,
		p.TotalBorrowed, p.TotalRepaid, p.AverageCollateralRatio, p.LastUpdated, p.Account)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// ListStaleAccounts returns accounts whose last update lags the given height
// by more than the window.
func (t *Tx) ListStaleAccounts(now, window int64) ([]string, error) {
	rows, err := t.tx.Query(`SELECT account FROM profiles WHERE $1 - last_updated > $2 ORDER BY account`, now, window)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stale accounts: %w", err)
	}
	return accounts, nil
}

// GetLoan returns the loan with the given id, or nil when absent.
func (t *Tx) GetLoan(id int64) (*models.Loan, error) {
	l := &models.Loan{}
	query := `
		SELECT id, borrower, amount, collateral_amount, interest_rate, due_at, is_paid, defaulted, created_at
		FROM loans
		WHERE id = $1`
	err := t.tx.QueryRow(query, id).
		Scan(&l.ID, &l.Borrower, &l.Amount, &l.CollateralAmount, &l.InterestRate,
			&l.DueAt, &l.IsPaid, &l.Defaulted, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load loan: %w", err)
	}
	return l, nil
}

// InsertLoan creates a new loan row.
func (t *Tx) InsertLoan(l *models.Loan) error {
	query := `
		INSERT INTO loans (id, borrower, amount, collateral_amount, interest_rate, due_at, is_paid, defaulted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := t.tx.Exec(query, l.ID, l.Borrower, l.Amount, l.CollateralAmount,
		l.InterestRate, l.DueAt, l.IsPaid, l.Defaulted, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// UpdateLoan persists the loan's state flags. All other fields are immutable
// after origination and are deliberately not written here.
func (t *Tx) UpdateLoan(l *models.Loan) error {
	query := `UPDATE loans SET is_paid = $1, defaulted = $2 WHERE id = $3`
	_, err := t.tx.Exec(query, l.IsPaid, l.Defaulted, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return nil
}

// ListOverdueLoans returns unpaid loans past their due height that have not
// been marked as defaulted yet.
func (t *Tx) ListOverdueLoans(now int64) ([]*models.Loan, error) {
	query := `
		SELECT id, borrower, amount, collateral_amount, interest_rate, due_at, is_paid, defaulted, created_at
		FROM loans
		WHERE is_paid = FALSE AND defaulted = FALSE AND due_at < $1
		ORDER BY id`
	rows, err := t.tx.Query(query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		l := &models.Loan{}
		if err := rows.Scan(&l.ID, &l.Borrower, &l.Amount, &l.CollateralAmount, &l.InterestRate,
			&l.DueAt, &l.IsPaid, &l.Defaulted, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	return loans, nil
}

// UpsertPayment records a payment, overwriting any prior record for the same
// (account, loan) pair. Last write wins.
func (t *Tx) UpsertPayment(p *models.PaymentRecord) error {
	query := `
		INSERT INTO payments (account, loan_id, paid_amount, paid_at, was_on_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account, loan_id) DO UPDATE SET
		    paid_amount = excluded.paid_amount,
		    paid_at = excluded.paid_at,
		    was_on_time = excluded.was_on_time`
	_, err := t.tx.Exec(query, p.Account, p.LoanID, p.PaidAmount, p.PaidAt, p.WasOnTime)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// GetPayment returns the latest payment record for a (account, loan) pair,
// or nil when no payment has been made.
func (t *Tx) GetPayment(account string, loanID int64) (*models.PaymentRecord, error) {
	p := &models.PaymentRecord{}
	query := `
		SELECT account, loan_id, paid_amount, paid_at, was_on_time
		FROM payments
		WHERE account = $1 AND loan_id = $2`
	err := t.tx.QueryRow(query, account, loanID).
		Scan(&p.Account, &p.LoanID, &p.PaidAmount, &p.PaidAt, &p.WasOnTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return p, nil
}

// Counter returns the current value of a named counter.
func (t *Tx) Counter(name string) (int64, error) {
	var v int64
	err := t.tx.QueryRow(`SELECT value FROM counters WHERE name = $1`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	return v, nil
}

// NextCounter advances a named counter and returns the new value. Callers
// rely on the enclosing transaction for isolation; a rolled-back operation
// never consumes a value.
func (t *Tx) NextCounter(name string) (int64, error) {
	v, err := t.Counter(name)
	if err != nil {
		return 0, err
	}
	v++
	if _, err := t.tx.Exec(`UPDATE counters SET value = $1 WHERE name = $2`, v, name); err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}
	return v, nil
}

// SetCounter overwrites a named counter. Used to seed the chain height.
func (t *Tx) SetCounter(name string, v int64) error {
	if _, err := t.tx.Exec(`UPDATE counters SET value = $1 WHERE name = $2`, v, name); err != nil {
		return fmt.Errorf("failed to set counter %s: %w", name, err)
	}
	return nil
}

// PlatformStats aggregates platform-wide lending statistics at a height.
func (t *Tx) PlatformStats(now int64) (*models.PlatformStats, error) {
	s := &models.PlatformStats{}

	var err error
	if s.TotalUsers, err = t.Counter(CounterUsers); err != nil {
		return nil, err
	}
	if s.TotalLoans, err = t.Counter(CounterLoans); err != nil {
		return nil, err
	}

	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM loans WHERE is_paid = FALSE`).
		Scan(&s.OpenLoans); err != nil {
		return nil, fmt.Errorf("failed to count open loans: %w", err)
	}
	if err := t.tx.QueryRow(`SELECT COUNT(*) FROM loans WHERE is_paid = FALSE AND due_at < $1`, now).
		Scan(&s.OverdueLoans); err != nil {
		return nil, fmt.Errorf("failed to count overdue loans: %w", err)
	}
	query := `SELECT COALESCE(SUM(total_borrowed), 0), COALESCE(SUM(total_repaid), 0) FROM profiles`
	if err := t.tx.QueryRow(query).Scan(&s.TotalBorrowed, &s.TotalRepaid); err != nil {
		return nil, fmt.Errorf("failed to sum volumes: %w", err)
	}
	return s, nil
}
