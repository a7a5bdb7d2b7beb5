package service

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"github.com/credlend/credit-service/internal/models"
	"github.com/credlend/credit-service/internal/repository"
	"github.com/credlend/credit-service/internal/scoring"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestService(t *testing.T) (*Service, *repository.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewRepository(db)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(repo, log, Options{ScoreStaleAfter: 100}), repo
}

func callerCtx(account string) context.Context {
	return context.WithValue(context.Background(), "account", account)
}

func setHeight(t *testing.T, repo *repository.Repository, h int64) {
	t.Helper()
	require.NoError(t, repo.Transact(func(tx *repository.Tx) error {
		return tx.SetCounter(repository.CounterHeight, h)
	}))
}

func counterValue(t *testing.T, repo *repository.Repository, name string) int64 {
	t.Helper()
	var v int64
	require.NoError(t, repo.Transact(func(tx *repository.Tx) error {
		var err error
		v, err = tx.Counter(name)
		return err
	}))
	return v
}

func loadProfile(t *testing.T, repo *repository.Repository, account string) *models.CreditProfile {
	t.Helper()
	var p *models.CreditProfile
	require.NoError(t, repo.Transact(func(tx *repository.Tx) error {
		var err error
		p, err = tx.GetProfile(account)
		return err
	}))
	require.NotNil(t, p)
	return p
}

func loadLoan(t *testing.T, repo *repository.Repository, id int64) *models.Loan {
	t.Helper()
	var l *models.Loan
	require.NoError(t, repo.Transact(func(tx *repository.Tx) error {
		var err error
		l, err = tx.GetLoan(id)
		return err
	}))
	require.NotNil(t, l)
	return l
}

func seedProfile(t *testing.T, repo *repository.Repository, p *models.CreditProfile) {
	t.Helper()
	require.NoError(t, repo.Transact(func(tx *repository.Tx) error {
		return tx.InsertProfile(p)
	}))
}

func setScore(t *testing.T, repo *repository.Repository, account string, score int64) {
	t.Helper()
	require.NoError(t, repo.Transact(func(tx *repository.Tx) error {
		p, err := tx.GetProfile(account)
		if err != nil {
			return err
		}
		p.Score = score
		return tx.UpdateProfile(p)
	}))
}

func TestGetOrCreateProfile_Defaults(t *testing.T) {
	svc, repo := newTestService(t)

	p, err := svc.GetOrCreateProfile(callerCtx("alice"), "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(scoring.DefaultScore), p.Score)
	assert.Equal(t, int64(scoring.DefaultCollateralRatio), p.AverageCollateralRatio)
	assert.Zero(t, p.TotalLoans)
	assert.Zero(t, p.SuccessfulPayments)
	assert.Zero(t, p.MissedPayments)
	assert.Zero(t, p.TotalBorrowed)
	assert.Zero(t, p.TotalRepaid)
	assert.Equal(t, int64(1), counterValue(t, repo, repository.CounterUsers))
}

func TestGetOrCreateProfile_Idempotent(t *testing.T) {
	svc, repo := newTestService(t)

	first, err := svc.GetOrCreateProfile(callerCtx("alice"), "alice")
	require.NoError(t, err)
	second, err := svc.GetOrCreateProfile(callerCtx("alice"), "alice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counterValue(t, repo, repository.CounterUsers), "user counter must not count repeat contact")
}

func TestApplyForLoan_Validation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	tests := []struct {
		name       string
		amount     int64
		collateral int64
		duration   int64
	}{
		{"zero amount", 0, 1500, 90},
		{"negative amount", -5, 1500, 90},
		{"zero collateral", 1000, 0, 90},
		{"thin collateral", 1000, 1100, 90},
		{"just below floor", 1000, 1199, 90},
		{"zero duration", 1000, 1500, 0},
		{"duration too long", 1000, 1500, 400},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyForLoan(ctx, tc.amount, tc.collateral, tc.duration)
			assert.ErrorIs(t, err, models.ErrInvalidParameter)
		})
	}

	assert.Zero(t, counterValue(t, repo, repository.CounterLoans), "rejected applications must not consume loan ids")
}

func TestApplyForLoan_FirstLoan(t *testing.T) {
	svc, repo := newTestService(t)

	offer, err := svc.ApplyForLoan(callerCtx("alice"), 1000, 1500, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), offer.LoanID)
	assert.Equal(t, int64(12), offer.InterestRate, "default score 500 lands in the 12 percent tier")

	loan := loadLoan(t, repo, 1)
	assert.Equal(t, "alice", loan.Borrower)
	assert.Equal(t, int64(1000), loan.Amount)
	assert.Equal(t, int64(1500), loan.CollateralAmount)
	assert.Equal(t, loan.CreatedAt+90, loan.DueAt)
	assert.False(t, loan.IsPaid)

	p := loadProfile(t, repo, "alice")
	assert.Equal(t, int64(1), p.TotalLoans)
	assert.Equal(t, int64(1000), p.TotalBorrowed)
	assert.Equal(t, int64(150), p.AverageCollateralRatio)
	assert.Equal(t, loan.CreatedAt, p.LastUpdated)
}

func TestApplyForLoan_MinimumCollateralAccepted(t *testing.T) {
	svc, _ := newTestService(t)

	offer, err := svc.ApplyForLoan(callerCtx("alice"), 1000, 1200, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), offer.LoanID)
}

func TestApplyForLoan_TierFromCurrentScore(t *testing.T) {
	tests := []struct {
		score int64
		rate  int64
	}{
		{720, 5},
		{650, 8},
		{550, 12},
		{450, 18},
		{300, 18},
	}
	for _, tc := range tests {
		svc, repo := newTestService(t)
		ctx := callerCtx("alice")

		_, err := svc.GetOrCreateProfile(ctx, "alice")
		require.NoError(t, err)
		setScore(t, repo, "alice", tc.score)

		offer, err := svc.ApplyForLoan(ctx, 1000, 2000, 90)
		require.NoError(t, err)
		assert.Equal(t, tc.rate, offer.InterestRate, "score %d", tc.score)
	}
}

func TestApplyForLoan_InsufficientScore(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	_, err := svc.GetOrCreateProfile(ctx, "alice")
	require.NoError(t, err)
	setScore(t, repo, "alice", 250)

	_, err = svc.ApplyForLoan(ctx, 1000, 1500, 90)
	assert.ErrorIs(t, err, models.ErrInsufficientScore)
	assert.Zero(t, counterValue(t, repo, repository.CounterLoans))

	p := loadProfile(t, repo, "alice")
	assert.Zero(t, p.TotalLoans, "rejected application must leave the profile untouched")
}

func TestApplyForLoan_CollateralRunningMean(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	_, err := svc.ApplyForLoan(ctx, 1000, 1500, 90) // ratio 150
	require.NoError(t, err)
	_, err = svc.ApplyForLoan(ctx, 1000, 3000, 90) // ratio 300
	require.NoError(t, err)

	p := loadProfile(t, repo, "alice")
	assert.Equal(t, int64(225), p.AverageCollateralRatio)

	_, err = svc.ApplyForLoan(ctx, 1000, 2000, 90) // ratio 200
	require.NoError(t, err)

	p = loadProfile(t, repo, "alice")
	assert.Equal(t, int64(216), p.AverageCollateralRatio, "running mean uses integer division")
	assert.Equal(t, int64(3), p.TotalLoans)
	assert.Equal(t, int64(3000), p.TotalBorrowed)
}

func TestMakePayment_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.MakePayment(callerCtx("alice"), 42, 1000)
	assert.ErrorIs(t, err, models.ErrLoanNotFound)

	offer, err := svc.ApplyForLoan(callerCtx("alice"), 1000, 1500, 90)
	require.NoError(t, err)

	err = svc.MakePayment(callerCtx("bob"), offer.LoanID, 1000)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	err = svc.MakePayment(callerCtx("alice"), offer.LoanID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
	err = svc.MakePayment(callerCtx("alice"), offer.LoanID, -100)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	require.NoError(t, svc.MakePayment(callerCtx("alice"), offer.LoanID, 1000))
	err = svc.MakePayment(callerCtx("alice"), offer.LoanID, 1000)
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)
}

func TestMakePayment_Partial(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	offer, err := svc.ApplyForLoan(ctx, 1000, 1500, 90)
	require.NoError(t, err)
	require.NoError(t, svc.MakePayment(ctx, offer.LoanID, 400))

	loan := loadLoan(t, repo, offer.LoanID)
	assert.False(t, loan.IsPaid, "partial payment must not close the loan")

	p := loadProfile(t, repo, "alice")
	assert.Zero(t, p.SuccessfulPayments)
	assert.Zero(t, p.TotalRepaid)

	record, err := svc.LatestPayment(ctx, offer.LoanID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), record.PaidAmount)
	assert.True(t, record.WasOnTime)
}

func TestMakePayment_FullOverwritesPartial(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	offer, err := svc.ApplyForLoan(ctx, 1000, 1500, 90)
	require.NoError(t, err)
	require.NoError(t, svc.MakePayment(ctx, offer.LoanID, 400))
	require.NoError(t, svc.MakePayment(ctx, offer.LoanID, 1200))

	loan := loadLoan(t, repo, offer.LoanID)
	assert.True(t, loan.IsPaid)

	p := loadProfile(t, repo, "alice")
	assert.Equal(t, int64(1), p.SuccessfulPayments)
	assert.Equal(t, int64(1200), p.TotalRepaid)

	record, err := svc.LatestPayment(ctx, offer.LoanID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), record.PaidAmount, "only the latest payment is retained")
}

func TestMakePayment_LateIsOffTime(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	offer, err := svc.ApplyForLoan(ctx, 1000, 1500, 10)
	require.NoError(t, err)
	setHeight(t, repo, 50)

	require.NoError(t, svc.MakePayment(ctx, offer.LoanID, 1000))

	record, err := svc.LatestPayment(ctx, offer.LoanID)
	require.NoError(t, err)
	assert.False(t, record.WasOnTime)

	// A late but full repayment still closes the loan and counts as
	// successful; lateness only shows in the payment record.
	loan := loadLoan(t, repo, offer.LoanID)
	assert.True(t, loan.IsPaid)
	p := loadProfile(t, repo, "alice")
	assert.Equal(t, int64(1), p.SuccessfulPayments)
}

func TestLatestPayment_NoneRecorded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := callerCtx("alice")

	offer, err := svc.ApplyForLoan(ctx, 1000, 1500, 90)
	require.NoError(t, err)

	_, err = svc.LatestPayment(ctx, offer.LoanID)
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestRecomputeScore_MissingProfile(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecomputeScore(callerCtx("ghost"), "ghost")
	assert.ErrorIs(t, err, models.ErrLoanNotFound)
}

func TestRecomputeScore_ReferenceScenario(t *testing.T) {
	svc, repo := newTestService(t)
	seedProfile(t, repo, &models.CreditProfile{
		Account:                "vet",
		Score:                  500,
		TotalLoans:             10,
		SuccessfulPayments:     10,
		TotalBorrowed:          10000,
		TotalRepaid:            10000,
		AverageCollateralRatio: 200,
		LastUpdated:            0,
	})
	setHeight(t, repo, 50)

	report, err := svc.RecomputeScore(callerCtx("vet"), "vet")
	require.NoError(t, err)

	assert.Equal(t, int64(610), report.NewScore)
	assert.Equal(t, int64(500), report.PreviousScore)
	assert.Equal(t, int64(100), report.PaymentRatio)
	assert.Equal(t, int64(0), report.MissedRatio)
	assert.Equal(t, int64(200), report.CollateralRatio)
	assert.Equal(t, int64(10), report.TotalLoans)
	assert.Equal(t, int64(520), report.Breakdown.Base)
	assert.Equal(t, int64(50), report.Breakdown.ConsistencyBonus)
	assert.Equal(t, int64(30), report.Breakdown.CollateralBonus)
	assert.Equal(t, int64(10), report.Breakdown.RecentActivityBonus)

	p := loadProfile(t, repo, "vet")
	assert.Equal(t, int64(610), p.Score)
	assert.Equal(t, int64(51), p.LastUpdated, "recompute stamps the operation height")
}

func TestRecomputeScore_StableInSuccession(t *testing.T) {
	svc, repo := newTestService(t)
	seedProfile(t, repo, &models.CreditProfile{
		Account:                "vet",
		Score:                  500,
		TotalLoans:             10,
		SuccessfulPayments:     10,
		TotalBorrowed:          10000,
		TotalRepaid:            10000,
		AverageCollateralRatio: 200,
		LastUpdated:            0,
	})

	first, err := svc.RecomputeScore(callerCtx("vet"), "vet")
	require.NoError(t, err)
	second, err := svc.RecomputeScore(callerCtx("vet"), "vet")
	require.NoError(t, err)

	assert.Equal(t, first.NewScore, second.NewScore, "back-to-back recomputes with unchanged stats agree")
	assert.Equal(t, first.NewScore, second.PreviousScore)
}

func TestScoreBoundsHoldAfterOperations(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	_, err := svc.GetOrCreateProfile(ctx, "alice")
	require.NoError(t, err)

	// A fresh profile recomputes below the floor and must clamp up to it.
	report, err := svc.RecomputeScore(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(scoring.MinScore), report.NewScore)

	p := loadProfile(t, repo, "alice")
	assert.GreaterOrEqual(t, p.Score, int64(scoring.MinScore))
	assert.LessOrEqual(t, p.Score, int64(scoring.MaxScore))
}

func TestMarkOverdue(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	err := svc.MarkOverdue(ctx, 42)
	assert.ErrorIs(t, err, models.ErrLoanNotFound)

	offer, err := svc.ApplyForLoan(ctx, 1000, 1500, 10)
	require.NoError(t, err)

	err = svc.MarkOverdue(ctx, offer.LoanID)
	assert.ErrorIs(t, err, models.ErrInvalidParameter, "loan not yet due")

	setHeight(t, repo, 50)
	require.NoError(t, svc.MarkOverdue(ctx, offer.LoanID))

	loan := loadLoan(t, repo, offer.LoanID)
	assert.True(t, loan.Defaulted)
	p := loadProfile(t, repo, "alice")
	assert.Equal(t, int64(1), p.MissedPayments)

	// Marking again is a no-op, not a second strike.
	require.NoError(t, svc.MarkOverdue(ctx, offer.LoanID))
	p = loadProfile(t, repo, "alice")
	assert.Equal(t, int64(1), p.MissedPayments)
}

func TestMarkOverdue_PaidLoan(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := callerCtx("alice")

	offer, err := svc.ApplyForLoan(ctx, 1000, 1500, 10)
	require.NoError(t, err)
	require.NoError(t, svc.MakePayment(ctx, offer.LoanID, 1000))

	setHeight(t, repo, 50)
	err = svc.MarkOverdue(ctx, offer.LoanID)
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)
}

func TestSweepOverdue(t *testing.T) {
	svc, repo := newTestService(t)

	late, err := svc.ApplyForLoan(callerCtx("alice"), 1000, 1500, 10)
	require.NoError(t, err)
	ontime, err := svc.ApplyForLoan(callerCtx("bob"), 1000, 1500, 300)
	require.NoError(t, err)

	setHeight(t, repo, 100)
	marked, height, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(101), height)
	require.Len(t, marked, 1)
	assert.Equal(t, late.LoanID, marked[0].ID)

	assert.Equal(t, int64(1), loadProfile(t, repo, "alice").MissedPayments)
	assert.Zero(t, loadProfile(t, repo, "bob").MissedPayments)
	assert.False(t, loadLoan(t, repo, ontime.LoanID).Defaulted)

	// Second sweep finds nothing new.
	marked, _, err = svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestStaleAccounts(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.GetOrCreateProfile(callerCtx("alice"), "alice")
	require.NoError(t, err)

	setHeight(t, repo, 150)
	_, err = svc.GetOrCreateProfile(callerCtx("bob"), "bob")
	require.NoError(t, err)

	stale, err := svc.StaleAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, stale)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ApplyForLoan(callerCtx("alice"), 1000, 1500, 90)
	require.NoError(t, err)
	offer, err := svc.ApplyForLoan(callerCtx("bob"), 2000, 3000, 90)
	require.NoError(t, err)
	require.NoError(t, svc.MakePayment(callerCtx("bob"), offer.LoanID, 2000))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.TotalLoans)
	assert.Equal(t, int64(1), stats.OpenLoans)
	assert.Equal(t, int64(3000), stats.TotalBorrowed)
	assert.Equal(t, int64(2000), stats.TotalRepaid)
}

func TestCallerAccount_Missing(t *testing.T) {
	_, err := CallerAccount(context.Background())
	assert.Error(t, err)

	_, err = CallerAccount(context.WithValue(context.Background(), "account", ""))
	assert.Error(t, err)
}
