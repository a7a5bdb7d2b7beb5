// Package scoring implements the credit score formulas and the interest-rate
// tiers. Everything here is pure integer arithmetic over a profile snapshot;
// the results must stay bit-compatible across reimplementations, so all
// division is integer (floor) division and no floats appear anywhere.
package scoring

import "github.com/credlend/credit-service/internal/models"

const (
	MinScore     = 300
	MaxScore     = 850
	DefaultScore = 500

	// DefaultCollateralRatio seeds new profiles (percent, 150 = 150%).
	DefaultCollateralRatio = 150

	// MinCollateralPct is the origination floor: collateral must be at least
	// amount*MinCollateralPct/100.
	MinCollateralPct = 120

	MinDuration = 1
	MaxDuration = 365

	// RecentActivityWindow is how many heights past last_updated a profile
	// still earns the recent-activity bonus.
	RecentActivityWindow = 100

	// ScoreImprovementStep is a reserved tunable for incremental score
	// adjustments; no current formula applies it.
	ScoreImprovementStep = 10
)

// InterestRate returns the interest tier (percent) for a score. The tier is
// always evaluated against the score as it stands before the new loan
// touches the profile.
func InterestRate(score int64) int64 {
	switch {
	case score >= 700:
		return 5
	case score >= 600:
		return 8
	case score >= 500:
		return 12
	default:
		return 18
	}
}

// BaseScore computes the behavioral base component of a profile's score.
// Accounts with no history yet get neutral 50% ratios.
func BaseScore(p *models.CreditProfile) int64 {
	paymentRatio := int64(50)
	if p.TotalLoans > 0 {
		paymentRatio = p.SuccessfulPayments * 100 / p.TotalLoans
	}
	repaymentRatio := int64(50)
	if p.TotalBorrowed > 0 {
		repaymentRatio = p.TotalRepaid * 100 / p.TotalBorrowed
	}
	penalty := p.MissedPayments * 25
	return paymentRatio*3 + repaymentRatio*2 + p.AverageCollateralRatio/10 - penalty
}

// PaymentRatios returns the successful and missed payment percentages of a
// profile. Unlike BaseScore, both are zero when no loans exist.
func PaymentRatios(p *models.CreditProfile) (successful, missed int64) {
	if p.TotalLoans > 0 {
		successful = p.SuccessfulPayments * 100 / p.TotalLoans
		missed = p.MissedPayments * 100 / p.TotalLoans
	}
	return successful, missed
}

// Recompute derives a fresh score for the profile at the given height,
// returning it alongside every intermediate term. It does not mutate the
// profile; persisting the result is the caller's job.
func Recompute(p *models.CreditProfile, now int64) (int64, models.ScoreBreakdown) {
	successfulRatio, missedRatio := PaymentRatios(p)

	b := models.ScoreBreakdown{Base: BaseScore(p)}
	if successfulRatio >= 90 {
		b.ConsistencyBonus = 50
	}
	if p.TotalLoans > 10 {
		b.HighVolumeBonus = 25
	}
	switch {
	case p.AverageCollateralRatio >= 200:
		b.CollateralBonus = 30
	case p.AverageCollateralRatio >= 150:
		b.CollateralBonus = 15
	}
	b.MissedPenalty = missedRatio * 2
	if p.AverageCollateralRatio < 130 {
		b.LowCollateralPenalty = 40
	}
	if now-p.LastUpdated <= RecentActivityWindow {
		b.RecentActivityBonus = 10
	}

	b.Raw = b.Base + b.ConsistencyBonus + b.HighVolumeBonus + b.CollateralBonus +
		b.RecentActivityBonus - b.MissedPenalty - b.LowCollateralPenalty

	return Clamp(b.Raw), b
}

// Clamp bounds a raw score to [MinScore, MaxScore].
func Clamp(raw int64) int64 {
	if raw < MinScore {
		return MinScore
	}
	if raw > MaxScore {
		return MaxScore
	}
	return raw
}
