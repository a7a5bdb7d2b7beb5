package models

// ScoreBreakdown carries every intermediate term of a score recomputation.
type ScoreBreakdown struct {
	Base                 int64 `json:"base"`
	ConsistencyBonus     int64 `json:"consistency_bonus"`
	HighVolumeBonus      int64 `json:"high_volume_bonus"`
	CollateralBonus      int64 `json:"collateral_bonus"`
	RecentActivityBonus  int64 `json:"recent_activity_bonus"`
	MissedPenalty        int64 `json:"missed_penalty"`
	LowCollateralPenalty int64 `json:"low_collateral_penalty"`
	Raw                  int64 `json:"raw"`
}

// ScoreReport is the result of the public score recomputation operation.
type ScoreReport struct {
	NewScore        int64          `json:"new_score"`
	PreviousScore   int64          `json:"previous_score"`
	PaymentRatio    int64          `json:"payment_ratio"`
	MissedRatio     int64          `json:"missed_ratio"`
	CollateralRatio int64          `json:"collateral_ratio"`
	TotalLoans      int64          `json:"total_loans"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
}
