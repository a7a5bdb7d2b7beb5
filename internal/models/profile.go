package models

// CreditProfile aggregates a single account's borrowing history and score.
// Exactly one profile exists per account; it is created lazily on first
// contact and never deleted.
type CreditProfile struct {
	Account                string `json:"account"`
	Score                  int64  `json:"score"`
	TotalLoans             int64  `json:"total_loans"`
	SuccessfulPayments     int64  `json:"successful_payments"`
	MissedPayments         int64  `json:"missed_payments"`
	TotalBorrowed          int64  `json:"total_borrowed"`
	TotalRepaid            int64  `json:"total_repaid"`
	AverageCollateralRatio int64  `json:"average_collateral_ratio"`
	LastUpdated            int64  `json:"last_updated"`
}
