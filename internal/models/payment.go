package models

// PaymentRecord is the most recent payment against a (account, loan) pair.
// Each new payment overwrites the previous record for the same pair, so only
// the latest payment per loan is retrievable.
type PaymentRecord struct {
	Account    string `json:"account"`
	LoanID     int64  `json:"loan_id"`
	PaidAmount int64  `json:"paid_amount"`
	PaidAt     int64  `json:"paid_at"`
	WasOnTime  bool   `json:"was_on_time"`
}
