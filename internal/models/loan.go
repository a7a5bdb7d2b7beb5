package models

// Loan represents a collateralized loan. All fields except IsPaid and
// Defaulted are fixed at origination; IsPaid and Defaulted transition from
// false to true at most once and never revert. Loans are never deleted.
type Loan struct {
	ID               int64  `json:"id"`
	Borrower         string `json:"borrower"`
	Amount           int64  `json:"amount"`
	CollateralAmount int64  `json:"collateral_amount"`
	InterestRate     int64  `json:"interest_rate"`
	DueAt            int64  `json:"due_at"`
	IsPaid           bool   `json:"is_paid"`
	Defaulted        bool   `json:"defaulted"`
	CreatedAt        int64  `json:"created_at"`
}

// LoanOffer is returned by a successful loan application.
type LoanOffer struct {
	LoanID       int64 `json:"loan_id"`
	InterestRate int64 `json:"interest_rate"`
}
