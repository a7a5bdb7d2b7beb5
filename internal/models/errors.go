package models

// Error is a stable, machine-checkable failure returned by the public
// operations. Callers branch on Code; handlers map codes to HTTP statuses.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

var (
	ErrNotAuthorized     = &Error{Code: "NOT_AUTHORIZED", Message: "caller is not the loan borrower"}
	ErrInvalidAmount     = &Error{Code: "INVALID_AMOUNT", Message: "payment amount must be positive"}
	ErrInsufficientScore = &Error{Code: "INSUFFICIENT_SCORE", Message: "credit score too low for a loan"}
	ErrLoanNotFound      = &Error{Code: "LOAN_NOT_FOUND", Message: "loan not found"}
	ErrAlreadyPaid       = &Error{Code: "ALREADY_PAID", Message: "loan is already repaid"}
	ErrInvalidParameter  = &Error{Code: "INVALID_PARAMETER", Message: "invalid loan parameters"}

	// ErrProfileCreation should be unreachable; profile creation has no
	// validation that can fail. Kept as a fallback for storage faults.
	ErrProfileCreation = &Error{Code: "PROFILE_CREATION_FAILED", Message: "failed to create credit profile"}
)
