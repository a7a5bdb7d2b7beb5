package models

// PlatformStats represents platform-wide lending statistics
type PlatformStats struct {
	TotalUsers    int64 `json:"total_users"`
	TotalLoans    int64 `json:"total_loans"`
	OpenLoans     int64 `json:"open_loans"`
	OverdueLoans  int64 `json:"overdue_loans"`
	TotalBorrowed int64 `json:"total_borrowed"`
	TotalRepaid   int64 `json:"total_repaid"`
}
