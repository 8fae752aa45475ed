package port

import "context"

// ExpenseRequest is an expense ready to be booked in the accounting system.
// Account fields carry canonical account codes, not provider ids.
type ExpenseRequest struct {
	Date                   string
	VendorName             string
	VATNumber              string
	Amount                 string
	ExpenseAccountCode     string
	PaidThroughAccountCode string
	ReferenceNumber        string
	Description            string
	Receipt                *Document
}

// ExpenseResult is the outcome of an expense submission.
// Warning is set when the expense was created but a secondary step failed.
type ExpenseResult struct {
	ExpenseID       string
	ReceiptAttached bool
	Warning         string
}

// ExpenseSubmitter books expenses in an external accounting system
type ExpenseSubmitter interface {
	SubmitExpense(ctx context.Context, req ExpenseRequest) (*ExpenseResult, error)
}
