package entity

import "time"

// ReceiptRecord is the validated, normalized result of a receipt extraction.
// Amount fields are kept as cleaned decimal strings.
type ReceiptRecord struct {
	VendorName   string     `json:"vendorName"`
	CustomerName string     `json:"customerName"`
	Date         string     `json:"date"`
	Total        string     `json:"total"`
	TaxAmount    string     `json:"taxAmount"`
	Subtotal     string     `json:"subtotal"`
	InvoiceID    string     `json:"invoiceId"`
	VATNumber    string     `json:"vatNumber"`
	CRNumber     string     `json:"crNumber"`
	LineItems    []LineItem `json:"lineItems"`
}

// LineItem is a single row of a receipt
type LineItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
	Discount    float64 `json:"discount"`
}

// SavedReceipt is a persisted receipt together with its stored file
type SavedReceipt struct {
	ReceiptRecord
	ID                 string    `json:"id"`
	FileKey            string    `json:"fileKey"`
	FileURL            string    `json:"fileUrl"`
	Status             string    `json:"status"`
	ExpenseAccountCode string    `json:"expenseAccountCode,omitempty"`
	ExternalExpenseID  string    `json:"externalExpenseId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ReceiptUpdate carries a partial update; nil fields are left untouched
type ReceiptUpdate struct {
	VendorName         *string     `json:"vendorName,omitempty"`
	CustomerName       *string     `json:"customerName,omitempty"`
	Date               *string     `json:"date,omitempty"`
	Total              *string     `json:"total,omitempty"`
	TaxAmount          *string     `json:"taxAmount,omitempty"`
	Subtotal           *string     `json:"subtotal,omitempty"`
	InvoiceID          *string     `json:"invoiceId,omitempty"`
	VATNumber          *string     `json:"vatNumber,omitempty"`
	CRNumber           *string     `json:"crNumber,omitempty"`
	LineItems          *[]LineItem `json:"lineItems,omitempty"`
	Status             *string     `json:"status,omitempty"`
	ExpenseAccountCode *string     `json:"expenseAccountCode,omitempty"`
	ExternalExpenseID  *string     `json:"externalExpenseId,omitempty"`
}

// Apply copies every non-nil field of u onto r
func (u ReceiptUpdate) Apply(r *SavedReceipt) {
	setString(&r.VendorName, u.VendorName)
	setString(&r.CustomerName, u.CustomerName)
	setString(&r.Date, u.Date)
	setString(&r.Total, u.Total)
	setString(&r.TaxAmount, u.TaxAmount)
	setString(&r.Subtotal, u.Subtotal)
	setString(&r.InvoiceID, u.InvoiceID)
	setString(&r.VATNumber, u.VATNumber)
	setString(&r.CRNumber, u.CRNumber)
	setString(&r.Status, u.Status)
	setString(&r.ExpenseAccountCode, u.ExpenseAccountCode)
	setString(&r.ExternalExpenseID, u.ExternalExpenseID)
	if u.LineItems != nil {
		r.LineItems = append([]LineItem(nil), (*u.LineItems)...)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
