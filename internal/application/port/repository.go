package port

import (
	"context"
	"errors"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// ErrNotFound is returned by repositories when a record does not exist
var ErrNotFound = errors.New("not found")

// ReceiptFilter narrows a receipt listing. Page is zero-based.
type ReceiptFilter struct {
	Vendor string
	Status string
	Page   int
	Limit  int
}

// ReceiptRepository defines persistence operations for SavedReceipt
type ReceiptRepository interface {
	Save(ctx context.Context, receipt *entity.SavedReceipt) error
	GetByID(ctx context.Context, id string) (*entity.SavedReceipt, error)
	List(ctx context.Context, filter ReceiptFilter) ([]*entity.SavedReceipt, int, error)
	Update(ctx context.Context, id string, update entity.ReceiptUpdate) (*entity.SavedReceipt, error)
	Delete(ctx context.Context, id string) error
}

// TransactionManager runs fn inside a transaction carried by the context.
// Nested calls join the outer transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
