package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/persistence/sqlite"
)

// DefaultPageSize is used when a listing does not set a limit
const DefaultPageSize = 10

const receiptColumns = `
	id, vendor_name, customer_name, receipt_date, total, tax_amount, subtotal,
	invoice_id, vat_number, cr_number, line_items, file_key, file_url, status,
	expense_account_code, external_expense_id, created_at, updated_at`

// ReceiptRepository implements port.ReceiptRepository on sqlite
type ReceiptRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sqlite.DB, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save inserts a new receipt, assigning its ID, status and timestamps
func (r *ReceiptRepository) Save(ctx context.Context, receipt *entity.SavedReceipt) error {
	if strings.TrimSpace(receipt.VendorName) == "" || strings.TrimSpace(receipt.Date) == "" || receipt.FileKey == "" {
		return fmt.Errorf("vendor name, date and file key are required")
	}

	id := uuid.NewString()
	status := receipt.Status
	if status == "" {
		status = entity.ReceiptStatusPending
	}
	items := receipt.LineItems
	if items == nil {
		items = []entity.LineItem{}
	}
	now := r.now()

	lineItems, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}

	query := `INSERT INTO receipts (` + receiptColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		id,
		receipt.VendorName,
		receipt.CustomerName,
		receipt.Date,
		receipt.Total,
		receipt.TaxAmount,
		receipt.Subtotal,
		receipt.InvoiceID,
		receipt.VATNumber,
		receipt.CRNumber,
		string(lineItems),
		receipt.FileKey,
		receipt.FileURL,
		status,
		receipt.ExpenseAccountCode,
		receipt.ExternalExpenseID,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to save receipt",
			zap.String("vendor", receipt.VendorName),
			zap.Error(err))
		return fmt.Errorf("failed to save receipt: %w", err)
	}

	receipt.ID = id
	receipt.Status = status
	receipt.LineItems = items
	receipt.CreatedAt = now
	receipt.UpdatedAt = now
	return nil
}

// GetByID returns the receipt with the given ID or port.ErrNotFound
func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*entity.SavedReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

	receipt, err := scanReceipt(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", id, port.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// List returns one page of receipts, newest first, and the total number of matches
func (r *ReceiptRepository) List(ctx context.Context, filter port.ReceiptFilter) ([]*entity.SavedReceipt, int, error) {
	var conditions []string
	var args []any

	if filter.Vendor != "" {
		conditions = append(conditions, `LOWER(vendor_name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Vendor))+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, `LOWER(status) = ?`)
		args = append(args, strings.ToLower(filter.Status))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	exec := r.db.Executor(ctx)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	page := filter.Page
	if page < 0 {
		page = 0
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts` + where +
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := exec.QueryContext(ctx, query, append(args, limit, page*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*entity.SavedReceipt, 0, limit)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return receipts, total, nil
}

// Update applies a partial update and returns the stored result
func (r *ReceiptRepository) Update(ctx context.Context, id string, update entity.ReceiptUpdate) (*entity.SavedReceipt, error) {
	var updated *entity.SavedReceipt

	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		receipt, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}

		update.Apply(receipt)
		receipt.UpdatedAt = r.now()

		lineItems, err := json.Marshal(receipt.LineItems)
		if err != nil {
			return fmt.Errorf("failed to encode line items: %w", err)
		}

		query := `
			UPDATE receipts SET
				vendor_name = ?, customer_name = ?, receipt_date = ?, total = ?,
				tax_amount = ?, subtotal = ?, invoice_id = ?, vat_number = ?,
				cr_number = ?, line_items = ?, status = ?, expense_account_code = ?,
				external_expense_id = ?, updated_at = ?
			WHERE id = ?`

		_, err = r.db.Executor(ctx).ExecContext(ctx, query,
			receipt.VendorName,
			receipt.CustomerName,
			receipt.Date,
			receipt.Total,
			receipt.TaxAmount,
			receipt.Subtotal,
			receipt.InvoiceID,
			receipt.VATNumber,
			receipt.CRNumber,
			string(lineItems),
			receipt.Status,
			receipt.ExpenseAccountCode,
			receipt.ExternalExpenseID,
			receipt.UpdatedAt,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to update receipt: %w", err)
		}

		updated = receipt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a receipt; missing receipts yield port.ErrNotFound
func (r *ReceiptRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM receipts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("receipt %s: %w", id, port.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*entity.SavedReceipt, error) {
	var receipt entity.SavedReceipt
	var lineItems string

	err := row.Scan(
		&receipt.ID,
		&receipt.VendorName,
		&receipt.CustomerName,
		&receipt.Date,
		&receipt.Total,
		&receipt.TaxAmount,
		&receipt.Subtotal,
		&receipt.InvoiceID,
		&receipt.VATNumber,
		&receipt.CRNumber,
		&lineItems,
		&receipt.FileKey,
		&receipt.FileURL,
		&receipt.Status,
		&receipt.ExpenseAccountCode,
		&receipt.ExternalExpenseID,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(lineItems), &receipt.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	if receipt.LineItems == nil {
		receipt.LineItems = []entity.LineItem{}
	}
	return &receipt, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ port.ReceiptRepository = (*ReceiptRepository)(nil)
