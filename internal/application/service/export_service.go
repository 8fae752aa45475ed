package service

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

const (
	receiptsSheet  = "Receipts"
	lineItemsSheet = "Line Items"
	exportPageSize = 100
)

var receiptHeaders = []interface{}{
	"ID", "Date", "Vendor", "Customer", "Invoice ID", "VAT Number", "CR Number",
	"Subtotal", "Tax", "Total", "Status", "Expense Account", "External Expense ID",
}

var lineItemHeaders = []interface{}{
	"Receipt ID", "Item ID", "Description", "Quantity", "Unit Price", "Discount", "Amount",
}

// ExportService writes receipts to spreadsheets
type ExportService interface {
	ExportReceipts(ctx context.Context, filter port.ReceiptFilter, w io.Writer) (int, error)
}

type exportServiceImpl struct {
	repo   port.ReceiptRepository
	logger Logger
}

// NewExportService creates a new ExportService
func NewExportService(repo port.ReceiptRepository, logger Logger) ExportService {
	return &exportServiceImpl{repo: repo, logger: logger}
}

// ExportReceipts writes every receipt matching filter as an xlsx workbook,
// ignoring its paging fields. It returns the number of receipts written.
func (s *exportServiceImpl) ExportReceipts(ctx context.Context, filter port.ReceiptFilter, w io.Writer) (int, error) {
	receipts, err := s.collect(ctx, filter)
	if err != nil {
		return 0, err
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", receiptsSheet); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := file.NewSheet(lineItemsSheet); err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := s.fillReceipts(file, receipts); err != nil {
		return 0, err
	}
	if err := s.fillLineItems(file, receipts); err != nil {
		return 0, err
	}

	if _, err := file.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Receipts exported", "count", len(receipts))
	return len(receipts), nil
}

func (s *exportServiceImpl) collect(ctx context.Context, filter port.ReceiptFilter) ([]*entity.SavedReceipt, error) {
	filter.Limit = exportPageSize
	filter.Page = 0

	var all []*entity.SavedReceipt
	for {
		page, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list receipts: %w", err)
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			return all, nil
		}
		filter.Page++
	}
}

func (s *exportServiceImpl) fillReceipts(file *excelize.File, receipts []*entity.SavedReceipt) error {
	if err := file.SetSheetRow(receiptsSheet, "A1", &receiptHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	var subtotal, tax, total decimal.Decimal
	for i, r := range receipts {
		sub, vat, tot := s.amount(r, r.Subtotal), s.amount(r, r.TaxAmount), s.amount(r, r.Total)
		subtotal, tax, total = subtotal.Add(sub), tax.Add(vat), total.Add(tot)

		row := []interface{}{
			r.ID, r.Date, r.VendorName, r.CustomerName, r.InvoiceID, r.VATNumber, r.CRNumber,
			sub.InexactFloat64(), vat.InexactFloat64(), tot.InexactFloat64(),
			r.Status, r.ExpenseAccountCode, r.ExternalExpenseID,
		}
		if err := setRow(file, receiptsSheet, i+2, row); err != nil {
			return err
		}
	}

	totals := []interface{}{
		"Total", "", "", "", "", "", "",
		subtotal.InexactFloat64(), tax.InexactFloat64(), total.InexactFloat64(),
	}
	return setRow(file, receiptsSheet, len(receipts)+2, totals)
}

func (s *exportServiceImpl) fillLineItems(file *excelize.File, receipts []*entity.SavedReceipt) error {
	if err := file.SetSheetRow(lineItemsSheet, "A1", &lineItemHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	row := 2
	for _, r := range receipts {
		for _, item := range r.LineItems {
			values := []interface{}{
				r.ID, item.ID, item.Description, item.Quantity, item.UnitPrice, item.Discount, item.Amount,
			}
			if err := setRow(file, lineItemsSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

// amount parses a stored amount; unparsable values count as zero
func (s *exportServiceImpl) amount(r *entity.SavedReceipt, value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		s.logger.Warn("Unparsable amount in export", "id", r.ID, "value", value)
		return decimal.Zero
	}
	return d
}

func setRow(file *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := file.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
