package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
	"github.com/garyjia/receipt-ledger/internal/extraction"
)

// Extractor reads receipt fields from an uploaded document
type Extractor interface {
	Extract(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*entity.ReceiptRecord, error)
}

// AnalysisResult is an extracted receipt plus line items whose amounts do
// not add up
type AnalysisResult struct {
	Receipt  entity.ReceiptRecord          `json:"receipt"`
	Warnings []extraction.LineItemMismatch `json:"warnings,omitempty"`
}

// ReceiptPage is one page of a receipt listing
type ReceiptPage struct {
	Receipts []*entity.SavedReceipt `json:"receipts"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	Limit    int                    `json:"limit"`
}

// ExpenseSubmission selects the ledger accounts an expense is booked against.
// Account values are codes or node ids from the chart of accounts.
type ExpenseSubmission struct {
	ExpenseAccount     string `json:"expenseAccount"`
	PaidThroughAccount string `json:"paidThroughAccount"`
	Description        string `json:"description"`
}

// SubmissionResult is the outcome of booking a receipt
type SubmissionResult struct {
	Receipt         *entity.SavedReceipt `json:"receipt"`
	ExpenseID       string               `json:"expenseId"`
	ReceiptAttached bool                 `json:"receiptAttached"`
	Warning         string               `json:"warning,omitempty"`
}

// ReceiptService manages receipts from upload to bookkeeping
type ReceiptService interface {
	Analyze(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*AnalysisResult, error)
	Create(ctx context.Context, doc port.Document, record entity.ReceiptRecord) (*entity.SavedReceipt, error)
	Get(ctx context.Context, id string) (*entity.SavedReceipt, error)
	List(ctx context.Context, filter port.ReceiptFilter) (*ReceiptPage, error)
	Update(ctx context.Context, id string, update entity.ReceiptUpdate) (*entity.SavedReceipt, error)
	Delete(ctx context.Context, id string) error
	SubmitExpense(ctx context.Context, id string, sub ExpenseSubmission) (*SubmissionResult, error)
}

const defaultPageSize = 10

type receiptServiceImpl struct {
	extractor Extractor
	repo      port.ReceiptRepository
	storage   port.FileStorage
	accounts  AccountService
	submitter port.ExpenseSubmitter
	logger    Logger
}

// NewReceiptService creates a new ReceiptService. submitter may be nil when
// no accounting system is configured.
func NewReceiptService(
	extractor Extractor,
	repo port.ReceiptRepository,
	storage port.FileStorage,
	accounts AccountService,
	submitter port.ExpenseSubmitter,
	logger Logger,
) ReceiptService {
	return &receiptServiceImpl{
		extractor: extractor,
		repo:      repo,
		storage:   storage,
		accounts:  accounts,
		submitter: submitter,
		logger:    logger,
	}
}

// Analyze extracts receipt fields without storing anything
func (s *receiptServiceImpl) Analyze(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*AnalysisResult, error) {
	s.logger.Info("Analyzing receipt", "file", doc.Name, "media_type", doc.MediaType, "size", len(doc.Data))

	record, err := s.extractor.Extract(ctx, doc, opts)
	if err != nil {
		s.logger.Error("Receipt extraction failed", "file", doc.Name, "error", err)
		return nil, err
	}

	result := &AnalysisResult{Receipt: *record}
	if mismatches := extraction.LineItemMismatches(record.LineItems); len(mismatches) > 0 {
		s.logger.Warn("Line item amounts do not match quantity and unit price",
			"file", doc.Name,
			"mismatches", len(mismatches))
		result.Warnings = mismatches
	}
	return result, nil
}

// Create stores the receipt file and saves the record with status Pending
func (s *receiptServiceImpl) Create(ctx context.Context, doc port.Document, record entity.ReceiptRecord) (*entity.SavedReceipt, error) {
	if strings.TrimSpace(record.VendorName) == "" || strings.TrimSpace(record.Date) == "" {
		return nil, fmt.Errorf("%w: vendor name and date are required", ErrInvalidInput)
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: receipt file is required", ErrInvalidInput)
	}

	key, err := s.storage.Put(ctx, doc.Name, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt file: %w", err)
	}

	saved := &entity.SavedReceipt{
		ReceiptRecord: record,
		FileKey:       key,
		FileURL:       s.storage.URL(key),
	}
	if err := s.repo.Save(ctx, saved); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Error("Failed to remove orphaned receipt file", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	s.logger.Info("Receipt saved", "id", saved.ID, "vendor", saved.VendorName, "file_key", key)
	return saved, nil
}

func (s *receiptServiceImpl) Get(ctx context.Context, id string) (*entity.SavedReceipt, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of receipts. Page is zero-based.
func (s *receiptServiceImpl) List(ctx context.Context, filter port.ReceiptFilter) (*ReceiptPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Page < 0 {
		filter.Page = 0
	}

	receipts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = []*entity.SavedReceipt{}
	}
	return &ReceiptPage{Receipts: receipts, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *receiptServiceImpl) Update(ctx context.Context, id string, update entity.ReceiptUpdate) (*entity.SavedReceipt, error) {
	if update.VendorName != nil && strings.TrimSpace(*update.VendorName) == "" {
		return nil, fmt.Errorf("%w: vendor name cannot be empty", ErrInvalidInput)
	}
	if update.Date != nil && strings.TrimSpace(*update.Date) == "" {
		return nil, fmt.Errorf("%w: date cannot be empty", ErrInvalidInput)
	}
	return s.repo.Update(ctx, id, update)
}

// Delete removes the record and then its stored file
func (s *receiptServiceImpl) Delete(ctx context.Context, id string) error {
	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, receipt.FileKey); err != nil {
		s.logger.Error("Failed to delete receipt file", "id", id, "key", receipt.FileKey, "error", err)
	}

	s.logger.Info("Receipt deleted", "id", id)
	return nil
}

// SubmitExpense books a saved receipt in the accounting system
func (s *receiptServiceImpl) SubmitExpense(ctx context.Context, id string, sub ExpenseSubmission) (*SubmissionResult, error) {
	if s.submitter == nil {
		return nil, ErrAccountingDisabled
	}

	receipt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt.Status == entity.ReceiptStatusSubmitted {
		return nil, fmt.Errorf("%w: expense %s", ErrAlreadySubmitted, receipt.ExternalExpenseID)
	}

	expenseCode, err := s.accountCode(sub.ExpenseAccount)
	if err != nil {
		return nil, err
	}
	paidThroughCode, err := s.accountCode(sub.PaidThroughAccount)
	if err != nil {
		return nil, err
	}

	description := sub.Description
	if description == "" {
		description = "Receipt from " + receipt.VendorName
	}

	req := port.ExpenseRequest{
		Date:                   receipt.Date,
		VendorName:             receipt.VendorName,
		VATNumber:              receipt.VATNumber,
		Amount:                 receipt.Total,
		ExpenseAccountCode:     expenseCode,
		PaidThroughAccountCode: paidThroughCode,
		ReferenceNumber:        receipt.InvoiceID,
		Description:            description,
		Receipt:                s.loadReceiptFile(ctx, receipt),
	}

	result, err := s.submitter.SubmitExpense(ctx, req)
	if err != nil {
		s.logger.Error("Expense submission failed", "id", id, "error", err)
		failed := entity.ReceiptStatusFailed
		if _, updErr := s.repo.Update(ctx, id, entity.ReceiptUpdate{Status: &failed}); updErr != nil {
			s.logger.Error("Failed to mark receipt as failed", "id", id, "error", updErr)
		}
		return nil, fmt.Errorf("failed to submit expense: %w", err)
	}

	submitted := entity.ReceiptStatusSubmitted
	updated, err := s.repo.Update(ctx, id, entity.ReceiptUpdate{
		Status:             &submitted,
		ExpenseAccountCode: &expenseCode,
		ExternalExpenseID:  &result.ExpenseID,
	})
	if err != nil {
		return nil, fmt.Errorf("expense %s created but receipt update failed: %w", result.ExpenseID, err)
	}

	s.logger.Info("Expense submitted",
		"id", id,
		"expense_id", result.ExpenseID,
		"receipt_attached", result.ReceiptAttached)

	return &SubmissionResult{
		Receipt:         updated,
		ExpenseID:       result.ExpenseID,
		ReceiptAttached: result.ReceiptAttached,
		Warning:         result.Warning,
	}, nil
}

// accountCode resolves a ledger selection to an account code
func (s *receiptServiceImpl) accountCode(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: account selection is required", ErrInvalidInput)
	}
	node, ok := s.accounts.Resolve(value)
	if !ok {
		return "", fmt.Errorf("%w: unknown account %q", ErrInvalidInput, value)
	}
	if node.Code == "" {
		return "", fmt.Errorf("%w: account %q has no code", ErrInvalidInput, node.Label)
	}
	return node.Code, nil
}

// loadReceiptFile returns the stored file, or nil when it cannot be read
func (s *receiptServiceImpl) loadReceiptFile(ctx context.Context, receipt *entity.SavedReceipt) *port.Document {
	data, err := s.storage.Get(ctx, receipt.FileKey)
	if err != nil {
		level := s.logger.Error
		if errors.Is(err, port.ErrNotFound) {
			level = s.logger.Warn
		}
		level("Receipt file unavailable, submitting without attachment", "id", receipt.ID, "error", err)
		return nil
	}

	name := path.Base(receipt.FileKey)
	return &port.Document{
		Name:      name,
		MediaType: mime.TypeByExtension(path.Ext(name)),
		Data:      data,
	}
}
