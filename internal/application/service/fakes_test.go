package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{})  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, keysAndValues ...interface{})  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) { l.record("error", msg) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type fakeRepo struct {
	order    []string
	receipts map[string]*entity.SavedReceipt
	saveErr  error
	nextID   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{receipts: map[string]*entity.SavedReceipt{}}
}

func (r *fakeRepo) Save(ctx context.Context, receipt *entity.SavedReceipt) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.nextID++
	receipt.ID = fmt.Sprintf("r-%d", r.nextID)
	if receipt.Status == "" {
		receipt.Status = entity.ReceiptStatusPending
	}
	stored := *receipt
	r.receipts[receipt.ID] = &stored
	r.order = append(r.order, receipt.ID)
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*entity.SavedReceipt, error) {
	receipt, ok := r.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, port.ErrNotFound)
	}
	copied := *receipt
	return &copied, nil
}

func (r *fakeRepo) List(ctx context.Context, filter port.ReceiptFilter) ([]*entity.SavedReceipt, int, error) {
	var matched []*entity.SavedReceipt
	for _, id := range r.order {
		receipt, ok := r.receipts[id]
		if !ok {
			continue
		}
		if filter.Vendor != "" && !strings.Contains(strings.ToLower(receipt.VendorName), strings.ToLower(filter.Vendor)) {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(receipt.Status, filter.Status) {
			continue
		}
		matched = append(matched, receipt)
	}

	start := filter.Page * filter.Limit
	if start >= len(matched) {
		return nil, len(matched), nil
	}
	end := min(start+filter.Limit, len(matched))
	return matched[start:end], len(matched), nil
}

func (r *fakeRepo) Update(ctx context.Context, id string, update entity.ReceiptUpdate) (*entity.SavedReceipt, error) {
	receipt, ok := r.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, port.ErrNotFound)
	}
	update.Apply(receipt)
	copied := *receipt
	return &copied, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.receipts[id]; !ok {
		return fmt.Errorf("receipt %s: %w", id, port.ErrNotFound)
	}
	delete(r.receipts, id)
	return nil
}

type fakeStorage struct {
	files map[string][]byte
	n     int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: map[string][]byte{}}
}

func (s *fakeStorage) Put(ctx context.Context, filename string, content []byte) (string, error) {
	s.n++
	ext := filename[strings.LastIndex(filename, "."):]
	key := fmt.Sprintf("receipts/file-%d%s", s.n, ext)
	s.files[key] = content
	return key, nil
}

func (s *fakeStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", key, port.ErrNotFound)
	}
	return data, nil
}

func (s *fakeStorage) URL(key string) string { return "/files/" + key }

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	delete(s.files, key)
	return nil
}

type fakeExtractor struct {
	record *entity.ReceiptRecord
	err    error
	opts   *entity.ExtractionOptions
}

func (e *fakeExtractor) Extract(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*entity.ReceiptRecord, error) {
	e.opts = opts
	if e.err != nil {
		return nil, e.err
	}
	copied := *e.record
	return &copied, nil
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) SubmitExpense(ctx context.Context, req port.ExpenseRequest) (*port.ExpenseResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*port.ExpenseResult)
	return result, args.Error(1)
}
