package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/application/service"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
	"github.com/garyjia/receipt-ledger/internal/extraction"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type stubReceipts struct {
	analyzeDoc  port.Document
	analyzeOpts *entity.ExtractionOptions
	analyzeErr  error
	created     *entity.ReceiptRecord
	filter      port.ReceiptFilter
	submission  service.ExpenseSubmission
	err         error
}

func (s *stubReceipts) Analyze(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*service.AnalysisResult, error) {
	s.analyzeDoc, s.analyzeOpts = doc, opts
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return &service.AnalysisResult{Receipt: entity.ReceiptRecord{VendorName: "Jarir", Total: "115"}}, nil
}

func (s *stubReceipts) Create(ctx context.Context, doc port.Document, record entity.ReceiptRecord) (*entity.SavedReceipt, error) {
	s.created = &record
	if s.err != nil {
		return nil, s.err
	}
	return &entity.SavedReceipt{ReceiptRecord: record, ID: "r-1", Status: entity.ReceiptStatusPending}, nil
}

func (s *stubReceipts) Get(ctx context.Context, id string) (*entity.SavedReceipt, error) {
	if id != "r-1" {
		return nil, fmt.Errorf("receipt %s: %w", id, port.ErrNotFound)
	}
	return &entity.SavedReceipt{ID: "r-1"}, nil
}

func (s *stubReceipts) List(ctx context.Context, filter port.ReceiptFilter) (*service.ReceiptPage, error) {
	s.filter = filter
	return &service.ReceiptPage{Receipts: []*entity.SavedReceipt{}, Page: filter.Page, Limit: 10}, nil
}

func (s *stubReceipts) Update(ctx context.Context, id string, update entity.ReceiptUpdate) (*entity.SavedReceipt, error) {
	r := &entity.SavedReceipt{ID: id}
	update.Apply(r)
	return r, nil
}

func (s *stubReceipts) Delete(ctx context.Context, id string) error {
	return s.err
}

func (s *stubReceipts) SubmitExpense(ctx context.Context, id string, sub service.ExpenseSubmission) (*service.SubmissionResult, error) {
	s.submission = sub
	if s.err != nil {
		return nil, s.err
	}
	return &service.SubmissionResult{ExpenseID: "exp-9"}, nil
}

type stubExport struct{}

func (stubExport) ExportReceipts(ctx context.Context, filter port.ReceiptFilter, w io.Writer) (int, error) {
	_, err := w.Write([]byte("PK-xlsx"))
	return 1, err
}

const ledger = `Expenses
     • [ 51010 ] Stationery
Assets
     • [ 11101 ] Cash on Hand
`

func newTestServer(receipts *stubReceipts) *Server {
	return NewServer(DefaultServerConfig(), Services{
		Receipts: receipts,
		Accounts: service.NewAccountServiceFromText(ledger, nil, nopLogger{}),
		Export:   stubExport{},
	}, nopLogger{})
}

func serve(s *Server, req *http.Request) (*httptest.ResponseRecorder, Response) {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func multipartRequest(t *testing.T, path, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="receipt.jpg"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	rec, resp := serve(newTestServer(&stubReceipts{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestAnalyzeReceipt(t *testing.T) {
	receipts := &stubReceipts{}
	s := newTestServer(receipts)

	req := multipartRequest(t, "/api/receipts/analyze", "image/jpeg", []byte("jpeg"), map[string]string{
		"extractionConfig": `{"extractLineItems":false}`,
	})
	rec, resp := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "image/jpeg", receipts.analyzeDoc.MediaType)
	assert.Equal(t, "receipt.jpg", receipts.analyzeDoc.Name)
	require.NotNil(t, receipts.analyzeOpts)
	require.NotNil(t, receipts.analyzeOpts.ExtractLineItems)
	assert.False(t, *receipts.analyzeOpts.ExtractLineItems)
	assert.Nil(t, receipts.analyzeOpts.ExtractTaxInfo)
}

func TestAnalyzeReceiptDetectsGenericContentType(t *testing.T) {
	receipts := &stubReceipts{}
	png := []byte("\x89PNG\r\n\x1a\n0000")

	rec, _ := serve(newTestServer(receipts), multipartRequest(t, "/api/receipts/analyze", "application/octet-stream", png, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", receipts.analyzeDoc.MediaType)
	assert.Nil(t, receipts.analyzeOpts)
}

func TestAnalyzeReceiptErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "throttled",
			err:    &extraction.Error{Kind: extraction.KindThrottled, Message: extraction.MsgThrottled},
			status: http.StatusTooManyRequests,
			msg:    extraction.MsgThrottled,
		},
		{
			name:   "invalid input",
			err:    &extraction.Error{Kind: extraction.KindInvalidInput, Message: "File size must be less than 5MB"},
			status: http.StatusBadRequest,
			msg:    "File size must be less than 5MB",
		},
		{
			name:   "empty extraction",
			err:    &extraction.Error{Kind: extraction.KindEmptyExtraction, Message: extraction.MsgEmptyExtraction},
			status: http.StatusUnprocessableEntity,
			msg:    extraction.MsgEmptyExtraction,
		},
		{
			name:   "quota",
			err:    &extraction.Error{Kind: extraction.KindQuotaExceeded, Message: extraction.MsgQuotaExceeded},
			status: http.StatusServiceUnavailable,
			msg:    extraction.MsgQuotaExceeded,
		},
		{
			name:   "unclassified",
			err:    errors.New("socket closed"),
			status: http.StatusInternalServerError,
			msg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubReceipts{analyzeErr: tt.err})
			rec, resp := serve(s, multipartRequest(t, "/api/receipts/analyze", "image/jpeg", []byte("jpeg"), nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Error)
		})
	}
}

func TestAnalyzeReceiptBadRequests(t *testing.T) {
	s := newTestServer(&stubReceipts{})

	rec, resp := serve(s, multipartRequest(t, "/api/receipts/analyze", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", resp.Error)

	rec, resp = serve(s, multipartRequest(t, "/api/receipts/analyze", "image/jpeg", []byte("x"), map[string]string{
		"extractionConfig": "{not json",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid extractionConfig", resp.Error)
}

func TestCreateReceipt(t *testing.T) {
	receipts := &stubReceipts{}
	s := newTestServer(receipts)

	req := multipartRequest(t, "/api/receipts", "image/jpeg", []byte("jpeg"), map[string]string{
		"receipt": `{"vendorName":"Jarir","date":"2024-03-01","total":"115"}`,
	})
	rec, resp := serve(s, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "Jarir", receipts.created.VendorName)
}

func TestCreateReceiptRejectsUnsupportedType(t *testing.T) {
	receipts := &stubReceipts{}
	req := multipartRequest(t, "/api/receipts", "text/plain", []byte("hello"), map[string]string{
		"receipt": `{"vendorName":"Jarir","date":"2024-03-01"}`,
	})
	rec, resp := serve(newTestServer(receipts), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error, "Invalid file type")
	assert.Nil(t, receipts.created)
}

func TestCreateReceiptValidationError(t *testing.T) {
	receipts := &stubReceipts{err: fmt.Errorf("%w: vendor name and date are required", service.ErrInvalidInput)}
	req := multipartRequest(t, "/api/receipts", "image/jpeg", []byte("jpeg"), map[string]string{"receipt": `{}`})
	rec, resp := serve(newTestServer(receipts), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error, "vendor name and date are required")
}

func TestListReceipts(t *testing.T) {
	receipts := &stubReceipts{}
	rec, resp := serve(newTestServer(receipts), httptest.NewRequest(http.MethodGet, "/api/receipts?vendor=jar&status=Pending&page=2&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, port.ReceiptFilter{Vendor: "jar", Status: "Pending", Page: 2, Limit: 5}, receipts.filter)

	rec, _ = serve(newTestServer(receipts), httptest.NewRequest(http.MethodGet, "/api/receipts?page=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReceipt(t *testing.T) {
	s := newTestServer(&stubReceipts{})

	rec, _ := serve(s, httptest.NewRequest(http.MethodGet, "/api/receipts/r-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/receipts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "receipt not found", resp.Error)
}

func TestUpdateReceipt(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/api/receipts/r-1", bytes.NewBufferString(`{"total":"99.5"}`))
	req.Header.Set("Content-Type", "application/json")

	rec, resp := serve(newTestServer(&stubReceipts{}), req)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "99.5", data["total"])
}

func TestDeleteReceipt(t *testing.T) {
	rec, _ := serve(newTestServer(&stubReceipts{}), httptest.NewRequest(http.MethodDelete, "/api/receipts/r-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	missing := &stubReceipts{err: port.ErrNotFound}
	rec, _ = serve(newTestServer(missing), httptest.NewRequest(http.MethodDelete, "/api/receipts/r-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitExpense(t *testing.T) {
	receipts := &stubReceipts{}
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/r-1/expense",
		bytes.NewBufferString(`{"expenseAccount":"51010","paidThroughAccount":"11101"}`))
	req.Header.Set("Content-Type", "application/json")

	rec, resp := serve(newTestServer(receipts), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "51010", receipts.submission.ExpenseAccount)

	conflict := &stubReceipts{err: service.ErrAlreadySubmitted}
	req = httptest.NewRequest(http.MethodPost, "/api/receipts/r-1/expense", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = serve(newTestServer(conflict), req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	disabled := &stubReceipts{err: service.ErrAccountingDisabled}
	req = httptest.NewRequest(http.MethodPost, "/api/receipts/r-1/expense", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = serve(newTestServer(disabled), req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExportReceipts(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&stubReceipts{}).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receipts/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "PK-xlsx", rec.Body.String())
}

func TestAccounts(t *testing.T) {
	s := newTestServer(&stubReceipts{})

	rec, resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/accounts?search=cash", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	tree := resp.Data.([]interface{})
	require.Len(t, tree, 1)
	assert.Equal(t, "Assets", tree[0].(map[string]interface{})["label"])

	rec, resp = serve(s, httptest.NewRequest(http.MethodGet, "/api/accounts/resolve/51010", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stationery", resp.Data.(map[string]interface{})["label"])

	rec, _ = serve(s, httptest.NewRequest(http.MethodGet, "/api/accounts/resolve/00000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&stubReceipts{}).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/receipts", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServesStoredFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "receipts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "receipts", "a.jpg"), []byte("jpeg"), 0644))

	cfg := DefaultServerConfig()
	cfg.FilesRoute = "/files"
	cfg.FilesDir = dir
	s := NewServer(cfg, Services{Receipts: &stubReceipts{}}, nopLogger{})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/receipts/a.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
}
