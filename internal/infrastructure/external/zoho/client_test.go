package zoho

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
)

type fakeBooks struct {
	t             *testing.T
	tokenRequests atomic.Int32
	expense       map[string]any
	receiptName   string
	failUpload    bool
	taxes         string
}

func (f *fakeBooks) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		assert.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, "refresh-1", r.PostForm.Get("refresh_token"))
		assert.Equal(f.t, "client-1", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`)
	})

	authorized := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(f.t, "Zoho-oauthtoken access-1", r.Header.Get("Authorization"))
			assert.Equal(f.t, "org-1", r.URL.Query().Get("organization_id"))
			next(w, r)
		}
	}

	mux.HandleFunc("/books/v3/settings/taxes", authorized(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, f.taxes)
	}))

	mux.HandleFunc("/books/v3/chartofaccounts", authorized(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"chartofaccounts":[
			{"account_id":"acc-100","account_code":"51010","account_name":"Travel"},
			{"account_id":"acc-200","account_code":"11101","account_name":"Petty Cash"}
		]}`)
	}))

	mux.HandleFunc("/books/v3/expenses", authorized(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, http.MethodPost, r.Method)
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.expense))
		io.WriteString(w, `{"code":0,"expense":{"expense_id":"exp-9"}}`)
	}))

	mux.HandleFunc("/books/v3/expenses/exp-9/receipt", authorized(func(w http.ResponseWriter, r *http.Request) {
		if f.failUpload {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"code":1,"message":"bad file"}`)
			return
		}
		file, header, err := r.FormFile("receipt")
		if assert.NoError(f.t, err) {
			defer file.Close()
			f.receiptName = header.Filename
		}
		io.WriteString(w, `{"code":0}`)
	}))

	return mux
}

func newTestClient(t *testing.T, books *fakeBooks) *Client {
	t.Helper()
	server := httptest.NewServer(books.handler())
	t.Cleanup(server.Close)

	return NewClient(Config{
		ClientID:       "client-1",
		ClientSecret:   "secret-1",
		RefreshToken:   "refresh-1",
		OrganizationID: "org-1",
		TokenURL:       server.URL + "/oauth/v2/token",
		APIDomain:      server.URL,
		Timeout:        5 * time.Second,
	}, zap.NewNop())
}

func submission() port.ExpenseRequest {
	return port.ExpenseRequest{
		Date:                   "2024-03-01",
		VendorName:             "Jarir Bookstore",
		VATNumber:              "300000000000003",
		Amount:                 "115.00",
		ExpenseAccountCode:     "51010",
		PaidThroughAccountCode: "11101",
		ReferenceNumber:        "INV-7",
		Description:            "Stationery",
		Receipt:                &port.Document{Name: "receipt.jpg", MediaType: "image/jpeg", Data: []byte("jpeg")},
	}
}

const standardTaxes = `{"taxes":[
	{"tax_id":"tax-5","tax_name":"Reduced","tax_percentage":5},
	{"tax_id":"tax-15a","tax_name":"VAT 15","tax_percentage":15},
	{"tax_id":"tax-std","tax_name":"Standard Rate","tax_percentage":15}
]}`

func TestSubmitExpense(t *testing.T) {
	books := &fakeBooks{t: t, taxes: standardTaxes}
	client := newTestClient(t, books)

	result, err := client.SubmitExpense(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, "exp-9", result.ExpenseID)
	assert.True(t, result.ReceiptAttached)
	assert.Empty(t, result.Warning)
	assert.Equal(t, "receipt.jpg", books.receiptName)
	assert.Equal(t, int32(1), books.tokenRequests.Load())

	assert.Equal(t, "acc-100", books.expense["account_id"])
	assert.Equal(t, "acc-200", books.expense["paid_through_account_id"])
	assert.Equal(t, "tax-std", books.expense["tax_id"])
	assert.Equal(t, "115.00", books.expense["amount"])
	assert.Equal(t, "INV-7", books.expense["reference_number"])
	assert.Equal(t, true, books.expense["is_inclusive_tax"])
	assert.Equal(t, "within_ksa", books.expense["tax_scope"])
	assert.Equal(t, "cash", books.expense["payment_mode"])
}

func TestSubmitExpenseUploadFailureIsWarning(t *testing.T) {
	books := &fakeBooks{t: t, taxes: standardTaxes, failUpload: true}
	client := newTestClient(t, books)

	result, err := client.SubmitExpense(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, "exp-9", result.ExpenseID)
	assert.False(t, result.ReceiptAttached)
	assert.Equal(t, "Expense created but receipt upload failed", result.Warning)
}

func TestSubmitExpenseUnknownAccount(t *testing.T) {
	books := &fakeBooks{t: t, taxes: standardTaxes}
	client := newTestClient(t, books)

	req := submission()
	req.ExpenseAccountCode = "99999"

	_, err := client.SubmitExpense(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.Nil(t, books.expense)
}

func TestVATTaxID(t *testing.T) {
	tests := []struct {
		name    string
		taxes   string
		want    string
		wantErr bool
	}{
		{name: "prefers standard rate", taxes: standardTaxes, want: "tax-std"},
		{
			name:  "falls back to any 15 percent",
			taxes: `{"taxes":[{"tax_id":"tax-5","tax_percentage":5},{"tax_id":"tax-15","tax_name":"VAT","tax_percentage":15}]}`,
			want:  "tax-15",
		},
		{
			name:    "no 15 percent tax",
			taxes:   `{"taxes":[{"tax_id":"tax-5","tax_percentage":5}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, &fakeBooks{t: t, taxes: tt.taxes})

			got, err := client.VATTaxID(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, port.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"access_token":"a","token_type":"Bearer","expires_in":3600}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"code":57,"message":"You are not authorized to perform this operation"}`)
	}))
	defer server.Close()

	client := NewClient(Config{
		RefreshToken: "r",
		TokenURL:     server.URL + "/token",
		APIDomain:    server.URL,
	}, zap.NewNop())

	_, err := client.AccountID(context.Background(), "51010")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, 57, apiErr.Code)
}
