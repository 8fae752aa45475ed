// Package zoho books expenses in Zoho Books.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/garyjia/receipt-ledger/internal/application/port"
)

// Config holds Zoho Books API settings
type Config struct {
	ClientID          string
	ClientSecret      string
	RefreshToken      string
	OrganizationID    string
	TokenURL          string
	APIDomain         string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client implements port.ExpenseSubmitter against the Zoho Books v3 API
type Client struct {
	http      *http.Client
	tokens    oauth2.TokenSource
	apiDomain string
	orgID     string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewClient creates a Zoho Books client that refreshes its access token
// from the configured refresh token
func NewClient(cfg Config, logger *zap.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		http:      httpClient,
		tokens:    oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken}),
		apiDomain: cfg.APIDomain,
		orgID:     cfg.OrganizationID,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// APIError is a non-2xx answer from Zoho Books
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoho books: status %d, code %d: %s", e.StatusCode, e.Code, e.Message)
}

type account struct {
	AccountID   string `json:"account_id"`
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
}

type tax struct {
	TaxID         string  `json:"tax_id"`
	TaxName       string  `json:"tax_name"`
	TaxPercentage float64 `json:"tax_percentage"`
}

// AccountID looks up the Zoho account id for an account code
func (c *Client) AccountID(ctx context.Context, code string) (string, error) {
	var resp struct {
		ChartOfAccounts []account `json:"chartofaccounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/books/v3/chartofaccounts", nil, "", &resp); err != nil {
		return "", fmt.Errorf("failed to fetch chart of accounts: %w", err)
	}

	for _, acc := range resp.ChartOfAccounts {
		if acc.AccountCode == code {
			return acc.AccountID, nil
		}
	}
	return "", fmt.Errorf("account code %s: %w", code, port.ErrNotFound)
}

// VATTaxID returns the 15% VAT tax, preferring the one named "Standard Rate"
func (c *Client) VATTaxID(ctx context.Context) (string, error) {
	var resp struct {
		Taxes []tax `json:"taxes"`
	}
	if err := c.do(ctx, http.MethodGet, "/books/v3/settings/taxes", nil, "", &resp); err != nil {
		return "", fmt.Errorf("failed to fetch taxes: %w", err)
	}

	var fallback string
	for _, t := range resp.Taxes {
		if t.TaxPercentage != 15 {
			continue
		}
		if t.TaxName == "Standard Rate" {
			return t.TaxID, nil
		}
		if fallback == "" {
			fallback = t.TaxID
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("no 15%% VAT tax configured: %w", port.ErrNotFound)
	}
	return fallback, nil
}

type expensePayload struct {
	Date                 string `json:"date"`
	AccountID            string `json:"account_id"`
	PaidThroughAccountID string `json:"paid_through_account_id"`
	VendorName           string `json:"vendor_name"`
	VendorVATNumber      string `json:"vendor_vat_number"`
	Amount               string `json:"amount"`
	TaxID                string `json:"tax_id"`
	IsInclusiveTax       bool   `json:"is_inclusive_tax"`
	TaxTreatment         string `json:"tax_treatment"`
	TaxScope             string `json:"tax_scope"`
	IsTaxPeriodValid     bool   `json:"is_tax_period_valid"`
	ReferenceNumber      string `json:"reference_number"`
	Description          string `json:"description"`
	IsBillable           bool   `json:"is_billable"`
	PaymentMode          string `json:"payment_mode"`
}

// SubmitExpense creates the expense and attaches the receipt file.
// A failed attachment is reported as a warning on the result.
func (c *Client) SubmitExpense(ctx context.Context, req port.ExpenseRequest) (*port.ExpenseResult, error) {
	taxID, err := c.VATTaxID(ctx)
	if err != nil {
		return nil, err
	}
	expenseAccountID, err := c.AccountID(ctx, req.ExpenseAccountCode)
	if err != nil {
		return nil, err
	}
	paidThroughID, err := c.AccountID(ctx, req.PaidThroughAccountCode)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(expensePayload{
		Date:                 req.Date,
		AccountID:            expenseAccountID,
		PaidThroughAccountID: paidThroughID,
		VendorName:           req.VendorName,
		VendorVATNumber:      req.VATNumber,
		Amount:               req.Amount,
		TaxID:                taxID,
		IsInclusiveTax:       true,
		TaxTreatment:         "vat_registered",
		TaxScope:             "within_ksa",
		IsTaxPeriodValid:     true,
		ReferenceNumber:      req.ReferenceNumber,
		Description:          req.Description,
		PaymentMode:          "cash",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode expense: %w", err)
	}

	var created struct {
		Expense struct {
			ExpenseID string `json:"expense_id"`
		} `json:"expense"`
	}
	if err := c.do(ctx, http.MethodPost, "/books/v3/expenses", bytes.NewReader(payload), "application/json", &created); err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	if created.Expense.ExpenseID == "" {
		return nil, fmt.Errorf("zoho books returned no expense id")
	}

	result := &port.ExpenseResult{ExpenseID: created.Expense.ExpenseID}
	c.logger.Info("Expense created in Zoho Books",
		zap.String("expense_id", result.ExpenseID),
		zap.String("vendor", req.VendorName),
		zap.String("amount", req.Amount))

	if req.Receipt == nil {
		return result, nil
	}

	if err := c.attachReceipt(ctx, result.ExpenseID, req.Receipt); err != nil {
		c.logger.Warn("Receipt upload failed",
			zap.String("expense_id", result.ExpenseID),
			zap.Error(err))
		result.Warning = "Expense created but receipt upload failed"
		return result, nil
	}
	result.ReceiptAttached = true
	return result, nil
}

func (c *Client) attachReceipt(ctx context.Context, expenseID string, doc *port.Document) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("receipt", doc.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	path := "/books/v3/expenses/" + url.PathEscape(expenseID) + "/receipt"
	return c.do(ctx, http.MethodPost, path, &body, writer.FormDataContentType(), nil)
}

// do sends an authenticated request and decodes the JSON answer into out
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}

	endpoint := c.apiDomain + path + "?organization_id=" + url.QueryEscape(c.orgID)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token.AccessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ port.ExpenseSubmitter = (*Client)(nil)
