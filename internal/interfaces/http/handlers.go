package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/application/service"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
	"github.com/garyjia/receipt-ledger/internal/extraction"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListReceiptsRequest represents query parameters for listing receipts
type ListReceiptsRequest struct {
	Vendor string `form:"vendor"`
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// AnalyzeReceipt handles POST /api/receipts/analyze
func (h *Handlers) AnalyzeReceipt(c *gin.Context) {
	doc, err := readUpload(c, "file")
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	var opts *entity.ExtractionOptions
	if raw := c.PostForm("extractionConfig"); raw != "" {
		opts = &entity.ExtractionOptions{}
		if err := json.Unmarshal([]byte(raw), opts); err != nil {
			h.badRequest(c, "invalid extractionConfig")
			return
		}
	}

	result, err := h.services.Receipts.Analyze(c.Request.Context(), doc, opts)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// CreateReceipt handles POST /api/receipts
func (h *Handlers) CreateReceipt(c *gin.Context) {
	doc, err := readUpload(c, "file")
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if !entity.IsSupportedMediaType(doc.MediaType) {
		h.badRequest(c, "Invalid file type. Please upload a PDF, PNG, or JPEG file.")
		return
	}
	if len(doc.Data) > entity.MaxUploadSize {
		h.badRequest(c, fmt.Sprintf("File size must be less than %dMB", entity.MaxUploadSize/(1024*1024)))
		return
	}

	var record entity.ReceiptRecord
	if err := json.Unmarshal([]byte(c.PostForm("receipt")), &record); err != nil {
		h.badRequest(c, "invalid receipt data")
		return
	}

	saved, err := h.services.Receipts.Create(c.Request.Context(), doc, record)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: saved})
}

// ListReceipts handles GET /api/receipts
func (h *Handlers) ListReceipts(c *gin.Context) {
	var req ListReceiptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	page, err := h.services.Receipts.List(c.Request.Context(), port.ReceiptFilter{
		Vendor: req.Vendor,
		Status: req.Status,
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: page})
}

// GetReceipt handles GET /api/receipts/:id
func (h *Handlers) GetReceipt(c *gin.Context) {
	receipt, err := h.services.Receipts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: receipt})
}

// UpdateReceipt handles PUT /api/receipts/:id
func (h *Handlers) UpdateReceipt(c *gin.Context) {
	var update entity.ReceiptUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	receipt, err := h.services.Receipts.Update(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: receipt})
}

// DeleteReceipt handles DELETE /api/receipts/:id
func (h *Handlers) DeleteReceipt(c *gin.Context) {
	if err := h.services.Receipts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// SubmitExpense handles POST /api/receipts/:id/expense
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var sub service.ExpenseSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.services.Receipts.SubmitExpense(c.Request.Context(), c.Param("id"), sub)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ExportReceipts handles GET /api/receipts/export
func (h *Handlers) ExportReceipts(c *gin.Context) {
	var req ListReceiptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	var buf bytes.Buffer
	if _, err := h.services.Export.ExportReceipts(c.Request.Context(), port.ReceiptFilter{
		Vendor: req.Vendor,
		Status: req.Status,
	}, &buf); err != nil {
		h.fail(c, err)
		return
	}

	filename := "receipts-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ListAccounts handles GET /api/accounts
func (h *Handlers) ListAccounts(c *gin.Context) {
	tree := h.services.Accounts.Search(c.Query("search"))
	c.JSON(http.StatusOK, Response{Success: true, Data: tree})
}

// ResolveAccount handles GET /api/accounts/resolve/:value
func (h *Handlers) ResolveAccount(c *gin.Context) {
	node, ok := h.services.Accounts.Resolve(c.Param("value"))
	if !ok {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "account not found"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: node})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// fail writes err with the status its kind maps to
func (h *Handlers) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", c.Request.URL.Path,
			"status", status,
			"error", err)
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

func statusFor(err error) (int, string) {
	var extErr *extraction.Error
	if errors.As(err, &extErr) {
		switch extErr.Kind {
		case extraction.KindThrottled:
			return http.StatusTooManyRequests, extErr.Message
		case extraction.KindMalformedRequest, extraction.KindInvalidInput:
			return http.StatusBadRequest, extErr.Message
		case extraction.KindEmptyExtraction, extraction.KindResponseShape:
			return http.StatusUnprocessableEntity, extErr.Message
		case extraction.KindModelUnavailable, extraction.KindQuotaExceeded:
			return http.StatusServiceUnavailable, extErr.Message
		}
	}

	switch {
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound, "receipt not found"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrAccountingDisabled):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// readUpload reads a multipart file field into a Document
func readUpload(c *gin.Context, field string) (port.Document, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return port.Document{}, errors.New("No file provided")
	}

	data, err := readFormFile(header)
	if err != nil {
		return port.Document{}, fmt.Errorf("failed to read uploaded file")
	}

	return port.Document{
		Name:      header.Filename,
		MediaType: mediaType(header.Header.Get("Content-Type"), data),
		Data:      data,
	}, nil
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// mediaType trusts the declared type unless it is missing or generic
func mediaType(declared string, data []byte) string {
	if parsed, _, err := mime.ParseMediaType(declared); err == nil && parsed != "application/octet-stream" {
		return parsed
	}
	detected, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return detected
}
