package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

var nonAmountChars = regexp.MustCompile(`[^\d.\-]`)

// CleanAmount strips everything but digits, '.' and '-' from an amount.
// Numbers are formatted in their shortest form. Absent or unusable values
// become "0".
func CleanAmount(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "0"
	case string:
		s = val
	case json.Number:
		s = numberString(val)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	default:
		return "0"
	}

	cleaned := nonAmountChars.ReplaceAllString(s, "")
	if cleaned == "" {
		return "0"
	}
	return cleaned
}

// numberString expands exponent notation so cleaning keeps the value
func numberString(n json.Number) string {
	s := n.String()
	if !strings.ContainsAny(s, "eE") {
		return s
	}
	f, err := n.Float64()
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Validate normalizes a raw model object into a ReceiptRecord. Missing text
// fields become "", missing amounts "0" and missing line items an empty list.
func Validate(raw map[string]any) entity.ReceiptRecord {
	rec := entity.ReceiptRecord{
		VendorName:   textField(raw, "vendorName"),
		CustomerName: textField(raw, "customerName"),
		Date:         textField(raw, "date"),
		Total:        amountField(raw, "total"),
		TaxAmount:    amountField(raw, "taxAmount"),
		Subtotal:     amountField(raw, "subtotal"),
		InvoiceID:    textField(raw, "invoiceId"),
		VATNumber:    textField(raw, "vatNumber"),
		CRNumber:     textField(raw, "crNumber"),
		LineItems:    []entity.LineItem{},
	}

	items, _ := raw["lineItems"].([]any)
	for i, item := range items {
		m, _ := item.(map[string]any)
		id := textField(m, "id")
		if id == "" {
			id = fmt.Sprintf("item-%d", i)
		}
		rec.LineItems = append(rec.LineItems, entity.LineItem{
			ID:          id,
			Description: textField(m, "description"),
			Quantity:    numberField(m, "quantity", 1),
			UnitPrice:   numberField(m, "unitPrice", 0),
			Amount:      numberField(m, "amount", 0),
			Discount:    numberField(m, "discount", 0),
		})
	}
	return rec
}

// IsEmptyExtraction reports whether nothing useful was read from the receipt
func IsEmptyExtraction(rec entity.ReceiptRecord) bool {
	if strings.TrimSpace(rec.VendorName) != "" || len(rec.LineItems) > 0 {
		return false
	}
	total, err := decimal.NewFromString(rec.Total)
	if err != nil {
		return true
	}
	return total.IsZero()
}

func textField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func amountField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return "0"
	}
	if b, isBool := v.(bool); isBool && !b {
		return "0"
	}
	return CleanAmount(v)
}

func numberField(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return def
		}
		f, err := strconv.ParseFloat(CleanAmount(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return def
	}
}
