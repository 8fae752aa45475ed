// Package extraction turns a receipt image into a validated ReceiptRecord by
// prompting a vision-language model and normalizing its JSON answer.
package extraction

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

const defaultSchema = `{
  "vendorName": "",
  "date": "YYYY-MM-DD",
  "total": 0,
  "taxAmount": 0,
  "subtotal": 0,
  "invoiceId": "",
  "vatNumber": "",
  "crNumber": "",
  "lineItems": [
    {
      "description": "",
      "quantity": 0,
      "unitPrice": 0,
      "amount": 0,
      "discount": 0
    }
  ]
}`

// Prompts holds the wording sent to the model. Fields left empty in a YAML
// override keep their default text.
type Prompts struct {
	Instruction        string `yaml:"instruction"`
	DefaultInstruction string `yaml:"default_instruction"`
	DefaultSchema      string `yaml:"default_schema"`
	Rules              string `yaml:"rules"`
}

// DefaultPrompts returns the built-in prompt wording
func DefaultPrompts() Prompts {
	return Prompts{
		Instruction:        "Extract only the following fields from this receipt in JSON format:",
		DefaultInstruction: "Extract the following from this receipt in JSON format:",
		DefaultSchema:      defaultSchema,
		Rules:              "Rules: Only include visible information. Use empty string for text fields and 0 for numeric fields if not found.",
	}
}

// LoadPrompts reads prompt overrides from a YAML file
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if override.Instruction != "" {
		prompts.Instruction = strings.TrimSpace(override.Instruction)
	}
	if override.DefaultInstruction != "" {
		prompts.DefaultInstruction = strings.TrimSpace(override.DefaultInstruction)
	}
	if override.DefaultSchema != "" {
		prompts.DefaultSchema = strings.TrimSpace(override.DefaultSchema)
	}
	if override.Rules != "" {
		prompts.Rules = strings.TrimSpace(override.Rules)
	}
	return prompts, nil
}

// fieldTemplate mirrors ReceiptRecord in the order the model is shown the fields.
// Only fields set to true are serialized.
type fieldTemplate struct {
	VendorName   bool               `json:"vendorName"`
	Date         bool               `json:"date"`
	Total        bool               `json:"total"`
	CustomerName bool               `json:"customerName,omitempty"`
	TaxAmount    bool               `json:"taxAmount,omitempty"`
	VATNumber    bool               `json:"vatNumber,omitempty"`
	CRNumber     bool               `json:"crNumber,omitempty"`
	Subtotal     bool               `json:"subtotal,omitempty"`
	InvoiceID    bool               `json:"invoiceId,omitempty"`
	LineItems    []lineItemTemplate `json:"lineItems,omitempty"`
}

type lineItemTemplate struct {
	Description bool `json:"description"`
	Quantity    bool `json:"quantity"`
	UnitPrice   bool `json:"unitPrice"`
	Amount      bool `json:"amount"`
	Discount    bool `json:"discount"`
}

// BuildExtractionPrompt builds the prompt with the built-in wording
func BuildExtractionPrompt(cfg *entity.ExtractionConfig) string {
	return DefaultPrompts().Build(cfg)
}

// Build renders the field template selected by cfg. A nil cfg yields the
// default prompt with the full schema.
func (p Prompts) Build(cfg *entity.ExtractionConfig) string {
	if cfg == nil {
		return p.DefaultInstruction + "\n" + p.DefaultSchema + "\n" + p.Rules
	}

	fields := fieldTemplate{VendorName: true, Date: true, Total: true}
	if cfg.ExtractCustomerInfo {
		fields.CustomerName = true
	}
	if cfg.ExtractTaxInfo {
		fields.TaxAmount = true
		fields.VATNumber = true
		fields.CRNumber = true
	}
	if !cfg.BasicFieldsOnly {
		fields.Subtotal = true
		fields.InvoiceID = true
	}
	if cfg.ExtractLineItems {
		fields.LineItems = []lineItemTemplate{{
			Description: true,
			Quantity:    true,
			UnitPrice:   true,
			Amount:      true,
			Discount:    true,
		}}
	}

	// Marshalling a struct of bools cannot fail.
	data, _ := json.MarshalIndent(fields, "", "  ")
	template := strings.ReplaceAll(string(data), ": true", `: ""`)

	return p.Instruction + "\n" + template + "\n" + p.Rules
}
