package entity

// ExtractionConfig controls which fields the model is asked to extract.
// Vendor name, date and total are always requested.
type ExtractionConfig struct {
	ExtractLineItems    bool `json:"extractLineItems"`
	ExtractCustomerInfo bool `json:"extractCustomerInfo"`
	ExtractTaxInfo      bool `json:"extractTaxInfo"`
	BasicFieldsOnly     bool `json:"basicFieldsOnly"`
}

// DefaultExtractionConfig returns the configuration used when a caller sets no flags
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		ExtractLineItems:    true,
		ExtractCustomerInfo: true,
		ExtractTaxInfo:      true,
		BasicFieldsOnly:     false,
	}
}

// ExtractionOptions are caller-supplied flags; nil fields keep the default
type ExtractionOptions struct {
	ExtractLineItems    *bool `json:"extractLineItems,omitempty"`
	ExtractCustomerInfo *bool `json:"extractCustomerInfo,omitempty"`
	ExtractTaxInfo      *bool `json:"extractTaxInfo,omitempty"`
	BasicFieldsOnly     *bool `json:"basicFieldsOnly,omitempty"`
}

// Merge resolves the options over DefaultExtractionConfig
func (o *ExtractionOptions) Merge() ExtractionConfig {
	cfg := DefaultExtractionConfig()
	if o == nil {
		return cfg
	}
	if o.ExtractLineItems != nil {
		cfg.ExtractLineItems = *o.ExtractLineItems
	}
	if o.ExtractCustomerInfo != nil {
		cfg.ExtractCustomerInfo = *o.ExtractCustomerInfo
	}
	if o.ExtractTaxInfo != nil {
		cfg.ExtractTaxInfo = *o.ExtractTaxInfo
	}
	if o.BasicFieldsOnly != nil {
		cfg.BasicFieldsOnly = *o.BasicFieldsOnly
	}
	return cfg
}
