package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// Config holds orchestrator settings
type Config struct {
	Retry       RetryPolicy
	MaxTokens   int
	Temperature float64
	MaxFileSize int
	Prompts     *Prompts
}

// DefaultConfig returns the settings used by the hosted model deployment
func DefaultConfig() Config {
	return Config{
		Retry:       DefaultRetryPolicy(),
		MaxTokens:   4096,
		Temperature: 0.1,
		MaxFileSize: entity.MaxUploadSize,
	}
}

// Orchestrator runs a receipt through preparation, the model and validation
type Orchestrator struct {
	invoker  *Invoker
	preparer port.DocumentPreparer
	prompts  Prompts
	cfg      Config
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator. preparer may be nil, in which case
// files are sent to the model as uploaded.
func NewOrchestrator(model port.ModelInvoker, preparer port.DocumentPreparer, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	prompts := DefaultPrompts()
	if cfg.Prompts != nil {
		prompts = *cfg.Prompts
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = entity.MaxUploadSize
	}
	return &Orchestrator{
		invoker:  NewInvoker(model, cfg.Retry, logger),
		preparer: preparer,
		prompts:  prompts,
		cfg:      cfg,
		logger:   logger,
	}
}

// modelEnvelope is the Anthropic messages response shape
type modelEnvelope struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Extract reads a ReceiptRecord from doc. A nil opts uses the default prompt.
func (o *Orchestrator) Extract(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*entity.ReceiptRecord, error) {
	o.logger.Debug("extraction state",
		zap.String("state", StateIdle.String()),
		zap.String("file", doc.Name),
		zap.String("media_type", doc.MediaType),
		zap.Int("size", len(doc.Data)))

	rec, err := o.extract(ctx, doc, opts)
	if err != nil {
		o.logger.Debug("extraction state",
			zap.String("state", StateFailed.String()),
			zap.Error(err))
		return nil, err
	}

	o.logger.Debug("extraction state",
		zap.String("state", StateDone.String()),
		zap.String("vendor", rec.VendorName),
		zap.Int("line_items", len(rec.LineItems)))
	return rec, nil
}

func (o *Orchestrator) extract(ctx context.Context, doc port.Document, opts *entity.ExtractionOptions) (*entity.ReceiptRecord, error) {
	if err := o.checkInput(doc); err != nil {
		return nil, err
	}

	image := doc
	if o.preparer != nil {
		prepared, err := o.preparer.Prepare(ctx, doc)
		if err != nil {
			return nil, newError(KindInvalidInput, MsgPrepareFailed, err)
		}
		image = prepared
	}

	prompt := o.prompts.Build(nil)
	if opts != nil {
		cfg := opts.Merge()
		prompt = o.prompts.Build(&cfg)
	}

	body, err := o.invoker.Invoke(ctx, port.ModelRequest{
		Image:       image.Data,
		MediaType:   image.MediaType,
		Prompt:      prompt,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("extraction state", zap.String("state", StateParsingResponse.String()))
	raw, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("extraction state", zap.String("state", StateValidating.String()))
	rec := Validate(raw)
	if IsEmptyExtraction(rec) {
		return nil, newError(KindEmptyExtraction, MsgEmptyExtraction, nil)
	}
	return &rec, nil
}

func (o *Orchestrator) checkInput(doc port.Document) error {
	if len(doc.Data) == 0 {
		return newError(KindInvalidInput, "No file provided", nil)
	}
	if !entity.IsSupportedMediaType(doc.MediaType) {
		return newError(KindInvalidInput,
			"Invalid file type. Please upload a PDF, PNG, or JPEG file.",
			fmt.Errorf("unsupported media type %q", doc.MediaType))
	}
	if len(doc.Data) > o.cfg.MaxFileSize {
		return newError(KindInvalidInput,
			fmt.Sprintf("File size must be less than %dMB", o.cfg.MaxFileSize/(1024*1024)),
			nil)
	}
	return nil
}

// ParseResponse pulls the first JSON object out of the model's text block
func ParseResponse(body []byte) (map[string]any, error) {
	var envelope modelEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, newError(KindResponseShape, MsgInvalidResponse, err)
	}

	text, ok := firstText(envelope)
	if !ok {
		return nil, newError(KindResponseShape, MsgInvalidResponse, nil)
	}

	object, ok := ExtractJSONObject(text)
	if !ok {
		return nil, newError(KindResponseShape, MsgNoJSON, nil)
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(object)))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, newError(KindResponseShape, MsgNoJSON, err)
	}
	return raw, nil
}

func firstText(envelope modelEnvelope) (string, bool) {
	for _, block := range envelope.Content {
		if block.Type == "text" || (block.Type == "" && block.Text != "") {
			return block.Text, true
		}
	}
	return "", false
}
