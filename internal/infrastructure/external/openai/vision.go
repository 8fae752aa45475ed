// Package openai invokes OpenAI vision chat models as an alternative
// receipt extraction backend.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
)

const systemPrompt = "You read receipts and invoices with perfect accuracy. Always respond with valid JSON."

// Config holds OpenAI connection settings
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// VisionClient implements port.ModelInvoker using the chat completions API.
// Responses are re-wrapped in the Anthropic messages envelope so the
// extraction pipeline stays provider independent.
type VisionClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewVisionClient creates a new OpenAI vision client
func NewVisionClient(cfg Config, logger *zap.Logger) *VisionClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &VisionClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

type envelope struct {
	Content []envelopeBlock `json:"content"`
}

type envelopeBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Invoke sends the prompt and image and returns the answer wrapped as
// {"content":[{"type":"text","text":...}]}
func (c *VisionClient) Invoke(ctx context.Context, req port.ModelRequest) ([]byte, error) {
	image := base64.StdEncoding.EncodeToString(req.Image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: req.Prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", req.MediaType, image),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		classified := classify(err)
		c.logger.Warn("OpenAI vision call failed",
			zap.String("model", c.model),
			zap.String("class", classified.Class.String()),
			zap.Error(err))
		return nil, classified
	}

	blocks := make([]envelopeBlock, 0, 1)
	if len(resp.Choices) > 0 {
		blocks = append(blocks, envelopeBlock{Type: "text", Text: resp.Choices[0].Message.Content})
	}

	c.logger.Debug("OpenAI vision call succeeded",
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return json.Marshal(envelope{Content: blocks})
}

// classify maps API status codes to port.ModelError classes
func classify(err error) *port.ModelError {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &port.ModelError{Class: port.ModelErrorThrottled, Err: err}
		}
		return &port.ModelError{Class: port.ModelErrorUnclassified, Err: err}
	}

	switch {
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests && apiErr.Code == "insufficient_quota":
		return &port.ModelError{Class: port.ModelErrorQuotaExceeded, Err: err}
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		return &port.ModelError{Class: port.ModelErrorThrottled, Err: err}
	case apiErr.HTTPStatusCode == http.StatusBadRequest:
		return &port.ModelError{Class: port.ModelErrorValidation, Err: errors.New(apiErr.Message)}
	case apiErr.HTTPStatusCode == http.StatusServiceUnavailable:
		return &port.ModelError{Class: port.ModelErrorNotReady, Err: err}
	default:
		return &port.ModelError{Class: port.ModelErrorUnclassified, Err: err}
	}
}

var _ port.ModelInvoker = (*VisionClient)(nil)
