// Package bedrock invokes Anthropic vision models hosted on AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
)

const anthropicVersion = "bedrock-2023-05-31"

// Config holds Bedrock connection settings
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ModelID         string
	Timeout         time.Duration
}

// invokeAPI is the subset of the Bedrock runtime client used here
type invokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client implements port.ModelInvoker on Bedrock
type Client struct {
	api     invokeAPI
	modelID string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a Bedrock client. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies. SDK
// retries are disabled because throttling is retried by the caller.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("Bedrock client initialized",
		zap.String("region", cfg.Region),
		zap.String("model", cfg.ModelID),
		zap.Bool("static_credentials", cfg.AccessKeyID != ""))

	return newClient(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

func newClient(api invokeAPI, cfg Config, logger *zap.Logger) *Client {
	return &Client{
		api:     api,
		modelID: cfg.ModelID,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	TopK             int       `json:"top_k"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Invoke sends the image and prompt as a single user message and returns
// the raw response body
func (c *Client) Invoke(ctx context.Context, req port.ModelRequest) ([]byte, error) {
	body, err := json.Marshal(messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             0.999,
		TopK:             250,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: req.MediaType,
						Data:      base64.StdEncoding.EncodeToString(req.Image),
					},
				},
				{Type: "text", Text: req.Prompt},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		classified := classify(err)
		c.logger.Warn("Bedrock invocation failed",
			zap.String("model", c.modelID),
			zap.String("class", classified.Class.String()),
			zap.Error(err))
		return nil, classified
	}

	c.logger.Debug("Bedrock invocation succeeded",
		zap.String("model", c.modelID),
		zap.Duration("latency", time.Since(start)),
		zap.Int("response_size", len(out.Body)))
	return out.Body, nil
}

// classify maps Bedrock error types to port.ModelError classes
func classify(err error) *port.ModelError {
	var (
		throttling *types.ThrottlingException
		validation *types.ValidationException
		notReady   *types.ModelNotReadyException
		quota      *types.ServiceQuotaExceededException
	)
	switch {
	case errors.As(err, &throttling):
		return &port.ModelError{Class: port.ModelErrorThrottled, Err: err}
	case errors.As(err, &validation):
		return &port.ModelError{Class: port.ModelErrorValidation, Err: errors.New(validation.ErrorMessage())}
	case errors.As(err, &notReady):
		return &port.ModelError{Class: port.ModelErrorNotReady, Err: err}
	case errors.As(err, &quota):
		return &port.ModelError{Class: port.ModelErrorQuotaExceeded, Err: err}
	default:
		return &port.ModelError{Class: port.ModelErrorUnclassified, Err: err}
	}
}

var _ port.ModelInvoker = (*Client)(nil)
