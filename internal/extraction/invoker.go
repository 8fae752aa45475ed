package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
)

// RetryPolicy bounds how often and how persistently the model is called
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MinInterval  time.Duration
}

// DefaultRetryPolicy returns 3 retries starting at 1s, with 2s between calls
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MinInterval:  2 * time.Second,
	}
}

// Invoker spaces out model calls and retries throttled ones with exponential backoff
type Invoker struct {
	model  port.ModelInvoker
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger

	mu   sync.Mutex
	next time.Time
}

// NewInvoker wraps model with spacing and retry handling
func NewInvoker(model port.ModelInvoker, policy RetryPolicy, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		model:  model,
		policy: policy,
		sleep:  sleepContext,
		logger: logger,
	}
}

// Invoke waits for the spacing slot, then calls the model. Throttled calls
// are retried after InitialDelay*2^n; other classified errors are translated
// into *Error and returned at once. Unclassified errors pass through unchanged.
func (i *Invoker) Invoke(ctx context.Context, req port.ModelRequest) ([]byte, error) {
	i.logger.Debug("extraction state", zap.String("state", StateRateLimitWait.String()))
	if err := i.waitSlot(ctx); err != nil {
		return nil, fmt.Errorf("waiting for model slot: %w", err)
	}
	defer i.releaseSlot()

	for attempt := 0; ; attempt++ {
		i.logger.Debug("extraction state",
			zap.String("state", StateInvoking.String()),
			zap.Int("attempt", attempt+1))

		body, err := i.model.Invoke(ctx, req)
		if err == nil {
			return body, nil
		}

		var modelErr *port.ModelError
		if !errors.As(err, &modelErr) {
			return nil, err
		}

		switch modelErr.Class {
		case port.ModelErrorThrottled:
			if attempt >= i.policy.MaxRetries {
				i.logger.Warn("Model still throttled after retries",
					zap.Int("retries", attempt))
				return nil, newError(KindThrottled, MsgThrottled, err)
			}
			delay := i.policy.InitialDelay * time.Duration(1<<attempt)
			i.logger.Debug("extraction state",
				zap.String("state", StateRetrying.String()),
				zap.Int("retry", attempt+1),
				zap.Duration("delay", delay))
			if err := i.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("waiting to retry model call: %w", err)
			}
		case port.ModelErrorValidation:
			return nil, newError(KindMalformedRequest, "Invalid request format: "+detail(modelErr), err)
		case port.ModelErrorNotReady:
			return nil, newError(KindModelUnavailable, MsgModelUnavailable, err)
		case port.ModelErrorQuotaExceeded:
			return nil, newError(KindQuotaExceeded, MsgQuotaExceeded, err)
		default:
			if modelErr.Err != nil {
				return nil, modelErr.Err
			}
			return nil, err
		}
	}
}

// waitSlot blocks until MinInterval has passed since the previous call
// finished. Concurrent callers are queued one interval apart.
func (i *Invoker) waitSlot(ctx context.Context) error {
	if i.policy.MinInterval <= 0 {
		return nil
	}

	i.mu.Lock()
	now := time.Now()
	start := now
	if i.next.After(now) {
		start = i.next
	}
	i.next = start.Add(i.policy.MinInterval)
	i.mu.Unlock()

	if wait := start.Sub(now); wait > 0 {
		return i.sleep(ctx, wait)
	}
	return nil
}

func (i *Invoker) releaseSlot() {
	if i.policy.MinInterval <= 0 {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if next := time.Now().Add(i.policy.MinInterval); next.After(i.next) {
		i.next = next
	}
}

func detail(e *port.ModelError) string {
	if e.Err == nil {
		return e.Class.String()
	}
	return e.Err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
