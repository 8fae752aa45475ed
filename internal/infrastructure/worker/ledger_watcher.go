package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reloader re-reads the chart of accounts
type Reloader interface {
	Reload(ctx context.Context) error
}

// LedgerWatcher polls the ledger file and reloads the account tree when its
// modification time or size changes
type LedgerWatcher struct {
	path     string
	interval time.Duration
	reloader Reloader
	logger   *zap.Logger
	stat     func(string) (os.FileInfo, error)

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	lastMod     time.Time
	lastSize    int64
	reloadCount int
	lastErr     error
}

// NewLedgerWatcher creates a watcher for the ledger at path
func NewLedgerWatcher(path string, interval time.Duration, reloader Reloader, logger *zap.Logger) *LedgerWatcher {
	return &LedgerWatcher{
		path:     path,
		interval: interval,
		reloader: reloader,
		logger:   logger,
		stat:     os.Stat,
	}
}

// Name returns the worker name for identification
func (w *LedgerWatcher) Name() string {
	return "LedgerWatcher"
}

// Start records the current file state and begins polling
func (w *LedgerWatcher) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("ledger watcher: poll interval must be positive")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("ledger watcher already running")
	}

	if info, err := w.stat(w.path); err == nil {
		w.lastMod = info.ModTime()
		w.lastSize = info.Size()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("LedgerWatcher started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop ends polling and waits for the loop to exit
func (w *LedgerWatcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	w.logger.Info("LedgerWatcher stopped", zap.Int("reload_count", w.ReloadCount()))
	return nil
}

// ReloadCount returns how many reloads the watcher has triggered
func (w *LedgerWatcher) ReloadCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloadCount
}

// LastError returns the error of the most recent failed check, if any
func (w *LedgerWatcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *LedgerWatcher) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.check(ctx)
			w.mu.Lock()
			w.lastErr = err
			w.mu.Unlock()
			if err != nil {
				w.logger.Error("Ledger check failed", zap.Error(err))
			}
		}
	}
}

// check reloads when the file changed since the last successful check
func (w *LedgerWatcher) check(ctx context.Context) error {
	info, err := w.stat(w.path)
	if err != nil {
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	w.mu.Lock()
	changed := !info.ModTime().Equal(w.lastMod) || info.Size() != w.lastSize
	w.mu.Unlock()
	if !changed {
		return nil
	}

	if err := w.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload ledger: %w", err)
	}

	w.mu.Lock()
	w.lastMod = info.ModTime()
	w.lastSize = info.Size()
	w.reloadCount++
	w.mu.Unlock()

	w.logger.Info("Ledger reloaded",
		zap.String("path", w.path),
		zap.Time("modified_at", info.ModTime()))
	return nil
}
