package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWorker struct {
	name     string
	startErr error
	stopErr  error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (w *stubWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started.Store(true)
	return nil
}

func (w *stubWorker) Stop() error {
	w.stopped.Store(true)
	return w.stopErr
}

func (w *stubWorker) Name() string { return w.name }

func TestWorkerManagerLifecycle(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	ok := &stubWorker{name: "ok"}
	broken := &stubWorker{name: "broken", startErr: errors.New("boom")}
	m.Register(ok)
	m.Register(broken)
	assert.Equal(t, 2, m.WorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.True(t, ok.started.Load())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.True(t, ok.stopped.Load())
	assert.False(t, broken.stopped.Load(), "workers that never started are not stopped")

	assert.NoError(t, m.StopAll())
}

func TestWorkerManagerStopErrors(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	m.Register(&stubWorker{name: "a", stopErr: errors.New("stuck")})
	m.Register(&stubWorker{name: "b"})

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: stuck")
}

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestLedgerWatcherCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte("Assets\n"), 0644))

	reloader := &countingReloader{}
	w := NewLedgerWatcher(path, time.Hour, reloader, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, w.check(context.Background()))
	assert.Equal(t, int32(0), reloader.calls.Load(), "unchanged file is not reloaded")

	require.NoError(t, os.WriteFile(path, []byte("Assets\n     Cash [ 11101 ]\n"), 0644))
	require.NoError(t, w.check(context.Background()))
	assert.Equal(t, int32(1), reloader.calls.Load())
	assert.Equal(t, 1, w.ReloadCount())

	require.NoError(t, w.check(context.Background()))
	assert.Equal(t, int32(1), reloader.calls.Load())
}

func TestLedgerWatcherReloadFailureRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte("Assets\n"), 0644))

	reloader := &countingReloader{}
	w := NewLedgerWatcher(path, time.Hour, reloader, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("Assets\nLiabilities\n"), 0644))
	reloader.err = errors.New("parse failed")
	assert.Error(t, w.check(context.Background()))

	reloader.err = nil
	require.NoError(t, w.check(context.Background()))
	assert.Equal(t, int32(2), reloader.calls.Load(), "a failed reload is attempted again")
	assert.Equal(t, 1, w.ReloadCount())
}

func TestLedgerWatcherPolls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte("Assets\n"), 0644))

	reloader := &countingReloader{}
	w := NewLedgerWatcher(path, 10*time.Millisecond, reloader, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("Assets\nExpenses\n"), 0644))
	assert.Eventually(t, func() bool { return reloader.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestLedgerWatcherRejectsZeroInterval(t *testing.T) {
	w := NewLedgerWatcher("x", 0, &countingReloader{}, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
}
