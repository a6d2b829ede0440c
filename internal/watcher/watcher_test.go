package watcher

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
	"go.uber.org/goleak"

	"netsketch/internal/config"
)

func startWatch(t *testing.T, watch func(ctx context.Context) error) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watch(ctx) }()
	// give fsnotify time to register the directory
	time.Sleep(50 * time.Millisecond)
	return func() {
		stop()
		err := <-done
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
	}
}

func TestWatchDebouncesBurst(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "netsketch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	var calls atomic.Int32
	w := New(path, func() { calls.Add(1) }, nil).WithDebounce(100 * time.Millisecond)
	stop := startWatch(t, w.Watch)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	stop()
}

func TestWatchIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netsketch.yaml")

	var calls atomic.Int32
	w := New(path, func() { calls.Add(1) }, nil).WithDebounce(20 * time.Millisecond)
	stop := startWatch(t, w.Watch)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())
	stop()
}

func TestWatchMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing", "netsketch.yaml"), func() {}, nil)
	assert.Error(t, w.Watch(context.Background()))
}

func TestWatchConfigAppliesValidEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsketch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("posture: balanced\n"), 0644))

	applied := make(chan *config.Config, 4)
	stop := startWatch(t, func(ctx context.Context) error {
		return WatchConfig(ctx, path, nil, func(cfg *config.Config) { applied <- cfg })
	})
	defer stop()

	// rejected by validation, nothing applied
	require.NoError(t, os.WriteFile(path, []byte("probe:\n  concurrency: -1\n"), 0644))
	time.Sleep(DefaultDebounce + 300*time.Millisecond)
	assert.Empty(t, applied)

	require.NoError(t, os.WriteFile(path, []byte("posture: aggressive\n"), 0644))
	select {
	case cfg := <-applied:
		assert.Equal(t, config.PostureAggressive, cfg.Posture)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
