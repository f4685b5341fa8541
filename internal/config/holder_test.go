package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stove.yaml")
	writeConfig(t, path, "timing:\n  warm_hold: 5m\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(cfg, path, zerolog.Nop())
	assert.Equal(t, 5*time.Minute, h.Tunables().WarmHold)

	var seen atomic.Int32
	h.OnReload(func(Config) { seen.Add(1) })

	writeConfig(t, path, "timing:\n  warm_hold: 7m\n")
	require.NoError(t, h.Reload())
	assert.Equal(t, 7*time.Minute, h.Get().Timing.WarmHold)
	assert.Equal(t, int32(1), seen.Load())

	writeConfig(t, path, "timing:\n  warm_hold: -1m\n")
	err = h.Reload()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 7*time.Minute, h.Get().Timing.WarmHold, "invalid file keeps the old config")
	assert.Equal(t, int32(1), seen.Load())
}

func TestHolderWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), "", zerolog.Nop())
	require.NoError(t, h.Reload())
	assert.Equal(t, Defaults().Timing, h.Get().Timing)
}

func TestHolderWatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "stove.yaml")
	writeConfig(t, path, "mode: proportional\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(cfg, path, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "mode: two_level\n")

	require.Eventually(t, func() bool {
		return h.Get().Mode == "two_level"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
