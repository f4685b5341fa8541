package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
)

const reloadDebounce = 500 * time.Millisecond

// Holder keeps the current validated configuration and reloads it when the
// file changes. It implements logic.ConfigSource.
type Holder struct {
	mu       sync.RWMutex
	current  Config
	path     string
	log      zerolog.Logger
	onReload []func(Config)
}

// NewHolder wraps an already loaded config read from path.
// An empty path disables reloading.
func NewHolder(initial Config, path string, logger zerolog.Logger) *Holder {
	return &Holder{current: initial, path: path, log: logger}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Tunables returns the controller parameters of the current configuration.
func (h *Holder) Tunables() logic.Tunables {
	return h.Get().Tunables()
}

// OnReload registers fn to run after every successful reload. fn runs on the
// watcher goroutine.
func (h *Holder) OnReload(fn func(Config)) {
	h.mu.Lock()
	h.onReload = append(h.onReload, fn)
	h.mu.Unlock()
}

// Reload re-reads the file. An invalid file is rejected and the current
// configuration kept.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	cfg, err := Load(h.path)
	if err != nil {
		h.log.Error().Err(err).Str("path", h.path).Msg("config reload rejected")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = cfg
	listeners := append([]func(Config){}, h.onReload...)
	h.mu.Unlock()

	if old.Backend != cfg.Backend || old.GPIO.Pins != cfg.GPIO.Pins || old.MQTT.Broker != cfg.MQTT.Broker || old.HTTP.Listen != cfg.HTTP.Listen {
		h.log.Warn().Msg("hardware, broker or listen address changed; restart to apply")
	}
	h.log.Info().Str("path", h.path).Str("mode", string(cfg.Mode)).Msg("config reloaded")

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads the config whenever its file is written or replaced, until
// ctx is cancelled. The parent directory is watched so editors that save by
// rename are seen too.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		h.log.Info().Msg("config watcher disabled (no file)")
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(h.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.log.Info().Str("path", h.path).Msg("watching config file")

	name := filepath.Clean(h.path)
	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			h.log.Debug().Str("op", ev.Op.String()).Msg("config file changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			_ = h.Reload() // already logged

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.log.Error().Err(err).Msg("config watcher error")
		}
	}
}
