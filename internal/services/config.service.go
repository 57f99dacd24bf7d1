package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"usage-applet/internal/config"
	"usage-applet/internal/models"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigStore is the sampler's configuration slot. Writers validate and swap
// in a whole SamplerConfig; the sampler reads it at the top of each cycle and
// is woken through Changed.
type ConfigStore struct {
	logger  *zap.Logger
	current atomic.Pointer[models.SamplerConfig]
	changed chan struct{}
}

// NewConfigStore creates a store seeded with initial, which must be valid
func NewConfigStore(initial models.SamplerConfig, logger *zap.Logger) (*ConfigStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ConfigStore{
		logger:  logger,
		changed: make(chan struct{}, 1),
	}
	s.current.Store(&initial)
	return s, nil
}

// Current returns the effective configuration
func (s *ConfigStore) Current() models.SamplerConfig {
	return *s.current.Load()
}

// Changed is signalled after every accepted update that altered the config
func (s *ConfigStore) Changed() <-chan struct{} {
	return s.changed
}

// Update validates cfg and makes it current. An invalid cfg is rejected with
// an ErrInvalidConfig-wrapped error and the previous config stays in effect.
func (s *ConfigStore) Update(cfg models.SamplerConfig) error {
	if err := cfg.Validate(); err != nil {
		s.logger.Warn("rejected config update",
			zap.Error(err),
			zap.Duration("retained_interval", s.Current().RefreshInterval),
		)
		return err
	}

	prev := s.current.Swap(&cfg)
	if prev != nil && *prev == cfg {
		return nil
	}

	s.logger.Info("config updated",
		zap.Duration("refresh_interval", cfg.RefreshInterval),
		zap.Strings("metrics", cfg.Enabled.Names()),
	)

	select {
	case s.changed <- struct{}{}:
	default:
	}
	return nil
}

// ConfigWatcher reloads the YAML config file when it changes on disk
type ConfigWatcher struct {
	logger        *zap.Logger
	path          string
	store         *ConfigStore
	historyLength int
	debounce      time.Duration
}

// NewConfigWatcher creates a watcher for path. historyLength is the buffer
// size the sampler was built with; changing it needs a restart.
func NewConfigWatcher(path string, store *ConfigStore, historyLength int, logger *zap.Logger) *ConfigWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigWatcher{
		logger:        logger,
		path:          filepath.Clean(path),
		store:         store,
		historyLength: historyLength,
		debounce:      100 * time.Millisecond,
	}
}

// Run watches the config file's directory until ctx is cancelled.
// Editors often replace the file instead of writing it, so the directory is
// watched and events are filtered by name.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// On first run the directory does not exist yet; create it so a config
	// file written later by the shell is still seen.
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("watching config", zap.String("path", w.path))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = w.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Reload reads the file and pushes its sampler settings into the store.
// Errors are logged and returned; the previous config stays in effect.
func (w *ConfigWatcher) Reload() error {
	cfg, err := config.Load(w.path)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidConfig) {
			err = fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
		}
		w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		return err
	}

	if cfg.HistoryLength != w.historyLength {
		w.logger.Warn("history_length change takes effect after restart",
			zap.Int("current", w.historyLength),
			zap.Int("requested", cfg.HistoryLength),
		)
	}

	sc, err := cfg.SamplerConfig()
	if err != nil {
		return err
	}
	return w.store.Update(sc)
}
