package config

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Store holds the active configuration. Readers never block writers.
type Store struct {
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewStore returns a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration. Callers must treat it as read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Subscribe registers fn to be called after every successful swap.
func (s *Store) Subscribe(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Swap replaces the active configuration and notifies subscribers.
// It reports false when cfg equals the current one.
func (s *Store) Swap(cfg *Config) bool {
	if reflect.DeepEqual(s.current.Load(), cfg) {
		return false
	}
	s.current.Store(cfg)

	s.mu.Lock()
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return true
}

// Reloader periodically re-reads the env file into a Store.
type Reloader struct {
	store  *Store
	load   func(envFile string) (*Config, error)
	logger *zap.Logger
}

// NewReloader creates a reloader backed by Reload.
func NewReloader(store *Store, logger *zap.Logger) *Reloader {
	return &Reloader{
		store:  store,
		load:   Reload,
		logger: logger,
	}
}

// Run polls until ctx is done. A zero interval returns immediately.
func (r *Reloader) Run(ctx context.Context) {
	interval := r.store.Current().Reload.Interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReloadOnce()
		}
	}
}

// ReloadOnce re-reads the configuration and swaps it in when valid and changed.
// Connection settings are not hot-swappable and are carried over unchanged.
func (r *Reloader) ReloadOnce() bool {
	prev := r.store.Current()
	next, err := r.load(prev.EnvFile)
	if err != nil {
		r.logger.Warn("Config reload rejected, keeping previous config", zap.Error(err))
		return false
	}

	next.Database = prev.Database
	next.Redis = prev.Redis
	next.MQTT = prev.MQTT
	next.Log = prev.Log
	next.Detector = prev.Detector

	if !r.store.Swap(next) {
		return false
	}
	r.logger.Info("Config reloaded",
		zap.Bool("resource_saver", next.Scheduler.ResourceSaver),
		zap.Int("cadence", next.Scheduler.Cadence),
		zap.Float64("min_distance_cm", next.Alerts.MinDistanceCM),
	)
	return true
}
