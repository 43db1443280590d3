package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DeviceOptions configures a Device. Startup applies to the first open,
// Reconnect to reopening after MaxConsecutiveFailures failed reads.
type DeviceOptions struct {
	Startup                Backoff
	Reconnect              Backoff
	MaxConsecutiveFailures int
	// OnReconnect runs after a mid-session reopen succeeded.
	OnReconnect func()
}

// Device owns one Source and reopens it when reads keep failing.
type Device struct {
	open   Opener
	opts   DeviceOptions
	logger *zap.Logger

	mu         sync.Mutex
	src        Source
	failures   int
	reconnects int
}

// NewDevice creates a closed device.
func NewDevice(open Opener, opts DeviceOptions, logger *zap.Logger) *Device {
	if opts.MaxConsecutiveFailures < 1 {
		opts.MaxConsecutiveFailures = 1
	}
	return &Device{
		open:   open,
		opts:   opts,
		logger: logger,
	}
}

// Start opens the device using the startup policy.
func (d *Device) Start(ctx context.Context) error {
	src, err := OpenWithRetry(ctx, d.open, d.opts.Startup, d.logger)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.src = src
	d.failures = 0
	d.mu.Unlock()
	return nil
}

// Read returns the next frame. ErrNoFrame reports a transient miss. After
// MaxConsecutiveFailures misses in a row the source is closed and reopened with
// the reconnect policy; if that fails the returned error wraps
// ErrDeviceUnavailable and the device is closed.
func (d *Device) Read(ctx context.Context) (Frame, error) {
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		return Frame{}, fmt.Errorf("%w: device not started", ErrDeviceUnavailable)
	}

	f, err := src.Next(ctx)
	if err == nil {
		d.mu.Lock()
		d.failures = 0
		d.mu.Unlock()
		return f, nil
	}
	if ctx.Err() != nil {
		return Frame{}, ctx.Err()
	}
	if errors.Is(err, ErrEndOfStream) {
		return Frame{}, err
	}

	d.mu.Lock()
	d.failures++
	failures := d.failures
	d.mu.Unlock()

	if failures < d.opts.MaxConsecutiveFailures && !errors.Is(err, ErrDeviceUnavailable) {
		d.logger.Debug("Frame read failed", zap.Error(err), zap.Int("consecutive", failures))
		return Frame{}, ErrNoFrame
	}

	d.logger.Warn("Capture device lost, reconnecting",
		zap.Error(err),
		zap.Int("consecutive_failures", failures),
	)
	if err := d.reopen(ctx, src); err != nil {
		return Frame{}, err
	}
	return Frame{}, ErrNoFrame
}

// Reconnects returns how many mid-session reopens succeeded.
func (d *Device) Reconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnects
}

// Close releases the source. It is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	src := d.src
	d.src = nil
	d.mu.Unlock()
	if src == nil {
		return nil
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("failed to close capture source: %w", err)
	}
	return nil
}

func (d *Device) reopen(ctx context.Context, old Source) error {
	if err := old.Close(); err != nil {
		d.logger.Warn("Failed to close lost capture source", zap.Error(err))
	}
	d.mu.Lock()
	d.src = nil
	d.mu.Unlock()

	src, err := OpenWithRetry(ctx, d.open, d.opts.Reconnect, d.logger)
	if err != nil {
		d.logger.Error("Capture device did not come back", zap.Error(err))
		return err
	}

	d.mu.Lock()
	d.src = src
	d.failures = 0
	d.reconnects++
	d.mu.Unlock()

	d.logger.Info("Capture device reconnected")
	if d.opts.OnReconnect != nil {
		d.opts.OnReconnect()
	}
	return nil
}
