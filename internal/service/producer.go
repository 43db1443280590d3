package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/aggregator"
	"github.com/EricW9888/ScreenGuardian/internal/capture"
	"github.com/EricW9888/ScreenGuardian/internal/classifier"
	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/evaluator"
	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/scheduler"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FrameReader yields camera frames. capture.ErrNoFrame marks a transient miss.
type FrameReader interface {
	Read(ctx context.Context) (capture.Frame, error)
}

// ProfileSource provides the active calibration profile.
type ProfileSource interface {
	Current() (*models.CalibrationProfile, bool)
}

// StatusSink mirrors status and alerts to external consumers. Implementations
// must not block for long and must swallow their own errors.
type StatusSink interface {
	PublishStatus(ctx context.Context, status models.LiveStatus)
	PublishAlerts(ctx context.Context, events []models.AlertEvent)
}

// ProducerDeps are the collaborators of a Producer. Sink may be nil.
type ProducerDeps struct {
	Camera      FrameReader
	Detector    capture.Detector
	Window      capture.WindowState
	Calibration ProfileSource
	Scheduler   *scheduler.Scheduler
	Classifier  *classifier.Classifier
	Alerts      *evaluator.Engine
	Aggregator  *aggregator.Engine
	Presenter   *Presenter
	Flusher     *Flusher
	Sink        StatusSink
}

// Producer is the per-frame loop: read, admit, detect, classify, evaluate,
// aggregate, publish. It is the only writer of the scheduler and the alert engine.
type Producer struct {
	ProducerDeps

	store   *config.Store
	applied *config.Config
	limiter *rate.Limiter
	now     func() time.Time
	logger  *zap.Logger

	landmarks      atomic.Pointer[models.LandmarkFrame]
	detectFailures atomic.Int64
}

// NewProducer creates a producer configured from the store's current config.
// The collaborators are expected to have been built from that same config.
func NewProducer(deps ProducerDeps, store *config.Store, logger *zap.Logger) *Producer {
	cfg := store.Current()
	return &Producer{
		ProducerDeps: deps,
		store:        store,
		applied:      cfg,
		limiter:      rate.NewLimiter(rate.Limit(cfg.Capture.TargetFPS), 1),
		now:          time.Now,
		logger:       logger,
	}
}

// Run processes frames at the configured rate until ctx is done or the camera
// fails for good. Cancellation returns nil.
func (p *Producer) Run(ctx context.Context) error {
	for {
		p.pace()
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to pace frames: %w", err)
		}
		if err := p.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Step processes one frame. Transient capture misses only advance the timers;
// other capture errors are returned.
func (p *Producer) Step(ctx context.Context) error {
	p.applyConfig()

	frame, err := p.Camera.Read(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			p.dispatch(ctx, p.Alerts.Tick(p.now()))
			return nil
		}
		return err
	}

	now := frame.Timestamp
	if now.IsZero() {
		now = p.now()
	}
	decision := p.Scheduler.Admit(p.Window.Minimized())

	var (
		result   models.ClassificationResult
		events   []models.AlertEvent
		heldOver bool
		computed bool
	)
	if decision.Detect {
		result, computed = p.detect(ctx, frame, decision.Seq, now)
	}

	if computed {
		p.Scheduler.Record(result)
		events = p.Alerts.Evaluate(result, now)
		p.Aggregator.Observe(result, now)
	} else {
		heldOver = true
		if last, ok := p.Scheduler.Last(); ok {
			result = last
			p.Aggregator.Hold(last, now)
		} else {
			result = models.ClassificationResult{FrameSeq: decision.Seq, Timestamp: now, Posture: models.PostureUnknown}
		}
		events = p.Alerts.Tick(now)
	}

	_, calibrated := p.Calibration.Current()
	status := models.LiveStatus{
		Timestamp:             now,
		Result:                result,
		HeldOver:              heldOver,
		Render:                decision.Render,
		Calibrated:            calibrated,
		ActiveAlerts:          p.Alerts.ActiveKinds(),
		TwentyTwentyRemaining: p.Alerts.TwentyTwentyRemaining(now),
		PersistenceDegraded:   p.Flusher.Degraded(),
	}
	p.Presenter.Publish(status)
	if computed && p.Sink != nil {
		p.Sink.PublishStatus(ctx, status)
	}
	p.dispatch(ctx, events)
	return nil
}

// LastLandmarks returns the most recent detected landmarks, used for neutral pose capture.
func (p *Producer) LastLandmarks() (*models.LandmarkFrame, bool) {
	lf := p.landmarks.Load()
	return lf, lf != nil
}

// DetectFailures returns how many detection calls failed.
func (p *Producer) DetectFailures() int64 {
	return p.detectFailures.Load()
}

// detect runs landmark detection and classification. A failed detection call
// reports false and the frame is treated like a skipped one.
func (p *Producer) detect(ctx context.Context, frame capture.Frame, seq uint64, now time.Time) (models.ClassificationResult, bool) {
	lf, err := p.Detector.Detect(ctx, frame)
	if err != nil {
		p.detectFailures.Add(1)
		if ctx.Err() == nil {
			p.logger.Warn("Landmark detection failed",
				zap.Uint64("frame_seq", seq),
				zap.Error(err),
			)
		}
		return models.ClassificationResult{}, false
	}
	if lf != nil {
		p.landmarks.Store(lf)
	}

	profile, _ := p.Calibration.Current()
	result := p.Classifier.Classify(lf, profile)
	result.FrameSeq = seq
	result.Timestamp = now
	return result, true
}

func (p *Producer) dispatch(ctx context.Context, events []models.AlertEvent) {
	if len(events) == 0 {
		return
	}
	p.Presenter.PushAlerts(events)
	p.Flusher.QueueAlerts(events)
	if p.Sink != nil {
		p.Sink.PublishAlerts(ctx, events)
	}
}

// applyConfig pushes a reloaded config into the collaborators.
func (p *Producer) applyConfig() {
	cfg := p.store.Current()
	if cfg == p.applied {
		return
	}
	p.Scheduler.Configure(cfg.Scheduler.ResourceSaver, cfg.Scheduler.Cadence)
	p.Classifier.SetThresholds(classifier.ThresholdsFromConfig(cfg))
	p.Alerts.Apply(evaluator.PolicyFromConfig(cfg), p.now())
	p.Aggregator.SetMaxGap(cfg.Aggregation.MaxFrameGap)
	p.applied = cfg
	p.logger.Debug("Producer picked up new config")
}

// pace switches the frame rate when the window is minimized or restored.
func (p *Producer) pace() {
	fps := p.applied.Capture.TargetFPS
	if p.Window.Minimized() {
		fps = p.applied.Capture.MinimizedFPS
	}
	if limit := rate.Limit(fps); p.limiter.Limit() != limit {
		p.limiter.SetLimit(limit)
	}
}
