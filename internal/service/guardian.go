// Package service wires capture, classification, alerting, aggregation and
// persistence into the running ScreenGuardian process.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EricW9888/ScreenGuardian/common/database"
	commonmqtt "github.com/EricW9888/ScreenGuardian/common/mqtt"
	commonredis "github.com/EricW9888/ScreenGuardian/common/redis"
	"github.com/EricW9888/ScreenGuardian/internal/aggregator"
	"github.com/EricW9888/ScreenGuardian/internal/calibration"
	"github.com/EricW9888/ScreenGuardian/internal/capture"
	"github.com/EricW9888/ScreenGuardian/internal/classifier"
	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/detector"
	"github.com/EricW9888/ScreenGuardian/internal/evaluator"
	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/publisher"
	"github.com/EricW9888/ScreenGuardian/internal/reconciler"
	"github.com/EricW9888/ScreenGuardian/internal/report"
	"github.com/EricW9888/ScreenGuardian/internal/repository"
	"github.com/EricW9888/ScreenGuardian/internal/scheduler"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoLandmarks is returned when a neutral pose is requested before any face was seen.
var ErrNoLandmarks = errors.New("no landmarks detected yet")

// shutdownTimeout bounds the final flush and state save.
const shutdownTimeout = 10 * time.Second

// SourceOptions selects where frames come from. Opener wins over ReplayDir; with
// neither set the detector sidecar's camera is used.
type SourceOptions struct {
	ReplayDir  string
	ReplayLoop bool
	Opener     capture.Opener
}

// GuardianService owns every component of a running instance.
type GuardianService struct {
	store  *config.Store
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *commonmqtt.Client

	schemaRepo      *repository.SchemaRepository
	settingsRepo    *repository.SettingsRepository
	aggregatesRepo  *repository.AggregateRepository
	alertEventsRepo *repository.AlertEventsRepository
	maintenanceRepo *repository.MaintenanceRepository
	flushRepo       *repository.FlushRepository

	calibration *calibration.Store
	reconciler  *reconciler.Reconciler
	detector    *detector.Client
	device      *capture.Device
	window      *capture.WindowFlag
	scheduler   *scheduler.Scheduler
	classifier  *classifier.Classifier
	alerts      *evaluator.Engine
	aggregator  *aggregator.Engine
	stateCache  *evaluator.StateCache
	publisher   *publisher.Publisher
	flusher     *Flusher
	presenter   *Presenter
	producer    *Producer
	summarizer  *report.Summarizer

	stopOnce sync.Once
}

// NewGuardianService connects to Postgres and, when configured, Redis and MQTT,
// then builds the pipeline from the store's current configuration.
func NewGuardianService(ctx context.Context, store *config.Store, logger *zap.Logger, source SourceOptions) (*GuardianService, error) {
	cfg := store.Current()

	// 1. Storage
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. Optional fan-out backends
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = commonredis.NewRedisClient(&cfg.Redis)
		if err := commonredis.Ping(ctx, redisClient); err != nil {
			logger.Warn("Redis unreachable, live status and alert state will not be mirrored",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
			_ = commonredis.Close(redisClient)
			redisClient = nil
		}
	}
	var mqttClient *commonmqtt.Client
	if cfg.MQTT.Enabled() {
		mqttClient, err = commonmqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unreachable, alerts will not be forwarded",
				zap.String("broker", cfg.MQTT.Broker),
				zap.Error(err),
			)
			mqttClient = nil
		}
	}

	return newGuardianService(store, logger, db, redisClient, mqttClient, source), nil
}

// newGuardianService builds every layer on top of already open connections.
// redisClient and mqttClient may be nil.
func newGuardianService(store *config.Store, logger *zap.Logger, db *sql.DB, redisClient *redis.Client, mqttClient *commonmqtt.Client, source SourceOptions) *GuardianService {
	cfg := store.Current()
	s := &GuardianService{
		store:       store,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
	}

	// 3. Repositories
	s.schemaRepo = repository.NewSchemaRepository(db, logger)
	s.settingsRepo = repository.NewSettingsRepository(db, logger)
	s.aggregatesRepo = repository.NewAggregateRepository(db, logger)
	s.alertEventsRepo = repository.NewAlertEventsRepository(db, logger)
	s.maintenanceRepo = repository.NewMaintenanceRepository(db, logger)
	s.flushRepo = repository.NewFlushRepository(db, logger)

	s.calibration = calibration.NewStore(s.settingsRepo, logger)
	s.reconciler = reconciler.New(
		s.schemaRepo,
		s.aggregatesRepo,
		s.maintenanceRepo,
		s.calibration,
		cfg.Persistence.EraseArmWindow,
		logger,
	)

	// 4. Capture
	s.detector = detector.NewClient(detector.Options{
		BaseURL:    cfg.Detector.URL,
		Timeout:    cfg.Detector.Timeout,
		RetryCount: cfg.Detector.RetryCount,
	}, logger)
	opener := source.Opener
	if opener == nil && source.ReplayDir != "" {
		opener = capture.OpenReplay(source.ReplayDir, source.ReplayLoop)
	}
	if opener == nil {
		opener = s.detector.OpenCamera(cfg.Capture.CameraIndex)
	}
	s.device = capture.NewDevice(opener, capture.DeviceOptions{
		Startup:                capture.BackoffFromConfig(cfg.Capture.Open),
		Reconnect:              capture.BackoffFromConfig(cfg.Capture.Reconnect),
		MaxConsecutiveFailures: cfg.Capture.MaxConsecutiveFailures,
		OnReconnect:            s.captureReconnected,
	}, logger)
	s.window = &capture.WindowFlag{}

	// 5. Pipeline
	now := time.Now()
	s.scheduler = scheduler.New(cfg.Scheduler.ResourceSaver, cfg.Scheduler.Cadence)
	s.classifier = classifier.New(classifier.ThresholdsFromConfig(cfg), logger)
	s.alerts = evaluator.NewEngine(evaluator.PolicyFromConfig(cfg), now, logger)
	s.aggregator = aggregator.New(cfg.Aggregation.MaxFrameGap, logger)
	if s.redisClient != nil {
		s.stateCache = evaluator.NewStateCache(s.redisClient, cfg.Publisher.StateKeyPrefix, 24*time.Hour, logger)
	}
	s.publisher = publisher.New(s.redisClient, s.mqttPublisher(), publisher.Options{
		SnapshotKey:    cfg.Publisher.SnapshotKey,
		SnapshotTTL:    cfg.Publisher.SnapshotTTL,
		AlertStream:    cfg.Publisher.AlertStream,
		StreamMaxLen:   cfg.Publisher.StreamMaxLen,
		MQTTTopic:      cfg.Publisher.MQTTTopic,
		PublishTimeout: cfg.Publisher.PublishTimeout,
	}, logger)
	s.flusher = NewFlusher(
		s.flushRepo,
		s.aggregator,
		cfg.Persistence.FlushInterval,
		cfg.Persistence.MaxFlushRetries,
		logger,
	)
	s.flusher.OnErased(s.erasedElsewhere)
	s.presenter = NewPresenter(cfg.Publisher.AlertQueueSize)

	deps := ProducerDeps{
		Camera:      s.device,
		Detector:    s.detector,
		Window:      s.window,
		Calibration: s.calibration,
		Scheduler:   s.scheduler,
		Classifier:  s.classifier,
		Alerts:      s.alerts,
		Aggregator:  s.aggregator,
		Presenter:   s.presenter,
		Flusher:     s.flusher,
	}
	if s.publisher.Enabled() {
		deps.Sink = s.publisher
	}
	s.producer = NewProducer(deps, store, logger)
	s.summarizer = report.NewSummarizer(s.aggregatesRepo, s.alertEventsRepo, s.flusher, logger)

	store.Subscribe(func(next *config.Config) {
		s.flusher.Configure(next.Persistence.FlushInterval, next.Persistence.MaxFlushRetries)
	})

	return s
}

// Init repairs the schema, loads the calibration profile and reads the erase
// epoch. It is needed by every entry point, including the one-shot commands.
func (s *GuardianService) Init(ctx context.Context) error {
	if _, err := s.reconciler.Repair(ctx); err != nil {
		return fmt.Errorf("failed to repair storage: %w", err)
	}
	if err := s.calibration.Load(ctx); err != nil {
		return fmt.Errorf("failed to load calibration: %w", err)
	}
	if err := s.flusher.Sync(ctx); err != nil {
		return fmt.Errorf("failed to sync erase epoch: %w", err)
	}
	return nil
}

// Start opens the camera and runs the pipeline until ctx is done or the camera is
// gone for good. Before returning it flushes pending data, saves the alert state
// and releases the camera. A finished replay counts as a clean stop.
func (s *GuardianService) Start(ctx context.Context) error {
	s.logger.Info("Starting ScreenGuardian",
		zap.Bool("calibrated", s.calibration.Calibrated()),
		zap.Bool("redis", s.redisClient != nil),
		zap.Bool("mqtt", s.mqttClient != nil && s.mqttClient.IsConnected()),
	)

	if s.stateCache != nil {
		s.stateCache.Resume(ctx, s.alerts)
	}
	if err := s.device.Start(ctx); err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	flushCtx, stopFlusher := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.flusher.Run(flushCtx)
	}()

	err := s.producer.Run(ctx)
	stopFlusher()
	wg.Wait()
	s.shutdown()

	if errors.Is(err, capture.ErrEndOfStream) {
		s.logger.Info("Replay finished")
		return nil
	}
	return err
}

// shutdown runs after the producer stopped, on its own deadline.
func (s *GuardianService) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.flusher.Flush(ctx); err != nil {
		s.logger.Error("Final flush failed, unsaved metrics are lost", zap.Error(err))
	}
	if s.stateCache != nil {
		if err := s.stateCache.Save(ctx, s.alerts.Snapshot(time.Now())); err != nil {
			s.logger.Warn("Failed to save alert state", zap.Error(err))
		}
	}
	if err := s.device.Close(); err != nil {
		s.logger.Warn("Failed to release camera", zap.Error(err))
	}
}

// Stop closes the connections. It is safe to call more than once; only the
// first call reports errors.
func (s *GuardianService) Stop() error {
	var errs error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping ScreenGuardian")

		if s.mqttClient != nil {
			s.mqttClient.Disconnect()
		}
		if s.redisClient != nil {
			if err := commonredis.Close(s.redisClient); err != nil {
				s.logger.Error("Failed to close redis", zap.Error(err))
				errs = multierr.Append(errs, err)
			}
		}
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	})
	return errs
}

// SetMinimized tells the scheduler whether the live view is hidden.
func (s *GuardianService) SetMinimized(minimized bool) {
	s.window.SetMinimized(minimized)
	s.logger.Info("Window state changed", zap.Bool("minimized", minimized))
}

// Latest returns the most recent live status.
func (s *GuardianService) Latest() (models.LiveStatus, bool) {
	return s.presenter.Latest()
}

// Alerts returns the presentation alert queue.
func (s *GuardianService) Alerts() <-chan models.AlertEvent {
	return s.presenter.Alerts()
}

// AcknowledgeTwentyTwenty restarts the eye-break interval.
func (s *GuardianService) AcknowledgeTwentyTwenty() {
	s.alerts.AcknowledgeTwentyTwenty(time.Now())
}

// CalibrateFromCard stores a new profile from the card's observed pixel width.
func (s *GuardianService) CalibrateFromCard(ctx context.Context, cardPixelWidth float64) (*models.CalibrationProfile, error) {
	profile, err := s.calibration.CalibrateFromCard(ctx, cardPixelWidth, time.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("Calibrated from card",
		zap.Float64("card_px", cardPixelWidth),
		zap.Float64("reference_px", profile.ReferencePixelWidth),
	)
	return profile, nil
}

// CaptureNeutral records the most recently seen pose as the upright baseline.
func (s *GuardianService) CaptureNeutral(ctx context.Context) (models.NeutralPose, error) {
	lf, ok := s.producer.LastLandmarks()
	if !ok {
		return models.NeutralPose{}, ErrNoLandmarks
	}
	neutral, err := classifier.MeasureNeutral(lf, s.classifier.Thresholds())
	if err != nil {
		return models.NeutralPose{}, err
	}
	if err := s.calibration.SetNeutral(ctx, neutral); err != nil {
		return models.NeutralPose{}, err
	}
	return neutral, nil
}

// ArmErase opens the confirmation window for a panic erase.
func (s *GuardianService) ArmErase(scope reconciler.EraseScope) time.Time {
	return s.reconciler.Arm(scope, time.Now())
}

// DisarmErase cancels a pending erase.
func (s *GuardianService) DisarmErase() {
	s.reconciler.Disarm()
}

// ConfirmErase runs the armed erase with flushing paused, then drops everything
// still held in memory so nothing erased is written back.
func (s *GuardianService) ConfirmErase(ctx context.Context) (repository.EraseResult, error) {
	var result repository.EraseResult
	err := s.flusher.Exclusive(func() error {
		var err error
		result, err = s.reconciler.Confirm(ctx, time.Now())
		if err != nil && !errors.Is(err, reconciler.ErrPartialErase) {
			return err
		}
		s.flusher.AdoptEpoch(result.Epoch)
		s.forgetInMemory(ctx)
		return err
	})
	return result, err
}

func (s *GuardianService) forgetInMemory(ctx context.Context) {
	s.aggregator.Discard()
	s.flusher.DiscardAlerts()
	s.presenter.DrainAlerts()
	s.alerts.Reset(time.Now())
	if s.stateCache != nil {
		if err := s.stateCache.Delete(ctx); err != nil {
			s.logger.Warn("Failed to delete cached alert state", zap.Error(err))
		}
	}
	if err := s.publisher.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear published data", zap.Error(err))
	}
}

// erasedElsewhere runs inside a flush that found the store erased by another
// process.
func (s *GuardianService) erasedElsewhere(ctx context.Context) {
	s.forgetInMemory(ctx)
	if err := s.calibration.Load(ctx); err != nil {
		s.logger.Warn("Failed to reload calibration after erase", zap.Error(err))
	}
}

// Summarize returns the period metrics including not-yet-flushed data.
func (s *GuardianService) Summarize(ctx context.Context, p report.Period, ref time.Time) (report.Metrics, error) {
	return s.summarizer.Summarize(ctx, p, ref)
}

// ExportReport renders the period summary, its daily rows and ref's hourly rows
// as a workbook.
func (s *GuardianService) ExportReport(ctx context.Context, p report.Period, ref time.Time) ([]byte, error) {
	m, err := s.summarizer.Summarize(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	days, err := s.summarizer.Days(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	hours, err := s.summarizer.Hours(ctx, models.DayOf(ref))
	if err != nil {
		return nil, err
	}
	return report.Export(m, days, hours)
}

// RecentAlerts returns the latest persisted alerts, newest first.
func (s *GuardianService) RecentAlerts(ctx context.Context, limit int) ([]models.AlertEvent, error) {
	return s.alertEventsRepo.ListRecent(ctx, limit)
}

// DetectorHealthy pings the detector sidecar.
func (s *GuardianService) DetectorHealthy(ctx context.Context) error {
	return s.detector.Ping(ctx)
}

// captureReconnected runs after the camera was reopened mid-session: the gap is
// not screen time and the held-over result is stale.
func (s *GuardianService) captureReconnected() {
	s.aggregator.Interrupt()
	s.scheduler.Invalidate()
}

// mqttPublisher avoids handing a typed nil to the publisher.
func (s *GuardianService) mqttPublisher() publisher.MessagePublisher {
	if s.mqttClient == nil {
		return nil
	}
	return s.mqttClient
}
