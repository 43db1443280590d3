package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"
	"github.com/EricW9888/ScreenGuardian/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ProfileKey is the settings key holding the serialised profile.
const ProfileKey = "calibration_profile"

// Card calibration constants: an ID-1 card held at arm's length, tracked against the
// adult mean interpupillary distance.
const (
	CardWidthMM           = 85.6
	AssumedCardDistanceCM = 70.0
	InterpupillaryMM      = 63.0
)

// ErrNotCalibrated is returned when a profile is required but none exists.
var ErrNotCalibrated = errors.New("not calibrated")

// SettingsStore persists small string values.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store is the process-wide calibration profile. One writer (the calibration flow),
// many readers (every classification).
type Store struct {
	mu       sync.RWMutex
	profile  *models.CalibrationProfile
	settings SettingsStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewStore creates an empty store backed by settings.
func NewStore(settings SettingsStore, logger *zap.Logger) *Store {
	return &Store{
		settings: settings,
		validate: validator.New(),
		logger:   logger,
	}
}

// Load reads the persisted profile. A missing profile leaves the store uncalibrated.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.settings.Get(ctx, ProfileKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("No calibration profile stored, running uncalibrated")
			s.setProfile(nil)
			return nil
		}
		return fmt.Errorf("failed to load calibration profile: %w", err)
	}

	var profile models.CalibrationProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return fmt.Errorf("failed to decode calibration profile: %w", err)
	}
	if err := s.validate.Struct(&profile); err != nil {
		return fmt.Errorf("stored calibration profile is invalid: %w", err)
	}

	s.setProfile(&profile)
	s.logger.Info("Calibration profile loaded",
		zap.Float64("reference_object_width_mm", profile.ReferenceObjectWidthMM),
		zap.Float64("reference_pixel_width", profile.ReferencePixelWidth),
		zap.Bool("has_neutral_pose", profile.Neutral != nil),
	)
	return nil
}

// Current returns a copy of the active profile.
func (s *Store) Current() (*models.CalibrationProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, false
	}
	return cloneProfile(s.profile), true
}

// Calibrated reports whether a profile exists.
func (s *Store) Calibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil
}

// Save validates and persists profile, then makes it active.
func (s *Store) Save(ctx context.Context, profile *models.CalibrationProfile) error {
	if profile == nil {
		return errors.New("calibration profile is nil")
	}
	if err := s.validate.Struct(profile); err != nil {
		return fmt.Errorf("invalid calibration profile: %w", err)
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode calibration profile: %w", err)
	}
	if err := s.settings.Set(ctx, ProfileKey, string(raw)); err != nil {
		return fmt.Errorf("failed to save calibration profile: %w", err)
	}

	s.setProfile(cloneProfile(profile))
	return nil
}

// CalibrateFromCard derives the pixel scale from a card measured at the assumed
// calibration distance and saves it, keeping any neutral pose already captured.
func (s *Store) CalibrateFromCard(ctx context.Context, cardPixelWidth float64, now time.Time) (*models.CalibrationProfile, error) {
	profile, err := ProfileFromCard(cardPixelWidth, now)
	if err != nil {
		return nil, err
	}
	if current, ok := s.Current(); ok {
		profile.Neutral = current.Neutral
	}
	if err := s.Save(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SetNeutral stores a neutral pose on the current profile.
func (s *Store) SetNeutral(ctx context.Context, neutral models.NeutralPose) error {
	current, ok := s.Current()
	if !ok {
		return ErrNotCalibrated
	}
	current.Neutral = &neutral
	return s.Save(ctx, current)
}

// Clear deletes the persisted profile and forgets it.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.settings.Delete(ctx, ProfileKey); err != nil {
		return fmt.Errorf("failed to clear calibration profile: %w", err)
	}
	s.setProfile(nil)
	return nil
}

// Forget drops the in-memory profile after it was removed from storage by other means.
func (s *Store) Forget() {
	s.setProfile(nil)
}

func (s *Store) setProfile(p *models.CalibrationProfile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

// ProfileFromCard converts a card's observed pixel width into a profile tracking the
// interpupillary distance.
func ProfileFromCard(cardPixelWidth float64, now time.Time) (*models.CalibrationProfile, error) {
	if cardPixelWidth <= 0 {
		return nil, fmt.Errorf("card pixel width must be positive, got %v", cardPixelWidth)
	}
	focalPx := cardPixelWidth * AssumedCardDistanceCM / (CardWidthMM / 10.0)
	return &models.CalibrationProfile{
		ReferenceObjectWidthMM: InterpupillaryMM,
		ReferencePixelWidth:    focalPx,
		CalibratedAt:           now,
	}, nil
}

func cloneProfile(p *models.CalibrationProfile) *models.CalibrationProfile {
	out := *p
	if p.Neutral != nil {
		n := *p.Neutral
		out.Neutral = &n
	}
	return &out
}
