package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	common "github.com/EricW9888/ScreenGuardian/common/config"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// AlertTiming is the debounce policy of one alert kind.
type AlertTiming struct {
	Enabled  bool
	Dwell    time.Duration `validate:"min=0"`
	Cooldown time.Duration `validate:"min=0"`
}

// RetryConfig is a bounded exponential backoff policy.
type RetryConfig struct {
	MaxRetries   int           `validate:"min=0"`
	InitialDelay time.Duration `validate:"gt=0"`
	MaxDelay     time.Duration `validate:"gtefield=InitialDelay"`
}

// Config is the ScreenGuardian service configuration.
type Config struct {
	EnvFile string

	Database common.DatabaseConfig
	Redis    common.RedisConfig
	MQTT     common.MQTTConfig

	Log struct {
		Level  string `validate:"oneof=debug info warn error"`
		Format string `validate:"oneof=json console"`
		File   common.LogFileConfig
	}

	Capture struct {
		CameraIndex            int     `validate:"min=-1"` // -1 probes indices 0-4
		TargetFPS              float64 `validate:"gt=0,lte=120"`
		MinimizedFPS           float64 `validate:"gt=0,lte=120"`
		MaxConsecutiveFailures int     `validate:"min=1"`
		Open                   RetryConfig
		Reconnect              RetryConfig
	}

	Detector struct {
		URL        string        `validate:"required,url"`
		Timeout    time.Duration `validate:"gt=0"`
		RetryCount int           `validate:"min=0,max=10"`
	}

	Scheduler struct {
		ResourceSaver bool
		Cadence       int `validate:"min=1,max=30"`
	}

	Classifier struct {
		ShoulderVisibility  float64 `validate:"gte=0,lt=1"`
		VerticalThreshold   float64 `validate:"gt=0,lte=2"`
		DepthThreshold      float64 `validate:"gt=1,lte=3"`
		EyeTiltThreshold    float64 `validate:"gt=0,lte=1"`
		EyeTiltDegrees      float64 `validate:"gt=0,lte=90"`
		HeadTwistDegrees    float64 `validate:"gt=0,lte=90"`
		NeckThreshold       float64 `validate:"gt=0,lte=1"`
		HorizontalOffset    float64 `validate:"gt=0,lte=1"`
		BodyTurnRatio       float64 `validate:"gt=0,lte=3"`
		MinPixelIPD         float64 `validate:"gte=0"`
		NailContactMarginPx float64 `validate:"gte=0"`
		NailDepthThreshold  float64 `validate:"gte=-1,lte=1"`
		NailCurlRatio       float64 `validate:"gt=0,lte=2"`
		FaceTouchMarginPx   float64 `validate:"gte=0"`
		MouthBoxPaddingPx   float64 `validate:"gte=0"`
	}

	Alerts struct {
		MinDistanceCM float64 `validate:"gt=0"`
		Posture       AlertTiming
		Distance      AlertTiming
		NailBiting    AlertTiming
		FaceTouch     AlertTiming
		PartialFrame  AlertTiming
		OffTask       AlertTiming
		TwentyTwenty  struct {
			Enabled  bool
			Interval time.Duration `validate:"gt=0"`
		}
	}

	Aggregation struct {
		MaxFrameGap time.Duration `validate:"gt=0"`
	}

	Persistence struct {
		FlushInterval   time.Duration `validate:"gt=0"`
		MaxFlushRetries int           `validate:"min=1"`
		EraseArmWindow  time.Duration `validate:"gt=0"`
	}

	Publisher struct {
		SnapshotKey    string
		SnapshotTTL    time.Duration `validate:"min=0"`
		AlertStream    string
		StreamMaxLen   int64 `validate:"min=0"`
		StateKeyPrefix string
		MQTTTopic      string
		PublishTimeout time.Duration `validate:"gt=0"`
		AlertQueueSize int           `validate:"min=1"`
	}

	Reload struct {
		Interval time.Duration `validate:"min=0"` // 0 disables hot reload
	}
}

var validate = validator.New()

// Load reads an optional env file (SG_ENV_FILE, default ".env") without overriding
// variables already set, then builds and validates the configuration.
func Load() (*Config, error) {
	envFile := getEnv("SG_ENV_FILE", ".env")
	if err := loadEnvFile(envFile, false); err != nil {
		return nil, err
	}
	return build(envFile)
}

// Reload re-reads envFile, letting its values win over the current environment.
func Reload(envFile string) (*Config, error) {
	if err := loadEnvFile(envFile, true); err != nil {
		return nil, err
	}
	return build(envFile)
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Capture.MinimizedFPS > c.Capture.TargetFPS {
		return errors.New("invalid config: minimized FPS must not exceed target FPS")
	}
	return nil
}

func loadEnvFile(path string, overload bool) error {
	if path == "" {
		return nil
	}
	var err error
	if overload {
		err = godotenv.Overload(path)
	} else {
		err = godotenv.Load(path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func build(envFile string) (*Config, error) {
	cfg := &Config{EnvFile: envFile}

	cfg.Database = common.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "screenguardian",
		SSLMode:  "disable",
		MaxConns: 4,
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 2)

	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.ClientID = "screenguardian"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File.Path = getEnv("LOG_FILE", "")
	cfg.Log.File.MaxSizeMB = getEnvInt("LOG_FILE_MAX_SIZE_MB", 10)
	cfg.Log.File.MaxBackups = getEnvInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.Log.File.MaxAgeDays = getEnvInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.Log.File.Compress = getEnvBool("LOG_FILE_COMPRESS", true)

	cfg.Capture.CameraIndex = getEnvInt("SG_CAMERA_INDEX", -1)
	cfg.Capture.TargetFPS = getEnvFloat("SG_TARGET_FPS", 24)
	cfg.Capture.MinimizedFPS = getEnvFloat("SG_MINIMIZED_FPS", 0.5)
	cfg.Capture.MaxConsecutiveFailures = getEnvInt("SG_CAPTURE_MAX_FAILURES", 20)
	cfg.Capture.Open = RetryConfig{
		MaxRetries:   getEnvInt("SG_CAPTURE_OPEN_RETRIES", 3),
		InitialDelay: getEnvDuration("SG_CAPTURE_OPEN_DELAY", time.Second),
		MaxDelay:     getEnvDuration("SG_CAPTURE_OPEN_MAX_DELAY", 5*time.Second),
	}
	cfg.Capture.Reconnect = RetryConfig{
		MaxRetries:   getEnvInt("SG_CAPTURE_RECONNECT_RETRIES", 5),
		InitialDelay: getEnvDuration("SG_CAPTURE_RECONNECT_DELAY", time.Second),
		MaxDelay:     getEnvDuration("SG_CAPTURE_RECONNECT_MAX_DELAY", 30*time.Second),
	}

	cfg.Detector.URL = getEnv("SG_DETECTOR_URL", "http://127.0.0.1:8765")
	cfg.Detector.Timeout = getEnvDuration("SG_DETECTOR_TIMEOUT", 2*time.Second)
	cfg.Detector.RetryCount = getEnvInt("SG_DETECTOR_RETRIES", 1)

	cfg.Scheduler.ResourceSaver = getEnvBool("SG_RESOURCE_SAVER", true)
	cfg.Scheduler.Cadence = getEnvInt("SG_RESOURCE_SAVER_CADENCE", 3)

	cfg.Classifier.ShoulderVisibility = getEnvFloat("SG_SHOULDER_VISIBILITY", 0.5)
	cfg.Classifier.VerticalThreshold = getEnvFloat("SG_POSTURE_VERT_THRESH", 0.70)
	cfg.Classifier.DepthThreshold = getEnvFloat("SG_POSTURE_DEPTH_THRESH", 1.22)
	cfg.Classifier.EyeTiltThreshold = getEnvFloat("SG_EYE_TILT_THRESH", 0.08)
	cfg.Classifier.EyeTiltDegrees = getEnvFloat("SG_EYE_TILT_DEGREES", 10)
	cfg.Classifier.HeadTwistDegrees = getEnvFloat("SG_HEAD_TWIST_DEGREES", 12)
	cfg.Classifier.NeckThreshold = getEnvFloat("SG_NECK_THRESH", 0.55)
	cfg.Classifier.HorizontalOffset = getEnvFloat("SG_HORIZONTAL_OFFSET_THRESH", 0.15)
	cfg.Classifier.BodyTurnRatio = getEnvFloat("SG_BODY_TURN_RATIO", 1.15*0.78)
	cfg.Classifier.MinPixelIPD = getEnvFloat("SG_MIN_PIXEL_IPD", 2)
	cfg.Classifier.NailContactMarginPx = getEnvFloat("SG_NAIL_CONTACT_MARGIN", 4)
	cfg.Classifier.NailDepthThreshold = getEnvFloat("SG_NAIL_DEPTH_THRESH", 0.1)
	cfg.Classifier.NailCurlRatio = getEnvFloat("SG_NAIL_CURL_RATIO", 1.15)
	cfg.Classifier.FaceTouchMarginPx = getEnvFloat("SG_FACE_TOUCH_MARGIN", 6)
	cfg.Classifier.MouthBoxPaddingPx = getEnvFloat("SG_MOUTH_BOX_PADDING", 10)

	dwell := getEnvDuration("SG_ALERT_DELAY", 6*time.Second)
	cfg.Alerts.MinDistanceCM = getEnvFloat("SG_MIN_DISTANCE_CM", 50.8)
	cfg.Alerts.Posture = alertTiming("POSTURE", true, dwell, time.Minute)
	cfg.Alerts.Distance = alertTiming("DISTANCE", true, dwell, time.Minute)
	cfg.Alerts.NailBiting = alertTiming("NAIL_BITING", false, 5*time.Second, time.Minute)
	cfg.Alerts.FaceTouch = alertTiming("FACE_TOUCH", false, 3*time.Second, time.Minute)
	cfg.Alerts.PartialFrame = alertTiming("PARTIAL_FRAME", true, dwell, 5*time.Minute)
	cfg.Alerts.OffTask = alertTiming("OFF_TASK", true, dwell, 5*time.Minute)
	cfg.Alerts.TwentyTwenty.Enabled = getEnvBool("SG_TWENTY_ENABLED", true)
	cfg.Alerts.TwentyTwenty.Interval = getEnvDuration("SG_TWENTY_INTERVAL", 20*time.Minute)

	cfg.Aggregation.MaxFrameGap = getEnvDuration("SG_MAX_FRAME_GAP", 5*time.Second)

	cfg.Persistence.FlushInterval = getEnvDuration("SG_FLUSH_INTERVAL", 15*time.Second)
	cfg.Persistence.MaxFlushRetries = getEnvInt("SG_FLUSH_MAX_RETRIES", 8)
	cfg.Persistence.EraseArmWindow = getEnvDuration("SG_ERASE_ARM_WINDOW", 30*time.Second)

	cfg.Publisher.SnapshotKey = getEnv("SG_SNAPSHOT_KEY", "screenguardian:live")
	cfg.Publisher.SnapshotTTL = getEnvDuration("SG_SNAPSHOT_TTL", 30*time.Second)
	cfg.Publisher.AlertStream = getEnv("SG_ALERT_STREAM", "screenguardian:alerts")
	cfg.Publisher.StreamMaxLen = int64(getEnvInt("SG_ALERT_STREAM_MAXLEN", 1000))
	cfg.Publisher.StateKeyPrefix = getEnv("SG_STATE_PREFIX", "screenguardian:state:")
	cfg.Publisher.MQTTTopic = getEnv("SG_MQTT_TOPIC", "screenguardian/alerts")
	cfg.Publisher.PublishTimeout = getEnvDuration("SG_PUBLISH_TIMEOUT", 500*time.Millisecond)
	cfg.Publisher.AlertQueueSize = getEnvInt("SG_ALERT_QUEUE_SIZE", 64)

	cfg.Reload.Interval = getEnvDuration("SG_RELOAD_INTERVAL", 5*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func alertTiming(name string, enabled bool, dwell, cooldown time.Duration) AlertTiming {
	return AlertTiming{
		Enabled:  getEnvBool("SG_"+name+"_ENABLED", enabled),
		Dwell:    getEnvDuration("SG_"+name+"_DWELL", dwell),
		Cooldown: getEnvDuration("SG_"+name+"_COOLDOWN", cooldown),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}
