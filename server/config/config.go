package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Security SecurityConfig `json:"security" yaml:"security"`
	ML       MLConfig       `json:"ml" yaml:"ml"`
	Motion   MotionConfig   `json:"motion" yaml:"motion"`
	Fusion   FusionConfig   `json:"fusion" yaml:"fusion"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Location LocationConfig `json:"location" yaml:"location"`
	Alerts   AlertsConfig   `json:"alerts" yaml:"alerts"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Kafka    KafkaConfig    `json:"kafka" yaml:"kafka"`
	Stats    StatsConfig    `json:"stats" yaml:"stats"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	Environment  string        `json:"environment" yaml:"environment"`
}

type SecurityConfig struct {
	JWTSecretKey   string        `json:"jwt_secret_key" yaml:"jwt_secret_key"`
	AllowedOrigins []string      `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	MaxRequestSize int64         `json:"max_request_size" yaml:"max_request_size"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	EnableHTTPS    bool          `json:"enable_https" yaml:"enable_https"`
	CertFile       string        `json:"cert_file" yaml:"cert_file"`
	KeyFile        string        `json:"key_file" yaml:"key_file"`
}

// MLConfig points at the external object-detection model service.
type MLConfig struct {
	BaseURL             string        `json:"base_url" yaml:"base_url"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries          int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay" yaml:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	MinConfidence       float64       `json:"min_confidence" yaml:"min_confidence"`
}

type MotionConfig struct {
	GridSize   int     `json:"grid_size" yaml:"grid_size"`
	NoiseFloor float64 `json:"noise_floor" yaml:"noise_floor"`
	MaxPixels  int     `json:"max_pixels" yaml:"max_pixels"`
}

// FusionConfig holds the documented fusion weights {motion_weight,
// detection_weight, overlap_bonus} and the collision heuristics tuning.
type FusionConfig struct {
	MotionWeight    float64 `json:"motion_weight" yaml:"motion_weight"`
	DetectionWeight float64 `json:"detection_weight" yaml:"detection_weight"`
	OverlapBonus    float64 `json:"overlap_bonus" yaml:"overlap_bonus"`
	PedestrianScale float64 `json:"pedestrian_scale" yaml:"pedestrian_scale"`
	OverlapIoU      float64 `json:"overlap_iou" yaml:"overlap_iou"`
	RelativeShift   float64 `json:"relative_shift" yaml:"relative_shift"`
}

type EventsConfig struct {
	CandidateThreshold float64       `json:"candidate_threshold" yaml:"candidate_threshold"`
	ConfirmThreshold   float64       `json:"confirm_threshold" yaml:"confirm_threshold"`
	ConfirmFrames      int           `json:"confirm_frames" yaml:"confirm_frames"`
	ExpireFrames       int           `json:"expire_frames" yaml:"expire_frames"`
	DebounceWindow     int           `json:"debounce_window" yaml:"debounce_window"`
	Cooldown           time.Duration `json:"cooldown" yaml:"cooldown"`
}

type PipelineConfig struct {
	QueueDepth    int           `json:"queue_depth" yaml:"queue_depth"`
	DetectTimeout time.Duration `json:"detect_timeout" yaml:"detect_timeout"`
	TickInterval  time.Duration `json:"tick_interval" yaml:"tick_interval"`
	MaxCameras    int           `json:"max_cameras" yaml:"max_cameras"`
	// IdleTimeout reaps a camera worker that saw no frame and holds no event.
	IdleTimeout   time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	// MaxClockSkew bounds how far ahead of the server a frame timestamp may be.
	MaxClockSkew  time.Duration `json:"max_clock_skew" yaml:"max_clock_skew"`
}

type LocationConfig struct {
	StalenessWindow time.Duration `json:"staleness_window" yaml:"staleness_window"`
	DefaultLat      float64       `json:"default_lat" yaml:"default_lat"`
	DefaultLng      float64       `json:"default_lng" yaml:"default_lng"`
	UseDefault      bool          `json:"use_default" yaml:"use_default"`
	GeocoderURL     string        `json:"geocoder_url" yaml:"geocoder_url"`
	GeocodeTimeout  time.Duration `json:"geocode_timeout" yaml:"geocode_timeout"`
}

type AlertsConfig struct {
	Channels        []string       `json:"channels" yaml:"channels"`
	MaxAttempts     int            `json:"max_attempts" yaml:"max_attempts"`
	BaseBackoff     time.Duration  `json:"base_backoff" yaml:"base_backoff"`
	MaxBackoff      time.Duration  `json:"max_backoff" yaml:"max_backoff"`
	AttemptTimeout  time.Duration  `json:"attempt_timeout" yaml:"attempt_timeout"`
	Workers         int            `json:"workers" yaml:"workers"`
	QueueSize       int            `json:"queue_size" yaml:"queue_size"`
	LedgerRetention time.Duration  `json:"ledger_retention" yaml:"ledger_retention"`
	SMS             SMSConfig      `json:"sms" yaml:"sms"`
	Email           EmailConfig    `json:"email" yaml:"email"`
	Telegram        TelegramConfig `json:"telegram" yaml:"telegram"`
	Webhook         WebhookConfig  `json:"webhook" yaml:"webhook"`
}

type SMSConfig struct {
	AccountSID string   `json:"account_sid" yaml:"account_sid"`
	AuthToken  string   `json:"auth_token" yaml:"auth_token"`
	From       string   `json:"from" yaml:"from"`
	To         []string `json:"to" yaml:"to"`
	BaseURL    string   `json:"base_url" yaml:"base_url"`
}

type EmailConfig struct {
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	User     string   `json:"user" yaml:"user"`
	Password string   `json:"password" yaml:"password"`
	To       []string `json:"to" yaml:"to"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
}

type WebhookConfig struct {
	URL string `json:"url" yaml:"url"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type StatsConfig struct {
	RecentEvents int `json:"recent_events" yaml:"recent_events"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			Environment:  "development",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   50,
			RateLimitBurst: 100,
			MaxRequestSize: 10 * 1024 * 1024, // 10MB
			RequestTimeout: 30 * time.Second,
		},
		ML: MLConfig{
			BaseURL:             "http://localhost:5000",
			Timeout:             2 * time.Second,
			MaxRetries:          1,
			RetryDelay:          100 * time.Millisecond,
			HealthCheckInterval: 30 * time.Second,
			MinConfidence:       0.3,
		},
		Motion: MotionConfig{
			GridSize:   32,
			NoiseFloor: 0.04,
			MaxPixels:  4096 * 4096,
		},
		Fusion: FusionConfig{
			MotionWeight:    60,
			DetectionWeight: 15,
			OverlapBonus:    25,
			PedestrianScale: 0.5,
			OverlapIoU:      0.1,
			RelativeShift:   0.5,
		},
		Events: EventsConfig{
			CandidateThreshold: 70,
			ConfirmThreshold:   70,
			ConfirmFrames:      3,
			ExpireFrames:       1,
			DebounceWindow:     10,
			Cooldown:           20 * time.Second,
		},
		Pipeline: PipelineConfig{
			QueueDepth:    4,
			DetectTimeout: 10 * time.Second,
			TickInterval:  time.Second,
			MaxCameras:    256,
			IdleTimeout:   10 * time.Minute,
			MaxClockSkew:  5 * time.Second,
		},
		Location: LocationConfig{
			StalenessWindow: 5 * time.Minute,
			DefaultLat:      28.6139,
			DefaultLng:      77.2090,
			GeocodeTimeout:  3 * time.Second,
		},
		Alerts: AlertsConfig{
			Channels:        []string{"log"},
			MaxAttempts:     3,
			BaseBackoff:     500 * time.Millisecond,
			MaxBackoff:      10 * time.Second,
			AttemptTimeout:  15 * time.Second,
			Workers:         4,
			QueueSize:       256,
			LedgerRetention: time.Hour,
			SMS:             SMSConfig{BaseURL: "https://api.twilio.com"},
			Email:           EmailConfig{Port: 587},
			Telegram:        TelegramConfig{BaseURL: "https://api.telegram.org"},
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Kafka: KafkaConfig{
			Topic:   "camera-locations",
			GroupID: "accident-detection",
		},
		Stats: StatsConfig{
			RecentEvents: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// (CONFIG_FILE) and finally environment variables, which win. A .env file in
// the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvAsDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)

	c.Security.JWTSecretKey = getEnv("JWT_SECRET_KEY", c.Security.JWTSecretKey)
	c.Security.AllowedOrigins = getEnvAsStringSlice("ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.RateLimitRPS = getEnvAsInt("RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.MaxRequestSize = getEnvAsInt64("MAX_REQUEST_SIZE", c.Security.MaxRequestSize)
	c.Security.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.Security.RequestTimeout)
	c.Security.EnableHTTPS = getEnvAsBool("ENABLE_HTTPS", c.Security.EnableHTTPS)
	c.Security.CertFile = getEnv("CERT_FILE", c.Security.CertFile)
	c.Security.KeyFile = getEnv("KEY_FILE", c.Security.KeyFile)

	c.ML.BaseURL = getEnv("ML_BASE_URL", c.ML.BaseURL)
	c.ML.Timeout = getEnvAsDuration("ML_TIMEOUT", c.ML.Timeout)
	c.ML.MaxRetries = getEnvAsInt("ML_MAX_RETRIES", c.ML.MaxRetries)
	c.ML.RetryDelay = getEnvAsDuration("ML_RETRY_DELAY", c.ML.RetryDelay)
	c.ML.HealthCheckInterval = getEnvAsDuration("ML_HEALTH_CHECK_INTERVAL", c.ML.HealthCheckInterval)
	c.ML.MinConfidence = getEnvAsFloat("ML_MIN_CONFIDENCE", c.ML.MinConfidence)

	c.Motion.GridSize = getEnvAsInt("MOTION_GRID_SIZE", c.Motion.GridSize)
	c.Motion.NoiseFloor = getEnvAsFloat("MOTION_NOISE_FLOOR", c.Motion.NoiseFloor)
	c.Motion.MaxPixels = getEnvAsInt("MOTION_MAX_PIXELS", c.Motion.MaxPixels)

	c.Fusion.MotionWeight = getEnvAsFloat("FUSION_MOTION_WEIGHT", c.Fusion.MotionWeight)
	c.Fusion.DetectionWeight = getEnvAsFloat("FUSION_DETECTION_WEIGHT", c.Fusion.DetectionWeight)
	c.Fusion.OverlapBonus = getEnvAsFloat("FUSION_OVERLAP_BONUS", c.Fusion.OverlapBonus)
	c.Fusion.PedestrianScale = getEnvAsFloat("FUSION_PEDESTRIAN_SCALE", c.Fusion.PedestrianScale)
	c.Fusion.OverlapIoU = getEnvAsFloat("FUSION_OVERLAP_IOU", c.Fusion.OverlapIoU)
	c.Fusion.RelativeShift = getEnvAsFloat("FUSION_RELATIVE_SHIFT", c.Fusion.RelativeShift)

	c.Events.CandidateThreshold = getEnvAsFloat("EVENT_CANDIDATE_THRESHOLD", c.Events.CandidateThreshold)
	c.Events.ConfirmThreshold = getEnvAsFloat("EVENT_CONFIRM_THRESHOLD", c.Events.ConfirmThreshold)
	c.Events.ConfirmFrames = getEnvAsInt("EVENT_CONFIRM_FRAMES", c.Events.ConfirmFrames)
	c.Events.ExpireFrames = getEnvAsInt("EVENT_EXPIRE_FRAMES", c.Events.ExpireFrames)
	c.Events.DebounceWindow = getEnvAsInt("EVENT_DEBOUNCE_WINDOW", c.Events.DebounceWindow)
	c.Events.Cooldown = getEnvAsSeconds("ALERT_COOLDOWN_SECONDS", c.Events.Cooldown)

	c.Pipeline.QueueDepth = getEnvAsInt("PIPELINE_QUEUE_DEPTH", c.Pipeline.QueueDepth)
	c.Pipeline.DetectTimeout = getEnvAsDuration("PIPELINE_DETECT_TIMEOUT", c.Pipeline.DetectTimeout)
	c.Pipeline.TickInterval = getEnvAsDuration("PIPELINE_TICK_INTERVAL", c.Pipeline.TickInterval)
	c.Pipeline.MaxCameras = getEnvAsInt("PIPELINE_MAX_CAMERAS", c.Pipeline.MaxCameras)
	c.Pipeline.IdleTimeout = getEnvAsDuration("PIPELINE_IDLE_TIMEOUT", c.Pipeline.IdleTimeout)
	c.Pipeline.MaxClockSkew = getEnvAsDuration("PIPELINE_MAX_CLOCK_SKEW", c.Pipeline.MaxClockSkew)

	c.Location.StalenessWindow = getEnvAsDuration("LOCATION_STALENESS_WINDOW", c.Location.StalenessWindow)
	c.Location.DefaultLat = getEnvAsFloat("LOCATION_DEFAULT_LAT", c.Location.DefaultLat)
	c.Location.DefaultLng = getEnvAsFloat("LOCATION_DEFAULT_LNG", c.Location.DefaultLng)
	c.Location.UseDefault = getEnvAsBool("LOCATION_USE_DEFAULT", c.Location.UseDefault)
	c.Location.GeocoderURL = getEnv("GEOCODER_URL", c.Location.GeocoderURL)
	c.Location.GeocodeTimeout = getEnvAsDuration("GEOCODE_TIMEOUT", c.Location.GeocodeTimeout)

	c.Alerts.Channels = getEnvAsStringSlice("ALERT_CHANNELS", c.Alerts.Channels)
	c.Alerts.MaxAttempts = getEnvAsInt("ALERT_MAX_ATTEMPTS", c.Alerts.MaxAttempts)
	c.Alerts.BaseBackoff = getEnvAsDuration("ALERT_BASE_BACKOFF", c.Alerts.BaseBackoff)
	c.Alerts.MaxBackoff = getEnvAsDuration("ALERT_MAX_BACKOFF", c.Alerts.MaxBackoff)
	c.Alerts.AttemptTimeout = getEnvAsDuration("ALERT_ATTEMPT_TIMEOUT", c.Alerts.AttemptTimeout)
	c.Alerts.Workers = getEnvAsInt("ALERT_WORKERS", c.Alerts.Workers)
	c.Alerts.QueueSize = getEnvAsInt("ALERT_QUEUE_SIZE", c.Alerts.QueueSize)
	c.Alerts.LedgerRetention = getEnvAsDuration("ALERT_LEDGER_RETENTION", c.Alerts.LedgerRetention)
	c.Alerts.SMS.AccountSID = getEnv("TWILIO_ACCOUNT_SID", c.Alerts.SMS.AccountSID)
	c.Alerts.SMS.AuthToken = getEnv("TWILIO_AUTH_TOKEN", c.Alerts.SMS.AuthToken)
	c.Alerts.SMS.From = getEnv("TWILIO_PHONE_NUMBER", c.Alerts.SMS.From)
	c.Alerts.SMS.To = getEnvAsStringSlice("EMERGENCY_CONTACTS", c.Alerts.SMS.To)
	c.Alerts.Email.Host = getEnv("SMTP_HOST", c.Alerts.Email.Host)
	c.Alerts.Email.Port = getEnvAsInt("SMTP_PORT", c.Alerts.Email.Port)
	c.Alerts.Email.User = getEnv("SMTP_USER", c.Alerts.Email.User)
	c.Alerts.Email.Password = getEnv("SMTP_PASSWORD", c.Alerts.Email.Password)
	c.Alerts.Email.To = getEnvAsStringSlice("ALERT_EMAILS", c.Alerts.Email.To)
	c.Alerts.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Alerts.Telegram.BotToken)
	c.Alerts.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", c.Alerts.Telegram.ChatID)
	c.Alerts.Webhook.URL = getEnv("ALERT_WEBHOOK_URL", c.Alerts.Webhook.URL)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnv("STORAGE_DSN", c.Storage.DSN)

	c.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = getEnvAsStringSlice("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_LOCATION_TOPIC", c.Kafka.Topic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Stats.RecentEvents = getEnvAsInt("STATS_RECENT_EVENTS", c.Stats.RecentEvents)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.ML.BaseURL == "" {
		logger.Warn("ML base URL not set, classifier runs in degraded mode")
	}

	if c.Security.JWTSecretKey == "" {
		logger.Warn("JWT secret key not set, API authentication disabled")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Motion.GridSize < 2 {
		errors = append(errors, "motion grid size must be at least 2")
	}

	if c.Motion.NoiseFloor < 0 || c.Motion.NoiseFloor >= 1 {
		errors = append(errors, "motion noise floor must be in [0,1)")
	}

	if c.Fusion.MotionWeight < 0 || c.Fusion.DetectionWeight < 0 || c.Fusion.OverlapBonus < 0 {
		errors = append(errors, "fusion weights must be non-negative")
	}

	if c.Events.CandidateThreshold <= 0 || c.Events.CandidateThreshold > 100 {
		errors = append(errors, "candidate threshold must be in (0,100]")
	}

	if c.Events.ConfirmThreshold < c.Events.CandidateThreshold || c.Events.ConfirmThreshold > 100 {
		errors = append(errors, "confirm threshold must be in [candidate threshold,100]")
	}

	if c.Events.ConfirmFrames < 1 {
		errors = append(errors, "confirm frames must be at least 1")
	}

	if c.Events.ExpireFrames < 1 {
		errors = append(errors, "expire frames must be at least 1")
	}

	if c.Pipeline.QueueDepth < 1 {
		errors = append(errors, "pipeline queue depth must be at least 1")
	}

	if c.Pipeline.MaxCameras < 1 {
		errors = append(errors, "pipeline max cameras must be at least 1")
	}

	if c.Motion.MaxPixels < 1 {
		errors = append(errors, "motion max pixels must be positive")
	}

	if c.Alerts.MaxAttempts < 1 {
		errors = append(errors, "alert max attempts must be at least 1")
	}

	if c.Alerts.Workers < 1 || c.Alerts.QueueSize < 1 {
		errors = append(errors, "alert workers and queue size must be positive")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "sqlite", "postgres", "postgresql":
	default:
		errors = append(errors, fmt.Sprintf("unsupported storage driver %q", c.Storage.Driver))
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" || c.Kafka.GroupID == "") {
		errors = append(errors, "kafka requires brokers, topic and group id")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsSeconds accepts either a bare number of seconds or a Go duration.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
