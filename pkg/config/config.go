package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"speaker-diarizer/pkg/diarization"
	"speaker-diarizer/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	Diarization DiarizationConfig `json:"diarization"`
	Audio       AudioConfig       `json:"audio"`
	HTTP        HTTPConfig        `json:"http"`
	Metrics     MetricsConfig     `json:"metrics"`
	Logging     LoggingConfig     `json:"logging"`
	Messaging   MessagingConfig   `json:"messaging"`
}

// DiarizationConfig holds the thresholds of the diarization engine
type DiarizationConfig struct {
	MaxSpeakers        int     `json:"max_speakers" env:"DIARIZATION_MAX_SPEAKERS" default:"8"`
	MinSimilarity      float64 `json:"min_similarity" env:"DIARIZATION_MIN_SIMILARITY" default:"0.65"`
	Hysteresis         float64 `json:"hysteresis" env:"DIARIZATION_HYSTERESIS" default:"0.8"`
	Debounce           float64 `json:"debounce" env:"DIARIZATION_DEBOUNCE" default:"0.5"`
	SilenceReset       float64 `json:"silence_reset" env:"DIARIZATION_SILENCE_RESET" default:"1.5"`
	SilenceThresholdDB float64 `json:"silence_threshold_db" env:"DIARIZATION_SILENCE_THRESHOLD_DB" default:"-45"`
	SmoothingWindow    int     `json:"smoothing_window" env:"DIARIZATION_SMOOTHING_WINDOW" default:"10"`
}

// AudioConfig describes the audio fed to the engine
type AudioConfig struct {
	SampleRate int `json:"sample_rate" env:"AUDIO_SAMPLE_RATE" default:"16000"`
	BlockSize  int `json:"block_size" env:"AUDIO_BLOCK_SIZE" default:"2048"`
}

// HTTPConfig holds the streaming server configuration
type HTTPConfig struct {
	Enabled      bool          `json:"enabled" env:"HTTP_ENABLED" default:"true"`
	Port         int           `json:"port" env:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`
	MaxSessions  int           `json:"max_sessions" env:"HTTP_MAX_SESSIONS" default:"100"`
}

// MetricsConfig holds the Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED" default:"true"`
	Path    string `json:"path" env:"METRICS_PATH" default:"/metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"LOG_FORMAT" default:"json"`
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// MessagingConfig holds the AMQP speaker event publisher configuration
type MessagingConfig struct {
	AMQPEnabled    bool   `json:"amqp_enabled" env:"AMQP_ENABLED" default:"false"`
	AMQPUrl        string `json:"amqp_url" env:"AMQP_URL"`
	AMQPExchange   string `json:"amqp_exchange" env:"AMQP_EXCHANGE" default:"diarization"`
	AMQPRoutingKey string `json:"amqp_routing_key" env:"AMQP_ROUTING_KEY" default:"speaker.change"`
	AMQPQueueName  string `json:"amqp_queue_name" env:"AMQP_QUEUE_NAME"`
	BufferSize     int    `json:"buffer_size" env:"AMQP_BUFFER_SIZE" default:"256"`
}

// Settings converts the configuration section to engine settings
func (d DiarizationConfig) Settings() diarization.Settings {
	return diarization.Settings{
		MaxSpeakers:        d.MaxSpeakers,
		MinSimilarity:      d.MinSimilarity,
		Hysteresis:         d.Hysteresis,
		Debounce:           d.Debounce,
		SilenceReset:       d.SilenceReset,
		SilenceThresholdDB: d.SilenceThresholdDB,
		SmoothingWindow:    d.SmoothingWindow,
	}
}

// Load loads the configuration from a .env file, if any, and the environment
func Load(logger *logrus.Logger) (*Config, error) {
	loadEnvFile(logger)

	config := &Config{}

	if err := loadDiarizationConfig(logger, &config.Diarization); err != nil {
		return nil, errors.Wrap(err, "failed to load diarization configuration")
	}

	if err := loadAudioConfig(logger, &config.Audio); err != nil {
		return nil, errors.Wrap(err, "failed to load audio configuration")
	}

	loadHTTPConfig(logger, &config.HTTP)
	loadMetricsConfig(&config.Metrics)
	loadLoggingConfig(logger, &config.Logging)
	loadMessagingConfig(logger, &config.Messaging)

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return config, nil
}

func loadEnvFile(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	for _, envFile := range []string{".env", "../.env"} {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		if loadErr := godotenv.Load(envFile); loadErr != nil {
			logger.WithError(loadErr).WithField("path", absPath).Warn("Failed to load .env file")
			continue
		}
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        absPath,
		}).Info("Successfully loaded .env file")
		return
	}

	logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
}

func loadDiarizationConfig(logger *logrus.Logger, config *DiarizationConfig) error {
	defaults := diarization.DefaultSettings()

	config.MaxSpeakers = getEnvInt("DIARIZATION_MAX_SPEAKERS", defaults.MaxSpeakers)
	if config.MaxSpeakers < 1 || config.MaxSpeakers > diarization.MaxSpeakers {
		return errors.NewInvalidInput(fmt.Sprintf("DIARIZATION_MAX_SPEAKERS must be between 1 and %d", diarization.MaxSpeakers),
			map[string]interface{}{"value": config.MaxSpeakers})
	}

	config.MinSimilarity = getEnvFloat("DIARIZATION_MIN_SIMILARITY", defaults.MinSimilarity)
	if config.MinSimilarity <= 0 || config.MinSimilarity > 1 {
		return errors.NewInvalidInput("DIARIZATION_MIN_SIMILARITY must be in (0, 1]",
			map[string]interface{}{"value": config.MinSimilarity})
	}

	config.Hysteresis = getEnvFloat("DIARIZATION_HYSTERESIS", defaults.Hysteresis)
	if config.Hysteresis <= 0 || config.Hysteresis > 1 {
		return errors.NewInvalidInput("DIARIZATION_HYSTERESIS must be in (0, 1]",
			map[string]interface{}{"value": config.Hysteresis})
	}

	config.Debounce = getEnvFloat("DIARIZATION_DEBOUNCE", defaults.Debounce)
	if config.Debounce < 0 {
		logger.Warnf("Invalid DIARIZATION_DEBOUNCE %.2f, using default: %.2f", config.Debounce, defaults.Debounce)
		config.Debounce = defaults.Debounce
	}

	config.SilenceReset = getEnvFloat("DIARIZATION_SILENCE_RESET", defaults.SilenceReset)
	if config.SilenceReset <= 0 {
		logger.Warnf("Invalid DIARIZATION_SILENCE_RESET %.2f, using default: %.2f", config.SilenceReset, defaults.SilenceReset)
		config.SilenceReset = defaults.SilenceReset
	}

	config.SilenceThresholdDB = getEnvFloat("DIARIZATION_SILENCE_THRESHOLD_DB", defaults.SilenceThresholdDB)
	if config.SilenceThresholdDB >= 0 {
		return errors.NewInvalidInput("DIARIZATION_SILENCE_THRESHOLD_DB must be negative",
			map[string]interface{}{"value": config.SilenceThresholdDB})
	}

	config.SmoothingWindow = getEnvInt("DIARIZATION_SMOOTHING_WINDOW", defaults.SmoothingWindow)
	if config.SmoothingWindow < 1 {
		logger.Warnf("Invalid DIARIZATION_SMOOTHING_WINDOW %d, using default: %d", config.SmoothingWindow, defaults.SmoothingWindow)
		config.SmoothingWindow = defaults.SmoothingWindow
	}

	return nil
}

func loadAudioConfig(logger *logrus.Logger, config *AudioConfig) error {
	config.SampleRate = getEnvInt("AUDIO_SAMPLE_RATE", 16000)
	if config.SampleRate < 8000 || config.SampleRate > 192000 {
		return errors.NewInvalidInput("AUDIO_SAMPLE_RATE must be between 8000 and 192000",
			map[string]interface{}{"value": config.SampleRate})
	}

	config.BlockSize = getEnvInt("AUDIO_BLOCK_SIZE", diarization.AnalysisSize)
	if config.BlockSize < 256 {
		logger.Warnf("AUDIO_BLOCK_SIZE %d is too small, using default: %d", config.BlockSize, diarization.AnalysisSize)
		config.BlockSize = diarization.AnalysisSize
	}
	if config.BlockSize < diarization.AnalysisSize {
		logger.WithField("block_size", config.BlockSize).Warn("Blocks shorter than the analysis window carry no spectral features")
	}

	return nil
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) {
	config.Enabled = getEnvBool("HTTP_ENABLED", true)

	config.Port = getEnvInt("HTTP_PORT", 8080)
	if config.Port < 1 || config.Port > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		config.Port = 8080
	}

	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)

	config.MaxSessions = getEnvInt("HTTP_MAX_SESSIONS", 100)
	if config.MaxSessions < 1 {
		logger.Warn("Invalid HTTP_MAX_SESSIONS value, using default: 100")
		config.MaxSessions = 100
	}
}

func loadMetricsConfig(config *MetricsConfig) {
	config.Enabled = getEnvBool("METRICS_ENABLED", true)
	config.Path = getEnv("METRICS_PATH", "/metrics")
	if !strings.HasPrefix(config.Path, "/") {
		config.Path = "/" + config.Path
	}
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) {
	config.AMQPEnabled = getEnvBool("AMQP_ENABLED", false)
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.AMQPExchange = getEnv("AMQP_EXCHANGE", "diarization")
	config.AMQPRoutingKey = getEnv("AMQP_ROUTING_KEY", "speaker.change")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "")

	config.BufferSize = getEnvInt("AMQP_BUFFER_SIZE", 256)
	if config.BufferSize < 1 {
		logger.Warn("Invalid AMQP_BUFFER_SIZE value, using default: 256")
		config.BufferSize = 256
	}
}

func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.Messaging.AMQPEnabled && config.Messaging.AMQPUrl == "" {
		return errors.New("AMQP_ENABLED is set but AMQP_URL is empty")
	}

	if config.Metrics.Enabled && !config.HTTP.Enabled {
		logger.Warn("METRICS_ENABLED has no endpoint while HTTP_ENABLED=false")
	}

	if config.Logging.OutputFile != "" {
		f, err := os.OpenFile(config.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", config.Logging.OutputFile))
		}
		f.Close()
	}

	return nil
}

// ApplyLogging applies the logging section to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvFloat retrieves an environment variable and converts it to float64
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}
