package http

import (
	"time"

	"speaker-diarizer/pkg/diarization"
)

// Config holds the HTTP server configuration
type Config struct {
	// Port is the HTTP server port
	Port int `json:"port"`

	// EnableMetrics exposes the Prometheus registry on MetricsPath
	EnableMetrics bool   `json:"enable_metrics"`
	MetricsPath   string `json:"metrics_path"`

	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// MaxSessions bounds the number of concurrent streaming sessions
	MaxSessions int `json:"max_sessions"`

	// SampleRate is used when a stream does not pass ?sample_rate
	SampleRate int `json:"sample_rate"`

	// BlockSize is the number of samples handed to the engine at a time
	BlockSize int `json:"block_size"`

	// PingInterval is how often idle stream connections are pinged
	PingInterval time.Duration `json:"ping_interval"`

	// Diarization holds the engine thresholds for every stream
	Diarization diarization.Settings `json:"diarization"`
}

// DefaultConfig returns the default HTTP server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		EnableMetrics:   true,
		MetricsPath:     "/metrics",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxSessions:     100,
		SampleRate:      16000,
		BlockSize:       diarization.AnalysisSize,
		PingInterval:    30 * time.Second,
		Diarization:     diarization.DefaultSettings(),
	}
}
