package diarization

import "math"

const (
	// MaxSpeakers is the hard upper bound on simultaneously tracked profiles.
	MaxSpeakers = 8

	// DefaultMinSimilarity is the score below which a frame is considered a different voice
	DefaultMinSimilarity = 0.65

	// DefaultHysteresis scales MinSimilarity for the "keep current speaker" check
	DefaultHysteresis = 0.8

	// DefaultDebounce is the minimum time in seconds between two speaker changes
	DefaultDebounce = 0.5

	// DefaultSilenceReset is the silence gap in seconds that starts a new segment
	DefaultSilenceReset = 1.5

	// DefaultSilenceThresholdDB is the energy at or below which a block counts as silence
	DefaultSilenceThresholdDB = -45.0

	// DefaultSmoothingWindow is the number of recent frames averaged before classification
	DefaultSmoothingWindow = 10
)

// Settings holds the tunable thresholds of the diarization engine.
// Times are stream-relative seconds.
type Settings struct {
	MaxSpeakers        int     `json:"max_speakers"`
	MinSimilarity      float64 `json:"min_similarity"`
	Hysteresis         float64 `json:"hysteresis"`
	Debounce           float64 `json:"debounce"`
	SilenceReset       float64 `json:"silence_reset"`
	SilenceThresholdDB float64 `json:"silence_threshold_db"`
	SmoothingWindow    int     `json:"smoothing_window"`
}

// DefaultSettings returns the stock engine thresholds
func DefaultSettings() Settings {
	return Settings{
		MaxSpeakers:        MaxSpeakers,
		MinSimilarity:      DefaultMinSimilarity,
		Hysteresis:         DefaultHysteresis,
		Debounce:           DefaultDebounce,
		SilenceReset:       DefaultSilenceReset,
		SilenceThresholdDB: DefaultSilenceThresholdDB,
		SmoothingWindow:    DefaultSmoothingWindow,
	}
}

// normalized replaces out-of-range values with defaults. MaxSpeakers never
// exceeds the store capacity. Any finite SilenceThresholdDB is kept as given,
// so callers building Settings by hand should start from DefaultSettings.
func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.MaxSpeakers <= 0 || s.MaxSpeakers > MaxSpeakers {
		s.MaxSpeakers = d.MaxSpeakers
	}
	if s.MinSimilarity <= 0 || s.MinSimilarity > 1 {
		s.MinSimilarity = d.MinSimilarity
	}
	if s.Hysteresis <= 0 || s.Hysteresis > 1 {
		s.Hysteresis = d.Hysteresis
	}
	if s.Debounce < 0 {
		s.Debounce = d.Debounce
	}
	if s.SilenceReset <= 0 {
		s.SilenceReset = d.SilenceReset
	}
	if math.IsNaN(s.SilenceThresholdDB) || math.IsInf(s.SilenceThresholdDB, 0) {
		s.SilenceThresholdDB = d.SilenceThresholdDB
	}
	if s.SmoothingWindow <= 0 {
		s.SmoothingWindow = d.SmoothingWindow
	}
	return s
}
