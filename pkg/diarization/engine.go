package diarization

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"speaker-diarizer/pkg/metrics"
)

// Assignment is the most recent speaker decision of an engine
type Assignment struct {
	SpeakerID  int     `json:"speaker_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
	Voiced     bool    `json:"voiced"`
}

// SpeakerChange describes a transition between speakers
type SpeakerChange struct {
	SessionID  string  `json:"session_id"`
	FromID     int     `json:"from_id"`
	ToID       int     `json:"to_id"`
	Label      string  `json:"label"`
	NewSpeaker bool    `json:"new_speaker"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
}

// Listener observes an engine. Callbacks run synchronously on the caller of
// ProcessAudioBuffer and must return quickly.
type Listener interface {
	OnAssignment(sessionID string, assignment Assignment)
	OnSpeakerChange(change SpeakerChange)
}

// Stats tracks engine activity since the last reset
type Stats struct {
	Frames          int64         `json:"frames"`
	VoicedFrames    int64         `json:"voiced_frames"`
	SpeakerChanges  int64         `json:"speaker_changes"`
	SpeakersCreated int64         `json:"speakers_created"`
	Merges          int64         `json:"merges"`
	ProcessingTime  time.Duration `json:"processing_time"`
	LastReset       time.Time     `json:"last_reset"`
}

// Option configures an Engine
type Option func(*Engine)

// WithSettings overrides the default thresholds
func WithSettings(settings Settings) Option {
	return func(e *Engine) {
		e.settings = settings.normalized()
	}
}

// WithLogger sets the logger used by the engine
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.WithField("component", "diarization_engine")
		}
	}
}

// WithListener registers a listener for assignments and speaker changes
func WithListener(listener Listener) Option {
	return func(e *Engine) {
		e.listener = listener
	}
}

// WithSessionID sets the session id instead of generating one
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}

// Engine performs online speaker diarization of a single audio stream.
//
// An Engine is not safe for concurrent use: ProcessAudioBuffer and the
// profile management methods must be called from one goroutine, or be
// serialised by the caller. Diarize concurrent streams with one Engine each.
type Engine struct {
	logger    *logrus.Entry
	settings  Settings
	sessionID string
	listener  Listener

	extractor  *FeatureExtractor
	smoother   *FeatureSmoother
	store      *ProfileStore
	identifier *SpeakerIdentifier

	last  Assignment
	stats Stats
}

// NewEngine creates an engine in its initial single-speaker state
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:    logrus.StandardLogger().WithField("component", "diarization_engine"),
		settings:  DefaultSettings(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("session_id", e.sessionID)

	e.extractor = NewFeatureExtractor(e.settings.SilenceThresholdDB)
	e.smoother = NewFeatureSmoother(e.settings.SmoothingWindow)
	e.store = NewProfileStore()
	e.identifier = NewSpeakerIdentifier(e.store, e.settings)
	e.last = Assignment{SpeakerID: e.identifier.CurrentSpeaker(), Label: SpeakerLabel(0)}
	e.stats = Stats{LastReset: time.Now()}

	return e
}

// SessionID returns the id of the diarized stream
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Settings returns the effective thresholds
func (e *Engine) Settings() Settings {
	return e.settings
}

// ProcessAudioBuffer extracts features from one block of mono samples,
// assigns it to a speaker and updates that speaker's profile. It returns the
// speaker id and the best similarity score of the block.
func (e *Engine) ProcessAudioBuffer(samples []float64, sampleRate int, timestamp float64) (int, float64) {
	start := time.Now()

	features := e.extractor.Extract(samples, sampleRate, timestamp)
	if features.IsVoiced {
		features = e.smoother.Push(features)
	}

	result := e.identifier.Identify(features)

	elapsed := time.Since(start)
	e.record(result, features, elapsed)

	return result.SpeakerID, result.Score
}

func (e *Engine) record(result Identification, features VoiceFeatures, elapsed time.Duration) {
	e.stats.Frames++
	e.stats.ProcessingTime += elapsed
	if features.IsVoiced {
		e.stats.VoicedFrames++
	}
	metrics.RecordDiarizationFrame(features.IsVoiced)
	metrics.ObserveDiarizationLatency(elapsed)
	if features.IsVoiced {
		metrics.RecordSpeakerDecision(result.Decision.String())
	}

	label := ""
	if p := e.store.Get(result.SpeakerID); p != nil {
		label = p.Label
	}
	e.last = Assignment{
		SpeakerID:  result.SpeakerID,
		Label:      label,
		Confidence: result.Score,
		Timestamp:  features.Timestamp,
		Voiced:     features.IsVoiced,
	}

	if result.Decision.Changed() {
		e.stats.SpeakerChanges++
		change := SpeakerChange{
			SessionID:  e.sessionID,
			FromID:     result.PreviousID,
			ToID:       result.SpeakerID,
			Label:      label,
			NewSpeaker: result.Decision == DecisionNew,
			Confidence: result.Score,
			Timestamp:  features.Timestamp,
		}

		fields := logrus.Fields{
			"from_speaker": change.FromID,
			"speaker_id":   change.ToID,
			"similarity":   change.Confidence,
			"timestamp":    change.Timestamp,
		}
		if change.NewSpeaker {
			e.stats.SpeakersCreated++
			metrics.RecordSpeakerCreated()
			e.logger.WithFields(fields).WithField("total_speakers", e.store.Len()).Info("New speaker created")
		} else {
			e.logger.WithFields(fields).Debug("Speaker change detected")
		}

		if e.listener != nil {
			e.listener.OnSpeakerChange(change)
		}
	}

	if e.listener != nil {
		e.listener.OnAssignment(e.sessionID, e.last)
	}
}

// LastAssignment returns the most recent speaker decision
func (e *Engine) LastAssignment() Assignment {
	return e.last
}

// CurrentSpeaker returns the id of the active speaker
func (e *Engine) CurrentSpeaker() int {
	return e.identifier.CurrentSpeaker()
}

// Speakers returns a snapshot of all live profiles in creation order
func (e *Engine) Speakers() []VoiceProfile {
	return e.store.Snapshot()
}

// GetSpeaker returns a copy of the profile with the given id
func (e *Engine) GetSpeaker(id int) (VoiceProfile, bool) {
	p := e.store.Get(id)
	if p == nil {
		return VoiceProfile{}, false
	}
	return p.clone(), true
}

// RenameSpeaker changes the display label of a speaker. Unknown ids are ignored.
func (e *Engine) RenameSpeaker(id int, label string) bool {
	p := e.store.Get(id)
	if p == nil {
		e.logger.WithField("speaker_id", id).Debug("Rename ignored for unknown speaker")
		return false
	}
	p.Label = label
	if e.last.SpeakerID == id {
		e.last.Label = label
	}
	return true
}

// MergeSpeakers folds speaker "from" into speaker "to" and removes "from".
// Unknown ids and self-merges are ignored.
func (e *Engine) MergeSpeakers(from, to int) bool {
	if from == to {
		return false
	}
	source := e.store.Get(from)
	target := e.store.Get(to)
	if source == nil || target == nil {
		e.logger.WithFields(logrus.Fields{
			"from": from,
			"to":   to,
		}).Debug("Merge ignored for unknown speaker")
		return false
	}

	target.absorb(*source)
	sampleCount := target.SampleCount
	e.store.Remove(from)
	e.identifier.Retarget(from, to)
	if e.last.SpeakerID == from {
		e.last.SpeakerID = to
		if p := e.store.Get(to); p != nil {
			e.last.Label = p.Label
		}
	}

	e.stats.Merges++
	metrics.RecordSpeakerMerge()
	e.logger.WithFields(logrus.Fields{
		"from":           from,
		"to":             to,
		"sample_count":   sampleCount,
		"total_speakers": e.store.Len(),
	}).Debug("Speakers merged")
	return true
}

// Reset discards all profiles and state, returning to a single empty speaker.
// It must not be called while ProcessAudioBuffer is running.
func (e *Engine) Reset() {
	e.store.Reset()
	e.smoother.Reset()
	e.identifier.Reset()
	e.last = Assignment{SpeakerID: e.identifier.CurrentSpeaker(), Label: SpeakerLabel(0)}
	e.stats = Stats{LastReset: time.Now()}
	e.logger.Debug("Diarization engine reset")
}

// Stats returns activity counters since the last reset
func (e *Engine) Stats() Stats {
	return e.stats
}
