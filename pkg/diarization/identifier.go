package diarization

import "math"

// Decision describes what the identifier did with a frame
type Decision int

const (
	// DecisionSilence means the frame was unvoiced
	DecisionSilence Decision = iota
	// DecisionStay keeps the current speaker
	DecisionStay
	// DecisionHold keeps the current speaker because no transition was allowed
	DecisionHold
	// DecisionNew created a new speaker profile
	DecisionNew
	// DecisionSwitch moved to another existing profile
	DecisionSwitch
)

func (d Decision) String() string {
	switch d {
	case DecisionSilence:
		return "silence"
	case DecisionStay:
		return "stay"
	case DecisionHold:
		return "hold"
	case DecisionNew:
		return "new"
	case DecisionSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Changed reports whether the decision moved to a different speaker
func (d Decision) Changed() bool {
	return d == DecisionNew || d == DecisionSwitch
}

// Identification is the outcome of one Identify call
type Identification struct {
	SpeakerID  int
	PreviousID int
	Score      float64
	Decision   Decision
}

// SpeakerIdentifier assigns frames to profiles in a ProfileStore. Speaker
// changes are debounced and the current speaker is favoured by a hysteresis
// margin so that brief fluctuations do not flap the assignment.
type SpeakerIdentifier struct {
	settings Settings
	store    *ProfileStore

	currentID      int
	lastChangeTime float64
	segmentStart   float64
	lastVoicedTime float64
	started        bool
}

// NewSpeakerIdentifier creates an identifier working on store
func NewSpeakerIdentifier(store *ProfileStore, settings Settings) *SpeakerIdentifier {
	si := &SpeakerIdentifier{
		settings: settings.normalized(),
		store:    store,
	}
	si.Reset()
	return si
}

// Reset returns the state machine to its initial state. The store is not touched.
func (si *SpeakerIdentifier) Reset() {
	si.currentID = 0
	if first := si.store.First(); first != nil {
		si.currentID = first.ID
	}
	si.lastChangeTime = 0
	si.segmentStart = 0
	si.lastVoicedTime = 0
	si.started = false
}

// CurrentSpeaker returns the id of the active speaker
func (si *SpeakerIdentifier) CurrentSpeaker() int {
	return si.currentID
}

// Retarget moves the current speaker to "to" when it was "from". Used after merges.
func (si *SpeakerIdentifier) Retarget(from, to int) {
	if si.currentID == from {
		si.currentID = to
	}
}

// Identify resolves the speaker of f and, for voiced frames, folds f into
// that speaker's profile.
func (si *SpeakerIdentifier) Identify(f VoiceFeatures) Identification {
	if !si.started {
		// The first frame of a stream anchors all timers
		si.lastChangeTime = f.Timestamp
		si.segmentStart = f.Timestamp
		si.lastVoicedTime = f.Timestamp
		si.started = true
	}

	current := si.store.Get(si.currentID)
	if current == nil {
		current = si.store.First()
		si.currentID = current.ID
	}

	result := Identification{
		SpeakerID:  si.currentID,
		PreviousID: si.currentID,
		Decision:   DecisionSilence,
	}

	if !f.IsVoiced {
		if f.Timestamp-si.lastVoicedTime > si.settings.SilenceReset {
			si.segmentStart = f.Timestamp
		}
		return result
	}

	bestScore, bestID := si.bestMatch(f)
	result.Score = bestScore

	debounced := f.Timestamp-si.lastChangeTime > si.settings.Debounce
	full := si.store.Len() >= si.settings.MaxSpeakers

	switch {
	case current.SampleCount == 0:
		// A fresh profile claims the first voice it hears
		result.Decision = DecisionStay
	case bestID == si.currentID && bestScore >= si.settings.Hysteresis*si.settings.MinSimilarity:
		result.Decision = DecisionStay
	case bestScore < si.settings.MinSimilarity && !full && debounced:
		if profile := si.store.Add(); profile != nil {
			si.changeTo(profile.ID, f.Timestamp)
			result.Decision = DecisionNew
		} else {
			result.Decision = DecisionHold
		}
	case bestID >= 0 && bestID != si.currentID && bestScore >= si.settings.MinSimilarity && debounced:
		si.changeTo(bestID, f.Timestamp)
		result.Decision = DecisionSwitch
	case bestID >= 0 && bestID != si.currentID && full && debounced:
		// No room for another voice: attribute to the closest one
		si.changeTo(bestID, f.Timestamp)
		result.Decision = DecisionSwitch
	default:
		result.Decision = DecisionHold
	}

	profile := si.store.Get(si.currentID)
	start := math.Max(si.segmentStart, profile.LastActiveTime)
	profile.Update(f, f.Timestamp-start)
	si.lastVoicedTime = f.Timestamp

	result.SpeakerID = si.currentID
	return result
}

// bestMatch returns the highest similarity among profiles with samples and
// its id, or (0, -1) when no profile has samples.
func (si *SpeakerIdentifier) bestMatch(f VoiceFeatures) (float64, int) {
	bestScore := -1.0
	bestID := -1
	si.store.each(func(p *VoiceProfile) {
		if p.SampleCount == 0 {
			return
		}
		if score := p.Similarity(f); score > bestScore {
			bestScore = score
			bestID = p.ID
		}
	})
	if bestID < 0 {
		return 0, -1
	}
	return bestScore, bestID
}

func (si *SpeakerIdentifier) changeTo(id int, now float64) {
	si.currentID = id
	si.lastChangeTime = now
	si.segmentStart = now
}
