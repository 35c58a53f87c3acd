package diarization

import (
	"fmt"
	"math"
)

// Similarity weights and tolerances
const (
	pitchWeight    = 3.0
	energyWeight   = 2.0
	zcrWeight      = 1.5
	centroidWeight = 2.0
	mfccWeight     = 2.5

	pitchToleranceHz    = 100.0
	energyToleranceDB   = 20.0
	zcrTolerance        = 0.2
	centroidToleranceHz = 1000.0
	mfccTolerance       = 10.0

	maxAdaptationRate = 0.3
	confidenceSamples = 50.0
	pitchSpreadHz     = 50.0
)

var speakerPalette = [MaxSpeakers]string{
	"#007AFF",
	"#FF3B30",
	"#34C759",
	"#FF9500",
	"#AF52DE",
	"#5AC8FA",
	"#FF2D55",
	"#FFCC00",
}

// SpeakerLabel returns the default display label for a speaker id
func SpeakerLabel(id int) string {
	return fmt.Sprintf("Speaker %d", id+1)
}

// SpeakerColor returns the display color for a speaker id
func SpeakerColor(id int) string {
	if id < 0 {
		id = -id
	}
	return speakerPalette[id%len(speakerPalette)]
}

// VoiceProfile holds the running statistics of one speaker in a session
type VoiceProfile struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`

	PitchMean        float64   `json:"pitch_mean"`
	PitchVariance    float64   `json:"pitch_variance"`
	EnergyMean       float64   `json:"energy_mean"`
	EnergyVariance   float64   `json:"energy_variance"`
	ZeroCrossingRate float64   `json:"zero_crossing_rate"`
	SpectralCentroid float64   `json:"spectral_centroid"`
	MFCC             []float64 `json:"mfcc,omitempty"`

	SampleCount    int     `json:"sample_count"`
	TotalDuration  float64 `json:"total_duration"`
	LastActiveTime float64 `json:"last_active_time"`
	Confidence     float64 `json:"confidence"`
}

func newVoiceProfile(id int) VoiceProfile {
	return VoiceProfile{
		ID:    id,
		Label: SpeakerLabel(id),
		Color: SpeakerColor(id),
	}
}

// Similarity scores how well f matches the profile, in [0,1].
// A profile without samples always scores 0.
func (p *VoiceProfile) Similarity(f VoiceFeatures) float64 {
	if p.SampleCount == 0 {
		return 0
	}

	score := pitchWeight * closeness(p.PitchMean, f.Pitch, pitchToleranceHz)
	score += energyWeight * closeness(p.EnergyMean, f.Energy, energyToleranceDB)
	score += zcrWeight * closeness(p.ZeroCrossingRate, f.ZeroCrossingRate, zcrTolerance)
	score += centroidWeight * closeness(p.SpectralCentroid, f.SpectralCentroid, centroidToleranceHz)
	totalWeight := pitchWeight + energyWeight + zcrWeight + centroidWeight

	if len(p.MFCC) > 0 && len(f.MFCC) > 0 {
		score += mfccWeight * mfccCloseness(p.MFCC, f.MFCC)
		totalWeight += mfccWeight
	}

	return clamp01(score / totalWeight)
}

// Update folds one voiced frame into the running statistics.
// Unvoiced frames are ignored.
func (p *VoiceProfile) Update(f VoiceFeatures, duration float64) {
	if !f.IsVoiced {
		return
	}

	if p.SampleCount == 0 {
		p.PitchMean = f.Pitch
		p.EnergyMean = f.Energy
		p.ZeroCrossingRate = f.ZeroCrossingRate
		p.SpectralCentroid = f.SpectralCentroid
		p.PitchVariance = 0
		p.EnergyVariance = 0
		p.MFCC = cloneFloats(f.MFCC)
	} else {
		// New profiles adapt fast, mature ones slowly
		alpha := math.Min(maxAdaptationRate, 1/float64(p.SampleCount+1))

		p.PitchMean = ema(p.PitchMean, f.Pitch, alpha)
		p.EnergyMean = ema(p.EnergyMean, f.Energy, alpha)
		p.ZeroCrossingRate = ema(p.ZeroCrossingRate, f.ZeroCrossingRate, alpha)
		p.SpectralCentroid = ema(p.SpectralCentroid, f.SpectralCentroid, alpha)

		switch {
		case len(f.MFCC) == 0:
		case len(p.MFCC) != len(f.MFCC):
			p.MFCC = cloneFloats(f.MFCC)
		default:
			for i := range p.MFCC {
				p.MFCC[i] = ema(p.MFCC[i], f.MFCC[i], alpha)
			}
		}

		pitchDev := f.Pitch - p.PitchMean
		energyDev := f.Energy - p.EnergyMean
		p.PitchVariance = ema(p.PitchVariance, pitchDev*pitchDev, alpha)
		p.EnergyVariance = ema(p.EnergyVariance, energyDev*energyDev, alpha)
	}

	p.SampleCount++
	if duration > 0 {
		p.TotalDuration += duration
	}
	p.LastActiveTime = f.Timestamp
	p.updateConfidence()
}

// absorb merges src into p using sample-count-weighted averages
func (p *VoiceProfile) absorb(src VoiceProfile) {
	total := p.SampleCount + src.SampleCount
	if total > 0 {
		wt := float64(p.SampleCount) / float64(total)
		ws := float64(src.SampleCount) / float64(total)

		p.PitchMean = p.PitchMean*wt + src.PitchMean*ws
		p.PitchVariance = p.PitchVariance*wt + src.PitchVariance*ws
		p.EnergyMean = p.EnergyMean*wt + src.EnergyMean*ws
		p.EnergyVariance = p.EnergyVariance*wt + src.EnergyVariance*ws
		p.ZeroCrossingRate = p.ZeroCrossingRate*wt + src.ZeroCrossingRate*ws
		p.SpectralCentroid = p.SpectralCentroid*wt + src.SpectralCentroid*ws

		switch {
		case len(src.MFCC) == 0:
		case len(p.MFCC) != len(src.MFCC):
			p.MFCC = cloneFloats(src.MFCC)
		default:
			for i := range p.MFCC {
				p.MFCC[i] = p.MFCC[i]*wt + src.MFCC[i]*ws
			}
		}
	}

	p.SampleCount = total
	p.TotalDuration += src.TotalDuration
	p.LastActiveTime = math.Max(p.LastActiveTime, src.LastActiveTime)
	p.updateConfidence()
}

func (p *VoiceProfile) updateConfidence() {
	varianceScore := 1 / (1 + math.Sqrt(p.PitchVariance)/pitchSpreadHz)
	sampleScore := math.Min(1, float64(p.SampleCount)/confidenceSamples)
	p.Confidence = (varianceScore + sampleScore) / 2
}

func (p VoiceProfile) clone() VoiceProfile {
	p.MFCC = cloneFloats(p.MFCC)
	return p
}

// closeness maps |a-b| linearly onto [1,0] over tolerance
func closeness(a, b, tolerance float64) float64 {
	return clamp01(1 - math.Abs(a-b)/tolerance)
}

func mfccCloseness(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	diff := 0.0
	for i := 0; i < n; i++ {
		diff += math.Abs(a[i] - b[i])
	}
	return clamp01(1 - diff/(float64(n)*mfccTolerance))
}

func ema(mean, value, alpha float64) float64 {
	return mean*(1-alpha) + value*alpha
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cloneFloats(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
