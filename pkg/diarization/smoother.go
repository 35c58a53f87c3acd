package diarization

import "gonum.org/v1/gonum/floats"

// FeatureSmoother keeps the most recent frames in a ring buffer and averages
// the voiced ones to damp per-frame jitter before classification.
type FeatureSmoother struct {
	frames []VoiceFeatures
	next   int
	filled int
}

// NewFeatureSmoother creates a smoother over the last capacity frames
func NewFeatureSmoother(capacity int) *FeatureSmoother {
	if capacity <= 0 {
		capacity = DefaultSmoothingWindow
	}
	return &FeatureSmoother{
		frames: make([]VoiceFeatures, capacity),
	}
}

// Push records f, evicting the oldest frame when full, and returns the
// average of the voiced frames in the window stamped with f.Timestamp.
// With no voiced frames the result is an unvoiced zero record.
func (fs *FeatureSmoother) Push(f VoiceFeatures) VoiceFeatures {
	fs.frames[fs.next] = f
	fs.next = (fs.next + 1) % len(fs.frames)
	if fs.filled < len(fs.frames) {
		fs.filled++
	}
	return fs.average(f.Timestamp)
}

// Len returns the number of frames currently held
func (fs *FeatureSmoother) Len() int {
	return fs.filled
}

// Reset empties the window
func (fs *FeatureSmoother) Reset() {
	for i := range fs.frames {
		fs.frames[i] = VoiceFeatures{}
	}
	fs.next = 0
	fs.filled = 0
}

func (fs *FeatureSmoother) average(timestamp float64) VoiceFeatures {
	result := VoiceFeatures{Timestamp: timestamp}

	voiced := 0
	mfccCount := 0
	var mfcc []float64

	for i := 0; i < fs.filled; i++ {
		f := fs.frames[i]
		if !f.IsVoiced {
			continue
		}
		voiced++
		result.Pitch += f.Pitch
		result.Energy += f.Energy
		result.ZeroCrossingRate += f.ZeroCrossingRate
		result.SpectralCentroid += f.SpectralCentroid
		result.SpectralFlatness += f.SpectralFlatness

		if len(f.MFCC) == 0 {
			continue
		}
		if mfcc == nil {
			mfcc = make([]float64, len(f.MFCC))
		}
		if len(f.MFCC) == len(mfcc) {
			floats.Add(mfcc, f.MFCC)
			mfccCount++
		}
	}

	if voiced == 0 {
		return result
	}

	n := float64(voiced)
	result.Pitch /= n
	result.Energy /= n
	result.ZeroCrossingRate /= n
	result.SpectralCentroid /= n
	result.SpectralFlatness /= n
	if mfccCount > 0 {
		floats.Scale(1/float64(mfccCount), mfcc)
		result.MFCC = mfcc
	}
	result.IsVoiced = true

	return result
}
