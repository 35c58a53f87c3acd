package diarization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmootherAveragesVoicedFrames(t *testing.T) {
	fs := NewFeatureSmoother(10)

	fs.Push(VoiceFeatures{Pitch: 100, Energy: -20, ZeroCrossingRate: 0.1, MFCC: []float64{1, 2}, IsVoiced: true, Timestamp: 0})
	got := fs.Push(VoiceFeatures{Pitch: 200, Energy: -10, ZeroCrossingRate: 0.3, MFCC: []float64{3, 4}, IsVoiced: true, Timestamp: 0.05})

	require.True(t, got.IsVoiced)
	assert.InDelta(t, 150, got.Pitch, 1e-9)
	assert.InDelta(t, -15, got.Energy, 1e-9)
	assert.InDelta(t, 0.2, got.ZeroCrossingRate, 1e-9)
	assert.InDeltaSlice(t, []float64{2, 3}, got.MFCC, 1e-9)
	assert.Equal(t, 0.05, got.Timestamp, "smoothed frame carries the newest timestamp")
}

func TestSmootherIgnoresUnvoicedEntries(t *testing.T) {
	fs := NewFeatureSmoother(10)

	fs.Push(VoiceFeatures{Pitch: 120, Energy: -20, IsVoiced: true, Timestamp: 0})
	got := fs.Push(VoiceFeatures{Energy: -80, Timestamp: 0.05})

	require.True(t, got.IsVoiced)
	assert.InDelta(t, 120, got.Pitch, 1e-9)
	assert.InDelta(t, -20, got.Energy, 1e-9)
}

func TestSmootherAllUnvoiced(t *testing.T) {
	fs := NewFeatureSmoother(4)

	got := fs.Push(VoiceFeatures{Energy: -80, Timestamp: 1})
	assert.False(t, got.IsVoiced)
	assert.Zero(t, got.Energy)
	assert.Equal(t, 1.0, got.Timestamp)
}

func TestSmootherEvictsOldestFrame(t *testing.T) {
	fs := NewFeatureSmoother(3)

	for i, pitch := range []float64{100, 200, 300, 400} {
		fs.Push(VoiceFeatures{Pitch: pitch, IsVoiced: true, Timestamp: float64(i)})
	}
	assert.Equal(t, 3, fs.Len())

	got := fs.Push(VoiceFeatures{Pitch: 500, IsVoiced: true, Timestamp: 4})
	assert.InDelta(t, 400, got.Pitch, 1e-9, "window holds 300, 400, 500")
}

func TestSmootherMixedMFCCLengths(t *testing.T) {
	fs := NewFeatureSmoother(10)

	fs.Push(VoiceFeatures{Pitch: 100, IsVoiced: true})
	fs.Push(VoiceFeatures{Pitch: 100, MFCC: []float64{2, 2}, IsVoiced: true})
	got := fs.Push(VoiceFeatures{Pitch: 100, MFCC: []float64{4, 4}, IsVoiced: true})

	assert.InDeltaSlice(t, []float64{3, 3}, got.MFCC, 1e-9, "frames without MFCC do not dilute the average")
}

func TestSmootherReset(t *testing.T) {
	fs := NewFeatureSmoother(5)
	fs.Push(VoiceFeatures{Pitch: 100, IsVoiced: true})
	fs.Reset()

	assert.Zero(t, fs.Len())
	got := fs.Push(VoiceFeatures{Pitch: 300, IsVoiced: true})
	assert.InDelta(t, 300, got.Pitch, 1e-9)
}
