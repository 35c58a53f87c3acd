package diarization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSilenceReturnsEarly(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	// ~-63 dB, well below the silence gate
	quiet := sineBlock(150, -63, AnalysisSize)
	f := fe.Extract(quiet, testSampleRate, 1.25)

	assert.False(t, f.IsVoiced)
	assert.InDelta(t, -63, f.Energy, 0.5)
	assert.Equal(t, 1.25, f.Timestamp)
	assert.Zero(t, f.Pitch)
	assert.Zero(t, f.ZeroCrossingRate)
	assert.Zero(t, f.SpectralCentroid)
	assert.Nil(t, f.MFCC)
}

func TestExtractEmptyInput(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	f := fe.Extract(nil, testSampleRate, 0)
	assert.False(t, f.IsVoiced)
	assert.InDelta(t, -200, f.Energy, 1e-9)
}

func TestExtractVoicedSine(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	f := fe.Extract(sineBlock(120, -20, AnalysisSize), testSampleRate, 0.5)

	require.True(t, f.IsVoiced)
	assert.InDelta(t, -20, f.Energy, 0.2)
	assert.InDelta(t, 120, f.Pitch, 2)
	assert.InDelta(t, 2*120.0/testSampleRate, f.ZeroCrossingRate, 0.002)
	assert.Greater(t, f.SpectralCentroid, 100.0)
	assert.Less(t, f.SpectralCentroid, 1000.0)
	assert.Greater(t, f.SpectralFlatness, 0.0)
	assert.LessOrEqual(t, f.SpectralFlatness, 1.0)
	assert.Len(t, f.MFCC, NumMFCC)
}

func TestExtractHarmonicPitch(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	f := fe.Extract(harmonicBlock(220, -10, 8, AnalysisSize), testSampleRate, 0)

	require.True(t, f.IsVoiced)
	// 220 Hz is a 72.7-sample period; the best integer lag is 73
	assert.InDelta(t, float64(testSampleRate)/73, f.Pitch, 1e-9)
	assert.InDelta(t, -10, f.Energy, 0.1)
}

func TestEstimatePitchTakesBestLag(t *testing.T) {
	testCases := []struct {
		name  string
		block []float64
		want  float64
	}{
		{"sine 120 Hz", sineBlock(120, -20, AnalysisSize), 120.3},
		{"sine 220 Hz", sineBlock(220, -10, AnalysisSize), 219.2},
		{"harmonic 110 Hz", harmonicBlock(110, -20, 8, AnalysisSize), 110.3},
		{"harmonic 150 Hz", harmonicBlock(150, -20, 8, AnalysisSize), 149.5},
		{"harmonic 247 Hz", harmonicBlock(247, -20, 8, AnalysisSize), 246.2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := estimatePitch(tc.block, testSampleRate)
			assert.InDelta(t, tc.want, got, 0.1)

			lag, _ := bestLag(tc.block, testSampleRate)
			assert.Equal(t, float64(testSampleRate)/float64(lag), got)
		})
	}
}

func TestEstimatePitchAcceptanceThreshold(t *testing.T) {
	assert.Zero(t, estimatePitch(make([]float64, AnalysisSize), testSampleRate))
	assert.Zero(t, estimatePitch([]float64{1}, testSampleRate))
	assert.Zero(t, estimatePitch(sineBlock(120, -20, AnalysisSize), 0))

	// Alternating samples correlate at every even lag, but the shortest one
	// (32) overlaps only 9 of 41 samples
	short := make([]float64, 41)
	for i := range short {
		short[i] = float64(1 - 2*(i%2))
	}
	_, score := bestLag(short, testSampleRate)
	require.Less(t, score, pitchAcceptance)
	assert.Zero(t, estimatePitch(short, testSampleRate))
}

// bestLag scans the 50-500 Hz lags directly and returns the one with the
// highest energy-normalized autocorrelation together with its score
func bestLag(samples []float64, sampleRate int) (int, float64) {
	energy := 0.0
	for _, s := range samples {
		energy += s * s
	}

	lag, score := 0, 0.0
	for l := sampleRate / maxPitchHz; l <= sampleRate/minPitchHz && l < len(samples); l++ {
		sum := 0.0
		for i := 0; i+l < len(samples); i++ {
			sum += samples[i] * samples[i+l]
		}
		if r := sum / energy; r > score {
			lag, score = l, r
		}
	}
	return lag, score
}

func TestExtractShortWindowSkipsSpectralFeatures(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	f := fe.Extract(sineBlock(200, -20, 800), testSampleRate, 0)

	require.True(t, f.IsVoiced)
	assert.InDelta(t, 200, f.Pitch, 4)
	assert.Greater(t, f.ZeroCrossingRate, 0.0)
	assert.Zero(t, f.SpectralCentroid)
	assert.Zero(t, f.SpectralFlatness)
	assert.Empty(t, f.MFCC)
}

func TestExtractNoiseHasNoPitch(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	// Deterministic pseudo-random noise
	noise := make([]float64, AnalysisSize)
	state := uint32(12345)
	for i := range noise {
		state = state*1664525 + 1013904223
		noise[i] = (float64(state)/math.MaxUint32 - 0.5) * 0.5
	}

	f := fe.Extract(noise, testSampleRate, 0)
	require.True(t, f.IsVoiced)
	assert.Zero(t, f.Pitch)
	assert.Greater(t, f.ZeroCrossingRate, 0.3)
	assert.Greater(t, f.SpectralFlatness, 0.5)
}

func TestExtractorHandlesSampleRateChange(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	f16 := fe.Extract(sineBlock(120, -20, AnalysisSize), testSampleRate, 0)
	require.Len(t, f16.MFCC, NumMFCC)

	// Same samples reinterpreted at 48 kHz: every frequency triples
	f48 := fe.Extract(sineBlock(120, -20, AnalysisSize), 48000, 0)
	require.Len(t, f48.MFCC, NumMFCC)
	assert.InDelta(t, 360, f48.Pitch, 6)
	assert.InDelta(t, f16.SpectralCentroid*3, f48.SpectralCentroid, 1)
}

func TestMelFilterBankCoversSpectrum(t *testing.T) {
	filters := melFilterBank(MelBands, AnalysisSize, testSampleRate)
	require.Len(t, filters, MelBands)

	for i, filter := range filters {
		assert.Len(t, filter, AnalysisSize/2)
		peak := 0.0
		for _, w := range filter {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
			peak = math.Max(peak, w)
		}
		assert.Greater(t, peak, 0.0, "filter %d is empty", i)
	}
}

func TestMFCCOfFlatMelEnergies(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)

	// Equal log energies only excite the first cepstral coefficient
	fe.melFilters = make([][]float64, MelBands)
	fe.magnitudes = []float64{1}
	for i := range fe.melFilters {
		fe.melFilters[i] = []float64{2}
	}

	mfcc := fe.calculateMFCC()
	require.Len(t, mfcc, NumMFCC)
	assert.InDelta(t, MelBands*math.Log(2), mfcc[0], 1e-9)
	for k := 1; k < NumMFCC; k++ {
		assert.InDelta(t, 0, mfcc[k], 1e-9, "coefficient %d", k)
	}
}

func TestAnalysisWindowIsHamming(t *testing.T) {
	fe := NewFeatureExtractor(DefaultSilenceThresholdDB)
	require.Len(t, fe.window, AnalysisSize)
	assert.InDelta(t, 0.08, fe.window[0], 1e-12)
	assert.InDelta(t, 0.08, fe.window[AnalysisSize-1], 1e-12)
	assert.InDelta(t, 1, fe.window[AnalysisSize/2], 1e-5)
}

func TestSpectralHelpers(t *testing.T) {
	flat := []float64{1, 1, 1, 1}
	assert.InDelta(t, 1, spectralFlatness(flat), 1e-12)
	assert.Zero(t, spectralFlatness([]float64{0, 0}))

	peaked := []float64{0, 0, 10, 0}
	assert.InDelta(t, 1, spectralFlatness(peaked), 1e-12, "zero bins are excluded")

	// bin 2 of an 8-point FFT at 8 kHz is 2000 Hz
	assert.InDelta(t, 2000, spectralCentroid(peaked, 8000, 8), 1e-9)
	assert.Zero(t, spectralCentroid([]float64{0, 0}, 8000, 4))
}

func TestZeroCrossingRate(t *testing.T) {
	assert.Zero(t, zeroCrossingRate(nil))
	assert.InDelta(t, 0.75, zeroCrossingRate([]float64{1, -1, 1, -1}), 1e-12)
	assert.Zero(t, zeroCrossingRate([]float64{1, 2, 3}))
}
