package diarization

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

const (
	// AnalysisSize is the FFT length used for spectral features
	AnalysisSize = 2048

	// MelBands is the number of triangular filters in the mel filterbank
	MelBands = 26

	// NumMFCC is the number of cepstral coefficients kept per frame
	NumMFCC = 13

	minPitchHz      = 50
	maxPitchHz      = 500
	pitchAcceptance = 0.3
	magnitudeFloor  = 1e-10
)

// VoiceFeatures represents the acoustic features of one audio block
type VoiceFeatures struct {
	Pitch            float64   `json:"pitch"`
	Energy           float64   `json:"energy"`
	ZeroCrossingRate float64   `json:"zero_crossing_rate"`
	SpectralCentroid float64   `json:"spectral_centroid"`
	SpectralFlatness float64   `json:"spectral_flatness"`
	MFCC             []float64 `json:"mfcc,omitempty"`
	IsVoiced         bool      `json:"is_voiced"`
	Timestamp        float64   `json:"timestamp"`
}

// FeatureExtractor turns blocks of mono samples into VoiceFeatures.
// It caches the analysis window, FFT plan and mel filterbank between calls,
// so one extractor must not be shared between goroutines.
type FeatureExtractor struct {
	silenceThreshold float64
	fftSize          int

	window     []float64
	fft        *fourier.FFT
	dct        *fourier.QuarterWaveFFT
	frame      []float64
	spectrum   []complex128
	magnitudes []float64

	// Filterbank is rebuilt when the sample rate changes
	filterRate  int
	melFilters  [][]float64
	melEnergies []float64
	cepstrum    []float64
}

// NewFeatureExtractor creates an extractor gating silence at silenceThresholdDB
func NewFeatureExtractor(silenceThresholdDB float64) *FeatureExtractor {
	fftSize := AnalysisSize

	hamming := make([]float64, fftSize)
	for i := range hamming {
		hamming[i] = 1
	}

	fe := &FeatureExtractor{
		silenceThreshold: silenceThresholdDB,
		fftSize:          fftSize,
		window:           window.Hamming(hamming),
		fft:              fourier.NewFFT(fftSize),
		dct:              fourier.NewQuarterWaveFFT(MelBands),
		frame:            make([]float64, fftSize),
		spectrum:         make([]complex128, fftSize/2+1),
		magnitudes:       make([]float64, fftSize/2),
		melEnergies:      make([]float64, MelBands),
		cepstrum:         make([]float64, MelBands),
	}
	return fe
}

// Extract computes the features of one block. Silent blocks return early with
// only Energy, IsVoiced and Timestamp set. Blocks shorter than AnalysisSize
// carry no spectral features.
func (fe *FeatureExtractor) Extract(samples []float64, sampleRate int, timestamp float64) VoiceFeatures {
	features := VoiceFeatures{
		Timestamp: timestamp,
		Energy:    energyDB(samples),
	}
	features.IsVoiced = len(samples) > 0 && features.Energy > fe.silenceThreshold
	if !features.IsVoiced {
		return features
	}

	features.ZeroCrossingRate = zeroCrossingRate(samples)
	features.Pitch = estimatePitch(samples, sampleRate)

	if sampleRate > 0 && len(samples) >= fe.fftSize {
		fe.extractSpectralFeatures(samples[:fe.fftSize], sampleRate, &features)
	}
	return features
}

// extractSpectralFeatures fills centroid, flatness and MFCC from one analysis frame
func (fe *FeatureExtractor) extractSpectralFeatures(frame []float64, sampleRate int, features *VoiceFeatures) {
	if fe.filterRate != sampleRate {
		fe.melFilters = melFilterBank(MelBands, fe.fftSize, sampleRate)
		fe.filterRate = sampleRate
	}

	floats.MulTo(fe.frame, frame, fe.window)
	fe.spectrum = fe.fft.Coefficients(fe.spectrum, fe.frame)
	for k := range fe.magnitudes {
		fe.magnitudes[k] = cmplx.Abs(fe.spectrum[k])
	}

	features.SpectralCentroid = spectralCentroid(fe.magnitudes, sampleRate, fe.fftSize)
	features.SpectralFlatness = spectralFlatness(fe.magnitudes)
	features.MFCC = fe.calculateMFCC()
}

// calculateMFCC applies the mel filterbank to the magnitude spectrum and
// decorrelates the log energies with a DCT-II
func (fe *FeatureExtractor) calculateMFCC() []float64 {
	for i, filter := range fe.melFilters {
		sum := floats.Dot(filter, fe.magnitudes)
		fe.melEnergies[i] = math.Log(math.Max(sum, magnitudeFloor))
	}

	// CosSequence is the unnormalized DCT-II scaled by 4
	fe.cepstrum = fe.dct.CosSequence(fe.cepstrum, fe.melEnergies)
	mfcc := make([]float64, NumMFCC)
	floats.ScaleTo(mfcc, 0.25, fe.cepstrum[:NumMFCC])
	return mfcc
}

// energyDB returns the RMS level of samples in decibels
func energyDB(samples []float64) float64 {
	rms := 0.0
	if len(samples) > 0 {
		rms = math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
	}
	return 20 * math.Log10(math.Max(rms, magnitudeFloor))
}

// zeroCrossingRate returns the fraction of sign changes between consecutive samples
func zeroCrossingRate(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

// estimatePitch returns sampleRate divided by the lag in the 50-500 Hz range
// with the highest autocorrelation, normalized by the zero-lag energy.
// Returns 0 when no lag correlates above pitchAcceptance.
func estimatePitch(samples []float64, sampleRate int) float64 {
	n := len(samples)
	if sampleRate <= 0 || n < 2 {
		return 0
	}

	minLag := sampleRate / maxPitchHz
	maxLag := sampleRate / minPitchHz
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}
	if minLag > maxLag {
		return 0
	}

	energy := floats.Dot(samples, samples)
	if energy == 0 {
		return 0
	}

	best := 0.0
	bestLag := 0
	for lag := minLag; lag <= maxLag; lag++ {
		r := floats.Dot(samples[:n-lag], samples[lag:]) / energy
		if r > best {
			best = r
			bestLag = lag
		}
	}

	if best <= pitchAcceptance {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

// spectralCentroid returns the magnitude-weighted mean frequency
func spectralCentroid(magnitudes []float64, sampleRate, fftSize int) float64 {
	weightedSum := 0.0
	totalMagnitude := 0.0

	for k, mag := range magnitudes {
		freq := float64(k) * float64(sampleRate) / float64(fftSize)
		weightedSum += freq * mag
		totalMagnitude += mag
	}

	if totalMagnitude > 0 {
		return weightedSum / totalMagnitude
	}
	return 0
}

// spectralFlatness returns geometric mean / arithmetic mean of the non-zero magnitudes
func spectralFlatness(magnitudes []float64) float64 {
	logSum := 0.0
	sum := 0.0
	count := 0

	for _, mag := range magnitudes {
		if mag > magnitudeFloor {
			logSum += math.Log(mag)
			sum += mag
			count++
		}
	}

	if count == 0 || sum == 0 {
		return 0
	}
	return math.Exp(logSum/float64(count)) / (sum / float64(count))
}
