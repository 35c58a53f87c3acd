package diarization

import "math"

const testSampleRate = 16000

// sineBlock returns n samples of a sine at freq Hz with the given RMS level in dB
func sineBlock(freq, levelDB float64, n int) []float64 {
	amplitude := math.Pow(10, levelDB/20) * math.Sqrt2
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return samples
}

// harmonicBlock returns n samples of equal-amplitude harmonics of freq,
// scaled to the given RMS level in dB
func harmonicBlock(freq, levelDB float64, harmonics, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / testSampleRate
		for h := 1; h <= harmonics; h++ {
			samples[i] += math.Sin(2 * math.Pi * freq * float64(h) * t)
		}
	}

	sumSquares := 0.0
	for _, s := range samples {
		sumSquares += s * s
	}
	rms := math.Sqrt(sumSquares / float64(n))
	scale := math.Pow(10, levelDB/20) / rms
	for i := range samples {
		samples[i] *= scale
	}
	return samples
}

// feed pushes count copies of block into the engine at the given cadence and
// returns the assigned speaker ids
func feed(e *Engine, block []float64, start, step float64, count int) []int {
	ids := make([]int, count)
	for i := 0; i < count; i++ {
		ids[i], _ = e.ProcessAudioBuffer(block, testSampleRate, start+float64(i)*step)
	}
	return ids
}
