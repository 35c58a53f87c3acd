package diarization

import "math"

// Mel scale conversion functions
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank builds numBanks triangular filters equally spaced on the mel
// scale between 0 Hz and Nyquist. Each filter has fftSize/2 weights, one per
// magnitude bin.
func melFilterBank(numBanks, fftSize, sampleRate int) [][]float64 {
	filters := make([][]float64, numBanks)

	melMin := hzToMel(0)
	melMax := hzToMel(float64(sampleRate) / 2)
	hzPoints := make([]float64, numBanks+2)
	for i := range hzPoints {
		mel := melMin + float64(i)*(melMax-melMin)/float64(len(hzPoints)-1)
		hzPoints[i] = melToHz(mel)
	}

	bins := fftSize / 2
	for i := 0; i < numBanks; i++ {
		filters[i] = make([]float64, bins)

		leftHz := hzPoints[i]
		centerHz := hzPoints[i+1]
		rightHz := hzPoints[i+2]

		for k := 0; k < bins; k++ {
			freq := float64(k) * float64(sampleRate) / float64(fftSize)

			if freq >= leftHz && freq <= centerHz && centerHz > leftHz {
				filters[i][k] = (freq - leftHz) / (centerHz - leftHz)
			} else if freq > centerHz && freq <= rightHz && rightHz > centerHz {
				filters[i][k] = (rightHz - freq) / (rightHz - centerHz)
			}
		}
	}

	return filters
}
