package ecg

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// DominantFrequency находит частоту с максимальной амплитудой спектра в диапазоне [minHz, maxHz].
// Сигнал центрируется и взвешивается окном Ханна, пик уточняется параболической интерполяцией
func DominantFrequency(samples []float64, sampleRate int, minHz, maxHz float64) float64 {
	n := len(samples)
	if n < 4 || sampleRate <= 0 {
		return 0
	}

	buf := make([]float64, n)
	mean := Mean(samples)
	for i, v := range samples {
		buf[i] = v - mean
	}
	window.Apply(buf, window.Hann)

	spectrum := fft.FFTReal(buf)
	binWidth := float64(sampleRate) / float64(n)

	start := int(minHz / binWidth)
	if start < 1 {
		start = 1
	}
	end := int(maxHz/binWidth) + 1
	if end > n/2 {
		end = n / 2
	}
	if start >= end {
		return 0
	}

	mags := make([]float64, n/2+1)
	maxIdx, maxMag := 0, 0.0
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}
	for i := start; i < end; i++ {
		if mags[i] > maxMag {
			maxMag = mags[i]
			maxIdx = i
		}
	}
	if maxIdx == 0 {
		return 0
	}

	alpha, beta, gamma := mags[maxIdx-1], mags[maxIdx], mags[maxIdx+1]
	denom := alpha - 2*beta + gamma
	if denom == 0 {
		return float64(maxIdx) * binWidth
	}
	p := 0.5 * (alpha - gamma) / denom
	return (float64(maxIdx) + p) * binWidth
}
