package ecg

import (
	"fmt"
	"math"
)

// NormalizationEpsilon добавляется к стандартному отклонению окна
const NormalizationEpsilon = 1e-6

// BeatWindow нормализованный фрагмент сигнала фиксированной длины вокруг R-пика.
// Значение неизменяемо после создания
type BeatWindow struct {
	data       []float64
	center     int
	sampleRate int
}

// NewBeatWindow создает окно из уже нормализованных данных (данные копируются)
func NewBeatWindow(data []float64, center, sampleRate int) (BeatWindow, error) {
	if len(data) == 0 {
		return BeatWindow{}, fmt.Errorf("window data cannot be empty")
	}
	if sampleRate <= 0 {
		return BeatWindow{}, fmt.Errorf("sampling rate must be positive, got %d", sampleRate)
	}
	if center < 0 {
		return BeatWindow{}, fmt.Errorf("center sample must be non-negative, got %d", center)
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	return BeatWindow{data: cp, center: center, sampleRate: sampleRate}, nil
}

// NormalizedWindow создает окно с z-score нормализацией: (w - mean) / (std + eps)
func NormalizedWindow(raw []float64, center, sampleRate int) (BeatWindow, error) {
	mean := Mean(raw)
	denom := Std(raw) + NormalizationEpsilon
	norm := make([]float64, len(raw))
	for i, v := range raw {
		norm[i] = (v - mean) / denom
	}
	return NewBeatWindow(norm, center, sampleRate)
}

// Samples возвращает копию нормализованных отсчетов
func (w BeatWindow) Samples() []float64 {
	cp := make([]float64, len(w.data))
	copy(cp, w.data)
	return cp
}

// Center индекс R-пика в исходном сигнале
func (w BeatWindow) Center() int { return w.center }

// SampleRate частота дискретизации окна
func (w BeatWindow) SampleRate() int { return w.sampleRate }

// Len длина окна в отсчетах
func (w BeatWindow) Len() int { return len(w.data) }

// Duration длительность окна в секундах
func (w BeatWindow) Duration() float64 {
	return float64(len(w.data)) / float64(w.sampleRate)
}

// WindowLength длина окна в отсчетах для заданной длительности, всегда четная
func WindowLength(seconds float64, sampleRate int) int {
	n := int(math.Round(seconds * float64(sampleRate)))
	return (n / 2) * 2
}

// Beat окно удара вместе с его RR-интервалом
type Beat struct {
	Window BeatWindow
	RR     RRInterval
}

// ExtractBeats вырезает окна [p - win/2, p + win/2) вокруг каждого пика.
// Пики, чье окно выходит за границы сигнала, пропускаются.
// RR-интервалы считаются по полному списку пиков, включая пропущенные
func ExtractBeats(filtered []float64, peaks []int, sampleRate, windowLength int) ([]Beat, error) {
	half := windowLength / 2
	if half <= 0 {
		return nil, fmt.Errorf("window length must be at least 2 samples, got %d", windowLength)
	}
	beats := make([]Beat, 0, len(peaks))

	for i, p := range peaks {
		start, end := p-half, p+half
		if start < 0 || end > len(filtered) {
			continue
		}

		w, err := NormalizedWindow(filtered[start:end], p, sampleRate)
		if err != nil {
			return nil, err
		}
		beats = append(beats, Beat{
			Window: w,
			RR:     RRAt(peaks, i, sampleRate),
		})
	}
	return beats, nil
}
