package ecg

import "math"

const (
	// MaxQRSWidthMs верхняя граница оценки ширины QRS
	MaxQRSWidthMs = 200.0
	qrsSmoothing  = 5
	qrsSearch     = 20
	qrsFloorRatio = 0.5
)

// EstimateQRSWidth оценивает ширину QRS (мс) по огибающей модуля первой разности окна
func EstimateQRSWidth(w BeatWindow) float64 {
	return QRSWidth(w.data, w.sampleRate)
}

// QRSWidth оценка ширины QRS в миллисекундах для нормализованного окна
func QRSWidth(window []float64, sampleRate int) float64 {
	n := len(window)
	if n == 0 || sampleRate <= 0 {
		return 0
	}
	center := n / 2

	// Модуль первой разности, первый элемент дополняется краем
	dv := make([]float64, n)
	for i := 1; i < n; i++ {
		dv[i] = math.Abs(window[i] - window[i-1])
	}

	// Скользящее среднее по 5 отсчетам с центром в i, нули за краями
	envelope := make([]float64, n)
	half := qrsSmoothing / 2
	for i := range envelope {
		sum := 0.0
		for j := i - half; j <= i+half; j++ {
			if j >= 0 && j < n {
				sum += dv[j]
			}
		}
		envelope[i] = sum / qrsSmoothing
	}

	lo := center - qrsSearch
	if lo < 0 {
		lo = 0
	}
	hi := center + qrsSearch
	if hi > n {
		hi = n
	}
	peak := envelope[lo]
	for _, v := range envelope[lo:hi] {
		if v > peak {
			peak = v
		}
	}
	floor := qrsFloorRatio * peak

	left := center
	for left > 1 && envelope[left] > floor {
		left--
	}
	right := center
	for right < n-2 && envelope[right] > floor {
		right++
	}

	widthMs := float64(right-left) / float64(sampleRate) * 1000.0
	return math.Min(widthMs, MaxQRSWidthMs)
}
