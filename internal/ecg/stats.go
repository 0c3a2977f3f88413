// Package ecg реализует обработку одноканального сигнала ЭКГ:
// полосовую фильтрацию, детекцию R-пиков, нарезку окон вокруг ударов,
// расчет RR-интервалов и оценку ширины QRS
package ecg

import "math"

// Mean возвращает среднее значение
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Std возвращает стандартное отклонение генеральной совокупности (делитель n)
func Std(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	sumSq := 0.0
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)))
}

// allFinite проверяет отсутствие NaN и Inf
func allFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
