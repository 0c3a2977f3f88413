package ecg

import "math"

const (
	// NominalRRSeconds значение RR, когда ни одного интервала посчитать нельзя
	NominalRRSeconds = 0.8
	// RREpsilon защита от деления на ноль в отношении RR
	RREpsilon = 1e-6
	// DefaultIrregularityThreshold относительная разница интервалов для нерегулярности
	DefaultIrregularityThreshold = 0.20
)

// RRInterval предыдущий и следующий RR-интервалы удара в секундах
type RRInterval struct {
	Previous float64 `json:"previous"`
	Next     float64 `json:"next"`
}

// Ratio отношение следующего интервала к предыдущему
func (rr RRInterval) Ratio() float64 {
	return rr.Next / (rr.Previous + RREpsilon)
}

// Average среднее двух интервалов
func (rr RRInterval) Average() float64 {
	return (rr.Previous + rr.Next) / 2.0
}

// IsIrregular true, если относительная разница интервалов превышает threshold
func (rr RRInterval) IsIrregular(threshold float64) bool {
	if rr.Previous == 0 {
		return true
	}
	return math.Abs(rr.Next-rr.Previous)/rr.Previous > threshold
}

// Features признаки для классификатора: previous, next, ratio
func (rr RRInterval) Features() [3]float64 {
	return [3]float64{rr.Previous, rr.Next, rr.Ratio()}
}

// RRAt считает RR-интервалы для пика с индексом i.
// Для первого пика предыдущий интервал берется равным первому промежутку,
// для последнего следующий равен последнему; без промежутков используется 0.8 с
func RRAt(peaks []int, i, sampleRate int) RRInterval {
	gaps := len(peaks) - 1
	if gaps < 1 {
		return RRInterval{Previous: NominalRRSeconds, Next: NominalRRSeconds}
	}

	gap := func(k int) float64 {
		return float64(peaks[k+1]-peaks[k]) / float64(sampleRate)
	}

	var rr RRInterval
	if i > 0 {
		rr.Previous = gap(i - 1)
	} else {
		rr.Previous = gap(0)
	}
	if i < gaps {
		rr.Next = gap(i)
	} else {
		rr.Next = gap(gaps - 1)
	}
	return rr
}

// MeanHeartRate средняя ЧСС (уд/мин) по последовательности пиков, 0 если пиков меньше двух
func MeanHeartRate(peaks []int, sampleRate int) float64 {
	if len(peaks) < 2 || sampleRate <= 0 {
		return 0
	}
	span := float64(peaks[len(peaks)-1]-peaks[0]) / float64(sampleRate)
	if span <= 0 {
		return 0
	}
	meanRR := span / float64(len(peaks)-1)
	return 60.0 / meanRR
}
