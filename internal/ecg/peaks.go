package ecg

import (
	"math"
	"sort"
)

const (
	// RefractorySeconds минимальный интервал между R-пиками (200 мс)
	RefractorySeconds = 0.2
	// ProminenceFactor доля стандартного отклонения для минимальной выраженности пика
	ProminenceFactor = 0.3
)

// PeakParams ограничения на принимаемые пики
type PeakParams struct {
	MinDistance   int     // в отсчетах, расстояние до соседнего пика не меньше
	MinHeight     float64 // абсолютная высота пика
	MinProminence float64 // выраженность над локальной базовой линией
}

// RPeakParams возвращает параметры детекции R-пиков для отфильтрованного сигнала
func RPeakParams(filtered []float64, sampleRate int) PeakParams {
	distance := int(RefractorySeconds * float64(sampleRate))
	if distance < 1 {
		distance = 1
	}
	return PeakParams{
		MinDistance:   distance,
		MinHeight:     Mean(filtered),
		MinProminence: ProminenceFactor * Std(filtered),
	}
}

// DetectRPeaks находит R-пики в отфильтрованном сигнале. Результат отсортирован по возрастанию
func DetectRPeaks(filtered []float64, sampleRate int) []int {
	return FindPeaks(filtered, RPeakParams(filtered, sampleRate))
}

// FindPeaks отбирает локальные максимумы по высоте, затем по расстоянию, затем по выраженности
func FindPeaks(x []float64, p PeakParams) []int {
	peaks := localMaxima(x)

	kept := peaks[:0]
	for _, pk := range peaks {
		if x[pk] >= p.MinHeight {
			kept = append(kept, pk)
		}
	}
	peaks = kept

	if p.MinDistance > 1 {
		peaks = selectByDistance(x, peaks, p.MinDistance)
	}

	kept = peaks[:0]
	for _, pk := range peaks {
		if prominence(x, pk) >= p.MinProminence {
			kept = append(kept, pk)
		}
	}
	return kept
}

// localMaxima находит локальные максимумы, для плато берется середина
func localMaxima(x []float64) []int {
	var peaks []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance оставляет более высокие пики, удаляя соседей ближе distance отсчетов
func selectByDistance(x []float64, peaks []int, distance int) []int {
	n := len(peaks)
	if n == 0 {
		return peaks
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] > x[peaks[order[b]]]
	})

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < n && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, n)
	for i, pk := range peaks {
		if keep[i] {
			out = append(out, pk)
		}
	}
	return out
}

// prominence высота пика над большим из двух минимумов слева и справа,
// каждый минимум ищется до первого более высокого отсчета или края сигнала
func prominence(x []float64, peak int) float64 {
	h := x[peak]

	leftMin := h
	for i := peak; i >= 0 && x[i] <= h; i-- {
		leftMin = math.Min(leftMin, x[i])
	}
	rightMin := h
	for i := peak; i < len(x) && x[i] <= h; i++ {
		rightMin = math.Min(rightMin, x[i])
	}

	return h - math.Max(leftMin, rightMin)
}
