package ecg

import (
	"math"

	"arrhythmia-service/internal/apperrors"
)

const (
	// DefaultLowCutHz нижняя граница диагностической полосы
	DefaultLowCutHz = 0.5
	// DefaultHighCutHz верхняя граница диагностической полосы
	DefaultHighCutHz = 40.0
	// DefaultFilterOrder порядок фильтра Баттерворта
	DefaultFilterOrder = 4
)

// biquad секция второго порядка в транспонированной прямой форме II
type biquad struct {
	a0, a1, a2, b1, b2 float64
	z1, z2             float64
}

func (f *biquad) process(in float64) float64 {
	out := in*f.a0 + f.z1
	f.z1 = in*f.a1 - out*f.b1 + f.z2
	f.z2 = in*f.a2 - out*f.b2
	return out
}

// settle выставляет состояние секции в установившийся режим для постоянного входа x
// и возвращает соответствующий выход
func (f *biquad) settle(x float64) float64 {
	gain := (f.a0 + f.a1 + f.a2) / (1 + f.b1 + f.b2)
	y := gain * x
	f.z1 = y - f.a0*x
	f.z2 = f.a2*x - f.b2*y
	return y
}

// butterworthSections рассчитывает каскад биквадов через билинейное преобразование.
// highpass=false дает ФНЧ, true дает ФВЧ с тем же расположением полюсов
func butterworthSections(order int, sampleRate, cutoff float64, highpass bool) []biquad {
	sections := make([]biquad, order/2)
	fs2 := 4.0 * sampleRate * sampleRate
	w := 2.0 * sampleRate * math.Tan(math.Pi*cutoff/sampleRate)

	for i := 0; i < order/2; i++ {
		// Секции с низкой добротностью идут первыми
		poleIdx := (order/2 - 1) - i
		theta := math.Pi * (2.0*float64(poleIdx) + 1.0) / (2.0 * float64(order))

		pRe := -w * math.Sin(theta)
		pIm := w * math.Cos(theta)
		mag2 := pRe*pRe + pIm*pIm

		alpha := fs2 - 4.0*sampleRate*pRe + mag2
		s := biquad{
			b1: (-2.0*fs2 + 2.0*mag2) / alpha,
			b2: (fs2 + 4.0*sampleRate*pRe + mag2) / alpha,
		}
		if highpass {
			s.a0 = fs2 / alpha
			s.a1 = -2.0 * fs2 / alpha
			s.a2 = fs2 / alpha
		} else {
			s.a0 = w * w / alpha
			s.a1 = 2.0 * w * w / alpha
			s.a2 = w * w / alpha
		}
		sections[i] = s
	}
	return sections
}

// BandpassFilter полосовой фильтр Баттерворта нулевой фазы (прямой + обратный проход).
// Хранит только коэффициенты, поэтому безопасен для конкурентного использования
type BandpassFilter struct {
	sampleRate float64
	low        float64
	high       float64
	order      int
	sections   []biquad
}

// NewBandpassFilter создает полосовой фильтр: ФВЧ порядка order на low и ФНЧ порядка order на high
func NewBandpassFilter(sampleRate int, low, high float64, order int) (*BandpassFilter, error) {
	if sampleRate <= 0 {
		return nil, apperrors.Processing("sampling rate must be positive, got %d", sampleRate)
	}
	if order < 2 || order%2 != 0 {
		return nil, apperrors.Processing("filter order must be even and >= 2, got %d", order)
	}

	fs := float64(sampleRate)
	// Частоты около Найквиста дают численную нестабильность tan()
	if high >= fs*0.499 {
		high = fs * 0.499
	}
	if low <= 0 || low >= high {
		return nil, apperrors.Processing("invalid band %.3f-%.3f Hz at %d Hz", low, high, sampleRate)
	}

	sections := append(
		butterworthSections(order, fs, low, true),
		butterworthSections(order, fs, high, false)...,
	)

	return &BandpassFilter{
		sampleRate: fs,
		low:        low,
		high:       high,
		order:      order,
		sections:   sections,
	}, nil
}

// PadLength длина нечетного продолжения на краях сигнала
func (f *BandpassFilter) PadLength() int {
	return 3 * (2*f.order + 1)
}

// MinLength минимальная длина сигнала, при которой фильтрация устойчива
func (f *BandpassFilter) MinLength() int {
	return f.PadLength() + 1
}

// Apply фильтрует сигнал без фазового сдвига. Вход не изменяется, длина выхода равна длине входа
func (f *BandpassFilter) Apply(samples []float64) ([]float64, error) {
	n := len(samples)
	if n < f.MinLength() {
		return nil, apperrors.Processing("signal of %d samples is shorter than filter minimum %d", n, f.MinLength())
	}
	if !allFinite(samples) {
		return nil, apperrors.Processing("signal contains non-finite samples")
	}

	pad := f.PadLength()
	ext := make([]float64, 0, n+2*pad)
	first, last := samples[0], samples[n-1]
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*first-samples[i])
	}
	ext = append(ext, samples...)
	for i := 1; i <= pad; i++ {
		ext = append(ext, 2*last-samples[n-1-i])
	}

	sections := make([]biquad, len(f.sections))

	// Прямой проход
	copy(sections, f.sections)
	runCascade(sections, ext)

	// Обратный проход
	reverse(ext)
	copy(sections, f.sections)
	runCascade(sections, ext)
	reverse(ext)

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])
	return out, nil
}

// runCascade прогоняет данные через каскад на месте, начиная из установившегося режима по первому отсчету
func runCascade(sections []biquad, data []float64) {
	x := data[0]
	for i := range sections {
		x = sections[i].settle(x)
	}
	for i, v := range data {
		for j := range sections {
			v = sections[j].process(v)
		}
		data[i] = v
	}
}

func reverse(data []float64) {
	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}
}

// Bandpass применяет полосовой фильтр нулевой фазы с заданными параметрами
func Bandpass(samples []float64, sampleRate int, low, high float64, order int) ([]float64, error) {
	f, err := NewBandpassFilter(sampleRate, low, high, order)
	if err != nil {
		return nil, err
	}
	return f.Apply(samples)
}
