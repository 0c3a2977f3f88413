package ecg

import "math"

// Simulator генерирует ЭКГ-подобный сигнал (не клинический): дрейф изолинии,
// гауссовы P, QRS и T, детерминированный шум
type Simulator struct {
	fs    float64
	hrBPM float64
	noise float64
}

// NewSimulator fs в Гц, hrBPM обычно 60-120, noise ~0.0-0.05
func NewSimulator(fs int, hrBPM, noise float64) *Simulator {
	return &Simulator{fs: float64(fs), hrBPM: hrBPM, noise: noise}
}

// Sample значение в отсчете i
func (s *Simulator) Sample(i int) float64 {
	sec := float64(i) / s.fs
	cycle := sec * s.hrBPM / 60.0
	t := cycle - math.Floor(cycle)

	baseline := 0.05 * math.Sin(2*math.Pi*0.33*sec)

	p := 0.08 * gauss(t, 0.20, 0.025)
	q := -0.12 * gauss(t, 0.30, 0.01)
	r := 1.00 * gauss(t, 0.32, 0.008)
	sv := -0.25 * gauss(t, 0.35, 0.012)
	tt := 0.25 * gauss(t, 0.48, 0.04)

	n := s.noise * (2*fract(math.Sin(12345.678*sec)*9876.543) - 1)

	return baseline + p + q + r + sv + tt + n
}

// Generate возвращает seconds секунд сигнала
func (s *Simulator) Generate(seconds float64) []float64 {
	n := int(seconds * s.fs)
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Sample(i)
	}
	return out
}

// RPeakSample номер отсчета k-го R-пика (без учета фильтрации)
func (s *Simulator) RPeakSample(k int) int {
	period := 60.0 / s.hrBPM * s.fs
	return int(math.Round((float64(k) + 0.32) * period))
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
