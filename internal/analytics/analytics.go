// Package analytics ведет скользящую статистику по результатам анализа сигналов
// Включает rolling average задержки, доли "V" ударов и z-score для детекции медленных запусков
package analytics

import (
	"math"
	"sync"
	"time"

	"arrhythmia-service/internal/models"
)

const (
	// WindowSize размер окна для rolling average и z-score (50 сигналов)
	WindowSize = 50
	// ZScoreThreshold порог для детекции медленных запусков (> 2σ)
	ZScoreThreshold = 2.0
)

// RunStats результат учета одного вердикта
type RunStats struct {
	Timestamp           time.Time `json:"timestamp"`
	PredictionID        string    `json:"prediction_id"`
	RollingLatencyMs    float64   `json:"rolling_latency_ms"`
	RollingMinorityRate float64   `json:"rolling_minority_rate"`
	RollingBeats        float64   `json:"rolling_beats"`
	LatencyZScore       float64   `json:"latency_zscore"`
	SlowRun             bool      `json:"slow_run"`
	HighRisk            bool      `json:"high_risk"`
}

// Snapshot текущая статистика
type Snapshot struct {
	TotalSignals        int64
	VentricularSignals  int64
	HighRiskSignals     int64
	RollingLatencyMs    float64
	LatencyStdDevMs     float64
	RollingMinorityRate float64
	RollingBeats        float64
}

// Analyzer учитывает вердикты в скользящих окнах
type Analyzer struct {
	mu             sync.RWMutex
	latencyWindow  *SlidingWindow
	minorityWindow *SlidingWindow
	beatsWindow    *SlidingWindow
	total          int64
	ventricular    int64
	highRisk       int64
	verdictChan    chan *models.SignalVerdict
	resultsChan    chan RunStats
	stopChan       chan struct{}
	wg             sync.WaitGroup
}

// SlidingWindow реализует скользящее окно для хранения значений
type SlidingWindow struct {
	values []float64
	size   int
	index  int
	count  int
	sum    float64
	sumSq  float64
}

// NewSlidingWindow создает новое скользящее окно заданного размера
func NewSlidingWindow(size int) *SlidingWindow {
	if size < 1 {
		size = 1
	}
	return &SlidingWindow{
		values: make([]float64, size),
		size:   size,
	}
}

// Add добавляет новое значение в окно
func (sw *SlidingWindow) Add(value float64) {
	if sw.count >= sw.size {
		// Вытесняем самое старое значение
		oldValue := sw.values[sw.index]
		sw.sum -= oldValue
		sw.sumSq -= oldValue * oldValue
	} else {
		sw.count++
	}

	sw.values[sw.index] = value
	sw.sum += value
	sw.sumSq += value * value

	sw.index = (sw.index + 1) % sw.size
}

// Mean возвращает среднее значение (rolling average)
func (sw *SlidingWindow) Mean() float64 {
	if sw.count == 0 {
		return 0
	}
	return sw.sum / float64(sw.count)
}

// StdDev возвращает выборочное стандартное отклонение
func (sw *SlidingWindow) StdDev() float64 {
	if sw.count < 2 {
		return 0
	}
	n := float64(sw.count)
	variance := (sw.sumSq - (sw.sum*sw.sum)/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// ZScore вычисляет z-score для заданного значения
func (sw *SlidingWindow) ZScore(value float64) float64 {
	stdDev := sw.StdDev()
	if stdDev == 0 {
		return 0
	}
	return (value - sw.Mean()) / stdDev
}

// Count возвращает количество элементов в окне
func (sw *SlidingWindow) Count() int {
	return sw.count
}

// NewAnalyzer создает новый анализатор
func NewAnalyzer(bufferSize int) *Analyzer {
	return &Analyzer{
		latencyWindow:  NewSlidingWindow(WindowSize),
		minorityWindow: NewSlidingWindow(WindowSize),
		beatsWindow:    NewSlidingWindow(WindowSize),
		verdictChan:    make(chan *models.SignalVerdict, bufferSize),
		resultsChan:    make(chan RunStats, bufferSize),
		stopChan:       make(chan struct{}),
	}
}

// Start запускает горутины для учета вердиктов
func (a *Analyzer) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

func (a *Analyzer) worker() {
	defer a.wg.Done()
	for {
		select {
		case v := <-a.verdictChan:
			result := a.analyze(v)
			select {
			case a.resultsChan <- result:
			default:
				// Канал результатов переполнен, пропускаем
			}
		case <-a.stopChan:
			return
		}
	}
}

// analyze учитывает один вердикт
func (a *Analyzer) analyze(v *models.SignalVerdict) RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	// z-score до добавления в окно
	zScore := a.latencyWindow.ZScore(v.ProcessingTimeMs)
	a.latencyWindow.Add(v.ProcessingTimeMs)

	a.total++
	if v.Class == models.ClassVentricular {
		a.ventricular++
	}
	highRisk := v.Risk == models.RiskHigh
	if highRisk {
		a.highRisk++
	}

	if v.Analyzable {
		a.beatsWindow.Add(float64(v.TotalBeats))
		rate := 0.0
		if v.TotalBeats > 0 {
			rate = float64(v.VentricularBeats) / float64(v.TotalBeats)
		}
		a.minorityWindow.Add(rate)
	}

	return RunStats{
		Timestamp:           v.CreatedAt,
		PredictionID:        v.ID,
		RollingLatencyMs:    a.latencyWindow.Mean(),
		RollingMinorityRate: a.minorityWindow.Mean(),
		RollingBeats:        a.beatsWindow.Mean(),
		LatencyZScore:       zScore,
		SlowRun:             zScore > ZScoreThreshold,
		HighRisk:            highRisk,
	}
}

// Submit отправляет вердикт на учет без блокировки
func (a *Analyzer) Submit(v *models.SignalVerdict) bool {
	if v == nil {
		return false
	}
	select {
	case a.verdictChan <- v:
		return true
	default:
		return false
	}
}

// AnalyzeSync синхронно учитывает вердикт
func (a *Analyzer) AnalyzeSync(v *models.SignalVerdict) RunStats {
	return a.analyze(v)
}

// GetResults возвращает канал результатов
func (a *Analyzer) GetResults() <-chan RunStats {
	return a.resultsChan
}

// GetStats возвращает текущую статистику
func (a *Analyzer) GetStats() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Snapshot{
		TotalSignals:        a.total,
		VentricularSignals:  a.ventricular,
		HighRiskSignals:     a.highRisk,
		RollingLatencyMs:    a.latencyWindow.Mean(),
		LatencyStdDevMs:     a.latencyWindow.StdDev(),
		RollingMinorityRate: a.minorityWindow.Mean(),
		RollingBeats:        a.beatsWindow.Mean(),
	}
}

// Stop останавливает анализатор
func (a *Analyzer) Stop() {
	close(a.stopChan)
	a.wg.Wait()
}
