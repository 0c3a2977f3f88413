// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"arrhythmia-service/internal/analytics"
	"arrhythmia-service/internal/models"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrhythmia_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arrhythmia_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// SignalsProcessed количество проанализированных сигналов по итоговому классу
	SignalsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrhythmia_signals_processed_total",
			Help: "Total number of signals evaluated, by overall class",
		},
		[]string{"class"},
	)

	// SignalsFailed количество запусков, завершившихся ошибкой, по виду ошибки
	SignalsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrhythmia_signals_failed_total",
			Help: "Total number of failed evaluations, by error kind",
		},
		[]string{"kind"},
	)

	// RiskTiers распределение уровней риска
	RiskTiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrhythmia_risk_tier_total",
			Help: "Total number of verdicts per risk tier",
		},
		[]string{"tier"},
	)

	// BeatsClassified количество классифицированных ударов по классу
	BeatsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrhythmia_beats_classified_total",
			Help: "Total number of beats classified, by final class",
		},
		[]string{"class"},
	)

	// BeatsDemoted количество ударов, пониженных RuleGuard
	BeatsDemoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrhythmia_beats_demoted_total",
			Help: "Total number of minority beats demoted by RuleGuard",
		},
	)

	// UnanalyzableSignals сигналы без пригодных ударов
	UnanalyzableSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrhythmia_unanalyzable_signals_total",
			Help: "Total number of signals with no usable beats",
		},
	)

	// SinkErrors ошибки сохранения вердиктов
	SinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrhythmia_sink_errors_total",
			Help: "Total number of verdicts that could not be persisted",
		},
	)

	// SlowRuns запуски с аномально высокой задержкой
	SlowRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrhythmia_slow_runs_total",
			Help: "Total number of evaluations with latency z-score above threshold",
		},
	)

	// ModelLoaded загружен ли классификатор
	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrhythmia_model_loaded",
			Help: "1 if the classifier is loaded, 0 otherwise",
		},
	)

	// RollingLatency скользящее среднее задержки анализа
	RollingLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrhythmia_rolling_latency_ms",
			Help: "Rolling average of evaluation latency in milliseconds",
		},
	)

	// RollingMinorityRate скользящая доля ударов "V"
	RollingMinorityRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrhythmia_rolling_minority_rate",
			Help: "Rolling fraction of beats classified V",
		},
	)

	// LatencyZScore z-score задержки последнего запуска
	LatencyZScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrhythmia_latency_zscore",
			Help: "Z-score of the latest evaluation latency",
		},
	)

	// CacheHits попадания в кэш
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrhythmia_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses промахи кэша
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arrhythmia_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrhythmia_active_goroutines",
			Help: "Number of active goroutines",
		},
	)

	// AnalysisLatency время выполнения анализа сигнала
	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arrhythmia_analysis_latency_seconds",
			Help:    "Signal evaluation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// ObserveVerdict обновляет счетчики по готовому вердикту
func ObserveVerdict(v *models.SignalVerdict) {
	AnalysisLatency.Observe(v.ProcessingTimeMs / 1000.0)
	SignalsProcessed.WithLabelValues(string(v.Class)).Inc()
	RiskTiers.WithLabelValues(string(v.Risk)).Inc()
	if !v.Analyzable {
		UnanalyzableSignals.Inc()
		return
	}
	BeatsClassified.WithLabelValues(string(models.ClassNormal)).Add(float64(v.NormalBeats))
	BeatsClassified.WithLabelValues(string(models.ClassVentricular)).Add(float64(v.VentricularBeats))
	BeatsDemoted.Add(float64(v.DemotedBeats))
}

// UpdateAnalysisMetrics обновляет метрики скользящей статистики
func UpdateAnalysisMetrics(s analytics.RunStats) {
	RollingLatency.Set(s.RollingLatencyMs)
	RollingMinorityRate.Set(s.RollingMinorityRate)
	LatencyZScore.Set(s.LatencyZScore)
	if s.SlowRun {
		SlowRuns.Inc()
	}
}
