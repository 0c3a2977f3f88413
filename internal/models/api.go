package models

import "time"

// PredictionRequest запрос на анализ сигнала
type PredictionRequest struct {
	SignalData     []float64 `json:"signal_data"`
	SamplingRate   int       `json:"sampling_rate"`
	Derivation     string    `json:"derivation,omitempty"`
	SubjectID      string    `json:"patient_id,omitempty"`
	ApplyRuleGuard *bool     `json:"apply_ruleguard,omitempty"`
}

// PredictionBatch пакет сигналов для анализа
type PredictionBatch struct {
	Signals []PredictionRequest `json:"signals"`
}

// BatchItem результат одного сигнала из пакета
type BatchItem struct {
	Verdict *SignalVerdict `json:"verdict,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ErrorResponse стандартная структура ошибки
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	ModelLoaded bool      `json:"model_loaded"`
	Timestamp   time.Time `json:"timestamp"`
	Redis       string    `json:"redis"`
	Uptime      string    `json:"uptime"`
}

// StatsResponse содержит статистику сервиса
type StatsResponse struct {
	TotalSignals        int64   `json:"total_signals"`
	VentricularSignals  int64   `json:"ventricular_signals"`
	HighRiskSignals     int64   `json:"high_risk_signals"`
	RollingLatencyMs    float64 `json:"rolling_latency_ms"`
	RollingMinorityRate float64 `json:"rolling_minority_rate"`
	RollingBeatsPerCall float64 `json:"rolling_beats_per_signal"`
}
