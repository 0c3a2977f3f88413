// Package models содержит структуры данных результатов анализа ЭКГ и API
package models

import "time"

// BeatClass класс удара
type BeatClass string

const (
	// ClassNormal нормальный удар (мажоритарный класс)
	ClassNormal BeatClass = "N"
	// ClassVentricular желудочковый удар (миноритарный класс)
	ClassVentricular BeatClass = "V"
)

// RiskTier уровень риска сигнала
type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// BeatVerdict результат классификации одного удара
type BeatVerdict struct {
	BeatIndex      int       `json:"beat_index"`
	PositionSample int       `json:"position_sample"`
	Class          BeatClass `json:"arrhythmia_type"`
	Probability    float64   `json:"confidence"`
	RRPrevious     float64   `json:"rr_previous"`
	RRNext         float64   `json:"rr_next"`
	RRRatio        float64   `json:"rr_ratio"`
	QRSWidthMs     *float64  `json:"qrs_width_ms,omitempty"`
	Demoted        bool      `json:"demoted,omitempty"`
}

// SignalVerdict итог анализа сигнала
type SignalVerdict struct {
	ID               string        `json:"prediction_id"`
	SignalID         string        `json:"ecg_signal_id"`
	SubjectID        string        `json:"patient_id,omitempty"`
	Derivation       string        `json:"derivation"`
	Analyzable       bool          `json:"analyzable"`
	Class            BeatClass     `json:"overall_arrhythmia_type"`
	Confidence       float64       `json:"overall_confidence"`
	Risk             RiskTier      `json:"risk_level"`
	Threshold        float64       `json:"threshold_used"`
	TotalBeats       int           `json:"total_beats"`
	NormalBeats      int           `json:"normal_beats"`
	VentricularBeats int           `json:"ventricular_beats"`
	DemotedBeats     int           `json:"demoted_beats"`
	RuleGuardApplied bool          `json:"ruleguard_applied"`
	Beats            []BeatVerdict `json:"beat_predictions"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
	CreatedAt        time.Time     `json:"created_at"`
}

// SignalInfo сведения о сигнале без классификации
type SignalInfo struct {
	SignalID            string    `json:"ecg_signal_id"`
	SubjectID           string    `json:"patient_id,omitempty"`
	Derivation          string    `json:"derivation"`
	SamplingRate        int       `json:"sampling_rate"`
	SampleCount         int       `json:"sample_count"`
	DurationSeconds     float64   `json:"duration"`
	ValidForAnalysis    bool      `json:"is_valid_for_analysis"`
	DetectedBeats       int       `json:"detected_beats"`
	MeanHeartRateBPM    float64   `json:"mean_heart_rate_bpm"`
	DominantFrequencyHz float64   `json:"dominant_frequency_hz"`
	CreatedAt           time.Time `json:"created_at"`
}
