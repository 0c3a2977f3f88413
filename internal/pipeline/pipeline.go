// Package pipeline связывает стадии анализа ЭКГ: фильтрация, детекция ударов,
// нарезка окон и RR, классификация, RuleGuard и агрегация в вердикт сигнала
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"arrhythmia-service/internal/apperrors"
	"arrhythmia-service/internal/classifier"
	"arrhythmia-service/internal/ecg"
	"arrhythmia-service/internal/models"
	"arrhythmia-service/internal/ruleguard"
)

// Config параметры конвейера
type Config struct {
	Threshold          float64          `yaml:"threshold"`
	RuleGuard          ruleguard.Config `yaml:"ruleguard"`
	WindowSeconds      float64          `yaml:"window_seconds"`
	LowCutHz           float64          `yaml:"low_cut_hz"`
	HighCutHz          float64          `yaml:"high_cut_hz"`
	FilterOrder        int              `yaml:"filter_order"`
	MinDurationSeconds float64          `yaml:"min_duration_seconds"`
	DefaultDerivation  string           `yaml:"default_derivation"`
}

// DefaultConfig параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Threshold:          0.5,
		RuleGuard:          ruleguard.DefaultConfig(),
		WindowSeconds:      1.0,
		LowCutHz:           ecg.DefaultLowCutHz,
		HighCutHz:          ecg.DefaultHighCutHz,
		FilterOrder:        ecg.DefaultFilterOrder,
		MinDurationSeconds: 5.0,
		DefaultDerivation:  "MLII",
	}
}

// Validate проверяет параметры конвейера
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0, 1], got %.3f", c.Threshold)
	}
	if err := c.RuleGuard.Validate(); err != nil {
		return err
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window duration must be positive, got %.3f", c.WindowSeconds)
	}
	if c.LowCutHz <= 0 || c.LowCutHz >= c.HighCutHz {
		return fmt.Errorf("invalid bandpass corners %.3f-%.3f Hz", c.LowCutHz, c.HighCutHz)
	}
	if c.FilterOrder < 2 || c.FilterOrder%2 != 0 {
		return fmt.Errorf("filter order must be even and >= 2, got %d", c.FilterOrder)
	}
	if c.MinDurationSeconds <= 0 {
		return fmt.Errorf("minimum duration must be positive, got %.3f", c.MinDurationSeconds)
	}
	return nil
}

// Request входной сигнал одного запуска
type Request struct {
	Samples        []float64
	SamplingRate   int
	Derivation     string
	SubjectID      string
	ApplyRuleGuard bool
}

// FromPrediction строит запрос конвейера из входного JSON запроса.
// Если клиент не указал apply_ruleguard, используется defaultRuleGuard
func FromPrediction(req models.PredictionRequest, defaultRuleGuard bool) Request {
	apply := defaultRuleGuard
	if req.ApplyRuleGuard != nil {
		apply = *req.ApplyRuleGuard
	}
	return Request{
		Samples:        req.SignalData,
		SamplingRate:   req.SamplingRate,
		Derivation:     req.Derivation,
		SubjectID:      req.SubjectID,
		ApplyRuleGuard: apply,
	}
}

// ResultSink получатель готовых вердиктов
type ResultSink interface {
	Save(ctx context.Context, v *models.SignalVerdict) error
}

// NopSink отбрасывает вердикты
type NopSink struct{}

// Save ничего не делает
func (NopSink) Save(context.Context, *models.SignalVerdict) error { return nil }

// Pipeline конвейер анализа. Не содержит изменяемого состояния между запусками,
// единственный разделяемый ресурс - классификатор
type Pipeline struct {
	cfg         Config
	model       classifier.Classifier
	guard       *ruleguard.Filter
	sink        ResultSink
	onSinkError func(error)
}

// Option настройка конвейера
type Option func(*Pipeline)

// WithSink сохраняет каждый вердикт в sink; ошибки sink не прерывают запуск
func WithSink(sink ResultSink, onError func(error)) Option {
	return func(p *Pipeline) {
		p.sink = sink
		p.onSinkError = onError
	}
}

// WithRuleGuard заменяет фильтр RuleGuard
func WithRuleGuard(f *ruleguard.Filter) Option {
	return func(p *Pipeline) {
		p.guard = f
	}
}

// New создает конвейер
func New(cfg Config, model classifier.Classifier, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if model == nil {
		return nil, errors.New("classifier is required")
	}
	p := &Pipeline{
		cfg:   cfg,
		model: model,
		guard: ruleguard.New(cfg.RuleGuard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config возвращает параметры конвейера
func (p *Pipeline) Config() Config {
	return p.cfg
}

func (p *Pipeline) validate(req Request) error {
	if len(req.Samples) == 0 {
		return apperrors.Validation("signal data cannot be empty")
	}
	if req.SamplingRate <= 0 {
		return apperrors.Validation("sampling rate must be positive, got %d", req.SamplingRate)
	}
	for i, v := range req.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.Validation("sample %d is not a finite number", i)
		}
	}
	return nil
}

func (p *Pipeline) derivation(req Request) string {
	if req.Derivation == "" {
		return p.cfg.DefaultDerivation
	}
	return req.Derivation
}

// Evaluate выполняет полный анализ сигнала.
// Сигнал без хотя бы двух ударов дает вердикт с Analyzable=false, это не ошибка
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (*models.SignalVerdict, error) {
	start := time.Now()

	if err := p.validate(req); err != nil {
		return nil, err
	}
	duration := float64(len(req.Samples)) / float64(req.SamplingRate)
	if duration < p.cfg.MinDurationSeconds {
		return nil, apperrors.Validation("signal of %.2fs is shorter than minimum %.2fs",
			duration, p.cfg.MinDurationSeconds)
	}

	verdict := &models.SignalVerdict{
		ID:               uuid.New().String(),
		SignalID:         uuid.New().String(),
		SubjectID:        req.SubjectID,
		Derivation:       p.derivation(req),
		Class:            models.ClassNormal,
		Risk:             models.RiskLow,
		Threshold:        p.cfg.Threshold,
		RuleGuardApplied: req.ApplyRuleGuard,
		Beats:            []models.BeatVerdict{},
	}

	filter, err := ecg.NewBandpassFilter(req.SamplingRate, p.cfg.LowCutHz, p.cfg.HighCutHz, p.cfg.FilterOrder)
	if err != nil {
		return nil, err
	}
	filtered, err := filter.Apply(req.Samples)
	if err != nil {
		return nil, err
	}

	peaks := ecg.DetectRPeaks(filtered, req.SamplingRate)
	if len(peaks) < 2 {
		return p.finish(ctx, verdict, start), nil
	}

	beats, err := ecg.ExtractBeats(filtered, peaks, req.SamplingRate,
		ecg.WindowLength(p.cfg.WindowSeconds, req.SamplingRate))
	if err != nil {
		return nil, apperrors.Processing("extract beats: %v", err)
	}
	if len(beats) == 0 {
		return p.finish(ctx, verdict, start), nil
	}

	probs, err := p.predict(ctx, beats)
	if err != nil {
		return nil, err
	}

	beatVerdicts := Classify(probs, beats, p.cfg.Threshold)
	if req.ApplyRuleGuard {
		p.guard.Apply(beatVerdicts, beats)
	}

	summary := Aggregate(beatVerdicts)
	verdict.Analyzable = true
	verdict.Class = summary.Class
	verdict.Confidence = summary.Confidence
	verdict.Risk = summary.Risk
	verdict.TotalBeats = len(beatVerdicts)
	verdict.NormalBeats = summary.Normal
	verdict.VentricularBeats = summary.Ventricular
	verdict.DemotedBeats = summary.Demoted
	verdict.Beats = beatVerdicts

	return p.finish(ctx, verdict, start), nil
}

// predict собирает пакет для классификатора и проверяет ответ
func (p *Pipeline) predict(ctx context.Context, beats []ecg.Beat) ([]float64, error) {
	windows := make([][]float64, len(beats))
	rr := make([][3]float64, len(beats))
	for i, b := range beats {
		windows[i] = b.Window.Samples()
		rr[i] = b.RR.Features()
	}

	probs, err := p.model.Predict(ctx, windows, rr)
	if err != nil {
		if errors.Is(err, apperrors.ErrModelUnavailable) {
			return nil, err
		}
		return nil, apperrors.ModelUnavailable("classifier failed: %v", err)
	}
	if err := classifier.CheckOutput(probs, len(beats)); err != nil {
		return nil, err
	}
	return probs, nil
}

func (p *Pipeline) finish(ctx context.Context, v *models.SignalVerdict, start time.Time) *models.SignalVerdict {
	v.CreatedAt = time.Now().UTC()
	v.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	if p.sink != nil {
		if err := p.sink.Save(ctx, v); err != nil && p.onSinkError != nil {
			p.onSinkError(err)
		}
	}
	return v
}

// Analyze возвращает сведения о сигнале без классификации
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*models.SignalInfo, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	duration := float64(len(req.Samples)) / float64(req.SamplingRate)
	info := &models.SignalInfo{
		SignalID:         uuid.New().String(),
		SubjectID:        req.SubjectID,
		Derivation:       p.derivation(req),
		SamplingRate:     req.SamplingRate,
		SampleCount:      len(req.Samples),
		DurationSeconds:  duration,
		ValidForAnalysis: duration >= p.cfg.MinDurationSeconds,
		CreatedAt:        time.Now().UTC(),
	}

	filter, err := ecg.NewBandpassFilter(req.SamplingRate, p.cfg.LowCutHz, p.cfg.HighCutHz, p.cfg.FilterOrder)
	if err != nil {
		return nil, err
	}
	if len(req.Samples) < filter.MinLength() {
		return info, nil
	}
	filtered, err := filter.Apply(req.Samples)
	if err != nil {
		return nil, err
	}

	peaks := ecg.DetectRPeaks(filtered, req.SamplingRate)
	info.DetectedBeats = len(peaks)
	info.MeanHeartRateBPM = ecg.MeanHeartRate(peaks, req.SamplingRate)
	info.DominantFrequencyHz = ecg.DominantFrequency(filtered, req.SamplingRate, p.cfg.LowCutHz, p.cfg.HighCutHz)
	return info, nil
}
