// Package ruleguard реализует детерминированный пост-фильтр, снимающий вероятные
// ложные срабатывания класса "V" по RR-отношению и ширине QRS
package ruleguard

import (
	"fmt"

	"arrhythmia-service/internal/ecg"
	"arrhythmia-service/internal/models"
)

const (
	// DefaultRRLow нижняя граница "нормального" RR-отношения
	DefaultRRLow = 0.90
	// DefaultRRHigh верхняя граница "нормального" RR-отношения
	DefaultRRHigh = 1.10
	// DefaultQRSThresholdMs ширина QRS, ниже которой комплекс считается узким
	DefaultQRSThresholdMs = 110.0
)

// Config настраиваемые пороги RuleGuard
type Config struct {
	RRLow          float64 `yaml:"rr_low"`
	RRHigh         float64 `yaml:"rr_high"`
	QRSThresholdMs float64 `yaml:"qrs_threshold_ms"`
}

// DefaultConfig пороги по умолчанию
func DefaultConfig() Config {
	return Config{
		RRLow:          DefaultRRLow,
		RRHigh:         DefaultRRHigh,
		QRSThresholdMs: DefaultQRSThresholdMs,
	}
}

// Validate проверяет согласованность порогов
func (c Config) Validate() error {
	if c.RRLow <= 0 || c.RRLow >= c.RRHigh {
		return fmt.Errorf("invalid ruleguard RR band %.3f-%.3f", c.RRLow, c.RRHigh)
	}
	if c.QRSThresholdMs <= 0 {
		return fmt.Errorf("ruleguard QRS threshold must be positive, got %.1f", c.QRSThresholdMs)
	}
	return nil
}

// WidthEstimator оценивает ширину QRS окна в миллисекундах
type WidthEstimator func(w ecg.BeatWindow) float64

// Filter RuleGuard с заданными порогами
type Filter struct {
	cfg   Config
	width WidthEstimator
}

// New создает фильтр с оценкой ширины QRS по огибающей производной
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg, width: ecg.EstimateQRSWidth}
}

// WithWidthEstimator возвращает копию фильтра с другой оценкой ширины QRS
func (f *Filter) WithWidthEstimator(w WidthEstimator) *Filter {
	cp := *f
	cp.width = w
	return &cp
}

// Config возвращает пороги фильтра
func (f *Filter) Config() Config {
	return f.cfg
}

// Decision результат проверки одного удара
type Decision struct {
	Ratio      float64
	QRSWidthMs float64
	Demote     bool
}

// Check решает, понижать ли удар класса "V": RR-отношение строго внутри
// нормальной полосы и QRS уже порога
func (f *Filter) Check(beat ecg.Beat) Decision {
	ratio := beat.RR.Ratio()
	width := f.width(beat.Window)
	inBand := ratio > f.cfg.RRLow && ratio < f.cfg.RRHigh
	return Decision{
		Ratio:      ratio,
		QRSWidthMs: width,
		Demote:     inBand && width < f.cfg.QRSThresholdMs,
	}
}

// Apply проверяет все удары класса "V" и переводит ложные срабатывания в "N".
// Удары класса "N" не затрагиваются. Возвращает число пониженных ударов
func (f *Filter) Apply(verdicts []models.BeatVerdict, beats []ecg.Beat) int {
	demoted := 0
	for i := range verdicts {
		if verdicts[i].Class != models.ClassVentricular || i >= len(beats) {
			continue
		}

		d := f.Check(beats[i])
		width := d.QRSWidthMs
		verdicts[i].QRSWidthMs = &width

		if d.Demote {
			verdicts[i].Class = models.ClassNormal
			verdicts[i].Demoted = true
			demoted++
		}
	}
	return demoted
}
