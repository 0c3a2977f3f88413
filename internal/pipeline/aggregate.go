package pipeline

import (
	"arrhythmia-service/internal/ecg"
	"arrhythmia-service/internal/models"
)

const (
	// HighRiskConfidence минимальная уверенность для уровня HIGH
	HighRiskConfidence = 0.85
	// MediumRiskConfidence минимальная уверенность для уровня MEDIUM
	MediumRiskConfidence = 0.70
)

// Classify строит вердикты ударов по порогу: вероятность >= threshold дает класс "V"
func Classify(probs []float64, beats []ecg.Beat, threshold float64) []models.BeatVerdict {
	verdicts := make([]models.BeatVerdict, len(probs))
	for i, p := range probs {
		class := models.ClassNormal
		if p >= threshold {
			class = models.ClassVentricular
		}
		v := models.BeatVerdict{
			BeatIndex:   i,
			Class:       class,
			Probability: p,
		}
		if i < len(beats) {
			v.PositionSample = beats[i].Window.Center()
			v.RRPrevious = beats[i].RR.Previous
			v.RRNext = beats[i].RR.Next
			v.RRRatio = beats[i].RR.Ratio()
		}
		verdicts[i] = v
	}
	return verdicts
}

// Summary итог по ударам сигнала
type Summary struct {
	Class       models.BeatClass
	Confidence  float64
	Risk        models.RiskTier
	Normal      int
	Ventricular int
	Demoted     int
}

// Aggregate сводит вердикты ударов в вердикт сигнала.
// Если остались удары "V", уверенность равна максимальной вероятности среди них,
// иначе 1 - максимальная вероятность по всем ударам
func Aggregate(verdicts []models.BeatVerdict) Summary {
	var s Summary
	maxAll, maxMinority := 0.0, 0.0

	for _, v := range verdicts {
		if v.Probability > maxAll {
			maxAll = v.Probability
		}
		if v.Demoted {
			s.Demoted++
		}
		if v.Class == models.ClassVentricular {
			s.Ventricular++
			if v.Probability > maxMinority {
				maxMinority = v.Probability
			}
		} else {
			s.Normal++
		}
	}

	if s.Ventricular > 0 {
		s.Class = models.ClassVentricular
		s.Confidence = maxMinority
	} else {
		s.Class = models.ClassNormal
		s.Confidence = 1 - maxAll
	}
	s.Risk = RiskFor(s.Class, s.Confidence)
	return s
}

// RiskFor таблица уровня риска: "N" всегда LOW, "V" по порогам уверенности
func RiskFor(class models.BeatClass, confidence float64) models.RiskTier {
	if class != models.ClassVentricular {
		return models.RiskLow
	}
	switch {
	case confidence >= HighRiskConfidence:
		return models.RiskHigh
	case confidence >= MediumRiskConfidence:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
