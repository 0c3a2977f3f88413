package ruleguard

import (
	"math"
	"testing"

	"arrhythmia-service/internal/ecg"
	"arrhythmia-service/internal/models"
)

const testSampleRate = 360

func fixedWidth(ms float64) WidthEstimator {
	return func(ecg.BeatWindow) float64 { return ms }
}

func makeBeat(t *testing.T, prev, next float64) ecg.Beat {
	t.Helper()
	w, err := ecg.NewBeatWindow(make([]float64, testSampleRate), 1000, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	return ecg.Beat{Window: w, RR: ecg.RRInterval{Previous: prev, Next: next}}
}

func TestCheck_DemotionRule(t *testing.T) {
	cases := []struct {
		name   string
		prev   float64
		next   float64
		width  float64
		demote bool
	}{
		{"regular and narrow", 0.8, 0.8, 80, true},
		{"regular but wide", 0.8, 0.8, 130, false},
		{"premature and narrow", 0.8, 1.2, 80, false},
		{"short next and narrow", 0.8, 0.6, 80, false},
		{"width at threshold", 0.8, 0.8, 110, false},
	}

	for _, c := range cases {
		f := New(DefaultConfig()).WithWidthEstimator(fixedWidth(c.width))
		d := f.Check(makeBeat(t, c.prev, c.next))
		if d.Demote != c.demote {
			t.Errorf("%s: expected demote=%v, got %v (ratio %.3f)", c.name, c.demote, d.Demote, d.Ratio)
		}
	}
}

func TestCheck_OutsideBandKeepsMinority(t *testing.T) {
	f := New(Config{RRLow: 0.9, RRHigh: 1.1, QRSThresholdMs: 110}).WithWidthEstimator(fixedWidth(50))

	for _, next := range []float64{0.899, 1.101} {
		if d := f.Check(makeBeat(t, 1.0, next)); d.Demote {
			t.Errorf("Ratio %.6f outside the band must not demote", d.Ratio)
		}
	}
	if d := f.Check(makeBeat(t, 1.0, 1.05)); !d.Demote {
		t.Errorf("Ratio %.6f inside the band must demote", d.Ratio)
	}
}

func TestApply_OnlyTouchesMinorityBeats(t *testing.T) {
	f := New(DefaultConfig()).WithWidthEstimator(fixedWidth(60))

	beats := []ecg.Beat{makeBeat(t, 0.8, 0.8), makeBeat(t, 0.8, 0.8), makeBeat(t, 0.8, 1.4)}
	verdicts := []models.BeatVerdict{
		{BeatIndex: 0, Class: models.ClassVentricular, Probability: 0.9},
		{BeatIndex: 1, Class: models.ClassNormal, Probability: 0.1},
		{BeatIndex: 2, Class: models.ClassVentricular, Probability: 0.95},
	}

	demoted := f.Apply(verdicts, beats)
	if demoted != 1 {
		t.Errorf("Expected 1 demotion, got %d", demoted)
	}
	if verdicts[0].Class != models.ClassNormal || !verdicts[0].Demoted {
		t.Errorf("Beat 0 should be demoted to N, got %+v", verdicts[0])
	}
	if verdicts[1].Class != models.ClassNormal || verdicts[1].QRSWidthMs != nil {
		t.Errorf("Majority beat must be left untouched, got %+v", verdicts[1])
	}
	if verdicts[2].Class != models.ClassVentricular {
		t.Errorf("Irregular beat should stay V, got %+v", verdicts[2])
	}
	if verdicts[2].QRSWidthMs == nil || *verdicts[2].QRSWidthMs != 60 {
		t.Errorf("Expected QRS width recorded for checked beat")
	}
}

func TestApply_NeverPromotes(t *testing.T) {
	f := New(DefaultConfig()).WithWidthEstimator(fixedWidth(180))

	beats := make([]ecg.Beat, 5)
	verdicts := make([]models.BeatVerdict, 5)
	for i := range beats {
		beats[i] = makeBeat(t, 0.8, 0.5+0.2*float64(i))
		verdicts[i] = models.BeatVerdict{BeatIndex: i, Class: models.ClassNormal, Probability: 0.4}
	}

	for round := 0; round < 2; round++ {
		if n := f.Apply(verdicts, beats); n != 0 {
			t.Errorf("Round %d: expected no demotions, got %d", round, n)
		}
		for _, v := range verdicts {
			if v.Class != models.ClassNormal {
				t.Fatalf("Majority verdict changed to %s", v.Class)
			}
		}
	}
}

func TestApply_UsesDerivativeEnvelopeByDefault(t *testing.T) {
	data := make([]float64, testSampleRate)
	c := len(data) / 2
	for i := c - 12; i < c+12; i++ {
		data[i] = math.Sin(2 * math.Pi * float64(i-c) / 24)
	}
	w, err := ecg.NormalizedWindow(data, 500, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}

	verdicts := []models.BeatVerdict{{Class: models.ClassVentricular, Probability: 0.8}}
	beats := []ecg.Beat{{Window: w, RR: ecg.RRInterval{Previous: 0.8, Next: 0.8}}}

	if n := New(DefaultConfig()).Apply(verdicts, beats); n != 1 {
		t.Errorf("Narrow regular beat should be demoted, width %.1f ms", *verdicts[0].QRSWidthMs)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if err := (Config{RRLow: 1.1, RRHigh: 0.9, QRSThresholdMs: 110}).Validate(); err == nil {
		t.Error("Expected error for inverted band")
	}
	if err := (Config{RRLow: 0.9, RRHigh: 1.1}).Validate(); err == nil {
		t.Error("Expected error for zero QRS threshold")
	}
}
