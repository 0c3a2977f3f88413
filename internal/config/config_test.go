package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Pipeline.Threshold != 0.5 || !cfg.UseRuleGuard {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.ModelTimeout() != 30*time.Second {
		t.Errorf("Expected 30s model timeout, got %s", cfg.ModelTimeout())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("WORKER_COUNT", "3")
	t.Setenv("MODEL_THRESHOLD", "0.7")
	t.Setenv("USE_RULEGUARD", "false")
	t.Setenv("RULEGUARD_QRS_THRESHOLD_MS", "120")
	t.Setenv("DEFAULT_DERIVATION", "V5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerAddr != ":9090" || cfg.WorkerCount != 3 {
		t.Errorf("Server settings not applied: %+v", cfg)
	}
	if cfg.Pipeline.Threshold != 0.7 || cfg.UseRuleGuard {
		t.Errorf("Model settings not applied: threshold=%.2f ruleguard=%v", cfg.Pipeline.Threshold, cfg.UseRuleGuard)
	}
	if cfg.Pipeline.RuleGuard.QRSThresholdMs != 120 || cfg.Pipeline.DefaultDerivation != "V5" {
		t.Errorf("Pipeline settings not applied: %+v", cfg.Pipeline)
	}
}

func TestLoad_MalformedNumberKeepsDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BUFFER_SIZE", "lots")
	t.Setenv("WINDOW_SECONDS", "one")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BufferSize != 1000 || cfg.Pipeline.WindowSeconds != 1.0 {
		t.Errorf("Expected defaults for malformed values, got %d / %.2f", cfg.BufferSize, cfg.Pipeline.WindowSeconds)
	}
}

func TestLoad_YAMLOverlayThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server_addr: ":7000"
model_url: "http://model:8000"
pipeline:
  threshold: 0.6
  ruleguard:
    rr_low: 0.85
    rr_high: 1.15
    qrs_threshold_ms: 100
  filter_order: 2
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MODEL_THRESHOLD", "0.55")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerAddr != ":7000" || cfg.ModelURL != "http://model:8000" {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
	if cfg.Pipeline.RuleGuard.RRLow != 0.85 || cfg.Pipeline.FilterOrder != 2 {
		t.Errorf("Nested YAML values not applied: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Threshold != 0.55 {
		t.Errorf("Environment must win over YAML, got %.2f", cfg.Pipeline.Threshold)
	}
	// Keys absent from the file keep their defaults
	if cfg.Pipeline.HighCutHz != 40 || cfg.NATSInSubject != "ecg.signals" {
		t.Errorf("Defaults lost after overlay: %+v", cfg)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"MODEL_THRESHOLD":  "1.5",
		"RULEGUARD_RR_LOW": "1.2",
		"FILTER_ORDER":     "3",
		"WORKER_COUNT":     "0",
		"BANDPASS_LOW_HZ":  "50",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", key, value)
			}
		})
	}

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Expected error for missing config file")
	}
}
