// Package config загружает конфигурацию сервиса из YAML файла и переменных окружения
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"arrhythmia-service/internal/pipeline"
)

// Config содержит конфигурацию сервиса
type Config struct {
	ServerAddr          string          `yaml:"server_addr"`
	RedisAddr           string          `yaml:"redis_addr"`
	RedisPassword       string          `yaml:"redis_password"`
	RedisDB             int             `yaml:"redis_db"`
	WorkerCount         int             `yaml:"worker_count"`
	BufferSize          int             `yaml:"buffer_size"`
	ModelPath           string          `yaml:"model_path"`
	ModelURL            string          `yaml:"model_url"`
	ModelTimeoutSeconds int             `yaml:"model_timeout_seconds"`
	UseRuleGuard        bool            `yaml:"use_ruleguard"`
	Pipeline            pipeline.Config `yaml:"pipeline"`
	NATSURL             string          `yaml:"nats_url"`
	NATSInSubject       string          `yaml:"nats_in_subject"`
	NATSOutSubject      string          `yaml:"nats_out_subject"`
	ReadTimeout         time.Duration   `yaml:"-"`
	WriteTimeout        time.Duration   `yaml:"-"`
	IdleTimeout         time.Duration   `yaml:"-"`
}

// Default конфигурация по умолчанию
func Default() Config {
	return Config{
		ServerAddr:          ":8080",
		RedisAddr:           "localhost:6379",
		WorkerCount:         runtime.NumCPU(),
		BufferSize:          1000,
		ModelPath:           "models/rr_baseline_v1.json",
		ModelTimeoutSeconds: 30,
		UseRuleGuard:        true,
		Pipeline:            pipeline.DefaultConfig(),
		NATSURL:             "nats://127.0.0.1:4222",
		NATSInSubject:       "ecg.signals",
		NATSOutSubject:      "ecg.verdicts",
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        60 * time.Second,
		IdleTimeout:         60 * time.Second,
	}
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML файл из CONFIG_FILE,
// затем переменные окружения
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.WorkerCount = getEnvInt("WORKER_COUNT", c.WorkerCount)
	c.BufferSize = getEnvInt("BUFFER_SIZE", c.BufferSize)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ModelURL = getEnv("MODEL_URL", c.ModelURL)
	c.ModelTimeoutSeconds = getEnvInt("MODEL_TIMEOUT_SECONDS", c.ModelTimeoutSeconds)
	c.UseRuleGuard = getEnvBool("USE_RULEGUARD", c.UseRuleGuard)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSInSubject = getEnv("NATS_IN_SUBJECT", c.NATSInSubject)
	c.NATSOutSubject = getEnv("NATS_OUT_SUBJECT", c.NATSOutSubject)

	p := &c.Pipeline
	p.Threshold = getEnvFloat("MODEL_THRESHOLD", p.Threshold)
	p.RuleGuard.RRLow = getEnvFloat("RULEGUARD_RR_LOW", p.RuleGuard.RRLow)
	p.RuleGuard.RRHigh = getEnvFloat("RULEGUARD_RR_HIGH", p.RuleGuard.RRHigh)
	p.RuleGuard.QRSThresholdMs = getEnvFloat("RULEGUARD_QRS_THRESHOLD_MS", p.RuleGuard.QRSThresholdMs)
	p.WindowSeconds = getEnvFloat("WINDOW_SECONDS", p.WindowSeconds)
	p.LowCutHz = getEnvFloat("BANDPASS_LOW_HZ", p.LowCutHz)
	p.HighCutHz = getEnvFloat("BANDPASS_HIGH_HZ", p.HighCutHz)
	p.FilterOrder = getEnvInt("FILTER_ORDER", p.FilterOrder)
	p.MinDurationSeconds = getEnvFloat("MIN_DURATION_SECONDS", p.MinDurationSeconds)
	p.DefaultDerivation = getEnv("DEFAULT_DERIVATION", p.DefaultDerivation)
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	if c.ModelPath == "" && c.ModelURL == "" {
		return fmt.Errorf("either MODEL_PATH or MODEL_URL must be set")
	}
	if c.ModelTimeoutSeconds <= 0 {
		return fmt.Errorf("model timeout must be positive, got %d", c.ModelTimeoutSeconds)
	}
	return c.Pipeline.Validate()
}

// ModelTimeout таймаут загрузки и вызова модели
func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// getEnv получает переменную окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvFloat получает вещественную переменную окружения
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

// getEnvBool получает логическую переменную окружения
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean, using %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}
