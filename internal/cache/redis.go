// Package cache реализует хранение вердиктов и счетчиков в Redis
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"arrhythmia-service/internal/models"
)

const (
	// PredictionKeyPrefix префикс для ключей вердиктов
	PredictionKeyPrefix = "prediction:"
	// LatestPredictionsKey ключ для списка последних вердиктов
	LatestPredictionsKey = "predictions:latest"
	// SignalInfoKeyPrefix префикс для сведений о сигналах
	SignalInfoKeyPrefix = "signal:"
	// SignalsTotalKey счетчик проанализированных сигналов
	SignalsTotalKey = "stats:signals_total"
	// VentricularTotalKey счетчик сигналов с вердиктом "V"
	VentricularTotalKey = "stats:ventricular_total"
	// HighRiskTotalKey счетчик сигналов с риском HIGH
	HighRiskTotalKey = "stats:high_risk_total"
	// DefaultTTL время жизни записи по умолчанию
	DefaultTTL = 5 * time.Minute
	// PredictionTTL время жизни вердикта
	PredictionTTL = 24 * time.Hour
	// LatestLimit сколько последних вердиктов хранить в списке
	LatestLimit = 1000
)

// ErrNotFound запись отсутствует
var ErrNotFound = errors.New("not found")

// RedisCache реализует хранение в Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache создает новое подключение к Redis
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Save сохраняет вердикт, добавляет его в список последних и обновляет счетчики
func (r *RedisCache) Save(ctx context.Context, v *models.SignalVerdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, PredictionKeyPrefix+v.ID, data, PredictionTTL)
	pipe.LPush(ctx, LatestPredictionsKey, data)
	pipe.LTrim(ctx, LatestPredictionsKey, 0, LatestLimit-1)
	pipe.Incr(ctx, SignalsTotalKey)
	if v.Class == models.ClassVentricular {
		pipe.Incr(ctx, VentricularTotalKey)
	}
	if v.Risk == models.RiskHigh {
		pipe.Incr(ctx, HighRiskTotalKey)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save verdict %s: %w", v.ID, err)
	}
	return nil
}

// GetVerdict возвращает вердикт по идентификатору
func (r *RedisCache) GetVerdict(ctx context.Context, id string) (*models.SignalVerdict, error) {
	var v models.SignalVerdict
	if err := r.Get(ctx, PredictionKeyPrefix+id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetLatestVerdicts возвращает последние N вердиктов, новые первыми
func (r *RedisCache) GetLatestVerdicts(ctx context.Context, count int64) ([]models.SignalVerdict, error) {
	data, err := r.client.LRange(ctx, LatestPredictionsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest verdicts: %w", err)
	}

	verdicts := make([]models.SignalVerdict, 0, len(data))
	for _, d := range data {
		var v models.SignalVerdict
		if err := json.Unmarshal([]byte(d), &v); err != nil {
			continue
		}
		verdicts = append(verdicts, v)
	}

	return verdicts, nil
}

// SaveSignalInfo сохраняет сведения о сигнале
func (r *RedisCache) SaveSignalInfo(ctx context.Context, info *models.SignalInfo) error {
	return r.SetWithTTL(ctx, SignalInfoKeyPrefix+info.SignalID, info, DefaultTTL)
}

// IncrementCounter увеличивает счетчик
func (r *RedisCache) IncrementCounter(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

// GetCounter возвращает значение счетчика
func (r *RedisCache) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// SetWithTTL устанавливает значение с TTL
func (r *RedisCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Get получает значение по ключу
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Ping проверяет соединение с Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// FlushDB очищает базу (только для тестов)
func (r *RedisCache) FlushDB(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}
