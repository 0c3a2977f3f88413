package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"arrhythmia-service/internal/apperrors"
)

// Loader загружает модель
type Loader func(ctx context.Context) (Classifier, error)

type loaded struct {
	model Classifier
}

// Lazy загружает модель при первом обращении и переиспользует ее.
// Мьютекс защищает только загрузку, вызовы Predict идут без блокировок.
// Неудачная загрузка не кэшируется и повторяется при следующем запросе
type Lazy struct {
	mu    sync.Mutex
	model atomic.Pointer[loaded]
	load  Loader
}

// NewLazy создает ленивую обертку над загрузчиком
func NewLazy(load Loader) *Lazy {
	return &Lazy{load: load}
}

// Get возвращает загруженную модель, загружая ее при необходимости
func (l *Lazy) Get(ctx context.Context) (Classifier, error) {
	if m := l.model.Load(); m != nil {
		return m.model, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if m := l.model.Load(); m != nil {
		return m.model, nil
	}

	model, err := l.load(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrModelUnavailable) {
			return nil, err
		}
		return nil, apperrors.ModelUnavailable("load model: %v", err)
	}
	if model == nil {
		return nil, apperrors.ModelUnavailable("loader returned no model")
	}

	l.model.Store(&loaded{model: model})
	return model, nil
}

// Loaded сообщает, загружена ли модель
func (l *Lazy) Loaded() bool {
	return l.model.Load() != nil
}

// Predict загружает модель при необходимости и выполняет предсказание
func (l *Lazy) Predict(ctx context.Context, windows [][]float64, rr [][3]float64) ([]float64, error) {
	model, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}

	probs, err := model.Predict(ctx, windows, rr)
	if err != nil {
		if errors.Is(err, apperrors.ErrModelUnavailable) {
			return nil, err
		}
		return nil, apperrors.ModelUnavailable("predict: %v", err)
	}
	if err := CheckOutput(probs, len(windows)); err != nil {
		return nil, err
	}
	return probs, nil
}
