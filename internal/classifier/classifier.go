// Package classifier описывает внешнюю модель классификации ударов и адаптеры к ней:
// ленивую загрузку с кэшем, линейную модель из файла и удаленный HTTP сервис модели
package classifier

import (
	"context"
	"math"

	"arrhythmia-service/internal/apperrors"
)

// Classifier возвращает вероятность класса "V" для каждого удара.
// windows и rr выровнены по индексу, реализация не должна изменять входные данные
// и должна быть безопасной для конкурентного вызова
type Classifier interface {
	Predict(ctx context.Context, windows [][]float64, rr [][3]float64) ([]float64, error)
}

// Func адаптер обычной функции к интерфейсу Classifier
type Func func(ctx context.Context, windows [][]float64, rr [][3]float64) ([]float64, error)

// Predict вызывает функцию
func (f Func) Predict(ctx context.Context, windows [][]float64, rr [][3]float64) ([]float64, error) {
	return f(ctx, windows, rr)
}

// CheckOutput проверяет форму и диапазон ответа модели
func CheckOutput(probs []float64, n int) error {
	if len(probs) != n {
		return apperrors.ModelUnavailable("model returned %d probabilities for %d beats", len(probs), n)
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return apperrors.ModelUnavailable("probability %d out of range: %v", i, p)
		}
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
