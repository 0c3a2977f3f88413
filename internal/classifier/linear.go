package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"arrhythmia-service/internal/apperrors"
)

// LinearModel логистическая модель над отсчетами окна и тройкой RR-признаков
type LinearModel struct {
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	WindowSize    int        `json:"window_size"`
	WindowWeights []float64  `json:"window_weights"`
	RRWeights     [3]float64 `json:"rr_weights"`
	Bias          float64    `json:"bias"`
}

// LoadLinearModel читает модель из JSON файла
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ModelUnavailable("read model %s: %v", path, err)
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.ModelUnavailable("decode model %s: %v", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FileLoader загрузчик линейной модели из файла для Lazy
func FileLoader(path string) Loader {
	return func(ctx context.Context) (Classifier, error) {
		return LoadLinearModel(path)
	}
}

// Validate проверяет согласованность весов
func (m *LinearModel) Validate() error {
	if m.WindowSize <= 0 {
		return apperrors.ModelUnavailable("model window size must be positive, got %d", m.WindowSize)
	}
	if len(m.WindowWeights) != m.WindowSize {
		return apperrors.ModelUnavailable("model has %d window weights for window size %d",
			len(m.WindowWeights), m.WindowSize)
	}
	return nil
}

// String имя и версия модели
func (m *LinearModel) String() string {
	return fmt.Sprintf("%s@%s", m.Name, m.Version)
}

// Predict вычисляет sigmoid(w·window + v·rr + b) для каждого удара
func (m *LinearModel) Predict(ctx context.Context, windows [][]float64, rr [][3]float64) ([]float64, error) {
	if len(windows) != len(rr) {
		return nil, apperrors.ModelUnavailable("batch mismatch: %d windows, %d rr rows", len(windows), len(rr))
	}

	probs := make([]float64, len(windows))
	for i, w := range windows {
		if len(w) != m.WindowSize {
			return nil, apperrors.ModelUnavailable("window %d has %d samples, model expects %d",
				i, len(w), m.WindowSize)
		}
		z := m.Bias
		for j, v := range w {
			z += m.WindowWeights[j] * v
		}
		for j, v := range rr[i] {
			z += m.RRWeights[j] * v
		}
		probs[i] = sigmoid(z)
	}
	return probs, nil
}
