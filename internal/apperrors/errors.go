// Package apperrors содержит виды ошибок конвейера анализа ЭКГ
// Все ошибки стадий оборачивают один из sentinel-значений, проверка через errors.Is
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation некорректный или слишком короткий входной сигнал (ошибка клиента)
	ErrValidation = errors.New("validation error")
	// ErrProcessing фильтрация или детекция не может быть выполнена
	ErrProcessing = errors.New("processing error")
	// ErrModelUnavailable классификатор не загружен или вернул некорректный ответ
	ErrModelUnavailable = errors.New("model unavailable")
)

// Validation создает ошибку валидации
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Processing создает ошибку обработки сигнала
func Processing(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProcessing, fmt.Sprintf(format, args...))
}

// ModelUnavailable создает ошибку недоступности модели
func ModelUnavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrModelUnavailable, fmt.Sprintf(format, args...))
}

// Kind возвращает короткое имя вида ошибки для логов и метрик
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrProcessing):
		return "processing"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	default:
		return "internal"
	}
}
