package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"arrhythmia-service/internal/apperrors"
)

// PredictRequest тело запроса к сервису модели
type PredictRequest struct {
	Windows [][]float64  `json:"windows"`
	RR      [][3]float64 `json:"rr"`
}

// PredictResponse ответ сервиса модели
type PredictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Model         string    `json:"model,omitempty"`
}

// HTTPClient обращается к удаленному сервису модели POST {url}/predict
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient создает клиента сервиса модели
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   timeout,
		},
	}
}

// HTTPLoader загрузчик для Lazy, проверяющий доступность сервиса модели
func HTTPLoader(baseURL string, timeout time.Duration) Loader {
	return func(ctx context.Context) (Classifier, error) {
		c := NewHTTPClient(baseURL, timeout)
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Ping проверяет GET {url}/health
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return apperrors.ModelUnavailable("create health request: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ModelUnavailable("model service unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.ModelUnavailable("model service health returned %d", resp.StatusCode)
	}
	return nil
}

// Predict отправляет пакет окон и RR-признаков в сервис модели
func (c *HTTPClient) Predict(ctx context.Context, windows [][]float64, rr [][3]float64) ([]float64, error) {
	body, err := json.Marshal(PredictRequest{Windows: windows, RR: rr})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ModelUnavailable("model service request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ModelUnavailable("read model response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ModelUnavailable("model service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out PredictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, apperrors.ModelUnavailable("decode model response: %v", err)
	}
	if err := CheckOutput(out.Probabilities, len(windows)); err != nil {
		return nil, err
	}
	return out.Probabilities, nil
}
