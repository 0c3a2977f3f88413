// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"arrhythmia-service/internal/analytics"
	"arrhythmia-service/internal/apperrors"
	"arrhythmia-service/internal/cache"
	"arrhythmia-service/internal/metrics"
	"arrhythmia-service/internal/models"
	"arrhythmia-service/internal/pipeline"
	"arrhythmia-service/internal/ruleguard"
)

const (
	// Version версия API
	Version = "1.0.0"
	// MaxBatchSize максимальное число сигналов в пакете
	MaxBatchSize = 100
	// DefaultLatestCount сколько вердиктов отдавать по умолчанию
	DefaultLatestCount = 50
)

// Store хранилище вердиктов, используемое обработчиками
type Store interface {
	GetVerdict(ctx context.Context, id string) (*models.SignalVerdict, error)
	GetLatestVerdicts(ctx context.Context, count int64) ([]models.SignalVerdict, error)
	GetCounter(ctx context.Context, key string) (int64, error)
	SaveSignalInfo(ctx context.Context, info *models.SignalInfo) error
	Ping(ctx context.Context) error
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	pipeline     *pipeline.Pipeline
	dispatcher   *pipeline.Dispatcher
	analyzer     *analytics.Analyzer
	store        Store
	modelLoaded  func() bool
	useRuleGuard bool
	startTime    time.Time
}

// Options зависимости обработчика
type Options struct {
	Pipeline     *pipeline.Pipeline
	Dispatcher   *pipeline.Dispatcher
	Analyzer     *analytics.Analyzer
	Store        Store
	ModelLoaded  func() bool
	UseRuleGuard bool
}

// NewHandler создает новый обработчик
func NewHandler(opts Options) *Handler {
	loaded := opts.ModelLoaded
	if loaded == nil {
		loaded = func() bool { return false }
	}
	return &Handler{
		pipeline:     opts.Pipeline,
		dispatcher:   opts.Dispatcher,
		analyzer:     opts.Analyzer,
		store:        opts.Store,
		modelLoaded:  loaded,
		useRuleGuard: opts.UseRuleGuard,
		startTime:    time.Now(),
	}
}

// Register регистрирует маршруты API
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/predict", h.PredictHandler).Methods("POST")
	router.HandleFunc("/predict/batch", h.BatchPredictHandler).Methods("POST")
	router.HandleFunc("/analyze", h.AnalyzeHandler).Methods("POST")
	router.HandleFunc("/predictions/latest", h.LatestPredictionsHandler).Methods("GET")
	router.HandleFunc("/predictions/{id}", h.GetPredictionHandler).Methods("GET")
	router.HandleFunc("/health", h.HealthHandler).Methods("GET")
	router.HandleFunc("/stats", h.StatsHandler).Methods("GET")
	router.HandleFunc("/config", h.ConfigHandler).Methods("GET")
}

func (h *Handler) toRequest(req models.PredictionRequest) pipeline.Request {
	return pipeline.FromPrediction(req, h.useRuleGuard)
}

// observe передает готовый вердикт в метрики и аналитику
func (h *Handler) observe(v *models.SignalVerdict) {
	log.Printf("Verdict %s: class=%s risk=%s beats=%d V=%d demoted=%d (%.1f ms)",
		v.ID, v.Class, v.Risk, v.TotalBeats, v.VentricularBeats, v.DemotedBeats, v.ProcessingTimeMs)
	metrics.ObserveVerdict(v)
	if h.analyzer != nil {
		h.analyzer.Submit(v)
	}
}

// PredictHandler обрабатывает POST /predict - анализ одного сигнала
func (h *Handler) PredictHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/predict"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, endpoint, r.Method, "Invalid JSON", err.Error(), http.StatusBadRequest)
		return
	}

	verdict, err := h.pipeline.Evaluate(r.Context(), h.toRequest(req))
	if err != nil {
		h.respondFailure(w, endpoint, r.Method, err)
		return
	}
	h.observe(verdict)

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, verdict, http.StatusOK)
}

// BatchPredictHandler обрабатывает POST /predict/batch - пакетный анализ через пул воркеров
func (h *Handler) BatchPredictHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/predict/batch"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	var batch models.PredictionBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.respondError(w, endpoint, r.Method, "Invalid JSON", err.Error(), http.StatusBadRequest)
		return
	}
	if len(batch.Signals) == 0 || len(batch.Signals) > MaxBatchSize {
		h.respondError(w, endpoint, r.Method, "Invalid batch",
			fmt.Sprintf("batch must contain 1-%d signals, got %d", MaxBatchSize, len(batch.Signals)),
			http.StatusBadRequest)
		return
	}

	reqs := make([]pipeline.Request, len(batch.Signals))
	for i, s := range batch.Signals {
		reqs[i] = h.toRequest(s)
	}

	results := h.dispatcher.EvaluateBatch(r.Context(), reqs)

	items := make([]models.BatchItem, len(results))
	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
			metrics.SignalsFailed.WithLabelValues(apperrors.Kind(res.Err)).Inc()
			items[i] = models.BatchItem{Error: res.Err.Error()}
			continue
		}
		h.observe(res.Verdict)
		items[i] = models.BatchItem{Verdict: res.Verdict}
	}

	response := map[string]interface{}{
		"processed": len(items),
		"failed":    failed,
		"results":   items,
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, response, http.StatusOK)
}

// AnalyzeHandler обрабатывает POST /analyze - сведения о сигнале без классификации
func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/analyze"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, endpoint, r.Method, "Invalid JSON", err.Error(), http.StatusBadRequest)
		return
	}

	info, err := h.pipeline.Analyze(r.Context(), h.toRequest(req))
	if err != nil {
		h.respondFailure(w, endpoint, r.Method, err)
		return
	}

	if h.store != nil {
		if err := h.store.SaveSignalInfo(r.Context(), info); err != nil {
			metrics.CacheMisses.Inc()
		}
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, info, http.StatusOK)
}

// LatestPredictionsHandler возвращает последние вердикты из кэша
func (h *Handler) LatestPredictionsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/predictions/latest"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	count := int64(DefaultLatestCount)
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if c, err := strconv.ParseInt(countStr, 10, 64); err == nil && c > 0 && c <= cache.LatestLimit {
			count = c
		}
	}

	if h.store == nil {
		h.respondError(w, endpoint, r.Method, "Cache not available", "", http.StatusServiceUnavailable)
		return
	}

	verdicts, err := h.store.GetLatestVerdicts(r.Context(), count)
	if err != nil {
		h.respondError(w, endpoint, r.Method, "Failed to get predictions", err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, verdicts, http.StatusOK)
}

// GetPredictionHandler возвращает вердикт по идентификатору
func (h *Handler) GetPredictionHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/predictions/{id}"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	if h.store == nil {
		h.respondError(w, endpoint, r.Method, "Cache not available", "", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]
	verdict, err := h.store.GetVerdict(r.Context(), id)
	if errors.Is(err, cache.ErrNotFound) {
		metrics.CacheMisses.Inc()
		h.respondError(w, endpoint, r.Method, "Prediction not found", id, http.StatusNotFound)
		return
	}
	if err != nil {
		h.respondError(w, endpoint, r.Method, "Failed to get prediction", err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.CacheHits.Inc()
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, verdict, http.StatusOK)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	redisStatus := "disconnected"
	if h.store != nil && h.store.Ping(r.Context()) == nil {
		redisStatus = "connected"
	}

	loaded := h.modelLoaded()
	if loaded {
		metrics.ModelLoaded.Set(1)
	} else {
		metrics.ModelLoaded.Set(0)
	}

	status := models.HealthStatus{
		Status:      "healthy",
		Version:     Version,
		ModelLoaded: loaded,
		Timestamp:   time.Now(),
		Redis:       redisStatus,
		Uptime:      time.Since(h.startTime).String(),
	}

	h.respondJSON(w, status, http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - статистика сервиса
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

	var snapshot analytics.Snapshot
	if h.analyzer != nil {
		snapshot = h.analyzer.GetStats()
	}

	response := models.StatsResponse{
		TotalSignals:        snapshot.TotalSignals,
		VentricularSignals:  snapshot.VentricularSignals,
		HighRiskSignals:     snapshot.HighRiskSignals,
		RollingLatencyMs:    snapshot.RollingLatencyMs,
		RollingMinorityRate: snapshot.RollingMinorityRate,
		RollingBeatsPerCall: snapshot.RollingBeats,
	}

	// Счетчики в Redis переживают рестарт процесса
	if h.store != nil {
		if n, err := h.store.GetCounter(r.Context(), cache.SignalsTotalKey); err == nil && n > 0 {
			response.TotalSignals = n
			response.VentricularSignals, _ = h.store.GetCounter(r.Context(), cache.VentricularTotalKey)
			response.HighRiskSignals, _ = h.store.GetCounter(r.Context(), cache.HighRiskTotalKey)
		}
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, response, http.StatusOK)
}

// ConfigHandler обрабатывает GET /config - действующие параметры анализа
func (h *Handler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg := h.pipeline.Config()
	response := map[string]interface{}{
		"threshold":            cfg.Threshold,
		"window_seconds":       cfg.WindowSeconds,
		"bandpass_hz":          []float64{cfg.LowCutHz, cfg.HighCutHz},
		"filter_order":         cfg.FilterOrder,
		"min_duration_seconds": cfg.MinDurationSeconds,
		"default_derivation":   cfg.DefaultDerivation,
		"use_ruleguard":        h.useRuleGuard,
		"ruleguard":            ruleguardView(cfg.RuleGuard),
		"risk_thresholds": map[string]float64{
			"high":   pipeline.HighRiskConfidence,
			"medium": pipeline.MediumRiskConfidence,
		},
	}
	h.respondJSON(w, response, http.StatusOK)
}

func ruleguardView(c ruleguard.Config) map[string]float64 {
	return map[string]float64{
		"rr_low":           c.RRLow,
		"rr_high":          c.RRHigh,
		"qrs_threshold_ms": c.QRSThresholdMs,
	}
}

// StatusFor сопоставляет ошибку конвейера HTTP статусу
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrProcessing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrModelUnavailable), errors.Is(err, pipeline.ErrDispatcherStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure отправляет ошибку конвейера и учитывает ее в метриках
func (h *Handler) respondFailure(w http.ResponseWriter, endpoint, method string, err error) {
	metrics.SignalsFailed.WithLabelValues(apperrors.Kind(err)).Inc()
	status := StatusFor(err)
	h.respondError(w, endpoint, method, http.StatusText(status), err.Error(), status)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, endpoint, method, message, details string, status int) {
	metrics.RequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	h.respondJSON(w, models.ErrorResponse{Error: message, Details: details}, status)
}
