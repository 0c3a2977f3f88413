// Package main запускает HTTP сервис анализа ЭКГ на желудочковые экстрасистолы
// Сервис реализует:
// - Полосовую фильтрацию, детекцию R-пиков и нарезку окон ударов
// - Классификацию ударов внешней или файловой моделью
// - Пост-фильтр RuleGuard и агрегацию в вердикт с уровнем риска
// - Хранение вердиктов в Redis
// - Экспорт метрик в Prometheus
package main

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arrhythmia-service/internal/analytics"
	"arrhythmia-service/internal/cache"
	"arrhythmia-service/internal/classifier"
	"arrhythmia-service/internal/config"
	"arrhythmia-service/internal/handlers"
	"arrhythmia-service/internal/metrics"
	"arrhythmia-service/internal/pipeline"
)

func main() {
	log.Println("Starting Arrhythmia Service...")
	log.Printf("Go version: %s", runtime.Version())
	log.Printf("NumCPU: %d", runtime.NumCPU())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Аналитика по вердиктам
	analyzer := analytics.NewAnalyzer(cfg.BufferSize)
	analyzer.Start(1)

	// Пробуем подключиться к Redis с повторами
	redisCache := connectRedis(cfg)

	model := newClassifier(cfg)

	opts := []pipeline.Option{}
	var store handlers.Store
	if redisCache != nil {
		store = redisCache
		opts = append(opts, pipeline.WithSink(redisCache, func(err error) {
			metrics.SinkErrors.Inc()
			log.Printf("Failed to store verdict: %v", err)
		}))
	}

	p, err := pipeline.New(cfg.Pipeline, model, opts...)
	if err != nil {
		log.Fatalf("Pipeline error: %v", err)
	}

	dispatcher := pipeline.NewDispatcher(p, cfg.BufferSize)
	dispatcher.Start(cfg.WorkerCount)
	log.Printf("Dispatcher started with %d workers", cfg.WorkerCount)

	handler := handlers.NewHandler(handlers.Options{
		Pipeline:     p,
		Dispatcher:   dispatcher,
		Analyzer:     analyzer,
		Store:        store,
		ModelLoaded:  model.Loaded,
		UseRuleGuard: cfg.UseRuleGuard,
	})

	router := mux.NewRouter()
	handler.Register(router)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(loggingMiddleware)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Прогрев модели, чтобы первый запрос не ждал загрузку
	go warmUp(model, cfg.ModelTimeout())

	go updateMetricsLoop(analyzer, model)
	go processAnalysisResults(analyzer)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on %s", cfg.ServerAddr)
		log.Printf("Endpoints:")
		log.Printf("  POST /predict            - Evaluate one signal")
		log.Printf("  POST /predict/batch      - Evaluate a batch of signals")
		log.Printf("  POST /analyze            - Signal summary without prediction")
		log.Printf("  GET  /predictions/latest - Latest verdicts")
		log.Printf("  GET  /predictions/{id}   - Verdict by id")
		log.Printf("  GET  /health             - Health check")
		log.Printf("  GET  /stats              - Service statistics")
		log.Printf("  GET  /config             - Active analysis parameters")
		log.Printf("  GET  /prometheus         - Prometheus metrics")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Сначала перестаем принимать запросы, затем останавливаем воркеры
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	dispatcher.Stop()
	analyzer.Stop()

	if redisCache != nil {
		redisCache.Close()
	}

	log.Println("Server stopped")
}

// connectRedis подключается к Redis; без Redis сервис работает без хранения вердиктов
func connectRedis(cfg config.Config) *cache.RedisCache {
	var err error
	for i := 0; i < 5; i++ {
		var redisCache *cache.RedisCache
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			log.Printf("Connected to Redis at %s", cfg.RedisAddr)
			return redisCache
		}
		log.Printf("Redis connection attempt %d failed: %v", i+1, err)
		if i < 4 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	log.Printf("Warning: Failed to connect to Redis, running without result storage: %v", err)
	return nil
}

// newClassifier выбирает источник модели: удаленный сервер или файл весов
func newClassifier(cfg config.Config) *classifier.Lazy {
	if cfg.ModelURL != "" {
		log.Printf("Using remote model at %s", cfg.ModelURL)
		return classifier.NewLazy(classifier.HTTPLoader(cfg.ModelURL, cfg.ModelTimeout()))
	}
	log.Printf("Using model file %s", cfg.ModelPath)
	return classifier.NewLazy(classifier.FileLoader(cfg.ModelPath))
}

func warmUp(model *classifier.Lazy, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := model.Get(ctx); err != nil {
		log.Printf("Warning: model not loaded yet, will retry on first request: %v", err)
		return
	}
	log.Println("Model loaded")
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// updateMetricsLoop периодически обновляет метрики Prometheus
func updateMetricsLoop(analyzer *analytics.Analyzer, model *classifier.Lazy) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s := analyzer.GetStats()
		metrics.RollingLatency.Set(s.RollingLatencyMs)
		metrics.RollingMinorityRate.Set(s.RollingMinorityRate)
		metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))
		if model.Loaded() {
			metrics.ModelLoaded.Set(1)
		} else {
			metrics.ModelLoaded.Set(0)
		}
	}
}

// processAnalysisResults обрабатывает результаты аналитики
func processAnalysisResults(analyzer *analytics.Analyzer) {
	for result := range analyzer.GetResults() {
		metrics.UpdateAnalysisMetrics(result)
		if result.SlowRun {
			log.Printf("Slow evaluation %s: latency z-score %.2f (rolling %.1f ms)",
				result.PredictionID, result.LatencyZScore, result.RollingLatencyMs)
		}
	}
}
