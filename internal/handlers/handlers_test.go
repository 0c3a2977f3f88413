package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"arrhythmia-service/internal/analytics"
	"arrhythmia-service/internal/apperrors"
	"arrhythmia-service/internal/cache"
	"arrhythmia-service/internal/classifier"
	"arrhythmia-service/internal/ecg"
	"arrhythmia-service/internal/models"
	"arrhythmia-service/internal/pipeline"
)

const testSampleRate = 360

type memoryStore struct {
	verdicts map[string]*models.SignalVerdict
	latest   []models.SignalVerdict
}

func (m *memoryStore) GetVerdict(_ context.Context, id string) (*models.SignalVerdict, error) {
	v, ok := m.verdicts[id]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) GetLatestVerdicts(_ context.Context, count int64) ([]models.SignalVerdict, error) {
	if int64(len(m.latest)) < count {
		count = int64(len(m.latest))
	}
	return m.latest[:count], nil
}

func (m *memoryStore) GetCounter(context.Context, string) (int64, error) { return 0, nil }
func (m *memoryStore) SaveSignalInfo(context.Context, *models.SignalInfo) error { return nil }
func (m *memoryStore) Ping(context.Context) error { return nil }

func newTestRouter(t *testing.T, model classifier.Classifier, store Store) *mux.Router {
	t.Helper()
	p, err := pipeline.New(pipeline.DefaultConfig(), model)
	if err != nil {
		t.Fatal(err)
	}
	d := pipeline.NewDispatcher(p, 16)
	d.Start(2)
	t.Cleanup(d.Stop)

	analyzer := analytics.NewAnalyzer(100)
	analyzer.Start(1)
	t.Cleanup(analyzer.Stop)

	h := NewHandler(Options{
		Pipeline:     p,
		Dispatcher:   d,
		Analyzer:     analyzer,
		Store:        store,
		ModelLoaded:  func() bool { return true },
		UseRuleGuard: true,
	})
	router := mux.NewRouter()
	h.Register(router)
	return router
}

func constant(p float64) classifier.Classifier {
	return classifier.Func(func(_ context.Context, windows [][]float64, _ [][3]float64) ([]float64, error) {
		out := make([]float64, len(windows))
		for i := range out {
			out[i] = p
		}
		return out, nil
	})
}

func signal(seconds float64) []float64 {
	return ecg.NewSimulator(testSampleRate, 75, 0.01).Generate(seconds)
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPredictHandler_Verdict(t *testing.T) {
	router := newTestRouter(t, constant(0.9), nil)

	off := false
	rec := do(t, router, http.MethodPost, "/predict", models.PredictionRequest{
		SignalData:     signal(10),
		SamplingRate:   testSampleRate,
		SubjectID:      "100",
		ApplyRuleGuard: &off,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var v models.SignalVerdict
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Class != models.ClassVentricular || v.Risk != models.RiskHigh {
		t.Errorf("Expected V/HIGH, got %s/%s", v.Class, v.Risk)
	}
	if v.SubjectID != "100" || v.ID == "" || v.TotalBeats == 0 {
		t.Errorf("Unexpected verdict %+v", v)
	}
}

func TestPredictHandler_RuleGuardDefaultFromConfig(t *testing.T) {
	router := newTestRouter(t, constant(0.9), nil)

	rec := do(t, router, http.MethodPost, "/predict", models.PredictionRequest{
		SignalData:   signal(10),
		SamplingRate: testSampleRate,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var v models.SignalVerdict
	json.NewDecoder(rec.Body).Decode(&v)
	if !v.RuleGuardApplied || v.Class != models.ClassNormal {
		t.Errorf("Regular rhythm with RuleGuard should be N, got %s (applied=%v)", v.Class, v.RuleGuardApplied)
	}
}

func TestPredictHandler_ErrorStatuses(t *testing.T) {
	failing := classifier.Func(func(context.Context, [][]float64, [][3]float64) ([]float64, error) {
		return nil, errors.New("model server down")
	})

	cases := []struct {
		name   string
		model  classifier.Classifier
		body   interface{}
		status int
	}{
		{"short signal", constant(0.5), models.PredictionRequest{SignalData: signal(2), SamplingRate: testSampleRate}, http.StatusBadRequest},
		{"bad rate", constant(0.5), models.PredictionRequest{SignalData: signal(10)}, http.StatusBadRequest},
		{"model down", failing, models.PredictionRequest{SignalData: signal(10), SamplingRate: testSampleRate}, http.StatusServiceUnavailable},
		{"bad json", constant(0.5), "not an object", http.StatusBadRequest},
	}

	for _, c := range cases {
		router := newTestRouter(t, c.model, nil)
		rec := do(t, router, http.MethodPost, "/predict", c.body)
		if rec.Code != c.status {
			t.Errorf("%s: expected %d, got %d: %s", c.name, c.status, rec.Code, rec.Body.String())
		}
		var e models.ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&e); err != nil || e.Error == "" {
			t.Errorf("%s: expected JSON error body", c.name)
		}
	}
}

func TestBatchPredictHandler_PreservesOrder(t *testing.T) {
	router := newTestRouter(t, constant(0.2), nil)

	batch := models.PredictionBatch{Signals: []models.PredictionRequest{
		{SignalData: signal(10), SamplingRate: testSampleRate, SubjectID: "a"},
		{SignalData: signal(1), SamplingRate: testSampleRate, SubjectID: "b"},
		{SignalData: signal(8), SamplingRate: testSampleRate, SubjectID: "c"},
	}}
	rec := do(t, router, http.MethodPost, "/predict/batch", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Processed int                `json:"processed"`
		Failed    int                `json:"failed"`
		Results   []models.BatchItem `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Processed != 3 || resp.Failed != 1 {
		t.Errorf("Expected 3 processed and 1 failed, got %d/%d", resp.Processed, resp.Failed)
	}
	if resp.Results[0].Verdict == nil || resp.Results[0].Verdict.SubjectID != "a" {
		t.Errorf("Result 0 out of order: %+v", resp.Results[0])
	}
	if resp.Results[1].Error == "" {
		t.Error("Result 1 should carry a validation error")
	}
	if resp.Results[2].Verdict == nil || resp.Results[2].Verdict.SubjectID != "c" {
		t.Errorf("Result 2 out of order: %+v", resp.Results[2])
	}
}

func TestBatchPredictHandler_RejectsOversizedBatch(t *testing.T) {
	router := newTestRouter(t, constant(0.2), nil)

	batch := models.PredictionBatch{Signals: make([]models.PredictionRequest, MaxBatchSize+1)}
	if rec := do(t, router, http.MethodPost, "/predict/batch", batch); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/predict/batch", models.PredictionBatch{}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty batch, got %d", rec.Code)
	}
}

func TestAnalyzeHandler_SignalInfo(t *testing.T) {
	router := newTestRouter(t, constant(0.5), &memoryStore{})

	rec := do(t, router, http.MethodPost, "/analyze", models.PredictionRequest{
		SignalData:   signal(10),
		SamplingRate: testSampleRate,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var info models.SignalInfo
	json.NewDecoder(rec.Body).Decode(&info)
	if !info.ValidForAnalysis || info.DetectedBeats == 0 || info.Derivation != "MLII" {
		t.Errorf("Unexpected signal info %+v", info)
	}
}

func TestPredictionLookup(t *testing.T) {
	store := &memoryStore{
		verdicts: map[string]*models.SignalVerdict{"known": {ID: "known", Class: models.ClassNormal}},
		latest:   []models.SignalVerdict{{ID: "2"}, {ID: "1"}},
	}
	router := newTestRouter(t, constant(0.5), store)

	if rec := do(t, router, http.MethodGet, "/predictions/known", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for known id, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/predictions/unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown id, got %d", rec.Code)
	}

	rec := do(t, router, http.MethodGet, "/predictions/latest?count=1", nil)
	var latest []models.SignalVerdict
	json.NewDecoder(rec.Body).Decode(&latest)
	if len(latest) != 1 || latest[0].ID != "2" {
		t.Errorf("Expected newest verdict only, got %+v", latest)
	}
}

func TestPredictionLookup_NoCache(t *testing.T) {
	router := newTestRouter(t, constant(0.5), nil)

	for _, path := range []string{"/predictions/latest", "/predictions/abc"} {
		if rec := do(t, router, http.MethodGet, path, nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503 without cache, got %d", path, rec.Code)
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	router := newTestRouter(t, constant(0.9), nil)

	rec := do(t, router, http.MethodGet, "/health", nil)
	var health models.HealthStatus
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "healthy" || !health.ModelLoaded || health.Redis != "disconnected" {
		t.Errorf("Unexpected health %+v", health)
	}

	off := false
	for i := 0; i < 3; i++ {
		do(t, router, http.MethodPost, "/predict", models.PredictionRequest{
			SignalData: signal(10), SamplingRate: testSampleRate, ApplyRuleGuard: &off,
		})
	}

	// Вердикты учитываются воркерами аналитики асинхронно
	deadline := time.Now().Add(2 * time.Second)
	var stats models.StatsResponse
	for {
		rec = do(t, router, http.MethodGet, "/stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		stats = models.StatsResponse{}
		json.NewDecoder(rec.Body).Decode(&stats)
		if stats.TotalSignals == 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if stats.TotalSignals != 3 || stats.VentricularSignals != 3 || stats.HighRiskSignals != 3 {
		t.Errorf("Expected 3 V/HIGH signals, got %+v", stats)
	}
	if stats.RollingMinorityRate != 1 {
		t.Errorf("Expected minority rate 1, got %.2f", stats.RollingMinorityRate)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.Validation("x"), http.StatusBadRequest},
		{apperrors.Processing("x"), http.StatusUnprocessableEntity},
		{apperrors.ModelUnavailable("x"), http.StatusServiceUnavailable},
		{pipeline.ErrDispatcherStopped, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", apperrors.ErrValidation), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusFor(c.err); got != c.want {
			t.Errorf("StatusFor(%v) = %d, expected %d", c.err, got, c.want)
		}
	}
}
