package main

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/config"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Ensemble.DataDir = t.TempDir()
	cfg.Server.GinMode = gin.TestMode
	return cfg
}

func quietLogger() *monitoring.Logger {
	return monitoring.NewLogger(monitoring.LogOptions{Level: "error", Output: io.Discard})
}

func writeModel(t *testing.T, p float64) string {
	t.Helper()
	zeros := func(r, c int) [][]float64 {
		m := make([][]float64, r)
		for i := range m {
			m[i] = make([]float64, c)
		}
		return m
	}
	data, err := json.Marshal(map[string]any{
		"architecture":          neural.Architecture{InputSize: 12, HiddenSize: 4, OutputSize: 1},
		"weights_input_hidden":  zeros(4, 12),
		"bias_hidden":           make([]float64, 4),
		"weights_hidden_output": zeros(1, 4),
		"bias_output":           []float64{math.Log(p / (1 - p))},
		"performance":           map[string]any{"run_id": "run-main"},
		"training_history":      []any{},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewApp_Modes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		path     func(t *testing.T) string
		required bool
		wantMode analysis.PredictionMethod
		wantErr  bool
	}{
		{name: "no model configured", path: func(*testing.T) string { return "" }, wantMode: analysis.MethodRuleBased},
		{name: "model loaded", path: func(t *testing.T) string { return writeModel(t, 0.4) }, wantMode: analysis.MethodHybrid},
		{name: "missing optional model", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") }, wantMode: analysis.MethodRuleBased},
		{name: "missing required model", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") }, required: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Model.Path = tt.path(t)
			cfg.Model.Required = tt.required

			a, err := newApp(context.Background(), cfg, quietLogger())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsCategory(err, apperrors.CategoryModel))
				return
			}
			require.NoError(t, err)
			defer a.Close()
			assert.Equal(t, tt.wantMode, a.Mode())
		})
	}
}

func TestNewApp_InvalidEnsembleProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ensemble.Profile = "tuned"
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Ensemble.DataDir, "ensemble"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Ensemble.DataDir, "ensemble", "tuned.json"),
		[]byte(`{"two_signal": {"rule_based": 0.9, "ml": 0.9}}`), 0o644))

	_, err := newApp(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
}

func TestNewApp_ServesPredictions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.Model.Path = writeModel(t, 0.4)
	require.NoError(t, hybrid.NewWeightStore(cfg.Ensemble.DataDir).Save("default", hybrid.DefaultEnsembleWeights()))

	a, err := newApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"text": "Shipping day. What should we build next?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result analysis.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, analysis.MethodHybrid, result.PredictionMethod)
	assert.Equal(t, "run-main", result.Metadata.ModelRunID)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"prediction_mode":"hybrid"`)
}
