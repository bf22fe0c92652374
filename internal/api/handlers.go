package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// bindError reports binding tag failures per field and anything else as a
// malformed request.
func bindError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError("invalid request", err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[strings.ToLower(fe.Field())] = "must satisfy " + rule
	}
	return apperrors.NewValidationErrorWithMap(fields)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	var dependencies any = []any{}
	if s.deps.Tracker != nil {
		status = s.deps.Tracker.Status()
		dependencies = s.deps.Tracker.Health()
	}
	var breakers any = []any{}
	if s.deps.Breakers != nil {
		breakers = s.deps.Breakers.Stats()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":           status,
		"version":          Version,
		"timestamp":        s.now().UTC().Format(time.RFC3339),
		"prediction_mode":  s.predictionMode(),
		"model":            s.modelInfo(false),
		"dependencies":     dependencies,
		"circuit_breakers": breakers,
	})
}

func (s *Server) predictionMode() analysis.PredictionMethod {
	if s.deps.Combiner.Model() == nil {
		return analysis.MethodRuleBased
	}
	return analysis.MethodHybrid
}

func (s *Server) modelInfo(detailed bool) gin.H {
	snap := s.deps.Combiner.Model()
	if snap == nil {
		return gin.H{"loaded": false}
	}
	info := gin.H{
		"loaded":       true,
		"architecture": snap.Architecture().String(),
		"input_size":   snap.InputSize(),
		"run_id":       snap.RunID(),
	}
	if detailed {
		info["performance"] = snap.Performance()
		info["training_history"] = snap.History()
	}
	return info
}

func (s *Server) handleModel(c *gin.Context) {
	c.JSON(http.StatusOK, s.modelInfo(true))
}

func (s *Server) handleReload(c *gin.Context) {
	if s.opts.ModelPath == "" {
		_ = c.Error(apperrors.NewConfigurationError("MODEL_PATH is not set", nil))
		return
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := neural.Load(s.opts.ModelPath)
	if err != nil {
		_ = c.Error(err)
		return
	}
	previous := s.deps.Combiner.Swap(snap)
	s.deps.Prom.SetModelLoaded(true)
	if s.deps.Cache != nil {
		s.deps.Cache.Clear()
	}

	previousRun := ""
	if previous != nil {
		previousRun = previous.RunID()
	}
	s.deps.Logger.SystemLogger("model_reloaded", snap.Architecture().String()+" "+snap.RunID())
	c.JSON(http.StatusOK, gin.H{
		"reloaded":        true,
		"previous_run_id": previousRun,
		"model":           s.modelInfo(false),
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	var sig types.PostSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	start := time.Now()
	result, err := s.deps.Combiner.Predict(c.Request.Context(), sig)
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.record(result, time.Since(start))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req types.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	resp, err := s.deps.Batch.Run(c.Request.Context(), req.Posts)
	if err != nil {
		_ = c.Error(err)
		return
	}
	for _, item := range resp.Items {
		if item.Result != nil {
			s.record(*item.Result, 0)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) record(result analysis.PredictionResult, duration time.Duration) {
	s.deps.Metrics.RecordPrediction(string(result.PredictionMethod))
	s.deps.Prom.ObservePrediction(string(result.PredictionMethod), string(result.Category), result.ViralProbability)
	if duration > 0 {
		s.deps.Logger.PredictionLogger(string(result.PredictionMethod), result.ViralProbability, result.ConfidenceScore, duration, false)
	}
}

func (s *Server) handleTimingWindows(c *gin.Context) {
	var req types.TimingWindowsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	from := s.now()
	if req.From != "" {
		parsed, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			_ = c.Error(apperrors.NewValidationError("from must be RFC3339", req.From))
			return
		}
		from = parsed
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			_ = c.Error(apperrors.NewValidationError("unknown timezone", req.Timezone))
			return
		}
	}

	horizon := time.Duration(req.Hours) * time.Hour
	windows := s.deps.Combiner.Composer().Timing().OptimalWindows(from, horizon, req.Limit, req.Timezone)
	c.JSON(http.StatusOK, gin.H{
		"from":    from.UTC().Format(time.RFC3339),
		"windows": windows,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.deps.Metrics.GetStats()
	stats["prediction_mode"] = s.predictionMode()
	if s.deps.Cache != nil {
		stats["cache"] = s.deps.Cache.Stats()
	}
	if s.deps.Limiter != nil {
		stats["rate_limiter"] = s.deps.Limiter.Stats()
	}
	if s.deps.Breakers != nil {
		stats["circuit_breakers"] = s.deps.Breakers.Stats()
	}
	if s.deps.Compression != nil {
		stats["compression"] = s.deps.Compression.Stats()
	}
	c.JSON(http.StatusOK, stats)
}
