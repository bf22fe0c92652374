package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/adapters"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/api"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/batch"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/config"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/middleware"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/resilience"
)

const (
	dependencyModel = "model"
	dependencyRedis = "redis"
)

// app owns every long-lived component of the server.
type app struct {
	cfg      *config.Config
	logger   *monitoring.Logger
	combiner *hybrid.Combiner
	tracker  *resilience.DegradationTracker
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	redis    *ratelimit.RedisClient
	prom     *monitoring.Prometheus
	server   *api.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	snap, err := loadModel(cfg.Model, logger)
	if err != nil {
		return nil, err
	}

	weights, err := hybrid.NewWeightStore(cfg.Ensemble.DataDir).Load(profileName(cfg.Ensemble.Profile))
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid ensemble profile", err)
	}

	metrics := monitoring.NewMetrics()
	prom := monitoring.NewPrometheus()
	prom.SetModelLoaded(snap != nil)
	breakers := resilience.NewRegistry()
	tracker := resilience.NewDegradationTracker(resilience.DefaultDegradationConfig(), logger.Logger)

	holder := neural.NewHolder(snap)
	tracker.Register(dependencyModel, true, func(context.Context) error {
		if holder.Load() == nil {
			return errors.New("no model snapshot loaded")
		}
		return nil
	})

	hybridCfg := hybrid.DefaultConfig()
	hybridCfg.ProbabilityCap = cfg.Ensemble.Cap
	hybridCfg.SentimentTimeout = cfg.Sentiment.Timeout
	opts := []hybrid.Option{hybrid.WithLogger(logger.Logger), hybrid.WithWeights(weights)}

	if cfg.Sentiment.URL != "" {
		sentimentCfg := adapters.DefaultSentimentConfig(cfg.Sentiment.URL)
		sentimentCfg.APIKey = cfg.Sentiment.APIKey
		sentimentCfg.Timeout = cfg.Sentiment.Timeout
		sentimentCfg.RequestsPerSecond = cfg.Sentiment.RequestsPerSecond
		tracker.Register(adapters.SentimentServiceName, true, nil)

		client, err := adapters.NewSentimentClient(sentimentCfg, breakers, tracker, logger.Logger)
		if err != nil {
			return nil, err
		}
		client.OnCall(monitoring.ExternalCallObserver(adapters.SentimentServiceName, metrics, prom, logger))
		opts = append(opts, hybrid.WithSentiment(client))
	}

	composer := analysis.NewComposer(analysis.DefaultConfig())
	combiner := hybrid.NewCombiner(hybridCfg, composer, holder, opts...)

	redis, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger.Logger)
	if err != nil {
		logger.Warn("Redis unavailable, rate limiting in memory", "error", err)
	}
	if redis.IsEnabled() {
		tracker.Register(dependencyRedis, true, redis.HealthCheck)
	}
	limiter := ratelimit.New(redis, ratelimit.Config{PerMinute: cfg.RateLimit.PerMinute}, metrics, prom, logger.Logger)

	var responseCache *cache.Cache
	if cfg.Cache.TTL > 0 {
		responseCache = cache.New(cfg.Cache.TTL, cfg.Cache.MaxItems)
	}

	server := api.NewServer(api.Options{
		CORSOrigin:     cfg.Server.CORSOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		ModelPath:      cfg.Model.Path,
		AdminSecret:    cfg.Model.AdminSecret,
	}, api.Deps{
		Combiner:    combiner,
		Batch:       batch.NewRunner(combiner, cfg.Batch.Workers, logger.Logger),
		Tracker:     tracker,
		Breakers:    breakers,
		Cache:       responseCache,
		Limiter:     limiter,
		Compression: middleware.NewCompression(middleware.DefaultCompressionConfig()),
		Metrics:     metrics,
		Prom:        prom,
		Logger:      logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		combiner: combiner,
		tracker:  tracker,
		cache:    responseCache,
		limiter:  limiter,
		redis:    redis,
		prom:     prom,
		server:   server,
	}, nil
}

// loadModel returns nil in rule-based mode. A configured snapshot that fails
// to load is fatal only when the model is required.
func loadModel(cfg config.ModelConfig, logger *monitoring.Logger) (*neural.Snapshot, error) {
	if cfg.Path == "" {
		logger.Warn("No model snapshot configured, serving rule-based predictions")
		return nil, nil
	}
	snap, err := neural.Load(cfg.Path)
	if err != nil {
		if cfg.Required {
			return nil, err
		}
		logger.Warn("Model snapshot unavailable, serving rule-based predictions", "path", cfg.Path, "error", err)
		return nil, nil
	}
	logger.Info("Model snapshot loaded",
		"path", cfg.Path,
		"architecture", snap.Architecture().String(),
		"run_id", snap.RunID(),
	)
	return snap, nil
}

func profileName(profile string) string {
	if profile == "" {
		return hybrid.DefaultProfile
	}
	return profile
}

// Start launches background loops that stop with ctx.
func (a *app) Start(ctx context.Context) {
	a.tracker.CheckNow(ctx)
	go a.tracker.Run(ctx)
	go a.limiter.Run(ctx, time.Minute)
	if a.cache != nil {
		go a.cache.Run(ctx, a.cfg.Cache.TTL)
	}
}

func (a *app) Handler() http.Handler { return a.server.Handler() }

func (a *app) Mode() analysis.PredictionMethod {
	if a.combiner.Model() == nil {
		return analysis.MethodRuleBased
	}
	return analysis.MethodHybrid
}

func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("Failed to close Redis client", "error", err)
	}
}
