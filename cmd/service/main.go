package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/honmoku-catch-service/internal/cache"
	"github.com/kjstillabower/honmoku-catch-service/internal/circuitbreaker"
	"github.com/kjstillabower/honmoku-catch-service/internal/config"
	httphandler "github.com/kjstillabower/honmoku-catch-service/internal/http"
	"github.com/kjstillabower/honmoku-catch-service/internal/ingest"
	"github.com/kjstillabower/honmoku-catch-service/internal/lifecycle"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
	"github.com/kjstillabower/honmoku-catch-service/internal/predictor"
	"github.com/kjstillabower/honmoku-catch-service/internal/service"
	"github.com/kjstillabower/honmoku-catch-service/internal/store"
	"github.com/kjstillabower/honmoku-catch-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger(httphandler.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), time.Minute)
	defer startCancel()

	st, err := store.Open(startCtx, cfg.StorePath, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err), zap.String("path", cfg.StorePath))
	}

	model, err := buildModel(startCtx, cfg, st, logger)
	if err != nil {
		logger.Fatal("model", zap.Error(err))
	}

	cacheBackend, err := cache.New(cache.Options{
		Backend:               cfg.CacheBackend,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		Redis: cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
		},
	})
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	svc := service.NewCatchService(st, cacheBackend, model, service.Config{
		AveragesTTL:     cfg.AveragesTTL,
		CoalesceTimeout: cfg.CoalesceTimeout,
		Location:        cfg.Location,
		TargetFish:      cfg.TargetFish,
		Logger:          logger,
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	warmer := cache.NewWarmer(svc, logger)
	warmCtx, warmCancel := context.WithTimeout(bgCtx, 30*time.Second)
	if err := warmer.Warm(warmCtx); err != nil {
		logger.Warn("initial cache warming failed", zap.Error(err))
	}
	warmCancel()

	var scheduler *ingest.Scheduler
	if cfg.IngestEnabled {
		pipeline := ingest.Pipeline{
			Importer:   ingest.NewImporter(st, logger),
			Dir:        cfg.IngestDir,
			Pattern:    cfg.IngestPattern,
			Retrain:    svc.Retrain,
			Invalidate: svc.Invalidate,
			Refresh:    warmer.Warm,
			Logger:     logger,
		}
		scheduler = ingest.NewScheduler(logger)
		if err := scheduler.Add("refresh", cfg.IngestSchedule, pipeline.Run); err != nil {
			logger.Fatal("ingest schedule", zap.Error(err), zap.String("schedule", cfg.IngestSchedule))
		}
		scheduler.Start()
		logger.Info("ingest scheduler started", zap.String("dir", cfg.IngestDir), zap.String("schedule", cfg.IngestSchedule))
	} else if cfg.WarmInterval > 0 {
		go func() {
			if err := warmer.WarmPeriodic(bgCtx, cfg.WarmInterval); err != nil && err != context.Canceled {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	recovery := &lifecycle.Recovery{
		Check:   svc.Check,
		Initial: cfg.DegradedRetryInitial,
		Max:     cfg.DegradedRetryMax,
		OnRecovered: func() {
			traffic.Reset()
			logger.Info("backends recovered; traffic window reset")
		},
		OnExhausted: func() {
			logger.Error("recovery attempts exhausted; service remains degraded")
		},
	}
	recovery.Start(bgCtx)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
		Probes: map[string]func(ctx context.Context) error{
			"store": st.Ping,
			"cache": cacheBackend.Ping,
		},
		OnDegraded: recovery.Notify,
	}
	if scheduler != nil {
		healthConfig.Jobs = func() interface{} { return scheduler.Jobs() }
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	handler := httphandler.NewHandler(svc, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop", zap.Error(err))
		}
	}
	bgCancel()

	if err := observability.FlushTelemetry(shutdownCtx, logger, cacheBackend, st); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildModel returns the remote inference client or a ridge model trained
// on the store.
func buildModel(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger) (predictor.Model, error) {
	if cfg.ModelBackend == config.ModelRemote {
		var breaker *circuitbreaker.CircuitBreaker
		if cfg.CircuitBreakerEnabled {
			breaker = circuitbreaker.New(circuitbreaker.Config{
				Name:             "inference",
				FailureThreshold: cfg.CircuitBreakerFailureThreshold,
				SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
				Timeout:          cfg.CircuitBreakerTimeout,
				OnStateChange: func(name string, from, to circuitbreaker.State) {
					observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
					logger.Warn("circuit breaker state change",
						zap.String("breaker", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			})
			observability.CircuitBreakerState.WithLabelValues("inference").Set(observability.BreakerClosed)
		}
		logger.Info("model backend: remote", zap.String("url", cfg.InferenceURL), zap.Bool("circuit_breaker", breaker != nil))
		rm, err := predictor.NewRemoteModel(predictor.RemoteConfig{
			URL:            cfg.InferenceURL,
			APIKey:         cfg.InferenceAPIKey,
			Timeout:        cfg.InferenceTimeout,
			RetryAttempts:  cfg.RetryAttempts,
			RetryBaseDelay: cfg.RetryBaseDelay,
			RetryMaxDelay:  cfg.RetryMaxDelay,
			Breaker:        breaker,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return rm, nil
	}

	m := predictor.NewLinearModel(predictor.LinearConfig{
		Lambda:  cfg.RidgeLambda,
		MinRows: cfg.MinTrainingRows,
	})
	info, err := predictor.TrainFromStore(ctx, st, m, cfg.TargetFish, logger)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	logger.Info("model backend: linear", zap.Int("training_rows", info.TrainingRows), zap.Bool("baseline", info.Baseline))
	return m, nil
}
