package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/summarysearch/summarysearch/internal/corpus"
	"github.com/summarysearch/summarysearch/internal/engine"
	"github.com/summarysearch/summarysearch/internal/normalizer"
	"github.com/summarysearch/summarysearch/internal/refresh"
	"github.com/summarysearch/summarysearch/internal/searcher/cache"
	"github.com/summarysearch/summarysearch/internal/searcher/executor"
	"github.com/summarysearch/summarysearch/internal/searcher/handler"
	"github.com/summarysearch/summarysearch/internal/vectorizer"
	"github.com/summarysearch/summarysearch/pkg/config"
	"github.com/summarysearch/summarysearch/pkg/health"
	"github.com/summarysearch/summarysearch/pkg/kafka"
	"github.com/summarysearch/summarysearch/pkg/logger"
	"github.com/summarysearch/summarysearch/pkg/metrics"
	"github.com/summarysearch/summarysearch/pkg/middleware"
	"github.com/summarysearch/summarysearch/pkg/postgres"
	pkgredis "github.com/summarysearch/summarysearch/pkg/redis"
	"github.com/summarysearch/summarysearch/pkg/resilience"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "df_mode", cfg.Engine.DocumentFrequencyMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()

	var store corpus.Store
	if cfg.Postgres.Host != "" {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		pgStore, err := corpus.NewPostgresStore(pg.DB, cfg.Postgres.CorpusTable)
		if err != nil {
			slog.Error("invalid corpus table", "error", err)
			os.Exit(1)
		}
		store = pgStore
		checker.Register("postgres", health.PingCheck(pg, ""))
		slog.Info("corpus store: postgres", "host", cfg.Postgres.Host, "table", cfg.Postgres.CorpusTable)
	} else {
		memStore, err := corpus.LoadFile(cfg.Corpus.File)
		if err != nil {
			slog.Error("failed to load corpus file", "path", cfg.Corpus.File, "error", err)
			os.Exit(1)
		}
		store = memStore
		slog.Info("corpus store: file", "path", cfg.Corpus.File)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			checker.Register("redis", health.PingCheck(nil, "unavailable at startup"))
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis)
			checker.Register("redis", health.PingCheck(redisClient, ""))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		checker.Register("redis", health.PingCheck(nil, "not configured"))
	}

	mode, err := vectorizer.ParseMatchMode(cfg.Engine.DocumentFrequencyMode)
	if err != nil {
		slog.Error("invalid document frequency mode", "error", err)
		os.Exit(1)
	}
	eng := engine.New(engine.Options{
		FitConcurrency: cfg.Engine.FitConcurrency,
		MatchMode:      mode,
	})
	checker.Register("engine", health.ReadyCheck(func() bool {
		return eng.State() == engine.StateFitted
	}, "index not fitted"))

	norm := normalizer.Default()
	refreshCfg := refresh.Config{
		Store:      store,
		Normalizer: norm,
		Engine:     eng,
		Metrics:    m,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Refresh.MaxAttempts,
			InitialDelay: cfg.Refresh.InitialDelay,
			MaxDelay:     cfg.Refresh.MaxDelay,
		},
		Interval:         cfg.Refresh.Interval,
		AllowEmptyCorpus: cfg.Refresh.AllowEmptyCorpus,
	}
	if queryCache != nil {
		refreshCfg.Cache = queryCache
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexFitted)
		defer producer.Close()
		refreshCfg.Publisher = producer
		slog.Info("index-fitted events enabled", "topic", cfg.Kafka.Topics.IndexFitted)
	}
	refresher := refresh.New(refreshCfg)

	if _, err := refresher.Refresh(ctx, "startup"); err != nil {
		slog.Error("initial fit failed", "error", err)
		os.Exit(1)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusRefresh, refresher.HandleRefreshMessage())
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("refresh consumer error", "error", err)
			}
		}()
		slog.Info("refresh consumer started", "topic", cfg.Kafka.Topics.CorpusRefresh)
	}
	go refresher.Run(ctx)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	exec := executor.New(eng, norm, cfg.Search.MinScore)
	h := handler.New(exec, eng, queryCache, refresher, m, cfg.Search)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
