package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/market-stream/internal/broadcast"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/credential"
	"github.com/rickgao/market-stream/internal/database"
	"github.com/rickgao/market-stream/internal/market"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/version"
	"github.com/rickgao/market-stream/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/marketstream.example.yaml", "path to config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	logger.Info("starting marketstream",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"credentials", len(cfg.Credentials),
		"sinks", cfg.Broadcast.Sinks,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Credentials: config first, then the Postgres store when enabled.
	static := credential.NewStaticResolver(cfg.Credentials)
	resolver := credential.Chain{static}
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		logger.Info("connecting to credential store",
			"host", cfg.Database.Postgres.Host,
			"database", cfg.Database.Postgres.Name,
			"table", cfg.Database.Table,
		)
		pool, err = database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		resolver = append(resolver, credential.NewPostgresStore(pool, cfg.Database.Table, nil))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	sink, hub, err := buildSinks(ctx, cfg.Broadcast, pool, logger)
	if err != nil {
		logger.Error("failed to create broadcast sinks", "error", err)
		os.Exit(1)
	}

	registryCfg, err := market.ConfigFrom(cfg)
	if err != nil {
		logger.Error("invalid registry config", "error", err)
		os.Exit(1)
	}
	registry := market.NewRegistry(resolver, registryCfg, sink, m, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHandler(cfg.Metrics.Path, registry, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	for _, id := range static.IDs() {
		if err := openStream(ctx, registry, static, id); err != nil {
			logger.Error("failed to open stream", "credential", id, "error", err)
		}
	}

	logger.Info("marketstream running",
		"instance_id", cfg.Instance.ID,
		"streams", registry.Len(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	server.Shutdown(shutdownCtx)
	if err := registry.Close(shutdownCtx); err != nil {
		logger.Warn("registry close", "error", err)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Warn("sink close", "error", err)
		}
	}

	logger.Info("marketstream stopped")
}

// openStream creates the stream for id and subscribes its configured symbols.
func openStream(ctx context.Context, registry *market.Registry, resolver credential.Resolver, id string) error {
	cred, err := resolver.Resolve(ctx, id)
	if err != nil {
		return err
	}
	h, err := registry.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}

	var errs []error
	for _, sym := range cred.Symbols {
		subCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := h.Subscribe(subCtx, sym); err != nil {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", sym, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

// buildSinks creates the configured sinks. The hub is returned separately so
// the HTTP server can stream from it.
func buildSinks(ctx context.Context, cfg config.BroadcastConfig, pool *pgxpool.Pool, logger *slog.Logger) (broadcast.Sink, *broadcast.Hub, error) {
	var (
		sinks broadcast.Multi
		hub   *broadcast.Hub
	)
	for _, name := range cfg.Sinks {
		switch name {
		case "hub":
			hub = broadcast.NewHub(broadcast.DefaultHubConfig(), logger)
			sinks = append(sinks, hub)
		case "redis":
			rs, err := broadcast.NewRedisSink(ctx, cfg.Redis)
			if err != nil {
				sinks.Close()
				return nil, nil, err
			}
			sinks = append(sinks, rs)
		case "kafka":
			sinks = append(sinks, broadcast.NewKafkaSink(cfg.Kafka))
		case "postgres":
			if pool == nil {
				sinks.Close()
				return nil, nil, errors.New("postgres sink requires a database connection")
			}
			if err := writer.Migrate(ctx, pool); err != nil {
				sinks.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			w := writer.New(cfg.Postgres, pool, logger)
			w.Start(ctx)
			sinks = append(sinks, w)
		default:
			sinks.Close()
			return nil, nil, fmt.Errorf("unknown sink %q", name)
		}
		logger.Info("broadcast sink enabled", "sink", name)
	}

	switch len(sinks) {
	case 0:
		return nil, nil, nil
	case 1:
		return sinks[0], hub, nil
	default:
		return sinks, hub, nil
	}
}
