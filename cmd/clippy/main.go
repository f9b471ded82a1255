package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nidhogg/clippy/internal/agent"
	"github.com/nidhogg/clippy/internal/api"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/classify"
	"github.com/nidhogg/clippy/internal/config"
	"github.com/nidhogg/clippy/internal/embedding"
	"github.com/nidhogg/clippy/internal/gate"
	"github.com/nidhogg/clippy/internal/gateway"
	"github.com/nidhogg/clippy/internal/metrics"
	"github.com/nidhogg/clippy/internal/orchestrator"
	"github.com/nidhogg/clippy/internal/provider"
	"github.com/nidhogg/clippy/internal/recall"
	"github.com/nidhogg/clippy/internal/router"
	"github.com/nidhogg/clippy/internal/search"
	"github.com/nidhogg/clippy/internal/store"
	"github.com/nidhogg/clippy/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/clippy.json"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.String("path", cfgPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Providers
	providers := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		pcfg := provider.ProviderConfig{
			ID:       pc.ID,
			Type:     pc.Type,
			Name:     pc.Name,
			Endpoint: pc.Endpoint,
			APIKey:   pc.APIKey,
			Models:   pc.Models,
			Extra:    pc.Extra,
			Timeout:  time.Duration(pc.TimeoutSec) * time.Second,
		}
		switch pc.Type {
		case "openai", "openrouter":
			providers.Register(provider.NewOpenAIProvider(pcfg, logger))
		case "anthropic":
			providers.Register(provider.NewAnthropicProvider(pcfg, logger))
		default:
			logger.Warn("unknown provider type, skipping", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if !providers.Empty() {
		if cfg.Routing.Default != "" {
			providers.SetDefault(cfg.Routing.Default)
		}
		for purpose, id := range cfg.Routing.Bindings {
			providers.Bind(purpose, id)
		}
		for purpose, ids := range cfg.Routing.Fallbacks {
			providers.SetFallbacks(purpose, ids)
		}
	}

	// Context store
	ctxStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open context store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer ctxStore.Close()

	// Sinks
	overlay := gateway.NewOverlayFeed(logger)
	gw := gateway.NewGateway(logger)
	gw.Register(overlay)

	var control *gateway.RedisControl
	if cfg.Gateway.Redis.Enabled {
		rdb, err := gateway.NewRedisClient(ctx, cfg.Database.Redis.URL)
		if err != nil {
			logger.Warn("Redis unavailable, stream sink disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			gw.Register(gateway.NewRedisSink(rdb, logger))
			control = gateway.NewRedisControl(rdb, logger)
		}
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackSink(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.Channel, logger))
	}
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordSink(cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.ChannelID, logger))
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some sinks failed to connect", zap.Error(err))
	}
	defer gw.Close()

	reg := metrics.New()

	// Recall
	var recaller *recall.Recaller
	if cfg.Recall.Enabled && !providers.Empty() {
		recaller, err = openRecall(ctx, cfg, providers, logger)
		if err != nil {
			logger.Warn("recall unavailable", zap.Error(err))
			recaller = nil
		}
	}

	deps := api.Deps{
		Overlay:   overlay,
		Gateway:   gw,
		Store:     ctxStore,
		Providers: providers,
		Metrics:   reg,
	}
	if recaller != nil {
		deps.Recall = recaller
	}

	// Monitor
	var monitor *orchestrator.Monitor
	if cfg.HasCredentials() && !providers.Empty() {
		monitor, err = newMonitor(cfg, providers, ctxStore, gw, recaller, reg, logger)
		if err != nil {
			logger.Fatal("failed to build monitor", zap.Error(err))
		}
		deps.Monitor = monitor
	} else {
		logger.Warn("no provider credentials configured, monitoring disabled")
	}

	handler := api.NewHandler(deps, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Clippy listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if monitor != nil {
		g.Go(func() error { return monitor.Run(gctx) })
		if control != nil {
			g.Go(func() error {
				monitor.Consume(gctx, control.Subscribe(gctx))
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
	logger.Info("Clippy stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func openStore(ctx context.Context, db config.DatabaseConfig, logger *zap.Logger) (store.ContextStore, error) {
	switch db.Driver {
	case "sqlite":
		return store.NewSQLite(db.SQLite.Path, logger)
	case "postgres":
		pg, err := store.NewPostgres(ctx, db.Postgres.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return store.NewMemory(), nil
	}
}

func openRecall(ctx context.Context, cfg *config.Config, chat recall.Chatter, logger *zap.Logger) (*recall.Recaller, error) {
	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, err
	}
	collection := cfg.Database.Qdrant.Collection
	if collection == "" {
		collection = vectorstore.DefaultCollection
	}
	index, err := vectorstore.NewClient(vectorstore.QdrantConfig{
		Host:       cfg.Database.Qdrant.Host,
		Port:       cfg.Database.Qdrant.Port,
		Collection: collection,
	})
	if err != nil {
		return nil, err
	}
	r := recall.New(chat, embedder, index, recall.Config{
		Collection: collection,
		TopK:       cfg.Recall.TopK,
		MinScore:   cfg.Recall.MinScore,
	}, logger)
	if err := r.Init(ctx); err != nil {
		index.Close()
		return nil, err
	}
	logger.Info("recall enabled", zap.String("collection", collection))
	return r, nil
}

func newMonitor(
	cfg *config.Config,
	providers *provider.Router,
	ctxStore store.ContextStore,
	sink gateway.Sink,
	recaller *recall.Recaller,
	reg *metrics.Metrics,
	logger *zap.Logger,
) (*orchestrator.Monitor, error) {
	source, err := openSource(cfg.Capture, logger)
	if err != nil {
		return nil, err
	}

	opts := agent.Options{IdleThreshold: cfg.Pipeline.IdleThreshold()}
	if cfg.Search.Enabled {
		client := search.NewClient(search.Config{
			Endpoint:  cfg.Search.Endpoint,
			Timeout:   10 * time.Second,
			RatePerS:  cfg.Search.RatePerSec,
			CacheTTL:  time.Duration(cfg.Search.CacheTTLMS) * time.Millisecond,
			UserAgent: "clippy",
		}, logger)
		opts.Enricher = agent.NewResourceEnricher(client)
	}
	registry := agent.DefaultRegistry(agent.NewAnalyzer(providers, logger), opts, logger)

	var ropts []router.Option
	if cfg.Pipeline.Strict {
		ropts = append(ropts, router.WithStrictInvariants())
	}
	rt := router.New(classify.New(providers, logger), registry, logger, ropts...)

	deps := orchestrator.Deps{
		Source:  source,
		Batcher: capture.NewBatcher(cfg.Pipeline.FrameBatchSize),
		Router:  rt,
		Gate: gate.New(gate.Config{
			Cooldown:           cfg.Pipeline.SuggestionCooldown(),
			DismissSuppression: cfg.Pipeline.DismissSuppression(),
		}),
		Store:   ctxStore,
		Sink:    sink,
		Metrics: reg,
	}
	if recaller != nil {
		deps.Recall = recaller
	}
	return orchestrator.New(deps, orchestrator.Config{
		FrameInterval:  cfg.Pipeline.FrameInterval(),
		RequestTimeout: cfg.Pipeline.RequestTimeout(),
		SnapshotDir:    cfg.Pipeline.SnapshotDir,
	}, logger), nil
}

func openSource(cc config.CaptureConfig, logger *zap.Logger) (capture.Source, error) {
	switch cc.Source {
	case "command":
		return capture.NewCommandSource(cc.Command, time.Duration(cc.TimeoutMS)*time.Millisecond, logger)
	default:
		return capture.NewDirSource(cc.Dir, logger)
	}
}
