package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/frerescollection/shopbot/internal/agent/dialog"
	"github.com/frerescollection/shopbot/internal/agent/graph"
	"github.com/frerescollection/shopbot/internal/agent/graph/conversations"
	"github.com/frerescollection/shopbot/internal/agent/graph/nodes"
	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/agent/repo"
	"github.com/frerescollection/shopbot/internal/httpapi"
	"github.com/frerescollection/shopbot/internal/messenger"
	"github.com/frerescollection/shopbot/internal/metrics"
	"github.com/frerescollection/shopbot/internal/ratelimit"
	"github.com/frerescollection/shopbot/internal/shop/analytics"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
	"github.com/frerescollection/shopbot/internal/shop/checkout"
	"github.com/frerescollection/shopbot/internal/shop/inventory"
	firestorestore "github.com/frerescollection/shopbot/internal/shop/store/firestore"
	"github.com/frerescollection/shopbot/internal/shop/store/memory"
	"github.com/frerescollection/shopbot/internal/shop/store/sqlstore"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	pkgredis "github.com/frerescollection/shopbot/pkg/redis"
)

// AppConfig defines all configurable parameters of the bot, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	App model.AppConfig

	// Infrastructure
	Redis pkgredis.Config
	Store model.StoreConfig

	// Channels
	Messenger model.MessengerConfig
	Oracle    model.OracleConfig
	Analytics model.AnalyticsConfig

	// Conversation
	Session   model.SessionConfig
	RateLimit model.RateLimitConfig
	Catalog   model.CatalogConfig
	Business  model.BusinessConfig
}

// resources collects everything that must be closed on shutdown.
type resources struct {
	closers []io.Closer
	redis   *goredis.Client
}

func (r *resources) add(c io.Closer) {
	r.closers = append(r.closers, c)
}

func (r *resources) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i].Close())
	}
	return err
}

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Could not load .env file: %v\n", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.App.Environment, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("bot stopped")
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	res := &resources{}
	defer func() {
		if err := res.Close(); err != nil {
			logx.Error().Err(err).Msg("error releasing resources")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	botMetrics := metrics.New(registry)

	store, err := buildStore(ctx, cfg, res)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	sessionRepo, err := buildSessionRepository(ctx, cfg, store, res)
	if err != nil {
		return fmt.Errorf("build session repository: %w", err)
	}
	limiter, err := buildLimiter(ctx, cfg, res)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}
	sink, err := buildAnalyticsSink(ctx, cfg, store, res)
	if err != nil {
		return fmt.Errorf("build analytics sink: %w", err)
	}

	events := analytics.NewRecorder(sink, analytics.WithTimeout(cfg.Store.Timeout))
	cache := catalog.New(store, cfg.Catalog.TTL)
	inv := inventory.NewEngine(store, cache,
		inventory.WithLowStockThreshold(cfg.Catalog.LowStockThreshold),
		inventory.WithMetrics(botMetrics),
	)
	engine := dialog.NewEngine(dialog.Dependencies{
		Catalog:   cache,
		Users:     store,
		Orders:    store,
		Inventory: inv,
		Finalizer: checkout.NewFinalizer(inv, store, checkout.WithRecorder(events)),
		Events:    events,
	},
		dialog.WithBusiness(cfg.Business),
		dialog.WithNewProductDays(cfg.Catalog.NewProductDays),
		dialog.WithTimeout(cfg.Store.Timeout),
	)
	var sessionOpts []conversations.Option
	if cfg.Session.Backend == "redis" || cfg.Session.Backend == "firestore" {
		sessionOpts = append(sessionOpts, conversations.WithSharedRepository())
	}
	sessions := conversations.NewSessionManager(sessionRepo, cfg.Session, sessionOpts...)

	graphCfg := graph.Config{
		Limiter:        limiter,
		Sessions:       sessions,
		Dialog:         engine,
		Catalog:        cache,
		Events:         events,
		Metrics:        botMetrics,
		Business:       cfg.Business,
		OracleModel:    cfg.Oracle.Model,
		CatalogExcerpt: cfg.Oracle.CatalogExcerpt,
	}
	if cfg.Messenger.PageAccessToken != "" {
		client, err := messenger.NewClient(cfg.Messenger)
		if err != nil {
			return fmt.Errorf("build messenger client: %w", err)
		}
		graphCfg.Messenger = client
	} else {
		logx.Warn().Msg("PAGE_ACCESS_TOKEN not set; replies are not delivered")
	}
	graphCfg.Oracle, err = buildOracle(ctx, cfg.Oracle, botMetrics)
	if err != nil {
		return fmt.Errorf("build oracle: %w", err)
	}

	runner, err := graph.Build(ctx, graphCfg)
	if err != nil {
		return fmt.Errorf("build turn graph: %w", err)
	}

	go sweepSessions(ctx, sessions, limiter, cfg.Session.SweepInterval)

	srv := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			Turns:     runner,
			Messenger: cfg.Messenger,
			Gatherer:  registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().
			Str("addr", srv.Addr).
			Str("environment", cfg.App.Environment.String()).
			Str("store", cfg.Store.Backend).
			Str("sessions", cfg.Session.Backend).
			Str("rate_limit", cfg.RateLimit.Backend).
			Str("analytics", cfg.Analytics.Sink).
			Bool("oracle", graphCfg.Oracle != nil).
			Msg("bot listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func buildStore(ctx context.Context, cfg AppConfig, res *resources) (model.Store, error) {
	switch cfg.Store.Backend {
	case "firestore":
		s, err := firestorestore.NewStore(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, err
		}
		res.add(s)
		return s, nil
	case "postgres", "sqlite":
		s, err := sqlstore.Open(ctx, cfg.Store.Backend, cfg.Store.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		res.add(s)
		return s, nil
	case "memory", "":
		logx.Warn().Msg("using in-memory store with the demo catalog; data is lost on restart")
		return memory.NewStore(demoCatalog()...), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
}

func buildSessionRepository(ctx context.Context, cfg AppConfig, store model.Store, res *resources) (model.SessionRepository, error) {
	idle := cfg.Session.IdleTimeout
	switch cfg.Session.Backend {
	case "redis":
		rdb, err := res.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repo.NewRedisSessionRepository(rdb, idle), nil
	case "firestore":
		fs, ok := store.(*firestorestore.Store)
		if !ok {
			return nil, errors.New("SESSION_BACKEND=firestore requires STORE_BACKEND=firestore")
		}
		return repo.NewFirestoreSessionRepository(fs.Client(), idle), nil
	case "memory", "":
		return repo.NewMemorySessionRepository(idle), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.Session.Backend)
	}
}

func buildLimiter(ctx context.Context, cfg AppConfig, res *resources) (ratelimit.Limiter, error) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case "redis":
		rdb, err := res.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewRedisWindow(rdb, rl.Messages, rl.Window), nil
	case "memory", "":
		return ratelimit.NewWindow(rl.Messages, rl.Window), nil
	default:
		return nil, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", rl.Backend)
	}
}

func buildAnalyticsSink(ctx context.Context, cfg AppConfig, store model.Store, res *resources) (model.AnalyticsSink, error) {
	a := cfg.Analytics
	switch a.Sink {
	case "kafka":
		if len(a.KafkaBrokers) == 0 {
			return nil, errors.New("ANALYTICS_SINK=kafka requires KAFKA_BROKERS")
		}
		k := analytics.NewKafkaSink(a.KafkaBrokers, a.KafkaTopic)
		res.add(k)
		return k, nil
	case "pubsub":
		p, err := analytics.NewPubSubSink(ctx, a.PubSubProjectID, a.PubSubTopic)
		if err != nil {
			return nil, err
		}
		res.add(p)
		return p, nil
	case "log":
		return analytics.LogSink{}, nil
	case "store", "":
		return store, nil
	default:
		return nil, fmt.Errorf("unknown ANALYTICS_SINK %q", a.Sink)
	}
}

func buildOracle(ctx context.Context, cfg model.OracleConfig, m *metrics.BotMetrics) (einomodel.BaseChatModel, error) {
	if !cfg.Enabled() {
		logx.Warn().Msg("GEMINI_API_KEY not set; unmatched messages get the help text")
		return nil, nil
	}
	chatModel, err := nodes.NewGeminiChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return nodes.NewFallbackModel(chatModel, cfg.Model, cfg.Timeout, m), nil
}

func (r *resources) redisClient(ctx context.Context, cfg pkgredis.Config) (*goredis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	rdb, err := cfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise redis client: %w", err)
	}
	logx.Info().Msg("Connected to Redis successfully")
	r.redis = rdb
	r.add(rdb)
	return rdb, nil
}

func sweepSessions(ctx context.Context, sessions *conversations.SessionManager, limiter ratelimit.Limiter, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p, ok := limiter.(ratelimit.Pruner); ok {
				logx.Debug().Int("forgotten", p.Prune()).Msg("rate limiter sweep")
			}
			n, err := sessions.Sweep(ctx)
			if err != nil {
				logx.Error().Err(err).Msg("session sweep failed")
				continue
			}
			logx.Debug().Int("removed", n).Int("active", sessions.Active()).Msg("session sweep")
		}
	}
}

func demoCatalog() []model.Product {
	return []model.Product{
		{ID: "101", Name: "Blusa de lino blanca", Price: decimal.NewFromInt(349), Stock: 12, Category: "Blusas"},
		{ID: "102", Name: "Blusa de seda rosa", Price: decimal.NewFromInt(520), Stock: 4, Category: "Blusas", DiscountPercent: 15},
		{ID: "201", Name: "Falda plisada negra", Price: decimal.NewFromInt(410), Stock: 7, Category: "Faldas"},
		{ID: "301", Name: "Vestido floral midi", Price: decimal.NewFromInt(780), Stock: 3, Category: "Vestidos", OnSale: true},
		{ID: "302", Name: "Vestido rojo de noche", Price: decimal.NewFromInt(1250), Stock: 0, Category: "Vestidos"},
	}
}
