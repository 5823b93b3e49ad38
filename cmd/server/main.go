package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baxromumarov/jobradar/internal/ai"
	"github.com/baxromumarov/jobradar/internal/api"
	"github.com/baxromumarov/jobradar/internal/cache"
	"github.com/baxromumarov/jobradar/internal/config"
	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/cron"
	"github.com/baxromumarov/jobradar/internal/extract"
	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/notify"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/quota"
	"github.com/baxromumarov/jobradar/internal/scraper"
	"github.com/baxromumarov/jobradar/internal/store"
	"github.com/baxromumarov/jobradar/internal/tasks"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logs := observability.NewLogBuffer(observability.DefaultLogCapacity)
	slog.SetDefault(newLogger(cfg.Log, os.Stdout, logs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, pinger, closeBackend, err := openBackend(cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	scheduler := cron.New()

	var tracker quota.Tracker
	if rdb != nil {
		tracker = quota.NewRedisTracker(rdb, cfg.Quota)
	} else {
		mem := quota.NewMemoryTracker(cfg.Quota)
		if err := mem.Refresh(ctx, backend); err != nil {
			slog.Warn("initial quota refresh failed", "error", err)
		}
		must(scheduler.Add(cfg.Alerts.QuotaRefresh, cron.QuotaRefreshJob(mem, backend)))
		tracker = mem
	}

	var searchCache core.SearchCache
	if rdb != nil {
		searchCache = cache.NewRedisCache(rdb, cfg.Redis.SearchTTL)
	} else {
		mc := cache.NewMemoryCache(cfg.Redis.SearchTTL)
		must(scheduler.Add("@every 5m", cron.CacheSweepJob(mc)))
		searchCache = mc
	}

	usage := quota.NewRecorder(backend, 0)
	defer usage.Close()
	fallback := extract.New(ai.NewClient(cfg.AI), tracker, usage)

	registry, err := buildRegistry(cfg.Sources, fallback)
	if err != nil {
		slog.Error("failed to register sources", "error", err)
		os.Exit(1)
	}

	agg := core.NewAggregator(registry).
		WithCache(searchCache).
		WithSink(backend).
		WithLimits(cfg.Aggregator.Concurrency, cfg.Aggregator.Deadline)
	scorer := core.NewScorer(agg, backend).WithPasses(cfg.Aggregator.TopSkills, cfg.Aggregator.MaxPasses)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	}
	alerts := core.NewAlertRunner(backend, agg, notifier, cfg.Alerts.Recipient)

	polite := httpx.NewPoliteClient(cfg.Sources.UserAgent, cfg.Alerts.EnrichTimeout)
	enricher := core.NewEnricher(backend, backend, polite, fallback)

	runner := tasks.NewRunner(tasks.NewMemoryRegistry(), cfg.Tasks.Workers)
	syncer := core.NewSyncService(registry, backend, runner)

	must(scheduler.Add(cfg.Alerts.RetentionCron, cron.RetentionJob(backend, cfg.Alerts.Retention)))
	if cfg.Alerts.CronEnabled {
		must(scheduler.Add(cfg.Alerts.RunSchedule, cron.AlertJob(alerts)))
	}
	scheduler.Start()

	srv := api.NewServer(api.Deps{
		Search:      agg,
		SmartSearch: scorer,
		Alerts:      backend,
		Runner:      alerts,
		Enricher:    enricher,
		Sync:        syncer,
		Tasks:       runner.Registry(),
		Extraction:  fallback,
		Sources:     registry,
		Resumes:     backend,
		DB:          pinger,
		Logs:        logs,
		CronSecret:  cfg.Server.CronSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server", "port", cfg.Server.Port, "sources", registry.Names())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		slog.Error("cron shutdown", "error", err)
	}
	if err := runner.Close(shutdownCtx); err != nil {
		slog.Error("task runner shutdown", "error", err)
	}
}

// newLogger writes to w and keeps recent records in logs for /api/logs.
func newLogger(cfg config.LogConfig, w io.Writer, logs *observability.LogBuffer) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(logs.Wrap(h))
}

// openBackend returns Postgres when a URL is configured and the in-memory
// store otherwise. The pinger is nil for the memory store.
func openBackend(cfg config.DatabaseConfig) (store.Backend, api.Pinger, func(), error) {
	if cfg.URL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil, func() {}, nil
	}

	dbStore, err := store.NewStore(cfg.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := dbStore.RunMigrations(cfg.SchemaPath); err != nil {
			dbStore.Close()
			return nil, nil, nil, err
		}
	}
	return dbStore, dbStore, func() { dbStore.Close() }, nil
}

// buildRegistry registers adapters in fan-out priority order. Keyed APIs
// are skipped when their credentials are missing.
func buildRegistry(cfg config.SourcesConfig, fallback scraper.Extractor) (*scraper.Registry, error) {
	client := &http.Client{Timeout: 20 * time.Second}
	fetcher := httpx.NewCollyFetcher(cfg.UserAgent).WithTimeout(45 * time.Second).WithAttempts(3)
	fetcher.SetHostLimit("vagas.com.br", 3*time.Second, 1)
	fetcher.SetHostLimit("geekhunter.com.br", 2*time.Second, 1)

	all := []scraper.Adapter{
		scraper.NewRemotiveScraper(client),
		scraper.NewRemoteOKScraper(client),
	}
	if cfg.AdzunaAppID != "" && cfg.AdzunaAppKey != "" {
		all = append(all, scraper.NewAdzunaScraper(client, cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry))
	} else {
		slog.Info("adzuna disabled, ADZUNA_APP_ID/ADZUNA_APP_KEY not set")
	}
	if cfg.ITJobsAPIKey != "" {
		all = append(all, scraper.NewITJobsScraper(client, cfg.ITJobsAPIKey))
	} else {
		slog.Info("itjobs disabled, ITJOBS_API_KEY not set")
	}
	all = append(all,
		scraper.NewWWRScraper(fetcher, fallback),
		scraper.NewGeekHunterScraper(fetcher, fallback),
		scraper.NewVagasScraper(fetcher, fallback),
	)

	enabled := map[string]bool{}
	for _, name := range cfg.Enabled {
		enabled[strings.ToLower(name)] = true
	}
	registry, err := scraper.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if len(enabled) > 0 && !enabled[a.Name()] {
			continue
		}
		if err := registry.Register(a); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func must(err error) {
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
}
