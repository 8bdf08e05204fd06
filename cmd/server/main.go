package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/pulsewatch/internal/alerting"
	"github.com/good-yellow-bee/pulsewatch/internal/api"
	"github.com/good-yellow-bee/pulsewatch/internal/api/health"
	"github.com/good-yellow-bee/pulsewatch/internal/incident"
	"github.com/good-yellow-bee/pulsewatch/internal/ingest"
	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/notifier"
	"github.com/good-yellow-bee/pulsewatch/internal/scheduler"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
	"github.com/good-yellow-bee/pulsewatch/pkg/config"
)

const (
	evalStream    = "pulsewatch:eval"
	evalGroup     = "evaluators"
	evalDLQStream = "pulsewatch:eval:dlq"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pulsewatch-server",
	Short: "PulseWatch Server - observability backend",
	Long: `PulseWatch Server ingests metrics and logs, evaluates alert rules
against stored telemetry, and manages the incident lifecycle.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulsewatch-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}
	cfg.Verbose = verbose

	jwtSecret := os.Getenv("PULSEWATCH_JWT_SECRET")
	if jwtSecret == "" {
		return fmt.Errorf("PULSEWATCH_JWT_SECRET environment variable is required")
	}

	// Metadata store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := store.EnsureAdminUser(os.Getenv("PULSEWATCH_ADMIN_EMAIL"),
		os.Getenv("PULSEWATCH_ADMIN_PASSWORD")); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}
	log.Printf("metadata database initialized at %s", cfg.Database.Path)

	// Telemetry store
	telemetry := storage.NewClickHouseStorage(&storage.ClickHouseConfig{
		Addresses:     cfg.Telemetry.Addresses,
		Database:      cfg.Telemetry.Database,
		Username:      cfg.Telemetry.Username,
		Password:      cfg.Telemetry.Password,
		RetentionDays: cfg.Telemetry.RetentionDays,
	})
	if err := telemetry.Open(); err != nil {
		return fmt.Errorf("open telemetry store: %w", err)
	}
	defer telemetry.Close()
	if err := telemetry.Migrate(); err != nil {
		return fmt.Errorf("migrate telemetry store: %w", err)
	}
	log.Printf("telemetry store connected at %v", cfg.Telemetry.Addresses)

	// Signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Redis: alert state plus the evaluation queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis at %s: %w", cfg.Redis.Addr, err)
	}
	states := storage.NewRedisStateStore(redisClient)

	queue, err := scheduler.NewQueue(ctx, redisClient, evalStream, evalGroup, evalDLQStream)
	if err != nil {
		return fmt.Errorf("create evaluation queue: %w", err)
	}

	// Domain services
	incidents := incident.NewService(store)

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	defer dispatcher.Close()

	evaluator := alerting.NewEvaluator(store, states, telemetry, incidents, dispatcher)
	evaluator.Cadence = cfg.Scheduler.Interval

	sched := scheduler.NewScheduler(store.Rules(), queue, cfg.Scheduler.Interval)

	pool := scheduler.NewWorkerPool(queue, evaluator)
	pool.Workers = cfg.Scheduler.Workers
	if cfg.Scheduler.BatchSize > 0 {
		pool.BatchSize = cfg.Scheduler.BatchSize
	}
	if cfg.Scheduler.MaxAttempts > 0 {
		pool.MaxAttempts = cfg.Scheduler.MaxAttempts
	}

	ingestSvc := ingest.NewService(telemetry, ingest.BufferConfig{
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: cfg.Ingest.FlushInterval,
		MaxSize:       cfg.Ingest.MaxBuffer,
	})
	defer ingestSvc.Stop()

	// HTTP API
	apiServer, err := api.New(api.Config{
		Host:            cfg.API.Host,
		Port:            cfg.API.Port,
		JWTSecret:       jwtSecret,
		RateLimit:       cfg.API.RateLimit,
		RateWindow:      cfg.API.RateWindow,
		LockoutAttempts: cfg.API.LockoutAttempts,
		LockoutDuration: cfg.API.LockoutDuration,
	}, store, telemetry, ingestSvc, incidents)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	apiServer.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	apiServer.RegisterHealthChecker(health.NewClickHouseChecker(telemetry))
	apiServer.RegisterHealthChecker(health.NewRedisChecker(redisClient))

	metricsServer := metrics.NewServer(cfg.Metrics.Addr)
	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Provisioned rules
	if cfg.Rules.File != "" {
		rules, err := alerting.LoadRulesFromFile(cfg.Rules.File)
		if err != nil {
			return fmt.Errorf("load provisioned rules: %w", err)
		}
		if err := alerting.SyncRules(ctx, store.Rules(), rules); err != nil {
			return fmt.Errorf("sync provisioned rules: %w", err)
		}
		log.Printf("provisioned %d rules from %s", len(rules), cfg.Rules.File)
	}

	log.Printf("starting pulsewatch-server %s", config.Version)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return metricsServer.Start() })
	g.Go(func() error {
		<-gctx.Done()
		return metricsServer.Shutdown(context.Background())
	})
	if cfg.Rules.File != "" {
		g.Go(func() error { return alerting.WatchRulesFile(gctx, cfg.Rules.File, store.Rules()) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run server: %w", err)
	}
	evaluator.Wait()

	log.Printf("server stopped")
	return nil
}

func buildDispatcher(cfg *Config) (*notifier.Dispatcher, error) {
	var email notifier.Sender
	if cfg.Notifier.Email.Host != "" {
		sender, err := notifier.NewEmailSender(notifier.EmailConfig{
			Host:     cfg.Notifier.Email.Host,
			Port:     cfg.Notifier.Email.Port,
			Username: cfg.Notifier.Email.Username,
			Password: cfg.Notifier.Email.Password,
			From:     cfg.Notifier.Email.From,
		})
		if err != nil {
			return nil, err
		}
		email = sender
	}

	limits := notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notifier.RatePerWindow,
		Window:       cfg.Notifier.RateWindow,
		Enabled:      cfg.Notifier.RatePerWindow > 0,
	}
	return notifier.NewDispatcher(email, notifier.NewWebhookSender(), limits), nil
}
