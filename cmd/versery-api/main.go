// Command versery-api runs the fulfillment API, the generation worker and the
// operator maintenance tasks.
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/versery-api/internal/config"
	"github.com/jmylchreest/versery-api/internal/crypto"
	"github.com/jmylchreest/versery-api/internal/database"
	"github.com/jmylchreest/versery-api/internal/http/mw"
	"github.com/jmylchreest/versery-api/internal/http/routes"
	"github.com/jmylchreest/versery-api/internal/logging"
	"github.com/jmylchreest/versery-api/internal/queue"
	"github.com/jmylchreest/versery-api/internal/repository"
	"github.com/jmylchreest/versery-api/internal/service"
	"github.com/jmylchreest/versery-api/internal/version"
	"github.com/jmylchreest/versery-api/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	app := &cli.App{
		Name:           "versery-api",
		Usage:          "paid poem and voiceover fulfillment backend",
		Version:        version.Get().String(),
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API (and the worker unless --no-worker)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-worker", Usage: "do not run generation jobs in this process"},
				},
				Action: func(c *cli.Context) error {
					return runServe(c.Context, logger, !c.Bool("no-worker"))
				},
			},
			{
				Name:  "worker",
				Usage: "run the generation worker and background schedules without the HTTP API",
				Action: func(c *cli.Context) error {
					return runWorker(c.Context, logger)
				},
			},
			{
				Name:  "sync-models",
				Usage: "refresh provider model lists once",
				Action: func(c *cli.Context) error {
					return runSyncModels(c.Context, logger)
				},
			},
			{
				Name:  "reconcile",
				Usage: "run one reconciliation sweep",
				Action: func(c *cli.Context) error {
					return runReconcile(c.Context, logger)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations and exit",
				Action: func(c *cli.Context) error {
					return runMigrate(logger)
				},
			},
			{
				Name:  "issue-token",
				Usage: "print an operator token for the admin API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "admin", Usage: "token subject (operator name)"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
				},
				Action: func(c *cli.Context) error {
					return runIssueToken(c.String("subject"), c.Duration("ttl"))
				},
			},
			{
				Name:  "gen-secret",
				Usage: "print a random value for ADMIN_SECRET_KEY",
				Action: func(c *cli.Context) error {
					return runGenSecret()
				},
			},
			{
				Name:  "openapi",
				Usage: "print the OpenAPI document",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Usage: "output file path (default: stdout)"},
					&cli.BoolFlag{Name: "yaml", Usage: "output as YAML instead of JSON"},
					&cli.StringFlag{Name: "base-url", Value: "https://api.versery.ru", Usage: "base URL for the API server"},
				},
				Action: func(c *cli.Context) error {
					return runOpenAPI(c.String("output"), c.Bool("yaml"), c.String("base-url"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// runtime holds what every long-running command needs.
type runtime struct {
	cfg      *config.Config
	db       *sql.DB
	repos    *repository.Repositories
	queue    queue.Queue
	services *service.Services
	logger   *slog.Logger
}

// bootstrap loads configuration, opens the database, applies migrations and
// builds the service graph.
func bootstrap(logger *slog.Logger) (*runtime, error) {
	logger.Info("starting versery-api", "build", version.Get())

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if schemaVersion, applied, err := database.SchemaVersion(db); err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", applied)
	}

	repos := repository.NewRepositories(db)

	q, err := openQueue(cfg, repos, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	services, err := service.NewServices(cfg, repos, q, logger)
	if err != nil {
		_ = q.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		db:       db,
		repos:    repos,
		queue:    q,
		services: services,
		logger:   logger,
	}, nil
}

func (rt *runtime) close() {
	if err := rt.queue.Close(); err != nil {
		rt.logger.Warn("failed to close queue", "error", err)
	}
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("failed to close database", "error", err)
	}
}

func openQueue(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendAMQP:
		q, err := queue.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue, cfg.WorkerConcurrency, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to job queue: %w", err)
		}
		logger.Info("job queue ready", "backend", "amqp", "queue", cfg.AMQPQueue)
		return q, nil
	default:
		logger.Info("job queue ready", "backend", "db", "lease", cfg.WorkerJobLease.String())
		return queue.NewDBQueue(repos.Job, cfg.WorkerJobLease), nil
	}
}

// startBackground starts the worker pool and the scheduled sweeps. The
// returned function stops the pool and waits for running jobs.
func (rt *runtime) startBackground(ctx context.Context) func() {
	jobWorker := worker.New(rt.queue, rt.services.Generation, worker.Config{
		PollInterval: rt.cfg.WorkerPollInterval,
		Concurrency:  rt.cfg.WorkerConcurrency,
	}, rt.logger)
	jobWorker.Start(ctx)

	go rt.services.Reconcile.RunScheduledSweep(ctx, rt.cfg.ReconcileInterval)
	go rt.services.ModelSync.RunScheduledSync(ctx, rt.cfg.ModelSyncHour)
	if rt.cfg.QueueBackend != config.QueueBackendAMQP {
		go rt.services.Cleanup.RunScheduledCleanup(ctx, rt.cfg.JobRetention, rt.cfg.CleanupInterval)
	}
	rt.logger.Info("background schedules started",
		"reconcile_interval", rt.cfg.ReconcileInterval.String(),
		"model_sync_hour", rt.cfg.ModelSyncHour,
	)

	return jobWorker.Stop
}

func runWorker(ctx context.Context, logger *slog.Logger) error {
	rt, err := bootstrap(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	stop := rt.startBackground(ctx)
	<-ctx.Done()
	logger.Info("shutting down worker")
	stop()
	return nil
}

func runSyncModels(ctx context.Context, logger *slog.Logger) error {
	rt, err := bootstrap(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	results, err := rt.services.ModelSync.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("model sync failed: %w", err)
	}
	for _, r := range results {
		logger.Info("provider synced",
			"stage_type", r.StageType,
			"provider", r.Provider,
			"status", r.Status,
			"models", r.Models,
			"auto_reassigned_from", r.AutoReassignedFrom,
			"error", r.Error,
		)
	}
	return nil
}

func runReconcile(ctx context.Context, logger *slog.Logger) error {
	rt, err := bootstrap(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.services.Reconcile.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("reconcile sweep failed: %w", err)
	}
	logger.Info("reconcile sweep finished", "requeued", res.Requeued, "timed_out", res.TimedOut)
	return nil
}

func runMigrate(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	schemaVersion, applied, err := database.SchemaVersion(db)
	if err != nil {
		return err
	}
	logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", applied)
	return nil
}

func runIssueToken(subject string, ttl time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	token, err := mw.IssueAdminToken(cfg.AdminJWTKey, subject, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runGenSecret() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Println(base64.RawURLEncoding.EncodeToString(key))
	return nil
}

// runOpenAPI renders the OpenAPI document from stub handlers; no services or database
// are needed.
func runOpenAPI(outputFile string, asYAML bool, baseURL string) error {
	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(baseURL))
	routes.Register(api, routes.StubHandlers())
	doc := api.OpenAPI()

	var data []byte
	var err error
	if asYAML {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("error marshaling OpenAPI document: %w", err)
	}

	if outputFile == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "OpenAPI document written to %s\n", outputFile)
	return nil
}
