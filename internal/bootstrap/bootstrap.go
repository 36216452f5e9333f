// Package bootstrap selects and wires the backend implementations for
// both the API and worker roles based on configuration: S3 or in-memory
// blobs, Postgres or in-memory job records, Redis or in-process queue,
// bus and upload sessions.
package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	// Registers the pgx driver under database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clipforge/clipforge-api/internal/blob"
	"github.com/clipforge/clipforge-api/internal/config"
	"github.com/clipforge/clipforge-api/internal/job"
	"github.com/clipforge/clipforge-api/internal/media"
	"github.com/clipforge/clipforge-api/internal/openai"
	"github.com/clipforge/clipforge-api/internal/overlay"
	"github.com/clipforge/clipforge-api/internal/progress"
	"github.com/clipforge/clipforge-api/internal/queue"
	"github.com/clipforge/clipforge-api/internal/renderfarm"
	"github.com/clipforge/clipforge-api/internal/upload"
	"github.com/clipforge/clipforge-api/internal/worker"
)

// Dependencies holds all initialized dependencies for both roles.
type Dependencies struct {
	Store       blob.Store
	Jobs        job.Repository
	Queue       queue.Queue
	Bus         progress.Bus
	Prober      media.Prober
	Coordinator *upload.Coordinator
	Worker      *worker.Worker

	db          *sql.DB
	redisClient *redis.Client
}

// Close releases the backend connections held by the dependency graph.
func (d *Dependencies) Close() error {
	var firstErr error
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			firstErr = err
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewDependencies creates and initializes all dependencies for the
// application. Backends without configuration fall back to in-process
// implementations, which only make sense for single-process deployments
// and tests; each fallback is logged.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	store, err := initBlobStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Store = store

	if cfg.RedisEnabled() {
		deps.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		logger.Info("redis backends configured", slog.String("addr", cfg.RedisAddr))
	} else {
		logger.Warn("REDIS_ADDR not set, using in-process queue, bus and sessions")
	}

	jobs, db, err := initJobRepository(cfg, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Jobs = jobs
	deps.db = db

	var sessions upload.SessionStore
	if deps.redisClient != nil {
		deps.Queue = queue.NewRedisQueue(deps.redisClient, "")
		deps.Bus = progress.NewRedisBus(deps.redisClient, logger)
		sessions = upload.NewRedisSessionStore(deps.redisClient)
	} else {
		deps.Queue = queue.NewMemoryQueue(0)
		deps.Bus = progress.NewMemoryBus()
		sessions = upload.NewMemorySessionStore()
	}

	deps.Prober = media.NewFFprobe(cfg.FFprobePath)

	deps.Coordinator = upload.NewCoordinator(
		deps.Store, sessions, deps.Jobs, deps.Queue, deps.Bus, deps.Prober,
		cfg.PresignTTL, logger,
	)

	w, err := initWorker(cfg, deps, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Worker = w

	return deps, nil
}

// initBlobStore creates the S3 store when a bucket is configured, the
// in-memory store otherwise.
func initBlobStore(cfg *config.Config, logger *slog.Logger) (blob.Store, error) {
	if !cfg.S3Enabled() {
		logger.Warn("S3_BUCKET not set, using in-memory blob store")
		return blob.NewMemoryStore(), nil
	}

	store, err := blob.NewS3Store(blob.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		PathStyle:       cfg.S3PathStyle,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 blob store: %w", err)
	}
	logger.Info("S3 blob store configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return store, nil
}

// initJobRepository creates the Postgres repository, running embedded
// migrations, when a database URL is configured.
func initJobRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, *sql.DB, error) {
	if !cfg.PostgresEnabled() {
		logger.Warn("DATABASE_URL not set, using in-memory job repository")
		return job.NewMemoryRepository(), nil, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := job.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("postgres job repository configured")
	return job.NewPostgresRepository(db), db, nil
}

// initWorker wires the render processors and the overlay resolver into a
// worker instance.
func initWorker(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*worker.Worker, error) {
	local := media.NewFFmpegProcessor(cfg.FFmpegPath)

	var remote media.Processor
	if cfg.RenderFarmEndpoint != "" {
		client, err := renderfarm.NewClient(cfg.RenderFarmEndpoint, renderfarm.WithAPIKey(cfg.RenderFarmAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create render farm client: %w", err)
		}
		remote = media.NewRemoteProcessor(client, cfg.RenderFarmPollInterval, logger)
		logger.Info("render farm configured", slog.String("endpoint", cfg.RenderFarmEndpoint))
	}

	var generator overlay.Generator
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(
			openai.WithAPIKey(cfg.OpenAIAPIKey),
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create language model client: %w", err)
		}
		generator = client
		logger.Info("variation generator configured", slog.String("model", cfg.OpenAIModel))
	} else {
		logger.Warn("OPENAI_API_KEY not set, base_vary strategy replicates base text")
	}

	return worker.New(
		deps.Jobs, deps.Store, deps.Queue, deps.Bus, deps.Prober,
		local, remote,
		overlay.NewResolver(generator, logger),
		worker.Config{
			ScratchRoot:    cfg.ScratchDir,
			SegmentTimeout: cfg.SegmentTimeout(),
			MaxAttempts:    cfg.MaxAttempts,
			RetryBaseDelay: cfg.RetryBaseDelay,
			PollInterval:   cfg.QueuePollInterval,
			Concurrency:    cfg.WorkerConcurrency,
			Style:          cfg.OverlayStyle(),
		},
		logger,
	), nil
}
