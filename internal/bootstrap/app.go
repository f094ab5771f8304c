package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/asepsopiyan/keris-lite/internal/ai"
	appsvc "github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/cache"
	"github.com/asepsopiyan/keris-lite/internal/config"
	mysqlClient "github.com/asepsopiyan/keris-lite/internal/platform/mysql"
	rabbitmqClient "github.com/asepsopiyan/keris-lite/internal/platform/rabbitmq"
	redisClient "github.com/asepsopiyan/keris-lite/internal/platform/redis"
	"github.com/asepsopiyan/keris-lite/internal/repository"
	"github.com/asepsopiyan/keris-lite/internal/vectorstore"
	"github.com/asepsopiyan/keris-lite/internal/worker"
)

type Options struct {
	// StartWorker consumes the ingest queue in this process. Only honoured
	// when RabbitMQ is enabled.
	StartWorker bool
}

type App struct {
	Config *config.Config
	Logger *slog.Logger

	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Store     vectorstore.Gateway
	Embedder  *ai.Provider
	Generator ai.Generator
	Cache     *cache.EmbeddingCache
	Records   *repository.IngestRecordRepository
	Publisher *rabbitmqClient.IngestJobPublisher

	Ingest *appsvc.IngestService
	RAG    *appsvc.RAGService
	Auth   *appsvc.AuthService

	IngestWorker *worker.IngestJobWorker

	StartedAt time.Time
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, opts)
}

// NewWithConfig builds the application from an already loaded config. On
// error every resource opened so far is closed.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	logger := NewLogger(cfg.App.Env)
	slog.SetDefault(logger)

	app = &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if cfg.MySQL.Enabled {
		app.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return app, err
		}
		if err = mysqlClient.Migrate(app.MySQL); err != nil {
			return app, err
		}
		app.Records = repository.NewIngestRecordRepository(app.MySQL)
	}

	providerOpts := []ai.ProviderOption{ai.WithLogger(logger)}
	if cfg.Redis.Enabled {
		app.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return app, err
		}
		app.Cache = cache.NewEmbeddingCache(app.Redis, time.Duration(cfg.Redis.EmbeddingTTLSeconds)*time.Second)
		providerOpts = append(providerOpts, ai.WithCache(app.Cache))
	}

	backend, generator, err := ai.NewBackends(cfg.LLM)
	if err != nil {
		return app, err
	}
	app.Embedder = ai.NewProviderFromConfig(cfg.LLM, backend, providerOpts...)
	app.Generator = generator

	app.Store, err = vectorstore.New(cfg, logger)
	if err != nil {
		return app, err
	}

	ingestOpts := appsvc.IngestOptions{
		ChunkSize:    cfg.Chunker.Size,
		ChunkOverlap: cfg.Chunker.Overlap,
		Extensions:   cfg.Ingest.Extensions,
		Logger:       logger.With("component", "ingest"),
	}
	if app.Records != nil {
		ingestOpts.Ledger = app.Records
	}
	app.Ingest = appsvc.NewIngestService(app.Embedder, app.Store, ingestOpts)
	app.RAG = appsvc.NewRAGService(app.Embedder, app.Store, generator, appsvc.RetrievalOptions{
		Limit:           cfg.Retrieval.Limit,
		ScoreThreshold:  cfg.Retrieval.ScoreThreshold,
		Language:        cfg.Retrieval.Language,
		NoResultsAnswer: cfg.Retrieval.NoResultsAnswer,
		Logger:          logger.With("component", "retrieval"),
	})
	app.Auth = appsvc.NewAuthService(
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPasswordHash,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)

	if cfg.RabbitMQ.Enabled {
		app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return app, err
		}
		app.Publisher = rabbitmqClient.NewIngestJobPublisher(app.MQConn, cfg.RabbitMQ.IngestQueue)
		if opts.StartWorker {
			app.IngestWorker = worker.NewIngestJobWorker(app.MQConn, app.Ingest, cfg.RabbitMQ.IngestQueue, cfg.Ingest.Dir, logger)
			if err = app.IngestWorker.Start(ctx); err != nil {
				return app, fmt.Errorf("start ingest worker failed: %w", err)
			}
		}
	}

	logger.Info("application ready",
		"env", cfg.App.Env,
		"llm_provider", cfg.LLM.Provider,
		"vector_store", cfg.VectorStore.Type,
		"collection", app.Store.Collection(),
		"mysql", cfg.MySQL.Enabled,
		"redis", cfg.Redis.Enabled,
		"rabbitmq", cfg.RabbitMQ.Enabled,
	)
	return app, nil
}

// NewLogger writes text logs in dev and JSON everywhere else.
func NewLogger(env string) *slog.Logger {
	if strings.EqualFold(env, "dev") {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
