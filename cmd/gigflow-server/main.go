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

	"go.uber.org/zap"

	"gigflow/internal/api"
	"gigflow/internal/common/auth"
	"gigflow/internal/common/aws"
	"gigflow/internal/common/camunda"
	"gigflow/internal/common/config"
	"gigflow/internal/common/database"
	commonhttp "gigflow/internal/common/http"
	"gigflow/internal/common/logger"
	"gigflow/internal/common/observability"
	"gigflow/internal/marketplace"
	"gigflow/internal/notify"
	"gigflow/internal/search"
	"gigflow/internal/storage"
	"gigflow/internal/storage/memory"
	"gigflow/internal/storage/postgres"
	"gigflow/pkg/registry"

	hp "gigflow/internal/workers/bidding/hire-proposal"
	sp "gigflow/internal/workers/bidding/submit-proposal"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewFromConfig(cfg.Logging)
	defer zapLog.Sync() //nolint:errcheck
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting gigflow server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, cfg.App.Name)
	if err != nil {
		zapLog.Fatal("tracing init failed", zap.Error(err))
	}
	obs := observability.New(cfg.App.Name, zapLog)

	// Record store.
	var (
		store storage.Store
		pg    *database.PostgresClient
	)
	switch cfg.Database.Driver {
	case "memory":
		store = memory.New()
		zapLog.Warn("Using in-memory store; data is lost on restart")
	default:
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			return nil
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		if cfg.Database.Postgres.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				zapLog.Fatal("schema migration failed", zap.Error(err))
			}
			zapLog.Info("Schema migrated")
		}
		store = postgres.New(pg.DB, config.GetDuration(cfg.Hiring.LockTimeout))
	}

	// Notification fan-out.
	subscribers := notify.NewRegistry(cfg.Notifications.SubscriberBuffer, log)

	var redis *database.RedisClient
	if cfg.Database.Redis.Enabled {
		redis = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")

		bus := notify.NewRedisBus(redis.Client, cfg.Notifications.Channel, subscribers, log)
		go func() {
			if err := bus.Run(ctx); err != nil {
				zapLog.Error("notification bus stopped", zap.Error(err))
			}
		}()
	}

	var topic notify.TopicPublisher
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.SNS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		topic = snsClient
		zapLog.Info("SNS mirror enabled", zap.String("topicArn", cfg.Notifications.SNS.TopicARN))
	}

	dispatcherCfg := notify.DispatcherConfig{
		Channel:        cfg.Notifications.Channel,
		PublishTimeout: config.GetDuration(cfg.Notifications.PublishTimeout),
		TopicARN:       cfg.Notifications.SNS.TopicARN,
	}
	var dispatcher *notify.Dispatcher
	if redis != nil {
		dispatcher = notify.NewDispatcher(dispatcherCfg, subscribers, redis.Client, topic, log)
	} else {
		dispatcher = notify.NewDispatcher(dispatcherCfg, subscribers, nil, topic, log)
	}

	// Title search.
	var index marketplace.TaskIndex
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		taskIndex := search.NewTaskIndex(esClient.Client, cfg.Database.Elasticsearch.TaskIndex)
		if err := taskIndex.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("task index setup failed", zap.Error(err))
		}
		index = taskIndex
		zapLog.Info("Elasticsearch connected successfully")
	}

	service := marketplace.NewService(
		&marketplace.Config{TransactionTimeout: config.GetDuration(cfg.Hiring.TransactionTimeout)},
		store, dispatcher, index, log,
	)

	// Caller identity.
	var resolver auth.Resolver
	switch cfg.Auth.Mode {
	case "keycloak":
		resolver = auth.NewKeycloakResolver(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
			config.GetDuration(cfg.Auth.Keycloak.CacheTTL),
			commonhttp.NewClient(10*time.Second),
		)
	default:
		resolver = auth.NewHeaderResolver(cfg.Auth.IdentityHeader)
	}

	// Workflow job workers.
	var workers []*camunda.Worker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(ctx, cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		zapLog.Info("Zeebe client connected successfully")

		submit := sp.NewHandler(&sp.Config{Timeout: config.GetDuration(config.GetWorkerConfig(cfg, sp.TaskType).Timeout)}, service, log)
		hire := hp.NewHandler(&hp.Config{Timeout: config.GetDuration(config.GetWorkerConfig(cfg, hp.TaskType).Timeout)}, service, log)
		handlers := map[string]camunda.JobHandlerFunc{
			sp.TaskType: submit.Handle,
			hp.TaskType: hire.Handle,
		}

		activities := registry.Bidding()
		for _, activity := range activities.Activities {
			handle, ok := handlers[activity.TaskType]
			if !ok {
				zapLog.Fatal("no handler for registered activity", zap.String("taskType", activity.TaskType))
			}
			w := camunda.StartWorker(zeebe.GetClient(), activity.TaskType, config.GetWorkerConfig(cfg, activity.TaskType), handle, zapLog)
			workers = append(workers, w)
			zapLog.Debug("activity registered",
				zap.String("taskType", activity.TaskType),
				zap.Strings("errorCodes", activity.ErrorCodes),
			)
		}
	}

	ready := func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	server := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewServer(api.Deps{
			Service:        service,
			Auth:           resolver,
			Registry:       subscribers,
			Observability:  obs,
			Logger:         log,
			Ready:          ready,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}).Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	service.WaitNotifications()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("metrics shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zapLog.Warn("tracing shutdown failed", zap.Error(err))
	}

	zapLog.Info("Shutdown complete")
}
