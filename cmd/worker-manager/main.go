// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"finlit-workers/internal/api"
	awsclient "finlit-workers/internal/common/aws"
	"finlit-workers/internal/common/camunda"
	"finlit-workers/internal/common/config"
	"finlit-workers/internal/common/database"
	"finlit-workers/internal/common/genai"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/observability"
	"finlit-workers/internal/common/storage"
	"finlit-workers/internal/orchestrator"
	"finlit-workers/internal/repository"
	"finlit-workers/pkg/registry"

	// Caregiver chat workers
	ac "finlit-workers/internal/workers/ai-conversation/assemble-context"
	ci "finlit-workers/internal/workers/ai-conversation/classify-intent"
	fpd "finlit-workers/internal/workers/ai-conversation/fetch-performance-data"
	llm "finlit-workers/internal/workers/ai-conversation/llm-synthesis"

	// Story workers
	gsa "finlit-workers/internal/workers/story/generate-scene-assets"
	gs "finlit-workers/internal/workers/story/generate-story"
	nsr "finlit-workers/internal/workers/story/notify-story-ready"
	pb "finlit-workers/internal/workers/story/persist-book"
	rc "finlit-workers/internal/workers/story/retrieve-context"
)

// connect retries op with exponential backoff until it succeeds, attempts run out or ctx ends.
func connect(ctx context.Context, name string, attempts uint64, op func() error, log *zap.Logger) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 15 * time.Second

	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx),
		func(err error, next time.Duration) {
			log.Warn(name+" failed, retrying", zap.Error(err), zap.Duration("nextRetryIn", next))
		},
	)
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...", zap.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}
	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		} else {
			obs.WithTracing(tracing)
		}
	}

	// --- Datastores ---
	var pg *database.PostgresClient
	err = connect(ctx, "PostgreSQL connection", 15, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, zapLog)
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	var esClient *database.ElasticsearchClient
	err = connect(ctx, "Elasticsearch connection", 15, func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, zapLog)
	if err != nil {
		zapLog.Fatal("elasticsearch unavailable", zap.Error(err))
	}

	var redis *database.RedisClient
	err = connect(ctx, "Redis connection", 10, func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, zapLog)
	if err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}
	defer redis.Close()

	books := repository.NewBookRepository(pg.DB)
	if err := books.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("books schema", zap.Error(err))
	}

	// --- External services ---
	templates, err := registry.LoadOrDefault(cfg.Templates.Path)
	if err != nil {
		zapLog.Fatal("template registry", zap.Error(err))
	}

	genaiClient := genai.NewClient(genai.Config{
		BaseURL:     cfg.APIs.GenAI.BaseURL,
		APIKey:      cfg.APIs.GenAI.APIKey,
		ChatModel:   cfg.APIs.GenAI.ChatModel,
		ImageModel:  cfg.APIs.GenAI.ImageModel,
		SpeechModel: cfg.APIs.GenAI.SpeechModel,
		Voice:       cfg.APIs.GenAI.Voice,
		MaxTokens:   cfg.APIs.GenAI.MaxTokens,
		Temperature: float32(cfg.APIs.GenAI.Temperature),
		Timeout:     config.GetDuration(cfg.APIs.GenAI.Timeout),
	}, nil)

	var assetStore storage.AssetStore = storage.DataURIStore{}
	if cfg.Assets.Bucket != "" {
		gcs, err := storage.NewGCSStore(ctx, storage.GCSOptions{
			Bucket:          cfg.Assets.Bucket,
			PublicBaseURL:   cfg.Assets.PublicBaseURL,
			CredentialsFile: cfg.Assets.CredentialsFile,
			UploadTimeout:   config.GetDuration(cfg.Assets.TaskTimeout),
		})
		if err != nil {
			zapLog.Fatal("asset bucket", zap.Error(err))
		}
		defer gcs.Close()
		assetStore = gcs
	} else {
		zapLog.Warn("no asset bucket configured, scene assets are returned as data URIs")
	}

	var (
		publisher nsr.EventPublisher
		mailer    nsr.EmailSender
	)
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.Notifications.AWSRegion)
		if err != nil {
			zapLog.Fatal("sns client", zap.Error(err))
		}
		publisher = snsClient
	}
	if cfg.Notifications.SES.Enabled {
		sesClient, err := awsclient.NewSESClient(ctx, cfg.Notifications.AWSRegion)
		if err != nil {
			zapLog.Fatal("ses client", zap.Error(err))
		}
		mailer = sesClient
	}

	// --- Handlers, shared by the job workers and the HTTP pipelines ---
	classifyCfg := ci.LoadConfig()
	classifyCfg.Timeout = workerTimeout(cfg, ci.TaskType, classifyCfg.Timeout)
	classifier := ci.NewHandler(classifyCfg, genaiClient, templates, &classifyIntentLoggerAdapter{log})

	fetchCfg := fpd.LoadConfig()
	fetchCfg.BaseURL = cfg.APIs.Backend.BaseURL
	fetchCfg.Token = cfg.APIs.Backend.Token
	fetchCfg.CallTimeout = config.GetDuration(cfg.APIs.Backend.Timeout)
	fetchCfg.MaxRetries = cfg.APIs.Backend.MaxRetries
	fetchCfg.Timeout = workerTimeout(cfg, fpd.TaskType, fetchCfg.Timeout)
	fetcher := fpd.NewHandler(fetchCfg, &fetchPerformanceDataLoggerAdapter{log})

	assembler := ac.NewHandler(ac.LoadConfig(), templates, &assembleContextLoggerAdapter{log})

	llmCfg := llm.LoadConfig()
	llmCfg.Timeout = workerTimeout(cfg, llm.TaskType, llmCfg.Timeout)
	llmCfg.MaxTokens = cfg.APIs.GenAI.MaxTokens
	llmCfg.Temperature = float32(cfg.APIs.GenAI.Temperature)
	synthesizer := llm.NewHandler(llmCfg, genaiClient, &llmSynthesisLoggerAdapter{log})

	retrieveCfg := rc.LoadConfig()
	retrieveCfg.Index = cfg.Retrieval.Index
	retrieveCfg.TopK = cfg.Retrieval.TopK
	retrieveCfg.MinScore = cfg.Retrieval.MinScore
	retrieveCfg.ResultCap = cfg.Retrieval.ResultCap
	retrieveCfg.CacheTTL = time.Duration(cfg.Retrieval.CacheTTL) * time.Second
	retrieveCfg.Timeout = workerTimeout(cfg, rc.TaskType, retrieveCfg.Timeout)
	retriever := rc.NewHandler(retrieveCfg, esClient, redis, log)

	storyCfg := gs.LoadConfig()
	storyCfg.Timeout = workerTimeout(cfg, gs.TaskType, storyCfg.Timeout)
	storyCfg.MaxTokens = cfg.APIs.GenAI.MaxTokens
	generator := gs.NewHandler(storyCfg, genaiClient, log)

	assetsCfg := gsa.LoadConfig()
	assetsCfg.MaxConcurrency = cfg.Assets.MaxConcurrency
	assetsCfg.TaskTimeout = config.GetDuration(cfg.Assets.TaskTimeout)
	assetsCfg.Timeout = workerTimeout(cfg, gsa.TaskType, assetsCfg.Timeout)
	assets := gsa.NewHandler(assetsCfg, genaiClient, genaiClient, assetStore, log)

	persistCfg := pb.LoadConfig()
	persistCfg.Timeout = workerTimeout(cfg, pb.TaskType, persistCfg.Timeout)
	persister := pb.NewHandler(persistCfg, books, log)

	notifyCfg := nsr.LoadConfig()
	notifyCfg.Timeout = workerTimeout(cfg, nsr.TaskType, notifyCfg.Timeout)
	notifyCfg.SNSEnabled = cfg.Notifications.SNS.Enabled
	notifyCfg.TopicARN = cfg.Notifications.SNS.TopicARN
	notifyCfg.SESEnabled = cfg.Notifications.SES.Enabled
	notifyCfg.Sender = cfg.Notifications.SES.Sender
	notifyCfg.ReaderBaseURL = cfg.Notifications.ReaderBaseURL
	notifier := nsr.NewHandler(notifyCfg, publisher, mailer, log)

	// --- Camunda job workers ---
	var workers []worker.JobWorker
	if cfg.Camunda.BrokerAddress != "" {
		zeebe, err := camunda.NewClient(ctx, cfg.Camunda.BrokerAddress)
		if err != nil {
			zapLog.Fatal("zeebe client", zap.Error(err))
		}
		defer zeebe.Close()

		handlers := map[string]worker.JobHandler{
			ci.TaskType:  classifier.Handle,
			fpd.TaskType: fetcher.Handle,
			ac.TaskType:  assembler.Handle,
			llm.TaskType: synthesizer.Handle,
			rc.TaskType:  retriever.Handle,
			gs.TaskType:  generator.Handle,
			gsa.TaskType: assets.Handle,
			pb.TaskType:  persister.Handle,
			nsr.TaskType: notifier.Handle,
		}
		for taskType, handle := range handlers {
			if !config.IsWorkerEnabled(cfg, taskType) {
				zapLog.Info("worker disabled", zap.String("taskType", taskType))
				continue
			}
			workers = append(workers, camunda.StartWorker(
				zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handle, log, obs,
			))
		}
		zapLog.Info("job workers started", zap.Int("count", len(workers)))
	} else {
		zapLog.Warn("camunda broker address not set, job workers are not started")
	}

	// --- HTTP API ---
	chat := orchestrator.NewChatOrchestrator(classifier, fetcher, retriever, assembler, synthesizer, obs, log)
	stories := orchestrator.NewStoryOrchestrator(retriever, assembler, generator, assets, persister, notifier, obs, log)

	router := api.NewRouter(api.RouterConfig{
		Chat:  api.NewChatHandler(chat, log),
		Books: api.NewBookHandler(stories, books, log),
		Health: api.NewHealthHandler(map[string]api.Check{
			"postgres":      pg.Ping,
			"redis":         redis.Ping,
			"elasticsearch": esClient.Ping,
		}, 2*time.Second),
		Logger: log,
	})
	server := api.NewServer(cfg.Server.Addr(), router, log)
	server.Start()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http server shutdown", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if err := obs.Tracing().Shutdown(shutdownCtx); err != nil {
		zapLog.Error("tracing shutdown", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("metrics shutdown", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// workerTimeout prefers the per-worker timeout from config over the package default.
func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if wcfg, ok := cfg.Workers[taskType]; ok && wcfg.Timeout > 0 {
		return config.GetDuration(wcfg.Timeout)
	}
	return fallback
}

// Logger adapters for AI workers that have their own Logger interfaces
type classifyIntentLoggerAdapter struct {
	logger.Logger
}

func (a *classifyIntentLoggerAdapter) With(fields map[string]interface{}) ci.Logger {
	return &classifyIntentLoggerAdapter{a.Logger.With(fields)}
}

type fetchPerformanceDataLoggerAdapter struct {
	logger.Logger
}

func (a *fetchPerformanceDataLoggerAdapter) With(fields map[string]interface{}) fpd.Logger {
	return &fetchPerformanceDataLoggerAdapter{a.Logger.With(fields)}
}

type assembleContextLoggerAdapter struct {
	logger.Logger
}

func (a *assembleContextLoggerAdapter) With(fields map[string]interface{}) ac.Logger {
	return &assembleContextLoggerAdapter{a.Logger.With(fields)}
}

type llmSynthesisLoggerAdapter struct {
	logger.Logger
}

func (a *llmSynthesisLoggerAdapter) With(fields map[string]interface{}) llm.Logger {
	return &llmSynthesisLoggerAdapter{a.Logger.With(fields)}
}
