package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/insigne-house/api/internal/handlers"
	"github.com/insigne-house/api/internal/platform/auth"
	"github.com/insigne-house/api/internal/platform/config"
	"github.com/insigne-house/api/internal/platform/email"
	pfirestore "github.com/insigne-house/api/internal/platform/firestore"
	"github.com/insigne-house/api/internal/platform/genai"
	"github.com/insigne-house/api/internal/platform/idempotency"
	"github.com/insigne-house/api/internal/platform/jobs"
	"github.com/insigne-house/api/internal/platform/observability"
	"github.com/insigne-house/api/internal/platform/secrets"
	platformstorage "github.com/insigne-house/api/internal/platform/storage"
	firestoreRepo "github.com/insigne-house/api/internal/repositories/firestore"
	"github.com/insigne-house/api/internal/services"
)

const (
	inlineDispatchTimeout = 2 * time.Minute
	shutdownGracePeriod   = 10 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(
			"Admin.Key",
			"AI.AnthropicAPIKey",
			"Email.ResendAPIKey",
			"Storage.ServiceAccountKey",
		),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	signerKey := strings.TrimSpace(cfg.Storage.ServiceAccountKey)
	if signerKey == "" {
		logger.Fatal("storage service account key is required")
	}
	signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(signerKey))
	if err != nil {
		logger.Fatal("failed to parse storage signer key", zap.Error(err))
	}
	signedURLClient, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}

	insigneRepo, err := firestoreRepo.NewInsigneRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise insigne repository", zap.Error(err))
	}
	submissionRepo, err := firestoreRepo.NewSubmissionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise submission repository", zap.Error(err))
	}
	answerRepo, err := firestoreRepo.NewAnswerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise answer repository", zap.Error(err))
	}
	assetRepo, err := firestoreRepo.NewAssetRepository(firestoreProvider, signedURLClient, cfg.Storage.AssetsBucket)
	if err != nil {
		logger.Fatal("failed to initialise asset repository", zap.Error(err))
	}

	generator, err := genai.NewClaudeClient(cfg.AI.AnthropicAPIKey,
		genai.WithModel(cfg.AI.Model),
		genai.WithMaxTokens(cfg.AI.MaxTokens),
		genai.WithTimeout(cfg.AI.RequestTimeout),
	)
	if err != nil {
		logger.Fatal("failed to initialise generation client", zap.Error(err))
	}

	emailSender, err := email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.FromAddress)
	if err != nil {
		logger.Fatal("failed to initialise email sender", zap.Error(err))
	}

	generationService, err := services.NewGenerationService(services.GenerationServiceDeps{
		Insignes:        insigneRepo,
		Answers:         answerRepo,
		Generator:       generator,
		Clock:           time.Now,
		StaleClaimAfter: cfg.AI.StaleClaimAfter,
		Logger:          logger.Named("generation"),
	})
	if err != nil {
		logger.Fatal("failed to initialise generation service", zap.Error(err))
	}

	var generationPublisher jobs.GenerationPublisher
	var pubsubClient *pubsub.Client
	if cfg.Jobs.InlineDispatch || strings.TrimSpace(cfg.Jobs.GenerationTopic) == "" {
		generationPublisher, err = jobs.NewInlineGenerationDispatcher(
			func(ctx context.Context, insigneID string) error {
				_, err := generationService.Generate(ctx, insigneID)
				return err
			},
			logger.Named("jobs"),
			inlineDispatchTimeout,
		)
		if err != nil {
			logger.Fatal("failed to initialise inline generation dispatcher", zap.Error(err))
		}
	} else {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Jobs.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		generationPublisher, err = jobs.NewPubSubGenerationPublisher(pubsubClient.Topic(cfg.Jobs.GenerationTopic))
		if err != nil {
			logger.Fatal("failed to initialise generation publisher", zap.Error(err))
		}
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	ingestionService, err := services.NewIngestionService(services.IngestionServiceDeps{
		Submissions: submissionRepo,
		Publisher:   generationPublisher,
		Clock:       time.Now,
		Logger:      logger.Named("ingestion"),
	})
	if err != nil {
		logger.Fatal("failed to initialise ingestion service", zap.Error(err))
	}

	accessService, err := services.NewAccessService(services.AccessServiceDeps{
		Insignes:     insigneRepo,
		Submissions:  submissionRepo,
		Assets:       assetRepo,
		SignedURLTTL: cfg.Storage.SignedURLTTL,
		Logger:       logger.Named("access"),
	})
	if err != nil {
		logger.Fatal("failed to initialise access service", zap.Error(err))
	}

	lifecycleService, err := services.NewLifecycleService(services.LifecycleServiceDeps{
		Insignes:       insigneRepo,
		Email:          emailSender,
		ResultsBaseURL: cfg.Email.ResultsBaseURL,
		Clock:          time.Now,
		Logger:         logger.Named("lifecycle"),
	})
	if err != nil {
		logger.Fatal("failed to initialise lifecycle service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	webhookHandlers := handlers.NewWebhookHandlers(ingestionService)
	publicHandlers := handlers.NewPublicHandlers(accessService)
	internalHandlers := handlers.NewInternalHandlers(generationService)
	adminHandlers := handlers.NewAdminHandlers(accessService, lifecycleService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}),
	)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", auth.AdminKeyHeader, cfg.Idempotency.Header},
		MaxAge:         300,
	})

	adminKey := auth.AdminKeyMiddleware(cfg.Admin.Key)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware,
		observability.RecoveryMiddleware,
		observability.RequestLoggerMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(corsHandler),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithPublicMiddlewares(corsHandler, handlers.NoStore),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithInternalMiddlewares(adminKey, idempotencyMiddleware),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(corsHandler, handlers.NoStore, adminKey, idempotencyMiddleware),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("insigne api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}

	return secrets.NewFetcher(ctx, opts...)
}
