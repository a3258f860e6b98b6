// Package vibeboost собирает основное HTTP-приложение: хранилище,
// кэш, интеграции со Stripe, генератором и объектным хранилищем,
// маршруты и graceful shutdown.
package vibeboost

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/vibeboost/backend/internal/cache"
	"github.com/vibeboost/backend/internal/config"
	"github.com/vibeboost/backend/internal/filestore"
	"github.com/vibeboost/backend/internal/generator"
	supajwt "github.com/vibeboost/backend/internal/lib/jwt"
	"github.com/vibeboost/backend/internal/lib/rabbitmq"
	"github.com/vibeboost/backend/internal/migrations"
	"github.com/vibeboost/backend/internal/paymentprovider"
	billingservice "github.com/vibeboost/backend/internal/services/billing"
	creditservice "github.com/vibeboost/backend/internal/services/credits"
	generationservice "github.com/vibeboost/backend/internal/services/generation"
	subservice "github.com/vibeboost/backend/internal/services/subscription"
	"github.com/vibeboost/backend/internal/storage/repository"
)

// App основное приложение VibeBoost.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	amqpConn *amqp.Connection
	amqpCh   *amqp.Channel
}

// New собирает все зависимости приложения из конфигурации.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	amqpCh, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetBillingQueues())
	if err != nil {
		amqpConn.Close()
		return nil, err
	}
	notifier := rabbitmq.NewBillingPublisher(amqpCh)

	fileStore, err := filestore.New(filestore.Config{
		Endpoint:     cfg.S3.Endpoint,
		Region:       cfg.S3.Region,
		AccessKey:    cfg.S3.AccessKey,
		SecretKey:    cfg.S3.SecretKey,
		Bucket:       cfg.S3.Bucket,
		UsePathStyle: cfg.S3.UsePathStyle,
		PresignTTL:   cfg.S3.PresignTTL,
	})
	if err != nil {
		return nil, err
	}

	generatorClient := generator.NewClient(cfg.Generator.BaseURL, cfg.Generator.APIKey,
		cfg.Generator.Model, cfg.Generator.TimeoutGenerator)
	providerClient := paymentprovider.NewClient(cfg.Stripe.SecretKey,
		cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, cfg.Stripe.PortalReturnURL)
	verifier := supajwt.NewVerifier(cfg.Auth.SupabaseJWTSecret)

	creditService := creditservice.NewCreditService(db, logger)
	billingService := billingservice.NewBillingService(creditService, db, notifier, logger)
	subscriptionService := subservice.NewSubscriptionService(creditService, db, providerClient, cacheRedis, logger)
	generationService := generationservice.NewGenerationService(creditService, generatorClient, fileStore,
		cfg.Credits.CostPerImage, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, verifier,
		subscriptionService, billingService, generationService, fileStore)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
		amqpCh:   amqpCh,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.amqpCh.Close(); closeErr != nil {
			a.logger.Error("failed to close amqp channel", slog.Any("err", closeErr))
		}
		if closeErr := a.amqpConn.Close(); closeErr != nil {
			a.logger.Error("failed to close amqp connection", slog.Any("err", closeErr))
		}
		a.db.DB.Close()
		return err
	}
}
