package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bookstore/internal/app/orders"
	"bookstore/internal/app/status"
	"bookstore/internal/app/webhooks"
	"bookstore/internal/config"
	"bookstore/internal/handler/http/router"
	kafka_handler "bookstore/internal/handler/kafka"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/infrastructure/kafka"
	"bookstore/internal/notification"
	"bookstore/internal/outbox"
	postgres_inventory_repo "bookstore/internal/repository/inventory_repo/postgres"
	postgres_order_repo "bookstore/internal/repository/order_repo/postgres"
	postgres_outbox_repo "bookstore/internal/repository/outbox_repo/postgres"
	postgres_payments_repo "bookstore/internal/repository/payments_repo/postgres"
	"bookstore/internal/util"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Order Service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := connectDB(cfg, appLogger)
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	runMigrations(cfg, appLogger)

	kafkaProducer, err := kafka.NewProducer(cfg.GetKafkaBrokers(), appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		} else {
			appLogger.Info("Kafka producer closed.")
		}
	}()

	transactor := database.NewTransactor(db, appLogger)
	orderRepository := postgres_order_repo.NewOrderRepository(db, appLogger)
	paymentRepository := postgres_payments_repo.NewPaymentRepository(db, appLogger)
	inventoryRepository := postgres_inventory_repo.NewInventoryRepository(db, appLogger)
	outboxRepository := postgres_outbox_repo.NewOutboxRepository(db, appLogger)

	orderService := orders.NewOrderService(orders.OrderServiceDeps{
		Orders:      orderRepository,
		Payments:    paymentRepository,
		Inventory:   inventoryRepository,
		Transactor:  transactor,
		Logger:      appLogger.With(zap.String("component", "OrderService")),
		Clock:       time.Now,
		IDGenerator: util.GenerateUUID,
	})

	mailer := notification.NewMailer(
		notification.NewOutboxQueue(outboxRepository, appLogger),
		appLogger.With(zap.String("component", "Mailer")),
	)
	statusEngine := status.NewEngine(orderService, transactor, mailer, appLogger.With(zap.String("component", "StatusEngine")))

	handlers := webhooks.NewHandlers(webhooks.HandlerDeps{
		Orders: orderService,
		Status: statusEngine,
		Logger: appLogger.With(zap.String("component", "WebhookHandler")),
	})
	processor := webhooks.NewProcessor(handlers, orderService, transactor, appLogger.With(zap.String("component", "WebhookProcessor")))

	queueDeps := webhooks.QueueProcessorDeps{
		Processor:  processor,
		Orders:     orderService,
		Mailer:     mailer,
		Transactor: transactor,
		Logger:     appLogger.With(zap.String("component", "WebhookQueue")),
	}
	queues := []*webhooks.QueueProcessor{
		webhooks.NewCheckoutQueueProcessor(queueDeps),
		webhooks.NewPaymentQueueProcessor(queueDeps),
		webhooks.NewRefundQueueProcessor(queueDeps),
	}

	topics := make(map[webhooks.Family]string)
	for family, topic := range cfg.FamilyTopics() {
		topics[webhooks.Family(family)] = topic
	}

	var wg sync.WaitGroup
	for _, q := range queues {
		consumer := kafka.NewJobConsumer(
			kafka.ConsumerConfig{
				Brokers: cfg.GetKafkaBrokers(),
				Topic:   topics[q.Family()],
				GroupID: cfg.KafkaConsumerGroup,
				Retry: kafka.RetryPolicy{
					MaxAttempts: cfg.JobMaxAttempts,
					Backoff:     cfg.JobBackoff,
					Timeout:     cfg.JobTimeout,
				},
			},
			kafkaProducer,
			kafka_handler.NewWebhookJobConsumer(q, appLogger).HandleMessage,
			appLogger,
		)
		wg.Add(1)
		go func(family webhooks.Family) {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				appLogger.Error("Kafka webhook consumer stopped, shutting down", zap.String("family", string(family)), zap.Error(err))
				stop()
			}
		}(q.Family())
		appLogger.Info("Kafka webhook consumer started", zap.String("family", string(q.Family())), zap.String("topic", topics[q.Family()]))
	}

	outboxProcessor := outbox.NewProcessor(transactor, outboxRepository, kafkaProducer, outbox.Config{
		Topics:       map[string]string{notification.MailQueue: cfg.KafkaMailTopic},
		PollInterval: cfg.OutboxPollInterval,
		PollTimeout:  cfg.OutboxPollTimeout,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, appLogger.With(zap.String("component", "OutboxProcessor")))
	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctx)
	}()
	appLogger.Info("Transactional Outbox sender started.")

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr: serverAddr,
		Handler: router.NewRouter(router.Deps{
			Orders:         orderService,
			Status:         statusEngine,
			Producer:       kafkaProducer,
			WebhookTopics:  topics,
			WebhookSecret:  cfg.StripeWebhookSecret,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         appLogger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Order Service started", zap.String("address", serverAddr))

	<-ctx.Done()

	appLogger.Info("Shutting down Order Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Order Service graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
	appLogger.Info("Order Service stopped.")
}

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)

	return zapConfig.Build()
}

func connectDB(cfg *config.Config, l *zap.Logger) *sql.DB {
	l.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.DBHost,
		Port:     cfg.DBConfig.DBPort,
		User:     cfg.DBConfig.DBUser,
		Password: cfg.DBConfig.DBPassword,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.DBSSLMode,
	}

	const maxRetries = 10
	const retryDelay = 5 * time.Second

	var err error
	for i := 0; i < maxRetries; i++ {
		var db *sql.DB
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			l.Info("Successfully connected to PostgreSQL database!")
			return db
		}
		l.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}

	l.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	return nil
}

func runMigrations(cfg *config.Config, l *zap.Logger) {
	l.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsPath, "postgres://"+cfg.GetDBMigrationConnectionString())
	if err != nil {
		l.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		l.Fatal("Failed to run database migrations", zap.Error(err))
	}
	l.Info("Database migrations completed successfully (or no new migrations).")
}
