package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	claims_app "claims/internal/app/claims"
	"claims/internal/app/eligibility"
	payments_app "claims/internal/app/payments"
	"claims/internal/client/cardprovider"
	"claims/internal/client/notify"
	"claims/internal/client/verifier"
	"claims/internal/config"
	"claims/internal/domain"
	"claims/internal/entitlement"
	claims_http "claims/internal/handler/http/claims"
	message_handler "claims/internal/handler/message"
	"claims/internal/infrastructure/database"
	kafka_infra "claims/internal/infrastructure/kafka"
	"claims/internal/messaging"
	"claims/internal/payment"
	claims_pg "claims/internal/repository/claims_repo/postgres"
	cycles_pg "claims/internal/repository/cycles_repo/postgres"
	locks_pg "claims/internal/repository/locks_repo/postgres"
	messages_pg "claims/internal/repository/messages_repo/postgres"
	payments_pg "claims/internal/repository/payments_repo/postgres"
	"claims/internal/scheduler"
)

func ensureKafkaTopics(ctx context.Context, brokerURLs []string, topics []string, logger *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokerURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		if err == kafka.TopicAlreadyExists {
			logger.Info("One or more Kafka topics already exist, skipping creation.")
			return nil
		}
		return fmt.Errorf("failed to create Kafka topics: %w", err)
	}
	logger.Info("Kafka topics ensured successfully.", zap.Strings("topics", topics))
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Claims service starting...")

	appLogger.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}

	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsURL, cfg.GetDBMigrationConnectionString())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaBrokers := cfg.GetKafkaBrokers()
	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer topicCancel()
	if err := ensureKafkaTopics(topicCtx, kafkaBrokers, []string{cfg.KafkaReportTopic}, appLogger); err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	kafkaProducer := kafka_infra.NewProducer(
		kafkaBrokers,
		cfg.KafkaReportTopic,
		appLogger.With(zap.String("component", "KafkaProducer")),
	)
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	claimRepository := claims_pg.NewClaimRepository()
	cycleRepository := cycles_pg.NewPaymentCycleRepository()
	paymentRepository := payments_pg.NewPaymentRepository()
	messageRepository := messages_pg.NewMessageRepository()
	lockRepository := locks_pg.NewLockRepository()

	verifierClient := verifier.NewClient(cfg.VerifierBaseURL, cfg.ExternalCallTimeout,
		appLogger.With(zap.String("component", "VerifierClient")))
	cardProviderClient := cardprovider.NewClient(cfg.CardProviderBaseURL, cfg.ExternalCallTimeout,
		appLogger.With(zap.String("component", "CardProviderClient")))
	notifyClient := notify.NewClient(cfg.NotifyBaseURL, cfg.NotifyAPIKey, cfg.ExternalCallTimeout,
		appLogger.With(zap.String("component", "NotifyClient")))

	entitlementCalculator := entitlement.NewCalculator(entitlement.Config{
		SingleVoucherValueInPence: cfg.Entitlement.SingleVoucherValueInPence,
		VouchersPerChildUnderOne:  cfg.Entitlement.VouchersPerChildUnderOne,
		VouchersPerChildOneToFour: cfg.Entitlement.VouchersPerChildOneToFour,
		VouchersPerPregnancy:      cfg.Entitlement.VouchersPerPregnancy,
		PregnancyGracePeriodWeeks: cfg.Entitlement.PregnancyGracePeriodWeeks,
		WeeksPerCycle:             cfg.Entitlement.WeeksPerCycle,
	})
	paymentCalculator := payment.NewCalculator(cfg.Payment.BalanceMultiple)

	messageQueue := messaging.NewQueue(messageRepository,
		appLogger.With(zap.String("component", "MessageQueue")))
	stateMachine := claims_app.NewStateMachine(messageQueue,
		appLogger.With(zap.String("component", "StateMachine")))

	eligibilityService := eligibility.NewService(
		verifierClient,
		claimRepository,
		entitlementCalculator,
		cfg.VerifierErrorPolicy,
		appLogger.With(zap.String("component", "EligibilityService")),
	)

	claimsService := claims_app.NewService(
		db,
		claimRepository,
		cycleRepository,
		eligibilityService,
		entitlementCalculator,
		messageQueue,
		stateMachine,
		claims_app.Config{
			CycleLength:                    cfg.CycleLength(),
			PregnancyGracePeriod:           cfg.PregnancyGracePeriod(),
			CardCancellationGracePeriod:    cfg.Scheduling.CardCancellationGracePeriod,
			CardCancellationSettleDelay:    cfg.Scheduling.CardCancellationSettleDelay,
			NewCardEmailTemplate:           cfg.NotifyTemplates.NewCardEmail,
			CardCancellationLetterTemplate: cfg.NotifyTemplates.CardCancellationLetter,
		},
		appLogger.With(zap.String("component", "ClaimsService")),
	)

	paymentsService := payments_app.NewService(
		db,
		claimRepository,
		cycleRepository,
		paymentRepository,
		cardProviderClient,
		paymentCalculator,
		messageQueue,
		cfg.NotifyTemplates.PaymentEmail,
		appLogger.With(zap.String("component", "PaymentsService")),
	)

	processor := messaging.NewProcessor(db, messageRepository,
		cfg.MessageProcessing.BatchSize, cfg.MessageProcessing.MaxAttempts,
		appLogger.With(zap.String("component", "MessageProcessor")))

	handlerLogger := appLogger.With(zap.String("component", "MessageHandler"))
	processor.Register(domain.MessageTypeDetermineEntitlement,
		message_handler.NewDetermineEntitlementHandler(claimsService, handlerLogger))
	processor.Register(domain.MessageTypeMakePayment,
		message_handler.NewMakePaymentHandler(paymentsService, handlerLogger))
	processor.Register(domain.MessageTypeAdditionalPregnancyPayment,
		message_handler.NewAdditionalPregnancyPaymentHandler(paymentsService, handlerLogger))
	processor.Register(domain.MessageTypeCreateNewCard,
		message_handler.NewCreateNewCardHandler(db, claimRepository, cardProviderClient, claimsService, handlerLogger))
	processor.Register(domain.MessageTypeSendEmail,
		message_handler.NewNotificationHandler(db, claimRepository, notifyClient, notify.ChannelEmail, handlerLogger))
	processor.Register(domain.MessageTypeSendText,
		message_handler.NewNotificationHandler(db, claimRepository, notifyClient, notify.ChannelText, handlerLogger))
	processor.Register(domain.MessageTypeSendLetter,
		message_handler.NewNotificationHandler(db, claimRepository, notifyClient, notify.ChannelLetter, handlerLogger))
	processor.Register(domain.MessageTypeReportClaim,
		message_handler.NewReportClaimHandler(db, claimRepository, kafkaProducer, handlerLogger))
	processor.Register(domain.MessageTypeReportPayment,
		message_handler.NewReportPaymentHandler(db, paymentRepository, kafkaProducer, handlerLogger))

	jobScheduler := scheduler.NewScheduler(db, lockRepository,
		appLogger.With(zap.String("component", "Scheduler")))
	for _, msgType := range domain.AllMessageTypes() {
		t := msgType
		jobScheduler.Add(scheduler.Job{
			Name:     "process-" + string(t),
			Interval: cfg.MessageProcessing.TickInterval,
			MinHold:  cfg.MessageProcessing.LockMinHold,
			MaxHold:  cfg.MessageProcessing.LockMaxHold,
			Run: func(ctx context.Context) error {
				return processor.ProcessBatch(ctx, t)
			},
		})
	}
	jobScheduler.Add(scheduler.Job{
		Name:     "create-due-payment-cycles",
		Interval: cfg.Scheduling.PaymentCycleInterval,
		MinHold:  cfg.MessageProcessing.LockMinHold,
		MaxHold:  cfg.MessageProcessing.LockMaxHold,
		Run:      claimsService.CreateDueCycles,
	})
	jobScheduler.Add(scheduler.Job{
		Name:     "handle-card-cancellations",
		Interval: cfg.Scheduling.CardCancellationInterval,
		MinHold:  cfg.MessageProcessing.LockMinHold,
		MaxHold:  cfg.MessageProcessing.LockMaxHold,
		Run:      claimsService.HandleCardCancellations,
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	claims_http.RegisterRoutes(router, claimsService, appLogger.With(zap.String("component", "HTTPHandler")))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}
	appLogger.Info("HTTP server configured.", zap.Int("port", cfg.HTTPPort))

	ctxMain, cancelMain := context.WithCancel(context.Background())
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	appLogger.Info("Starting scheduler...")
	jobScheduler.Start(ctxMain)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down application...")

	cancelMain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	jobScheduler.Wait()
	appLogger.Info("Scheduler stopped.")

	appLogger.Info("Application gracefully shut down.")
}
