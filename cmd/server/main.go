package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/adapters/listingsvc"
	"github.com/gearshare/service-reservation/internal/adapters/paymentgw"
	"github.com/gearshare/service-reservation/internal/application"
	"github.com/gearshare/service-reservation/internal/config"
	reservationDomain "github.com/gearshare/service-reservation/internal/domain/reservation"
	reservationEvents "github.com/gearshare/service-reservation/internal/events"
	"github.com/gearshare/service-reservation/internal/handler"
	"github.com/gearshare/service-reservation/internal/platform/auth"
	"github.com/gearshare/service-reservation/internal/platform/database"
	"github.com/gearshare/service-reservation/internal/platform/health"
	"github.com/gearshare/service-reservation/internal/platform/kafka"
	"github.com/gearshare/service-reservation/internal/platform/logger"
	"github.com/gearshare/service-reservation/internal/platform/middleware"
	"github.com/gearshare/service-reservation/internal/repository"
	"github.com/gearshare/service-reservation/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-reservation")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-reservation",
		zap.String("port", cfg.Port),
	)

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.ReservationModel{}, &repository.ReservationLogModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		dbURL := dbConfig.DatabaseURL()
		if err := database.RunMigrations(dbURL, "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	// Initialize Redis client for the listing snapshot cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.Addr,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
	})
	defer func() { _ = redisClient.Close() }()

	// Initialize collaborator clients
	listingClient := listingsvc.NewClient(cfg.Collaborator.ListingServiceURL, redisClient, log)
	paymentClient := paymentgw.NewClient(
		cfg.Collaborator.PaymentGatewayURL,
		cfg.Collaborator.PaymentAPIKey,
		cfg.Collaborator.PaymentTimeout,
		log,
	)

	// Initialize repository and pricing calculator
	reservationRepo := repository.NewGormReservationRepository(db)
	calculator := reservationDomain.NewStandardCalculator()

	// Initialize application service
	reservationService := application.NewReservationService(
		reservationRepo,
		listingClient,
		paymentClient,
		calculator,
		kafkaProducer,
		log,
	)

	// Initialize and start settlement event consumer in a goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupID := cfg.KafkaConfig.GroupPrefix + "reservation-service"
	settlementConsumer := reservationEvents.NewSettlementEventConsumer(
		cfg.KafkaConfig.Brokers,
		groupID,
		reservationService,
		log,
	)
	defer func() { _ = settlementConsumer.Close() }()

	go func() {
		log.Info("starting settlement event consumer")
		if err := settlementConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("settlement event consumer error", zap.Error(err))
		}
	}()

	// Start the pending-refund sweep worker
	settlementWorker := worker.NewSettlementWorker(
		reservationService,
		cfg.Settlement.SweepSchedule,
		cfg.Settlement.PayoutWindow,
		log,
	)
	if err := settlementWorker.Start(); err != nil {
		log.Fatal("failed to start settlement worker", zap.Error(err))
	}
	defer settlementWorker.Stop()

	// Initialize HTTP handlers
	reservationHandler := handler.NewReservationHandler(reservationService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, "service-reservation")
	healthHandler.RegisterRoutes(router)

	// Register routes
	reservationHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Register admin handler routes
	adminReservationHandler := handler.NewAdminReservationHandler(reservationService)
	adminReservationHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-reservation...")

	// Cancel the consumer context
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-reservation stopped")
}
