package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/kafka"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/redis"
	"storefront/internal/services"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	handler  http.Handler
	server   *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting storefront server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.shutdown(ctx)
	app.log.Info("Server exited")
}

// shutdown останавливает сервер и освобождает подключения в обратном порядке.
func (a *application) shutdown(ctx context.Context) {
	_ = a.consumer.Stop()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("Server forced to shutdown")
	}
	_ = a.producer.Close()
	_ = a.redis.Close()
	_ = a.db.Close()
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db migrate: %w", err)
		}
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	producer, err := newKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	consumer, err := newKafkaConsumer(&cfg.Kafka, log)
	if err != nil {
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	catalogService := services.NewCatalogService(db, redisClient, log, &cfg.Catalog)
	couponService := services.NewCouponService(db, log)
	orderService := services.NewOrderService(db, log, couponService, producer, &cfg.Catalog)
	reviewService := services.NewReviewService(db, log, producer, catalogService)
	dashboardService := services.NewDashboardService(db, log, &cfg.Dashboard)
	rateLimiter := services.NewRateLimiter(redisClient, log, &cfg.RateLimit)

	registerEventHandlers(consumer, reviewService, log)
	if err := consumer.Start(); err != nil {
		_ = consumer.Stop()
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer start: %w", err)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Catalog:   handlers.NewCatalogHandler(catalogService, log),
		Coupons:   handlers.NewCouponHandler(couponService, log),
		Orders:    handlers.NewOrderHandler(orderService, cfg.Auth.AdminRole, log),
		Reviews:   handlers.NewReviewHandler(reviewService, log),
		Dashboard: handlers.NewDashboardHandler(dashboardService, log, &cfg.Dashboard),
		Health:    handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck),
		RateLimit: handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit),
		Limiter:   rateLimiter,
		Tokens:    handlers.NewJWTValidator(&cfg.Auth),
		AdminRole: cfg.Auth.AdminRole,
		Log:       log,
	})

	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, authenticated endpoints will reject every token")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    redisClient,
		producer: producer,
		consumer: consumer,
		handler:  router,
		server:   server,
	}, nil
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, reviews *services.ReviewService, log *logger.Logger) {
	consumer.RegisterHandler(models.EventTypeReviewApproved, reviews.HandleReviewApproved)

	logOnly := func(message string) kafka.EventHandler {
		return func(ctx context.Context, event *models.Event) error {
			log.WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			}).Info(message)
			return nil
		}
	}
	consumer.RegisterHandler(models.EventTypeOrderCreated, logOnly("Processing order created event"))
	consumer.RegisterHandler(models.EventTypeOrderStatusChanged, logOnly("Processing order status changed event"))
	consumer.RegisterHandler(models.EventTypeCouponRedeemed, logOnly("Processing coupon redeemed event"))
}
