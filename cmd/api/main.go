package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/config"
	"github.com/noah-isme/edunexa-api/internal/database"
	"github.com/noah-isme/edunexa-api/internal/handler"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/repository"
	"github.com/noah-isme/edunexa-api/internal/router"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/statistics"
	"github.com/noah-isme/edunexa-api/pkg/ai"
	cloud "github.com/noah-isme/edunexa-api/pkg/cloudinary"
	"github.com/noah-isme/edunexa-api/pkg/lmsclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set; notification fan-out over redis disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	var uploader service.FileUploader
	if cfg.CloudinaryCloudName != "" {
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = store
	} else {
		logger.Warn().Msg("cloudinary not configured; file submissions will be rejected")
	}

	var suggester ai.FeedbackSuggester
	if cfg.AIProvider == "openai" && cfg.OpenAIAPIKey != "" {
		openai, err := ai.NewOpenAISuggester(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create feedback suggester: %v", err)
		}
		suggester = openai
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	activityService := service.NewActivityService(activityRepo, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, submissionRepo, courseRepo, validate, activityService, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, courseRepo, validate, uploader, notificationService, activityService, logger)
	gradingService := service.NewGradingService(submissionRepo, validate, activityService, notificationService, suggester, logger)

	source, err := statisticsSource(cfg, assignmentRepo, logger)
	if err != nil {
		log.Fatalf("failed to configure statistics source: %v", err)
	}
	aggregator := statistics.NewAggregator(statistics.Options{
		Concurrency:  cfg.StatisticsConcurrency,
		FetchTimeout: cfg.StatisticsFetchTimeout,
		Logger:       logger,
	})
	statisticsService := service.NewStatisticsService(source, aggregator, logger)

	notificationService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    64 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:         &logger,
		AllowedOrigins: cfg.AllowedOrigins,
		AccessLog:      cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:   handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, middleware.RateLimit("submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow), logger),
		GradingHandler:      handler.NewGradingHandler(gradingService, logger),
		StatisticsHandler:   handler.NewStatisticsHandler(statisticsService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		ActivityHandler:     handler.NewAdminActivityHandler(activityService, logger),
		HealthHandler:       handler.NewHealthHandler(cfg, healthProbes(db, redisClient, natsConn)),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		Metrics:             true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func statisticsSource(cfg config.Config, assignments repository.AssignmentRepository, logger zerolog.Logger) (service.AssignmentSource, error) {
	if cfg.StatisticsSource != "lms" {
		return service.NewRepositorySource(assignments), nil
	}

	client, err := lmsclient.New(lmsclient.Config{
		BaseURL: cfg.LMSBaseURL,
		Timeout: cfg.LMSTimeout,
		Retries: cfg.LMSRetries,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("base_url", cfg.LMSBaseURL).Msg("statistics read from lms")
	return service.NewLMSSource(client, lmsclient.Credential{Token: cfg.LMSToken}), nil
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}
	return probes
}
