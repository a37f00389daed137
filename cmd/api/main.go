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
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/config"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/database"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/handler"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/middleware"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/repository"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/router"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Message{}, &models.Group{}, &models.GroupMember{}, &models.Notification{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, running single-node")
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	messageRepo := repository.NewMessageRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	presenceService := service.NewPresenceService(redisClient, logger)
	groupService := service.NewGroupService(groupRepo, presenceService, logger)
	unreadService := service.NewUnreadService(redisClient, presenceService, logger)
	notificationService := service.NewNotificationService(notificationRepo, presenceService, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	realtimeService := service.NewRealtimeService(messageRepo, presenceService, groupService, unreadService, notificationService, redisClient, cfg.ChannelBase, natsConn, validate, cfg.JWTSecret, logger)

	serviceCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()

	if err := groupService.Hydrate(serviceCtx); err != nil {
		log.Fatalf("failed to hydrate group membership cache: %v", err)
	}
	notificationService.Start(serviceCtx)
	realtimeService.Start(serviceCtx)

	realtimeHandler := handler.NewRealtimeHandler(realtimeService, logger)
	historyHandler := handler.NewHistoryHandler(realtimeService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RealtimeHandler:     realtimeHandler,
		HistoryHandler:      historyHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
