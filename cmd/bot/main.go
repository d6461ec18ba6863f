package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course_delivery_bot/internal/app"
	"course_delivery_bot/internal/domain/correlation"
	"course_delivery_bot/internal/infra/config"
	infraCorrelation "course_delivery_bot/internal/infra/correlation"
	idb "course_delivery_bot/internal/infra/database"
	"course_delivery_bot/internal/infra/httpapi"
	"course_delivery_bot/internal/infra/logger"
	"course_delivery_bot/internal/infra/scheduler"
	"course_delivery_bot/internal/infra/scoring"
	infraTelegram "course_delivery_bot/internal/infra/telegram"
	"course_delivery_bot/internal/infra/transcribe"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Course Delivery Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Get().WithField("component", "main")
	mainLogger.Infof("Configuration loaded. LogLevel: %s, Environment: %s", cfg.LogLevel, cfg.Environment)

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	// Initialize Repositories
	userRepo := idb.NewPostgresUserRepository(db)
	courseRepo := idb.NewPostgresCourseRepository(db)
	enrollRepo := idb.NewPostgresEnrollmentRepository(db)
	subRepo := idb.NewPostgresSubmissionRepository(db)
	mainLogger.Info("Repositories initialized.")

	// Dialog state store: Redis when configured, otherwise in-process memory.
	var dialogStore correlation.Store
	var sweeper scheduler.Sweeper
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		dialogStore = infraCorrelation.NewRedisStore(redisClient, "")
		mainLogger.Infof("Dialog state store: redis at %s", cfg.RedisAddr)
	} else {
		memStore := infraCorrelation.NewMemoryStore()
		dialogStore = memStore
		sweeper = memStore
		mainLogger.Info("Dialog state store: in-process memory")
	}

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.Get().WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{
					"message":   c.Text(),
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
				})
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.Fatalf("Could not create Telegram bot: %v", err)
	}
	telegramClient := infraTelegram.NewTelebotAdapter(bot)

	// Outbox for fire-and-forget effects (notifications, scoring, completion checks)
	outbox := app.NewOutbox(
		logger.Get().WithField("component", "outbox"),
		cfg.OutboxWorkers,
		cfg.OutboxMaxAttempts,
		cfg.OutboxBackoff,
	)
	outbox.Start()

	// External assistants
	scorer := scoring.NewClient(cfg.ScoringBaseURL, cfg.ScoringAPIKey, cfg.ScoringModel, cfg.ScoringTimeout)
	transcriber := transcribe.NewClient(
		cfg.TranscribeBaseURL,
		cfg.TranscribeAPIKey,
		cfg.TranscribeModel,
		cfg.TranscribeLanguage,
		cfg.TranscribeTimeout,
	)

	// Application services
	notifier := app.NewNotifier(userRepo, telegramClient, outbox, logger.Get().WithField("component", "notifier"))
	submissionService := app.NewSubmissionService(
		subRepo, courseRepo, enrollRepo, userRepo,
		scorer, notifier, outbox,
		logger.Get().WithField("component", "submission_service"),
	)
	enrollmentService := app.NewEnrollmentService(
		enrollRepo, courseRepo, userRepo, notifier,
		logger.Get().WithField("component", "enrollment_service"),
	)
	audioIntake := app.NewAudioIntakeService(
		subRepo, courseRepo, enrollRepo, userRepo,
		telegramClient, transcriber, submissionService,
		logger.Get().WithField("component", "audio_intake"),
	)
	dialogService := app.NewDialogService(
		dialogStore, userRepo, telegramClient,
		enrollmentService, submissionService,
		cfg.CuratorReplyTTL,
		logger.Get().WithField("component", "dialog_service"),
	)
	mainLogger.Info("Application services initialized.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register Handlers
	infraTelegram.RegisterLearnerHandlers(
		ctx, bot, dialogService, audioIntake, enrollmentService,
		userRepo, courseRepo,
		logger.Get().WithField("component", "telegram"),
	)
	infraTelegram.RegisterCuratorHandlers(ctx, bot, submissionService, dialogService)
	mainLogger.Info("Telegram handlers registered.")

	// Maintenance scheduler: dialog state sweep and stuck-review reminders
	maintScheduler := scheduler.NewMaintenanceScheduler(
		sweeper, subRepo, notifier,
		logger.Get().WithField("component", "scheduler"),
		cfg.CronSpecCorrelationSweep,
		cfg.CronSpecReviewReminder,
	)
	maintScheduler.Start()

	// HTTP API
	apiServer := httpapi.NewServer(submissionService, subRepo, logger.Get().WithField("component", "httpapi"))
	httpServer := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: apiServer.Router(),
	}
	go func() {
		mainLogger.Infof("HTTP API listening on %s", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLogger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	mainLogger.Info("Application setup complete. Bot, API and Scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	cancel()
	bot.Stop()
	maintScheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("HTTP server shutdown failed")
	}

	outbox.Stop()
	if dead := outbox.DeadLetters(); len(dead) > 0 {
		mainLogger.Warnf("%d background task(s) ended in the dead letter queue", len(dead))
	}
	// db.Close() is handled by defer
	mainLogger.Info("Application shut down gracefully.")
}
