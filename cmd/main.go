package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/logger"

	"github.com/Vovarama1992/talker_bot/internal/config"
	"github.com/Vovarama1992/talker_bot/internal/delivery"
	"github.com/Vovarama1992/talker_bot/internal/error_notificator"
	"github.com/Vovarama1992/talker_bot/internal/media"
	"github.com/Vovarama1992/talker_bot/internal/messages"
	"github.com/Vovarama1992/talker_bot/internal/observability"
	"github.com/Vovarama1992/talker_bot/internal/pipeline"
	"github.com/Vovarama1992/talker_bot/internal/session"
	"github.com/Vovarama1992/talker_bot/internal/storage"
	"github.com/Vovarama1992/talker_bot/internal/telegram"
	"github.com/Vovarama1992/talker_bot/internal/tools"
	"github.com/Vovarama1992/talker_bot/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {

	// =========================================================================
	// ENV / LOGGER
	// =========================================================================

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	baseLogger, _ := zap.NewProduction()
	defer baseLogger.Sync()
	sugar := baseLogger.Sugar()
	zl := logger.NewZapLogger(sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// PREFERENCE STORE
	// =========================================================================

	var userInfra user.Infra
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Fatalf("db ping failed: %v", err)
		}
		defer db.Close()
		userInfra = user.NewInfra(db)
	} else {
		sugar.Warnw("[main] DATABASE_URL is empty, users are kept in memory")
		userInfra = user.NewMemoryInfra()
	}

	userService, err := user.NewService(ctx, userInfra, cfg.AdminUsername, cfg.SupportedLanguages, sugar)
	if err != nil {
		log.Fatalf("users: %v", err)
	}

	catalog, err := messages.Load(cfg.MessagesPath)
	if err != nil {
		log.Fatalf("messages: %v", err)
	}

	// =========================================================================
	// INFRASTRUCTURE
	// =========================================================================

	for _, dir := range []string{cfg.UploadsDir, cfg.AnimationsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create %s: %v", dir, err)
		}
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stager := media.NewStager(cfg.UploadsDir, sugar)

	invoker := tools.NewProcessInvoker(tools.Config{
		PythonBin:             cfg.PythonBin,
		InferenceScript:       cfg.InferenceScript,
		AnimationsDir:         cfg.AnimationsDir,
		VoiceConversionScript: cfg.VoiceConversionScript,
		FFmpegBin:             cfg.FFmpegBin,
	}, sugar)

	errInfra := error_notificator.NewInfra(cfg.AdminChatID, sugar)
	errService := error_notificator.NewService(errInfra)

	// =========================================================================
	// PIPELINE / SESSIONS
	// =========================================================================

	presets := map[user.VoiceMode]string{
		user.VoiceMale:   filepath.Join(cfg.PresetsDir, "male.wav"),
		user.VoiceFemale: filepath.Join(cfg.PresetsDir, "female.wav"),
	}
	for mode, path := range presets {
		if _, err := os.Stat(path); err != nil {
			sugar.Warnw("[main] preset voice missing", "voice", mode, "path", path)
		}
	}

	orchestrator := pipeline.NewOrchestrator(
		invoker,
		userService,
		catalog,
		stager,
		media.Policy{CleanupInputs: cfg.CleanupUserData, CleanupOutputs: cfg.CleanupAnimations},
		presets,
		cfg.MaxConcurrentJobs,
		sugar,
	).WithMetrics(metrics)

	if cfg.ArchiveEnabled() {
		s3Client, err := storage.NewS3Client(ctx, storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
		})
		if err != nil {
			log.Fatalf("failed to init s3: %v", err)
		}
		orchestrator.WithArchiver(storage.NewArchive(s3Client, sugar))
	}

	machine := session.NewMachine(
		userService,
		catalog,
		stager,
		invoker,
		orchestrator,
		session.Config{CropSize: cfg.CropSize, MaxVideoNoteDuration: cfg.MaxVideoNoteDuration},
		sugar,
	).WithNotifier(errService).WithMetrics(metrics)

	// =========================================================================
	// TELEGRAM
	// =========================================================================

	mailbox := session.NewMailbox(sugar)
	botApp := telegram.NewBotApp(machine, mailbox, sugar)
	if err := botApp.InitBot(cfg.TelegramToken); err != nil {
		log.Fatalf("failed to init telegram bot: %v", err)
	}
	errInfra.SetBot(botApp.GetBot())

	botDone := make(chan struct{})
	go func() {
		botApp.Run(ctx)
		close(botDone)
	}()

	// =========================================================================
	// HTTP ROUTER
	// =========================================================================

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	delivery.RegisterRoutes(
		r,
		delivery.NewUserHandler(userService, machine, zl),
		delivery.NewSessionHandler(machine),
		metrics.Handler(),
		cfg.AdminAPIToken,
	)
	if cfg.AdminAPIToken == "" {
		sugar.Warnw("[main] ADMIN_API_TOKEN is empty, admin API is locked")
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	// =========================================================================
	// START SERVER
	// =========================================================================

	go func() {
		zl.Log(logger.LogEntry{
			Level:   "info",
			Message: "listening at " + cfg.HTTPAddr,
			Service: "talker_bot",
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	// =========================================================================
	// SHUTDOWN
	// =========================================================================

	sugar.Infow("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("[main] http shutdown", "err", err)
	}
	<-botDone
	if err := mailbox.Close(shutdownCtx); err != nil {
		sugar.Warnw("[main] pending chat work abandoned", "err", err)
	}
}
