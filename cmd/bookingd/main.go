package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"gpu-booking-backend/config"
	"gpu-booking-backend/internal/api"
	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/db"
	"gpu-booking-backend/internal/notification"
	"gpu-booking-backend/internal/reminder"
	"gpu-booking-backend/internal/store"
)

type appContext struct {
	logger *log.Logger
	cfg    *config.Config
}

var CLI struct {
	Config string `help:"Config file path." env:"CONFIG_PATH" default:"./config/config.yaml"`

	Serve        ServeCmd        `cmd:"" help:"Run the booking API server." default:"1"`
	MigrateRules MigrateRulesCmd `cmd:"" help:"Convert legacy usage-limit rules to the rolling-window format."`
}

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "bookingd ", log.LstdFlags)

	if err := godotenv.Load(); err != nil {
		logger.Println("no .env file found, using system environment variables")
	}

	ctx := kong.Parse(&CLI,
		kong.Name("bookingd"),
		kong.Description("GPU machine reservation backend"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", CLI.Config, err)
	}
	logger.Printf("configuration loaded successfully from %s", CLI.Config)

	if err := ctx.Run(&appContext{logger: logger, cfg: cfg}); err != nil {
		logger.Fatalf("%s: %v", ctx.Command(), err)
	}
}

// ServeCmd runs the HTTP API, the push workers and the reminder loop.
type ServeCmd struct{}

func (c *ServeCmd) Run(app *appContext) error {
	logger, cfg := app.logger, app.cfg

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var (
		webpushOptions *webpush.Options
		opts           []booking.Option
	)
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}

		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions)
		pool.Start(ctx)
		opts = append(opts, booking.WithNotifier(pool))
		logger.Printf("push worker pool started with %d workers", cfg.WorkerPool.Size)

		reminderSvc := reminder.NewService(cfg.Reminder, appStore, pool)
		go reminderSvc.Run(ctx)
	} else {
		logger.Println("VAPID keys are not configured; push notifications and reminders are disabled")
	}

	svc := booking.NewService(appStore, cfg.Booking, opts...)

	// Initialize router
	router := api.NewRouter(cfg.Server, svc, appStore, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}

// MigrateRulesCmd rewrites stored legacy usage rules in place.
type MigrateRulesCmd struct{}

func (c *MigrateRulesCmd) Run(app *appContext) error {
	gormDB, err := db.Init(&app.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	n, err := store.NewGormStore(gormDB).MigrateLegacyRules(context.Background())
	if err != nil {
		return err
	}
	app.logger.Printf("converted %d legacy usage rules", n)
	return nil
}
