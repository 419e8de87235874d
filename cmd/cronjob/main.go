package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	httpapi "library-lending-core/internal/api/http"
	"library-lending-core/internal/config"
	"library-lending-core/internal/jobs"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
	"library-lending-core/internal/repository/memory"
	"library-lending-core/internal/repository/postgres"
	"library-lending-core/internal/scheduler"
	"library-lending-core/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'mark-overdue-loans', 'all')")
	migrate := flag.Bool("migrate", false, "Apply the database schema before starting")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting lending cronjob runner...", "log_level", cfg.Log.Level, "store", cfg.Store.Type)

	ctx := context.Background()

	// Initialize store
	var store repository.Store
	var ping func(context.Context) error
	switch cfg.Store.Type {
	case "memory":
		logger.Warn("Using in-memory store; state is lost on exit")
		store = memory.NewStore()
	default:
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if *migrate || cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				logger.Error("Failed to migrate database", "error", err)
				log.Fatalf("Failed to migrate database: %v", err)
			}
		}
		store = postgres.NewStore(db)
		ping = db.PingContext
	}

	// Initialize services
	notifier := service.NewStoreNotifier(store.Repos().Notifications)
	auditor := service.NewStoreAuditor(store.Repos().Audit)
	engine := service.NewEngine(store, notifier, auditor, newPolicy(cfg))

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(engine.Sweeps, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(ctx, jobRunner, *runOnce); err != nil {
			logger.Error("Job execution failed", "job", *runOnce, "error", err)
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	// Start ops HTTP server
	var opsServer *http.Server
	if cfg.Ops.Port != 0 {
		router := mux.NewRouter()
		httpapi.RegisterOpsRoutes(router, httpapi.NewOpsHandler(jobRunner, ping))
		opsServer = &http.Server{
			Addr:              cfg.GetOpsAddress(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Ops HTTP server listening", "address", opsServer.Addr)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Ops HTTP server error", "error", err)
			}
		}()
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Ops HTTP server shutdown failed", "error", err)
		}
	}
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// openDatabase connects with the configured database/sql driver and pings it
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	logger.Info("Connecting to database...", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open(cfg.Database.Driver, cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")
	return db, nil
}

func newPolicy(cfg *config.Config) service.Policy {
	return service.Policy{
		MaxOpenLoans:    cfg.Lending.MaxOpenLoans,
		DefaultLoanDays: cfg.Lending.DefaultLoanDays,
		DailyFineRate:   cfg.FineRate(),
		ReservationHold: time.Duration(cfg.Lending.ReservationHoldHours) * time.Hour,
		ReminderWindow:  time.Duration(cfg.Lending.ReminderWindowHours) * time.Hour,
	}
}

// runJobOnce runs a specific job once and exits
func runJobOnce(ctx context.Context, jobRunner *jobs.JobRunner, jobName string) error {
	if jobName == "all" {
		return jobRunner.RunAll(ctx)
	}

	_, err := jobRunner.Run(ctx, jobName)
	if errors.Is(err, jobs.ErrUnknownJob) {
		fmt.Printf("Available jobs:\n")
		for _, name := range jobRunner.JobNames() {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Printf("  - all\n")
	}
	return err
}
