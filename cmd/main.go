package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"circulation/internal/config"
	"circulation/internal/database"
	"circulation/internal/handlers"
	"circulation/internal/logging"
	"circulation/internal/middleware"
	"circulation/internal/repositories"
	"circulation/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run owns the database handle, so every return path closes it.
func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.AutoMigrate {
		if err := database.Migrate(db, logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	txManager := repositories.NewTxManager(db)
	userRepo := repositories.NewUserRepository(db)
	readerRepo := repositories.NewReaderRepository(db)
	publisherRepo := repositories.NewPublisherRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	copyRepo := repositories.NewCopyRepository(db)
	recordRepo := repositories.NewBorrowRecordRepository(db)
	fineRepo := repositories.NewFineRepository(db)

	circulationService := services.NewCirculationService(txManager, readerRepo, bookRepo, copyRepo, recordRepo, fineRepo,
		logger.With("service", "circulation"))
	catalogService := services.NewCatalogService(txManager, readerRepo, publisherRepo, bookRepo, copyRepo, recordRepo, fineRepo,
		logger.With("service", "catalog"))
	authService := services.NewAuthService(userRepo, cfg, logger.With("service", "auth"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(logger), gin.Recovery())

	handlers.RegisterRoutes(router, handlers.Dependencies{
		Circulation:   circulationService,
		Catalog:       catalogService,
		Auth:          authService,
		Authenticate:  middleware.AuthMiddleware(authService),
		LoginThrottle: middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.LoginRatePerSecond), cfg.LoginBurst)),
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddr, "env", cfg.GoEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down server")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
