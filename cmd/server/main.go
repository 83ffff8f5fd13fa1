// Review server for extracted lender policies.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"lender-policy-review/internal/config"
	"lender-policy-review/internal/editor"
	"lender-policy-review/internal/handlers"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/database"
	"lender-policy-review/internal/services/extraction"
	s3service "lender-policy-review/internal/services/s3"
	"lender-policy-review/internal/services/ses"
	"lender-policy-review/internal/utils"
	"lender-policy-review/internal/workflow"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.Sync()
	logger := utils.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := extraction.NewClient(cfg.APIBaseURL, extraction.WithLogger(utils.Named("extraction")))

	ed := editor.New(editor.WithLogger(utils.Named("editor")))
	opts := []workflow.Option{
		workflow.WithLogger(utils.Named("workflow")),
		workflow.WithUploadOptions(models.UploadOptions{Enhance: cfg.Enhance, ValidateExtraction: cfg.ValidateExtraction}),
		workflow.WithResetDelay(cfg.ApprovedResetDelay),
		workflow.WithResultListener(ed),
	}

	if cfg.NotificationsEnabled() {
		notifier, err := ses.NewFromConfig(ctx, cfg)
		if err != nil {
			logger.Warn("Approval notifications disabled", zap.Error(err))
		} else {
			opts = append(opts, workflow.WithApprovalHook(
				handlers.NewApprovalNotifier(notifier, cfg.ReviewNotifyEmails, cfg.ReviewDashboardURL, nil),
			))
		}
	}

	controller := workflow.NewController(client, opts...)
	ed.SetCommitter(controller)

	// The ledger database is optional for the review server
	var health *handlers.HealthHandler
	db, err := database.New(ctx, cfg)
	if err != nil {
		logger.Warn("Could not connect to database", zap.Error(err))
		health = handlers.NewHealthHandler(nil, cfg.Stage)
	} else {
		defer db.Close()
		health = handlers.NewHealthHandler(db, cfg.Stage)
	}

	// Setup routes
	mux := http.NewServeMux()
	mux.Handle("GET /health", health)
	mux.Handle("GET /api/health", health)
	mux.Handle("GET /metrics", promhttp.Handler())

	handlers.NewReviewAPI(controller, ed, utils.Named("review-api")).Register(mux)

	// Presigned URL endpoint (for direct S3 uploads)
	if store, err := s3service.NewFromConfig(ctx, cfg); err != nil {
		logger.Warn("Presigned uploads disabled", zap.Error(err))
	} else {
		mux.Handle("POST /api/presigned-url", handlers.NewPresignedURLHandler(store, s3service.DefaultPresignExpiry, nil))
	}

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Lender policy review server",
		zap.String("addr", addr),
		zap.String("extraction_api", client.BaseURL()),
		zap.String("stage", cfg.Stage),
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}

	// let pending approval notifications go out
	controller.WaitHooks()
}
