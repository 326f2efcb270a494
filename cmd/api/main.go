package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"attachkit/internal/config"
	"attachkit/internal/database"
	"attachkit/internal/database/migration"
	handlers "attachkit/internal/http/handler"
	"attachkit/internal/http/middleware"
	"attachkit/internal/otel"
	"attachkit/internal/repository/postgres"
	"attachkit/internal/service"
	"attachkit/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	ctx := context.Background()

	// Initialize tracing; degrades to noop when the exporter is unreachable.
	shutdownTracing, err := otel.Init(ctx, time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Register the storage disks: MinIO always, the local disk when a root
	// is configured.
	disks := storage.NewRegistry(cfg.Attachment.DefaultDisk)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}
	disks.Register("minio", objStore)
	if cfg.LocalDisk.Root != "" {
		localStore, err := storage.NewLocal(cfg.LocalDisk)
		if err != nil {
			log.Fatalf("failed to initialize local disk: %v", err)
		}
		disks.Register("local", localStore)
	}

	// Initialize the attachment manager, repository and service.
	mgr, err := service.NewManager(disks, cfg.Attachment)
	if err != nil {
		log.Fatalf("failed to initialize attachment manager: %v", err)
	}
	docRepo := postgres.NewDocumentPostgres(db)
	docSvc := service.NewDocumentService(mgr, docRepo, cfg.Attachment)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	// Prometheus request counter
	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	app.Use(promMW.Handler())

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, docSvc)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
