package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"wikimod/internal/config"
	"wikimod/internal/content"
	"wikimod/internal/db"
	"wikimod/internal/email"
	"wikimod/internal/intake"
	"wikimod/internal/merge"
	"wikimod/internal/metrics"
	"wikimod/internal/moderation"
	"wikimod/internal/notify"
	"wikimod/internal/preload"
	"wikimod/internal/server"
	"wikimod/internal/session"
	"wikimod/internal/stash"
	"wikimod/internal/tracing"
	"wikimod/internal/validation"
)

const version = "0.1.0"

func main() {
	ctx := context.Background()
	cfg := config.Load()

	yamlCfg, err := config.LoadYAMLConfig()
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}
	yamlCfg.Apply(cfg)

	// Initialize database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	if cfg.IsDev() {
		if err := database.SeedDevPages(ctx); err != nil {
			log.Printf("Warning: Failed to seed pages: %v", err)
		}
	}

	if cfg.TracingEnabled {
		if err := tracing.Init("wikimod", version, cfg.TraceFile); err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
	}
	metrics.Init(database)

	// Redis is optional: without it sessions stay in memory and the
	// notification cache reads straight from the database.
	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rdb = client
	}

	// Upload stash
	var objects stash.ObjectStore = stash.NewInMemoryObjectStore()
	if cfg.IsS3Enabled() {
		objects = stash.NewS3ObjectStore(stash.NewS3Client(stash.S3Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}), cfg.S3Bucket)
		log.Printf("Storing uploads in S3 bucket %s", cfg.S3Bucket)
	} else {
		log.Println("S3 is not configured, uploads are kept in memory")
	}
	files := stash.New(objects)

	pending := notify.New(rdb, database, cfg.NotifyCacheTTL)
	notifier := email.NewNotifier(cfg, database)
	titles := validation.NewTitleParser(yamlCfg.NamespaceNames())

	gate := intake.NewGate(intake.Deps{
		Store:       content.NewStore(database, files),
		Queue:       database,
		Uploads:     files,
		Invalidator: pending,
		Notifier:    notifier,
	})
	engine := moderation.NewEngine(moderation.Deps{
		Queue:       database,
		Content:     gate,
		Users:       database,
		Log:         database,
		Stash:       files,
		Merger:      merge.ThreeWay{},
		Titles:      titles,
		Invalidator: pending,
		Notifier:    notifier,
	}, cfg.ReapprovalWindow)

	srv := server.New(cfg, session.NewStorage(cfg))
	if err := srv.RegisterRoutes(ctx, server.Components{
		DB:         database,
		Engine:     engine,
		Gate:       gate,
		Correlator: preload.New(database),
		Pending:    pending,
		Files:      files,
		Titles:     titles,
		Redis:      rdb,
	}); err != nil {
		log.Fatalf("Failed to register routes: %v", err)
	}

	// Graceful shutdown
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server started on %s", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := srv.Shutdown(); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
