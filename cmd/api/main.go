package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"intake/api/internal/app"
	"intake/api/internal/blob"
	"intake/api/internal/config"
	"intake/api/internal/export"
	"intake/api/internal/history"
	"intake/api/internal/logger"
	"intake/api/internal/notify"
	"intake/api/internal/search"
	"intake/api/internal/session"
	"intake/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Setup(logger.Config{Level: cfg.LogLevel})
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("database connection failed", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		fatal("migrations failed", err)
	}

	dataStore := store.NewPostgresStore(db)
	components := app.Components{Exporter: export.NewService(cfg.ChromePath)}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			fatal("redis connection failed", err)
		}
		defer redisStore.Close()
		components.Sessions = redisStore
		slog.Info("using redis for refresh sessions")
	} else {
		slog.Warn("REDIS_URL not set, refresh sessions are kept in memory")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db))
	components.Search = searchService
	go searchService.ReindexAllFromPG(ctx)

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		minioStore, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			fatal("object storage connection failed", err)
		}
		components.Blobs = minioStore
	} else {
		diskStore, err := blob.NewDiskStore(cfg.UploadDir)
		if err != nil {
			fatal("failed to create upload dir", err)
		}
		components.Blobs = diskStore
	}

	mailer := notify.NewService(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		components.Notifier = mailer
	} else {
		slog.Info("SMTP not configured, status notifications disabled")
	}

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		fatal("failed to create history dir", err)
	}
	components.History = history.New(cfg.HistoryDir)

	service := app.New(cfg, dataStore, components)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("intake API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := service.Drain(shutdownCtx); err != nil {
		slog.Warn("notifications still in flight at exit", "error", err)
	}
	if err := searchService.Wait(shutdownCtx); err != nil {
		slog.Warn("search index writes still queued at exit", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
