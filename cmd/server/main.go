package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/api"
	"github.com/HyIsNoob/khytool/internal/app"
	"github.com/HyIsNoob/khytool/internal/domain"
	"github.com/HyIsNoob/khytool/internal/extractor"
	"github.com/HyIsNoob/khytool/internal/infrastructure"
	"github.com/HyIsNoob/khytool/internal/registry"
	"github.com/HyIsNoob/khytool/internal/ytdlp"
	"github.com/HyIsNoob/khytool/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := createDirectories(config); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer multiLog.Close()

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting khytool server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("base_dir", config.Download.BaseDir))

	repo, err := infrastructure.NewSQLiteJobRepository(config.Queue.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	// Jobs stuck in processing from a previous crash go back to queued
	if n, err := repo.ResetOrphanedProcessing(); err != nil {
		log.Warn("Failed to reset orphaned jobs", zap.Error(err))
	} else if n > 0 {
		log.Info("Requeued orphaned jobs", zap.Int64("count", n))
	}

	reg := registry.New(config.Download.RegistryPath(), log)

	runner := ytdlp.NewRunner(config.Download.YTDLPBinary, log)
	versionCtx, versionCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if version, err := runner.Version(versionCtx); err != nil {
		log.Warn("yt-dlp not available, extraction will rely on page scraping",
			zap.String("binary", config.Download.YTDLPBinary), zap.Error(err))
	} else {
		log.Info("yt-dlp available", zap.String("version", version))
	}
	versionCancel()

	extractors := extractor.NewRegistry()
	extractors.Register(extractor.NewYouTubeExtractor(runner, config.Extractor.RequestTimeout))
	extractors.Register(extractor.NewTikTokExtractor(runner, config.Extractor.RequestTimeout))
	extractors.Register(extractor.NewFacebookExtractor(runner, config.Extractor.RequestTimeout))

	normalizer := extractor.NewNormalizer(config.Extractor.RedirectTimeout)

	downloader := infrastructure.NewMediaDownloader(runner, reg, log)
	notifier := infrastructure.NewNotificationService(true, log)

	downloadMgr := app.NewDownloadManager(
		repo, normalizer, extractors, downloader, reg, notifier, &config.Download, log)

	queueMgr := app.NewQueueManager(repo, downloadMgr, &config.Queue, multiLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Queue.AutoStart {
		if err := queueMgr.Start(ctx); err != nil {
			log.Fatal("Failed to start queue manager", zap.Error(err))
		}
	}

	router := api.SetupRouter(queueMgr, normalizer, extractors, reg, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case <-queueMgr.WaitForExit():
		log.Info("Queue manager triggered auto-exit (all downloads complete)")
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if queueMgr.IsRunning() {
		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	if err := reg.Save(); err != nil {
		log.Error("Failed to save download registry", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.BaseDir,
		config.Download.VideosDir(),
		config.Download.ThumbnailsDir(),
		config.Download.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
