package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snipper/snipper/internal/api"
	"github.com/snipper/snipper/internal/config"
	"github.com/snipper/snipper/internal/db"
	"github.com/snipper/snipper/internal/download"
	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/janitor"
	"github.com/snipper/snipper/internal/logging"
	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/storage"
	"github.com/snipper/snipper/internal/toolchain"
	"github.com/snipper/snipper/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.TempDir(), 0755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting snipper server", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	projects := project.NewService(project.NewRepository(database.Conn()), logger)
	videos := playback.NewFileServer(cfg.DataDir(), logger)

	runner := toolchain.NewRunner(logger)
	ytdlpBin := resolveTool(logger, "yt-dlp", cfg.YtDlpPath(), "yt-dlp", "youtube-dl")
	ffmpegBin := resolveTool(logger, "ffmpeg", cfg.FFmpegPath(), "ffmpeg")

	doctor := toolchain.NewCachedDoctor(toolchain.NewDoctor(runner, ytdlpBin, ffmpegBin, logger))
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	doctor.Refresh(probeCtx)
	probeCancel()

	broker, err := newBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	manager := download.NewManager(download.Config{
		Broker:   broker,
		Fetcher:  download.NewYtDlp(ytdlpBin, cfg.Format(), runner, logger),
		Projects: projects,
		Videos:   videos,
		TempDir:  cfg.TempDir(),
		Logger:   logging.WithComponent(logger, "download"),
	})

	exportCfg := export.Config{
		Renderer: export.NewRenderer(ffmpegBin, runner, logger),
		Videos:   videos,
		Recorder: projects,
		WorkDir:  cfg.TempDir(),
		Logger:   logging.WithComponent(logger, "export"),
	}
	if s3cfg := cfg.S3(); s3cfg.Enabled() {
		archiver, err := storage.NewS3Archiver(context.Background(), storage.S3Config{
			Bucket:       s3cfg.Bucket,
			Prefix:       s3cfg.Prefix,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			UsePathStyle: s3cfg.PathStyle,
		}, logger)
		if err != nil {
			logger.Warn("export archive unavailable", "error", err)
		} else {
			exportCfg.Archiver = archiver
			logger.Info("export archive enabled", "bucket", s3cfg.Bucket, "prefix", s3cfg.Prefix)
		}
	}
	exporter := export.NewExporter(exportCfg)

	sweeper := janitor.New(janitor.Config{
		Root:   cfg.TempDir(),
		Nested: []string{download.ScratchDirName},
		Logger: logging.WithComponent(logger, "janitor"),
	})
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Projects:  projects,
		Downloads: manager,
		Exporter:  exporter,
		Videos:    videos,
		Doctor:    doctor,
		Logger:    logger,
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Address: apiServer.Addr(),
			Logger:  logger,
			Stats: func(ctx context.Context) ui.Stats {
				n, _ := projects.Count(ctx)
				c := doctor.Get(ctx)
				return ui.Stats{
					Projects:        n,
					ActiveDownloads: manager.ActiveCount(),
					CanDownload:     c.CanDownload(),
					CanExport:       c.CanExport(),
				}
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("downloads did not stop in time", "error", err)
	}
	if tray != nil {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}

// newBroker coordinates downloads through Redis when configured, so several
// server processes share locks and progress; otherwise in process.
func newBroker(cfg config.Config, logger *slog.Logger) (download.Broker, error) {
	if cfg.RedisURL() == "" {
		logger.Info("download coordination in process")
		return download.NewMemoryBroker(), nil
	}
	broker, err := download.NewRedisBroker(cfg.RedisURL(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("download coordination via redis")
	return broker, nil
}

func resolveTool(logger *slog.Logger, name, preferred string, fallbacks ...string) string {
	bin, err := toolchain.Resolve(preferred, fallbacks...)
	if err != nil {
		logger.Warn("tool not found", "tool", name, "error", err)
		if preferred != "" {
			return preferred
		}
		return fallbacks[0]
	}
	return bin
}
