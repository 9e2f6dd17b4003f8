package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/snipper/snipper/internal/download"
	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/toolchain"
)

// Downloader starts downloads and streams their progress.
type Downloader interface {
	Start(ctx context.Context, projectID string) error
	Stream(ctx context.Context, projectID string, w download.EventWriter) error
	ActiveCount() int
}

type Exporter interface {
	Export(ctx context.Context, p *project.Project, f export.Format, w io.Writer) (*export.Result, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host      string
	Port      int
	Projects  project.ProjectService
	Downloads Downloader
	Exporter  Exporter
	Videos    playback.VideoService
	Doctor    *toolchain.CachedDoctor
	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// progress streams and exports stay open for minutes
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
