package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/snipper/snipper/internal/client"
	"github.com/snipper/snipper/internal/config"
	"github.com/snipper/snipper/internal/logging"
	"github.com/snipper/snipper/internal/tui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
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

	// stdout belongs to the terminal UI
	logger, closer, err := logging.NewFileLogger(cfg.LogFile(), cfg.LogLevel())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closer.Close()

	logger.Info("starting snipper", "version", config.Version, "server", cfg.ServerURL())

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	model := tui.NewModel(tui.Options{
		API:       client.NewHTTPClient(cfg.ServerURL(), logger),
		ExportDir: cwd,
		Logger:    logger,
	})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		program.Quit()
	}()

	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	if m, ok := final.(tui.Model); ok {
		m.Close()
	}
	logger.Info("snipper exited")
	return nil
}
