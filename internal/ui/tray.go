// Package ui puts the server's status in the system tray.
package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 5 * time.Second

// Stats reports what the tray shows.
type Stats struct {
	Projects        int
	ActiveDownloads int
	CanDownload     bool
	CanExport       bool
}

type Tray struct {
	stats   func(ctx context.Context) Stats
	address string
	logger  *slog.Logger

	statusItem    *systray.MenuItem
	projectsItem  *systray.MenuItem
	downloadsItem *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Stats   func(ctx context.Context) Stats
	Address string
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		stats:   cfg.Stats,
		address: cfg.Address,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
		stop:    make(chan struct{}),
	}
}

// Run blocks on the tray's event loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Snipper")
	systray.SetTooltip("Snipper server on " + t.address)

	t.statusItem = systray.AddMenuItem("Listening on "+t.address, "Server address")
	t.statusItem.Disable()

	t.projectsItem = systray.AddMenuItem("Projects: 0", "Stored projects")
	t.projectsItem.Disable()

	t.downloadsItem = systray.AddMenuItem("Downloads: 0", "Downloads in progress")
	t.downloadsItem.Disable()

	systray.AddSeparator()

	refreshItem := systray.AddMenuItem("Refresh", "Refresh status")
	quitItem := systray.AddMenuItem("Quit", "Stop the snipper server")

	t.refresh()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-refreshItem.ClickedCh:
				t.refresh()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) refresh() {
	if t.stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	t.apply(t.stats(ctx))
}

func (t *Tray) apply(s Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.projectsItem.SetTitle(fmt.Sprintf("Projects: %d", s.Projects))
	t.downloadsItem.SetTitle(fmt.Sprintf("Downloads: %d", s.ActiveDownloads))
	t.statusItem.SetTitle(StatusText(t.address, s))
}

// StatusText is the headline shown in the tray menu.
func StatusText(address string, s Stats) string {
	switch {
	case !s.CanDownload && !s.CanExport:
		return "yt-dlp and ffmpeg missing"
	case !s.CanDownload:
		return "yt-dlp missing"
	case !s.CanExport:
		return "ffmpeg missing"
	}
	return "Listening on " + address
}

func (t *Tray) Quit() {
	t.mu.Lock()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.mu.Unlock()
	systray.Quit()
}
