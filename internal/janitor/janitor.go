// Package janitor removes scratch files left behind by interrupted downloads
// and exports.
package janitor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 30m"
	DefaultMaxAge   = 6 * time.Hour
)

type Config struct {
	Root     string
	MaxAge   time.Duration
	Schedule string // cron spec
	Logger   *slog.Logger

	// Nested names directories under Root that hold one scratch entry per
	// job. Their children are swept instead of the directory itself.
	Nested []string
}

// Janitor periodically deletes the entries directly under Root, and under
// each nested directory, whose newest file is older than MaxAge.
type Janitor struct {
	root     string
	nested   map[string]bool
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

func New(cfg Config) *Janitor {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	nested := make(map[string]bool, len(cfg.Nested))
	for _, name := range cfg.Nested {
		nested[name] = true
	}
	return &Janitor{
		root:     cfg.Root,
		nested:   nested,
		maxAge:   cfg.MaxAge,
		schedule: cfg.Schedule,
		logger:   cfg.Logger,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start sweeps once and then on every tick of the schedule.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	j.run()
	j.cron.Start()
	j.logger.Info("temp janitor started", "root", j.root, "schedule", j.schedule, "max_age", j.maxAge)
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) run() {
	removed, err := j.Sweep()
	if err != nil {
		j.logger.Warn("temp sweep failed", "root", j.root, "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("removed stale temp entries", "root", j.root, "count", removed)
	}
}

// Sweep removes stale entries and reports how many were deleted. A missing
// root is not an error.
func (j *Janitor) Sweep() (int, error) {
	cutoff := j.now().Add(-j.maxAge)

	removed, err := j.sweepDir(j.root, cutoff, true)
	if err != nil {
		return removed, err
	}
	for name := range j.nested {
		n, err := j.sweepDir(filepath.Join(j.root, name), cutoff, false)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (j *Janitor) sweepDir(dir string, cutoff time.Time, top bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if top && j.nested[entry.Name()] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		newest, err := newestModTime(path)
		if err != nil {
			j.logger.Debug("skipping temp entry", "path", path, "error", err)
			continue
		}
		if newest.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("failed to remove temp entry", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// newestModTime covers the whole tree so a directory stays alive while a
// long download keeps writing into it.
func newestModTime(path string) (time.Time, error) {
	var newest time.Time
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest, err
}
