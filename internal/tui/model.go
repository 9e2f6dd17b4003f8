// Package tui is the terminal host for the editor session: a project list
// and a timeline editor driven by keyboard and mouse.
package tui

import (
	"context"
	"log/slog"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/snipper/snipper/internal/progress"
	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/session"
)

const (
	// trackLeft is the column the track starts at.
	trackLeft = 1
	// trackRow is the line of the editor view the track is drawn on.
	trackRow = 3

	seekStep = 5.0
)

// API is the server surface the UI needs.
type API interface {
	session.Store
	session.Exporter
	progress.Initiator
	progress.Feed
	ListProjects(ctx context.Context) ([]*project.Project, error)
	CreateProject(ctx context.Context, name, url string) (*project.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

type screen int

const (
	screenList screen = iota
	screenEditor
)

type Options struct {
	API       API
	ExportDir string
	Logger    *slog.Logger
}

type Model struct {
	api       API
	exportDir string
	logger    *slog.Logger

	screen        screen
	width, height int

	projects  []*project.Project
	cursor    int
	input     textinput.Model
	inputting bool

	sess     *session.Session
	player   *VirtualPlayer
	snap     session.Snapshot
	changes  chan struct{}
	bar      progressbar.Model
	lastTick time.Time

	status string
	err    error
}

func NewModel(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}

	input := textinput.New()
	input.Placeholder = "https://www.youtube.com/watch?v=..."
	input.Prompt = "URL: "
	input.CharLimit = 2048

	return Model{
		api:       opts.API,
		exportDir: opts.ExportDir,
		logger:    opts.Logger,
		screen:    screenList,
		width:     80,
		input:     input,
		player:    &VirtualPlayer{},
		changes:   make(chan struct{}, 1),
		bar:       progressbar.New(progressbar.WithDefaultGradient()),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadProjects(m.api),
		tickCmd(),
	)
}

func (m Model) trackWidth() int {
	return max(m.width-2*trackLeft, 10)
}

func (m Model) sessionConfig(id string) session.Config {
	changes := m.changes
	return session.Config{
		ProjectID:    id,
		Store:        m.api,
		Initiator:    m.api,
		Feed:         m.api,
		Exporter:     m.api,
		Player:       m.player,
		Width:        float64(m.trackWidth()),
		AutoDownload: true,
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
		Logger: m.logger,
	}
}

func (m Model) selectedProject() (*project.Project, bool) {
	if m.cursor < 0 || m.cursor >= len(m.projects) {
		return nil, false
	}
	return m.projects[m.cursor], true
}

// closeSession tears the editor down and returns to the list.
func (m Model) closeSession() Model {
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
	}
	m.player.Pause()
	m.snap = session.Snapshot{}
	m.screen = screenList
	return m
}

// Close flushes and releases an editor still open when the program exits.
func (m Model) Close() {
	if m.sess != nil {
		m.sess.Close()
	}
}
