package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/session"
)

const tickInterval = 50 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg{Time: t}
	})
}

func loadProjects(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		projects, err := api.ListProjects(ctx)
		return projectsLoadedMsg{Projects: projects, Err: err}
	}
}

func createProject(api API, url string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err := api.CreateProject(ctx, "", url)
		return projectCreatedMsg{Project: p, Err: err}
	}
}

func deleteProject(api API, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return projectDeletedMsg{ID: id, Err: api.DeleteProject(ctx, id)}
	}
}

func openSession(cfg session.Config) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := session.New(ctx, cfg)
		return sessionOpenedMsg{Session: s, Err: err}
	}
}

// waitForChange blocks until the session reports a background change.
func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return sessionChangedMsg{}
	}
}

func startDownload(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Download(ctx); err != nil {
			return actionDoneMsg{Err: err}
		}
		return actionDoneMsg{Info: "Download started"}
	}
}

// exportTo renders the cut into dir under the project's export name.
func exportTo(s *session.Session, name, dir string, f export.Format) tea.Cmd {
	return func() tea.Msg {
		path := filepath.Join(dir, export.Filename(name, f))
		out, err := os.Create(path)
		if err != nil {
			return actionDoneMsg{Err: fmt.Errorf("create export file: %w", err)}
		}

		err = s.Export(context.Background(), f, out)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return actionDoneMsg{Err: err}
		}
		return actionDoneMsg{Info: "Exported " + path}
	}
}
