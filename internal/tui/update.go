package tui

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/snipper/snipper/internal/editor"
	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/session"
)

// ticks further apart than this are treated as one interval
const maxTickStep = 250 * time.Millisecond

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(m.width-4, 10)
		if m.sess != nil {
			m.sess.SetWidth(float64(m.trackWidth()))
			m.snap = m.sess.Snapshot()
		}
		return m, nil
	case tickMsg:
		return m.handleTick(msg)
	case projectsLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.projects = msg.Projects
		m.cursor = min(m.cursor, max(len(m.projects)-1, 0))
		return m, nil
	case projectCreatedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.status = "Created " + msg.Project.Name
		return m, openSession(m.sessionConfig(msg.Project.ID))
	case projectDeletedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.status = "Project deleted"
		return m, loadProjects(m.api)
	case sessionOpenedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.sess = msg.Session
		m.screen = screenEditor
		m.err = nil
		m.snap = m.sess.Snapshot()
		m.player.SetDuration(m.snap.Duration)
		m.player.SeekTo(0)
		return m, waitForChange(m.changes)
	case sessionChangedMsg:
		if m.sess == nil {
			return m, nil
		}
		m.snap = m.sess.Snapshot()
		m.syncDuration()
		return m, waitForChange(m.changes)
	case actionDoneMsg:
		if msg.Err != nil {
			m.err = msg.Err
			m.status = ""
		} else {
			m.err = nil
			m.status = msg.Info
		}
		return m, nil
	case tea.KeyMsg:
		if m.inputting {
			return m.handleInput(msg)
		}
		if m.screen == screenEditor {
			return m.handleEditorKey(msg)
		}
		return m.handleListKey(msg)
	case tea.MouseMsg:
		if m.screen == screenEditor && m.sess != nil {
			m.handleMouse(msg)
			m.snap = m.sess.Snapshot()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleTick(msg tickMsg) (tea.Model, tea.Cmd) {
	dt := msg.Time.Sub(m.lastTick)
	if m.lastTick.IsZero() || dt < 0 || dt > maxTickStep {
		dt = tickInterval
	}
	m.lastTick = msg.Time

	if m.sess != nil {
		if m.player.Playing() {
			m.sess.OnTimeUpdate(m.player.Advance(dt))
		}
		m.snap = m.sess.Snapshot()
		if m.snap.Playing && !m.player.Playing() {
			// the clock ran into the end of the video
			m.sess.TogglePlay()
			m.snap = m.sess.Snapshot()
		}
	}
	return m, tickCmd()
}

// syncDuration hands a duration learnt from a finished download to the
// player.
func (m *Model) syncDuration() {
	if m.snap.Duration > 0 && m.player.Duration() != m.snap.Duration {
		m.player.SetDuration(m.snap.Duration)
		m.sess.OnDurationKnown(m.snap.Duration)
	}
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		url := m.input.Value()
		m.inputting = false
		m.input.Blur()
		m.input.Reset()
		if url == "" {
			return m, nil
		}
		return m, createProject(m.api, url)
	case tea.KeyEsc:
		m.inputting = false
		m.input.Blur()
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := listKeyMap
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit
	case key.Matches(msg, k.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, k.Down):
		m.cursor = min(m.cursor+1, max(len(m.projects)-1, 0))
	case key.Matches(msg, k.Reload):
		return m, loadProjects(m.api)
	case key.Matches(msg, k.New):
		m.inputting = true
		return m, m.input.Focus()
	case key.Matches(msg, k.Open):
		if p, ok := m.selectedProject(); ok {
			m.status = "Opening " + p.Name + "..."
			return m, openSession(m.sessionConfig(p.ID))
		}
	case key.Matches(msg, k.Delete):
		if p, ok := m.selectedProject(); ok {
			return m, deleteProject(m.api, p.ID)
		}
	}
	return m, nil
}

func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := editorKeyMap
	s := m.sess
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, k.Quit):
		m = m.closeSession()
		return m, tea.Quit
	case key.Matches(msg, k.CloseEditor):
		m = m.closeSession()
		return m, loadProjects(m.api)
	case key.Matches(msg, k.Mark):
		if _, err := s.MarkSegment(); err != nil {
			m.err = describeError(err)
		}
	case key.Matches(msg, k.TogglePlay):
		s.TogglePlay()
	case key.Matches(msg, k.PlayAll):
		s.PlayAll()
	case key.Matches(msg, k.PlaySel):
		if !s.PlaySelected() {
			m.status = "Select a clip first (tab)"
		}
	case key.Matches(msg, k.Delete):
		s.DeleteSelected()
	case key.Matches(msg, k.SelectNext):
		s.SelectNext()
	case key.Matches(msg, k.ZoomIn):
		s.ZoomIn()
	case key.Matches(msg, k.ZoomOut):
		s.ZoomOut()
	case key.Matches(msg, k.Back):
		s.SeekBy(-seekStep)
	case key.Matches(msg, k.Forward):
		s.SeekBy(seekStep)
	case key.Matches(msg, k.Download):
		cmd = startDownload(s)
	case key.Matches(msg, k.Export):
		cmd = m.export(export.FormatMP4)
	case key.Matches(msg, k.ExportEDL):
		cmd = m.export(export.FormatEDL)
	}

	m.snap = s.Snapshot()
	return m, cmd
}

func (m *Model) export(f export.Format) tea.Cmd {
	if len(m.snap.Segments) == 0 {
		m.err = describeError(session.ErrNoSegments)
		return nil
	}
	m.status = "Exporting " + string(f) + "..."
	return exportTo(m.sess, m.snap.Name, m.exportDir, f)
}

func (m Model) handleMouse(msg tea.MouseMsg) {
	s := m.sess
	x := float64(msg.X - trackLeft)
	onTrack := msg.Y == trackRow

	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonLeft:
			if onTrack {
				s.PointerDown(x)
			}
		case tea.MouseButtonWheelUp:
			s.Wheel(x, -1)
		case tea.MouseButtonWheelDown:
			s.Wheel(x, 1)
		}
	case tea.MouseActionMotion:
		if onTrack || m.snap.Drag != nil {
			s.PointerMove(x)
		} else {
			s.PointerLeave()
		}
	case tea.MouseActionRelease:
		s.PointerUp()
	}
}

func describeError(err error) error {
	switch {
	case errors.Is(err, session.ErrNoSegments):
		return errors.New("add a clip before exporting")
	case errors.Is(err, editor.ErrDurationUnknown):
		return errors.New("video duration unknown, download the video first")
	}
	return err
}
