package tui

import (
	"time"

	"github.com/snipper/snipper/internal/project"
	"github.com/snipper/snipper/internal/session"
)

type tickMsg struct {
	Time time.Time
}

type projectsLoadedMsg struct {
	Projects []*project.Project
	Err      error
}

type projectCreatedMsg struct {
	Project *project.Project
	Err     error
}

type projectDeletedMsg struct {
	ID  string
	Err error
}

type sessionOpenedMsg struct {
	Session *session.Session
	Err     error
}

// sessionChangedMsg reports a change made off the UI goroutine: download
// progress or a playback timer.
type sessionChangedMsg struct{}

type actionDoneMsg struct {
	Info string
	Err  error
}
