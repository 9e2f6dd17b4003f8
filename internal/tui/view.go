package tui

import (
	"fmt"
	"strings"
)

func (m Model) View() string {
	if m.screen == screenEditor && m.sess != nil {
		return m.editorView()
	}
	return m.listView()
}

func (m Model) listView() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("✂ snipper"))
	b.WriteString("\n\n")

	if len(m.projects) == 0 {
		b.WriteString(InfoStyle.Render("No projects yet. Press 'n' to create one from a video URL."))
		b.WriteString("\n")
	}
	for i, p := range m.projects {
		video := InfoStyle.Render("no video")
		if p.HasVideo() {
			video = StatusStyle.Render("ready")
		}
		line := fmt.Sprintf("%-40s %3d clips  %s", truncate(p.Name, 40), len(p.Segments), video)
		if i == m.cursor {
			b.WriteString(HighlightStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.inputting {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
	}

	m.writeFooter(&b, helpLine(listKeyMap.help()))
	return b.String()
}

// editorView keeps the track on trackRow so mouse rows map onto it.
func (m Model) editorView() string {
	snap := m.snap
	width := m.trackWidth()
	pad := strings.Repeat(" ", trackLeft)

	var b strings.Builder
	b.WriteString(TitleStyle.Render(truncate(snap.Name, width)))
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render(truncate(snap.URL, width)))
	b.WriteString("\n")
	b.WriteString(pad + InfoStyle.Render(markerLine(snap.Markers, width)))
	b.WriteString("\n")
	b.WriteString(pad + renderTrack(snap, width))
	b.WriteString("\n")
	b.WriteString(pad + statusLine(snap))
	b.WriteString("\n\n")

	if st := snap.Download.State; st != nil {
		b.WriteString(m.bar.ViewAs(float64(st.Percent) / 100))
		b.WriteString("\n")
		b.WriteString(InfoStyle.Render(downloadText(snap.Download)))
		b.WriteString("\n\n")
	} else if !snap.HasVideo {
		b.WriteString(InfoStyle.Render("Video not downloaded. Press 'D' to fetch it."))
		b.WriteString("\n\n")
	}

	b.WriteString(segmentList(snap))
	b.WriteString("\n")

	if snap.Err != nil && m.err == nil {
		b.WriteString(ErrorStyle.Render("Error: " + snap.Err.Error()))
		b.WriteString("\n")
	}
	m.writeFooter(&b, helpLine(editorKeyMap.help()))
	return b.String()
}

func (m Model) writeFooter(b *strings.Builder, help string) {
	if m.err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(StatusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(InfoStyle.Render(help))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
