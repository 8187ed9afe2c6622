package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fluxcrop/internal/cropcanvas"
	"fluxcrop/internal/liveupdate"
)

var (
	listStyle     = lipgloss.NewStyle().Width(listWidth)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	currentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	pulseStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	sepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	categoryStyles = map[liveupdate.Category]lipgloss.Style{
		liveupdate.CategoryError: errorStyle,
		liveupdate.CategoryInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
		liveupdate.CategoryDebug: dimStyle,
		liveupdate.CategoryEvent: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
)

// layout sizes the canvas viewport, caption box and log panel from the
// window size. The canvas sits right of the image list, at the top.
func (m *model) layout() {
	cols := m.width - listWidth - 1
	rows := m.height - 1 - logPanelHeight - captionHeight - 1
	if rows < minCanvasRows {
		rows = minCanvasRows
	}
	w, h := m.canvas.Size()
	m.view = cropcanvas.FitViewport(cols, rows, w, h)
	// Pointer events land on cell centres, so the handle must span a cell.
	cw, ch := m.view.CellSize()
	m.canvas.SetHandleSize(max(cropcanvas.HandleSize, cw, ch))
	m.canvasLeft = listWidth + 1
	m.canvasTop = 0

	if cols > 0 {
		m.caption.SetWidth(cols)
	}
	m.logView.Width = max(m.width, 1)
	m.logView.Height = logPanelHeight
	m.renderCanvas()
	m.refreshLog()
}

func (m *model) refreshLog() {
	lines := m.live.Lines()
	rendered := make([]string, len(lines))
	for i, l := range lines {
		rendered[i] = categoryStyles[l.Category].Render(l.String())
	}
	m.logView.SetContent(strings.Join(rendered, "\n"))
	m.logView.GotoBottom()
}

func (m model) View() string {
	if m.help {
		return m.helpView()
	}
	if m.width == 0 || m.height == 0 {
		return "loading…"
	}

	topHeight := m.height - 1 - logPanelHeight
	if topHeight < 1 {
		topHeight = 1
	}

	list := listStyle.Height(topHeight).MaxHeight(topHeight).Render(m.listView(topHeight))
	sep := sepStyle.Render(strings.TrimSuffix(strings.Repeat("│\n", topHeight), "\n"))
	right := lipgloss.JoinVertical(lipgloss.Left, m.canvasView(), m.captionView())
	top := lipgloss.JoinHorizontal(lipgloss.Top, list, sep, right)
	top = lipgloss.NewStyle().Height(topHeight).MaxHeight(topHeight).Render(top)

	return lipgloss.JoinVertical(lipgloss.Left, top, m.logView.View(), m.statusLine())
}

func (m model) listView(height int) string {
	var b strings.Builder
	b.WriteString(dimStyle.Render(fmt.Sprintf("Workspace (%d)", len(m.files))))
	if len(m.files) == 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("no images"))
		return b.String()
	}

	visible := height - 1
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.selected >= visible {
		start = m.selected - visible + 1
	}
	end := min(start+visible, len(m.files))
	for i := start; i < end; i++ {
		name := truncate(m.files[i], listWidth-2)
		b.WriteString("\n")
		switch {
		case i == m.selected:
			b.WriteString(selectedStyle.Render("> " + name))
		case m.files[i] == m.current:
			b.WriteString(currentStyle.Render("* " + name))
		default:
			b.WriteString("  " + name)
		}
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

func (m model) canvasView() string {
	if len(m.rendered) == 0 {
		rows := max(m.view.Rows, 1)
		return dimStyle.Render(strings.TrimSuffix(strings.Repeat("\n", rows), "\n") + "no image loaded")
	}
	return strings.Join(m.rendered, "\n")
}

func (m model) captionView() string {
	label := "Caption"
	if m.mode == ModeCaption {
		label += " (editing, esc to finish)"
	}
	return dimStyle.Render(label) + "\n" + m.caption.View()
}

func (m model) modeString() string {
	switch m.mode {
	case ModeBrowse:
		return "BROWSE"
	case ModeCrop:
		return "CROP"
	case ModeCaption:
		return "CAPTION"
	case ModeConfirm:
		return "CONFIRM"
	default:
		return "UNKNOWN"
	}
}

func (m model) statusLine() string {
	if m.mode == ModeConfirm {
		var message string
		switch m.confirmAction {
		case ConfirmDeleteImage:
			message = fmt.Sprintf("Delete %s from the workspace? (y/n)", m.confirmTarget)
		case ConfirmClearWorkspace:
			message = "Remove every image from the workspace? (y/n)"
		case ConfirmOverwriteFile:
			message = fmt.Sprintf("File %s already exists. Overwrite? (y/n)", m.confirmTarget)
		case ConfirmQuit:
			message = "Quit? (y/n)"
		}
		return fmt.Sprintf("Mode: CONFIRM | %s", message)
	}

	indicator := "○"
	if m.active {
		indicator = pulseStyle.Render("●")
	}
	status := fmt.Sprintf("%s %s | Mode: %s | Canvas: %s", indicator, m.connState, m.modeString(), m.canvas.Preset())
	if g, ok := m.canvas.Ghost(); ok {
		status += fmt.Sprintf(" | Crop: %.0f,%.0f %.0fx%.0f", g.X, g.Y, g.W, g.H)
	}
	if m.lockLatched {
		status += " | H-LOCK"
	}
	if m.busy != "" {
		status += " | " + m.busy + "…"
	}
	if m.successMessage != "" {
		status += " | " + m.successMessage
	}
	if m.errorMessage != "" {
		status += " | " + errorStyle.Render("ERROR: "+m.errorMessage)
	} else if m.successMessage == "" && m.busy == "" {
		status += " | ? for help | q to quit"
	}
	return status
}

var helpLines = []string{
	"fluxcrop Help",
	"=============",
	"",
	"Workspace:",
	"----------",
	"  j/k, ↑/↓         Select image (browse mode)",
	"  n/p              Select and load next/previous image",
	"  Enter            Load selected image into the crop canvas",
	"  r                Refresh the image list",
	"  d                Delete selected image from the workspace",
	"  C                Clear the whole workspace",
	"",
	"Crop Canvas:",
	"------------",
	"  mouse drag       Move the crop rectangle",
	"  drag corner      Resize from the bottom-right handle",
	"  shift+drag       Keep the vertical position while dragging",
	"  h/j/k/l          Nudge the crop rectangle one cell (crop mode)",
	"  Shift+h/j/k/l    Nudge 4x faster",
	"  +/-              Grow or shrink the crop rectangle",
	"  x                Toggle horizontal lock",
	"  Tab              Switch between widescreen and square canvas",
	"  Esc              Back to browse mode",
	"",
	"Caption:",
	"--------",
	"  e                Edit caption (Esc or Ctrl+S to finish)",
	"  g                Generate caption from the current crop",
	"  Ctrl+V           Paste caption from the clipboard",
	"  y                Copy caption to the clipboard",
	"",
	"Output:",
	"-------",
	"  s                Submit crop and caption as the next training pair",
	"  w                Write crop and caption to the save directory",
	"",
	"General:",
	"  u                Undo last crop or caption change",
	"  U                Redo last undone change",
	"  ?                Toggle this help screen",
	"  q/Ctrl+C         Quit",
}

func (m model) maxHelpScroll() int {
	visibleHeight := max(m.height-1, 1)
	return max(len(helpLines)-visibleHeight, 0)
}

func (m model) helpView() string {
	visibleHeight := max(m.height-1, 1)
	startLine := min(m.helpScroll, m.maxHelpScroll())
	endLine := min(startLine+visibleHeight, len(helpLines))

	result := strings.Join(helpLines[startLine:endLine], "\n")
	statusLine := fmt.Sprintf("Help (%d-%d of %d lines) | j/k to scroll, Esc to close",
		startLine+1, endLine, len(helpLines))
	return result + "\n" + statusLine
}
