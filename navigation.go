package main

// handleNudge moves the crop rectangle by one terminal cell per step, so a
// key press always shows up on screen.
func (m *model) handleNudge(key string, speed int) {
	if !m.canvas.HasImage() {
		return
	}
	stepX, stepY := m.view.CellSize()
	if stepX == 0 || stepY == 0 {
		stepX, stepY = 1, 1
	}
	var dx, dy float64
	switch key {
	case "h", "left", "H", "shift+left":
		dx = -stepX
	case "l", "right", "L", "shift+right":
		dx = stepX
	case "k", "up", "K", "shift+up":
		dy = -stepY
	case "j", "down", "J", "shift+down":
		dy = stepY
	}
	before := m.ghostState()
	m.canvas.Nudge(dx*float64(speed), dy*float64(speed))
	m.recordGhostChange(before)
}

func (m *model) handleResize(delta float64) {
	if !m.canvas.HasImage() {
		return
	}
	before := m.ghostState()
	m.canvas.ResizeBy(delta)
	m.recordGhostChange(before)
}

func (m *model) getMoveSpeed(key string) int {
	switch key {
	case "H", "L", "K", "J", "shift+left", "shift+right", "shift+up", "shift+down":
		return 4
	default:
		return 1
	}
}
