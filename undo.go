package main

import "fluxcrop/internal/cropcanvas"

func (m *model) recordAction(actionType ActionType, data, inverse interface{}) {
	action := Action{
		Type:    actionType,
		Data:    data,
		Inverse: inverse,
	}
	m.undoStack = append(m.undoStack, action)
	m.redoStack = m.redoStack[:0]
}

func (m *model) ghostState() GhostState {
	g, ok := m.canvas.Ghost()
	if !ok {
		return GhostState{}
	}
	return GhostState{X: g.X, Y: g.Y, H: g.H}
}

// recordGhostChange records the move or resize from before to the current
// rectangle. Nothing is recorded when the geometry did not change.
func (m *model) recordGhostChange(before GhostState) {
	if !m.canvas.HasImage() {
		return
	}
	after := m.ghostState()
	if after == before {
		return
	}
	actionType := ActionMoveGhost
	if after.H != before.H {
		actionType = ActionResizeGhost
	}
	m.recordAction(actionType, after, before)
}

func (m *model) applyGhost(s GhostState) {
	g, ok := m.canvas.Ghost()
	if !ok {
		return
	}
	m.canvas.SetGhost(cropcanvas.Ghost{
		Rect:   cropcanvas.Rect{X: s.X, Y: s.Y, W: s.H * g.Aspect, H: s.H},
		Aspect: g.Aspect,
	})
}

func (m *model) undo() {
	if len(m.undoStack) == 0 {
		return
	}

	lastIndex := len(m.undoStack) - 1
	action := m.undoStack[lastIndex]
	m.undoStack = m.undoStack[:lastIndex]

	switch action.Type {
	case ActionMoveGhost, ActionResizeGhost:
		m.applyGhost(action.Inverse.(GhostState))
	case ActionEditCaption:
		m.caption.SetValue(action.Inverse.(CaptionData).Text)
	}

	m.redoStack = append(m.redoStack, action)
}

func (m *model) redo() {
	if len(m.redoStack) == 0 {
		return
	}

	lastIndex := len(m.redoStack) - 1
	action := m.redoStack[lastIndex]
	m.redoStack = m.redoStack[:lastIndex]

	switch action.Type {
	case ActionMoveGhost, ActionResizeGhost:
		m.applyGhost(action.Data.(GhostState))
	case ActionEditCaption:
		m.caption.SetValue(action.Data.(CaptionData).Text)
	}

	m.undoStack = append(m.undoStack, action)
}
