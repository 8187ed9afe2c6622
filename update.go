package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"fluxcrop/internal/api"
	"fluxcrop/internal/cropcanvas"
	"fluxcrop/internal/liveupdate"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.update(msg)
	return m, cmd
}

func (m *model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return nil

	case frameMsg:
		m.frameScheduled = false
		redrawn, more := m.canvas.Tick(time.Time(msg))
		if redrawn {
			m.renderCanvas()
		}
		if more {
			return m.scheduleFrame()
		}
		return nil

	case filesLoadedMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("list images: %v", msg.err)
			return nil
		}
		m.setFiles(msg.files)
		return nil

	case imageLoadedMsg:
		m.busy = ""
		if errors.Is(msg.err, api.ErrNotFound) {
			m.errorMessage = msg.name + " is no longer in the workspace"
			return loadFilesCmd(m.ctx, m.client)
		}
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("load %s: %v", msg.name, msg.err)
			return nil
		}
		m.canvas.SetImage(msg.img)
		m.current = msg.name
		m.undoStack = nil
		m.redoStack = nil
		m.mode = ModeCrop
		m.clearMessages()
		return m.scheduleFrame()

	case captionGeneratedMsg:
		m.busy = ""
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("generate caption: %v", msg.err)
			return nil
		}
		if msg.name != m.current {
			return nil
		}
		m.setCaption(msg.caption)
		m.successMessage = "Caption generated"
		return nil

	case submittedMsg:
		m.busy = ""
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("submit %s: %v", msg.name, msg.err)
			return nil
		}
		m.successMessage = fmt.Sprintf("Saved %s as %s", msg.name, msg.result.OutputFilename)
		if msg.name == m.current {
			m.caption.Reset()
			m.undoStack = nil
			m.redoStack = nil
		}
		return nil

	case deletedMsg:
		m.busy = ""
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("delete %s: %v", msg.name, msg.err)
			return nil
		}
		m.successMessage = "Deleted " + msg.name
		if msg.name == m.current {
			m.unloadImage()
		}
		return tea.Batch(loadFilesCmd(m.ctx, m.client), m.scheduleFrame())

	case clearedMsg:
		m.busy = ""
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("clear workspace: %v", msg.err)
			return nil
		}
		m.successMessage = msg.result.Message
		m.unloadImage()
		return tea.Batch(loadFilesCmd(m.ctx, m.client), m.scheduleFrame())

	case logChangedMsg:
		m.refreshLog()
		return nil

	case connStateMsg:
		m.connState = liveupdate.State(msg)
		return nil

	case activityMsg:
		m.active = bool(msg)
		return nil

	case refreshFilesMsg:
		m.logger.Debug("refreshing image list", zap.String("reason", msg.reason))
		return loadFilesCmd(m.ctx, m.client)

	case statusMsg:
		m.successMessage = string(msg)
		return nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode == ModeCaption {
		var cmd tea.Cmd
		m.caption, cmd = m.caption.Update(msg)
		return cmd
	}
	return nil
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}
	if m.help {
		m.handleHelpKey(key)
		return nil
	}

	switch m.mode {
	case ModeCaption:
		return m.handleCaptionKey(msg)
	case ModeConfirm:
		return m.handleConfirmKey(key)
	case ModeCrop:
		if cmd, ok := m.handleCropKey(key); ok {
			return cmd
		}
	}
	return m.handleCommonKey(key)
}

// handleCommonKey covers the keys shared by browse and crop modes.
func (m *model) handleCommonKey(key string) tea.Cmd {
	m.errorMessage = ""
	switch key {
	case "q":
		if m.config.Confirmations {
			m.confirm(ConfirmQuit, "")
			return nil
		}
		return tea.Quit
	case "?":
		m.help = true
		m.helpScroll = 0
	case "j", "down", "n":
		m.moveSelection(1)
		if key == "n" && m.mode == ModeCrop {
			return m.loadSelected()
		}
	case "k", "up", "p":
		m.moveSelection(-1)
		if key == "p" && m.mode == ModeCrop {
			return m.loadSelected()
		}
	case "enter":
		return m.loadSelected()
	case "esc":
		m.mode = ModeBrowse
		m.clearMessages()
	case "tab":
		m.canvas.SetPreset(m.canvas.Preset().Next())
		m.undoStack = nil
		m.redoStack = nil
		m.layout()
		m.successMessage = "Canvas: " + m.canvas.Preset().String()
		return m.scheduleFrame()
	case "r":
		return loadFilesCmd(m.ctx, m.client)
	case "g":
		return m.generateCaption()
	case "e":
		m.startCaptionEdit()
	case "ctrl+v":
		text, err := readClipboardText()
		if err != nil {
			m.errorMessage = fmt.Sprintf("clipboard: %v", err)
			return nil
		}
		m.replaceCaption(cleanClipboardText(text))
	case "y":
		if err := clipboard.WriteAll(m.caption.Value()); err != nil {
			m.errorMessage = fmt.Sprintf("clipboard: %v", err)
			return nil
		}
		m.successMessage = "Caption copied"
	case "s":
		return m.submit()
	case "w":
		return m.writePair(false)
	case "d":
		name := m.selectedFile()
		if name == "" {
			return nil
		}
		if m.config.Confirmations {
			m.confirm(ConfirmDeleteImage, name)
			return nil
		}
		m.busy = "Deleting " + name
		return deleteCmd(m.ctx, m.client, name)
	case "C":
		m.confirm(ConfirmClearWorkspace, "")
	case "u":
		m.undo()
		return m.scheduleFrame()
	case "U":
		m.redo()
		return m.scheduleFrame()
	}
	return nil
}

func (m *model) handleCropKey(key string) (tea.Cmd, bool) {
	switch key {
	case "h", "left", "H", "shift+left",
		"l", "right", "L", "shift+right",
		"k", "up", "K", "shift+up",
		"j", "down", "J", "shift+down":
		m.handleNudge(key, m.getMoveSpeed(key))
		return m.scheduleFrame(), true
	case "+", "=":
		m.handleResize(resizeStep)
		return m.scheduleFrame(), true
	case "-", "_":
		m.handleResize(-resizeStep)
		return m.scheduleFrame(), true
	case "x":
		m.lockLatched = !m.lockLatched
		m.canvas.SetHorizontalLock(m.lockLatched)
		if m.lockLatched {
			m.successMessage = "Horizontal lock on"
		} else {
			m.successMessage = "Horizontal lock off"
		}
		return nil, true
	}
	return nil, false
}

func (m *model) handleCaptionKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "ctrl+s":
		m.finishCaptionEdit()
		return nil
	case "ctrl+v":
		text, err := readClipboardText()
		if err != nil {
			m.errorMessage = fmt.Sprintf("clipboard: %v", err)
			return nil
		}
		m.caption.InsertString(cleanClipboardText(text))
		return nil
	}
	var cmd tea.Cmd
	m.caption, cmd = m.caption.Update(msg)
	return cmd
}

func (m *model) handleConfirmKey(key string) tea.Cmd {
	switch key {
	case "y", "Y":
		action, target := m.confirmAction, m.confirmTarget
		m.mode = m.prevMode
		m.confirmTarget = ""
		switch action {
		case ConfirmQuit:
			return tea.Quit
		case ConfirmDeleteImage:
			m.busy = "Deleting " + target
			return deleteCmd(m.ctx, m.client, target)
		case ConfirmClearWorkspace:
			m.busy = "Clearing workspace"
			return clearCmd(m.ctx, m.client)
		case ConfirmOverwriteFile:
			return m.writePair(true)
		}
	case "n", "N", "esc":
		m.mode = m.prevMode
		m.confirmTarget = ""
	}
	return nil
}

func (m *model) handleHelpKey(key string) {
	switch key {
	case "esc", "q", "?":
		m.help = false
		m.helpScroll = 0
	case "j", "down":
		if m.helpScroll < m.maxHelpScroll() {
			m.helpScroll++
		}
	case "k", "up":
		if m.helpScroll > 0 {
			m.helpScroll--
		}
	}
}

// handleMouse turns left-button mouse events over the canvas area into
// pointer events. Motion outside the area ends the interaction as a leave.
func (m *model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if m.help || (m.mode != ModeBrowse && m.mode != ModeCrop) || !m.canvas.HasImage() {
		return nil
	}
	p, inside := m.view.ToCanvas(msg.X-m.canvasLeft, msg.Y-m.canvasTop)
	m.canvas.SetHorizontalLock(m.lockLatched || msg.Shift)

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || !inside {
			return nil
		}
		before := m.ghostState()
		if m.canvas.PointerDown(p) != cropcanvas.HitNone {
			m.dragBefore = before
			m.mode = ModeCrop
		}
	case tea.MouseActionMotion:
		if !m.canvas.Interacting() {
			return nil
		}
		if !inside {
			m.canvas.PointerLeave()
			m.renderCanvas()
			m.recordGhostChange(m.dragBefore)
			return nil
		}
		m.canvas.PointerMove(p)
	case tea.MouseActionRelease:
		if !m.canvas.Interacting() {
			return nil
		}
		if inside {
			m.canvas.PointerMove(p)
		}
		m.canvas.PointerUp()
		m.recordGhostChange(m.dragBefore)
	}
	return m.scheduleFrame()
}

// scheduleFrame requests the next render tick while the canvas loop runs.
// At most one tick is in flight.
func (m *model) scheduleFrame() tea.Cmd {
	if m.frameScheduled || !m.canvas.Animating() {
		return nil
	}
	m.frameScheduled = true
	return frameCmd()
}

func (m *model) renderCanvas() {
	if !m.view.Valid() {
		m.rendered = nil
		return
	}
	m.rendered = m.view.Render(m.canvas.Surface())
}

func (m *model) setFiles(files []string) {
	prev := m.selectedFile()
	m.files = files
	m.selected = -1
	for i, f := range files {
		if f == prev {
			m.selected = i
			break
		}
	}
	if m.selected < 0 && len(files) > 0 {
		m.selected = 0
	}
	if m.current != "" && !contains(files, m.current) {
		m.unloadImage()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *model) selectedFile() string {
	if m.selected < 0 || m.selected >= len(m.files) {
		return ""
	}
	return m.files[m.selected]
}

func (m *model) moveSelection(delta int) {
	if len(m.files) == 0 {
		return
	}
	m.selected += delta
	if m.selected < 0 {
		m.selected = 0
	}
	if m.selected >= len(m.files) {
		m.selected = len(m.files) - 1
	}
}

func (m *model) loadSelected() tea.Cmd {
	name := m.selectedFile()
	if name == "" {
		return nil
	}
	m.busy = "Loading " + name
	return loadImageCmd(m.ctx, m.client, name)
}

func (m *model) unloadImage() {
	m.canvas.Clear()
	m.current = ""
	m.caption.Reset()
	m.undoStack = nil
	m.redoStack = nil
	if m.mode == ModeCrop {
		m.mode = ModeBrowse
	}
}

func (m *model) confirm(action ConfirmAction, target string) {
	if m.mode != ModeConfirm {
		m.prevMode = m.mode
	}
	m.mode = ModeConfirm
	m.confirmAction = action
	m.confirmTarget = target
}

func (m *model) clearMessages() {
	m.errorMessage = ""
	m.successMessage = ""
}

func (m *model) startCaptionEdit() {
	if m.mode == ModeCaption {
		return
	}
	m.prevMode = m.mode
	m.mode = ModeCaption
	m.captionBefore = m.caption.Value()
	m.caption.Focus()
}

func (m *model) finishCaptionEdit() {
	m.caption.Blur()
	m.mode = m.prevMode
	if after := m.caption.Value(); after != m.captionBefore {
		m.recordAction(ActionEditCaption, CaptionData{Text: after}, CaptionData{Text: m.captionBefore})
	}
}

// replaceCaption sets the caption as one undoable edit.
func (m *model) replaceCaption(text string) {
	before := m.caption.Value()
	if text == before {
		return
	}
	m.caption.SetValue(text)
	m.recordAction(ActionEditCaption, CaptionData{Text: text}, CaptionData{Text: before})
}

func (m *model) setCaption(text string) {
	m.replaceCaption(strings.TrimSpace(text))
}

func (m *model) generateCaption() tea.Cmd {
	if m.current == "" {
		m.errorMessage = "No image loaded"
		return nil
	}
	png, err := m.canvas.ExportedImage()
	if err != nil {
		m.errorMessage = err.Error()
		return nil
	}
	m.busy = "Generating caption"
	return generateCaptionCmd(m.ctx, m.client, m.current, png)
}

func (m *model) submit() tea.Cmd {
	if m.current == "" {
		m.errorMessage = "No image loaded"
		return nil
	}
	caption := strings.TrimSpace(m.caption.Value())
	if caption == "" {
		m.errorMessage = "Caption is empty"
		return nil
	}
	png, err := m.canvas.ExportedImage()
	if err != nil {
		m.errorMessage = err.Error()
		return nil
	}
	m.busy = "Submitting " + m.current
	return submitCmd(m.ctx, m.client, m.current, png, caption)
}

// writePair saves the crop and caption next to each other in the save
// directory. Existing files need confirmation unless overwrite is set.
func (m *model) writePair(overwrite bool) tea.Cmd {
	if m.current == "" {
		m.errorMessage = "No image loaded"
		return nil
	}
	pngPath, txtPath, err := m.exportPair(overwrite)
	if errors.Is(err, os.ErrExist) && m.config.Confirmations {
		m.confirm(ConfirmOverwriteFile, pngPath)
		return nil
	}
	if err != nil && errors.Is(err, os.ErrExist) {
		pngPath, txtPath, err = m.exportPair(true)
	}
	if err != nil {
		m.errorMessage = err.Error()
		return nil
	}
	m.successMessage = fmt.Sprintf("Wrote %s and %s", pngPath, txtPath)
	return m.scheduleFrame()
}
