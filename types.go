package main

import (
	"context"
	"image"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"go.uber.org/zap"

	"fluxcrop/internal/api"
	"fluxcrop/internal/cropcanvas"
	"fluxcrop/internal/liveupdate"
)

type model struct {
	ctx    context.Context
	config *Config
	logger *zap.Logger
	client *api.Client
	live   *liveupdate.Channel
	canvas *cropcanvas.Controller

	width      int
	height     int
	mode       Mode
	prevMode   Mode
	help       bool
	helpScroll int

	files    []string
	selected int
	current  string
	busy     string

	view           cropcanvas.Viewport
	canvasLeft     int
	canvasTop      int
	rendered       []string
	frameScheduled bool
	lockLatched    bool
	dragBefore     GhostState

	caption       textarea.Model
	captionBefore string
	logView       viewport.Model
	connState     liveupdate.State
	active        bool

	undoStack []Action
	redoStack []Action

	confirmAction  ConfirmAction
	confirmTarget  string
	errorMessage   string
	successMessage string
}

type Action struct {
	Type    ActionType
	Data    interface{}
	Inverse interface{}
}

// GhostState is the crop rectangle geometry kept in undo records.
type GhostState struct {
	X, Y, H float64
}

type CaptionData struct {
	Text string
}

type filesLoadedMsg struct {
	files []string
	err   error
}

type imageLoadedMsg struct {
	name string
	img  image.Image
	err  error
}

type captionGeneratedMsg struct {
	name    string
	caption string
	err     error
}

type submittedMsg struct {
	name   string
	result api.ProcessResult
	err    error
}

type deletedMsg struct {
	name string
	err  error
}

type clearedMsg struct {
	result api.Result
	err    error
}

type frameMsg time.Time

// Messages sent from the live update channel's goroutines.
type (
	logChangedMsg   struct{}
	connStateMsg    liveupdate.State
	activityMsg     bool
	refreshFilesMsg struct{ reason string }
	statusMsg       string
)
