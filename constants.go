package main

import "time"

type Mode int

const (
	ModeBrowse Mode = iota
	ModeCrop
	ModeCaption
	ModeConfirm
)

type ConfirmAction int

const (
	ConfirmDeleteImage ConfirmAction = iota
	ConfirmClearWorkspace
	ConfirmOverwriteFile
	ConfirmQuit
)

type ActionType int

const (
	ActionMoveGhost ActionType = iota
	ActionResizeGhost
	ActionEditCaption
)

const (
	listWidth      = 28
	logPanelHeight = 6
	captionHeight  = 3
	minCanvasRows  = 4

	// resizeStep is the ghost height change per +/- press, in canvas pixels.
	resizeStep     = 10.0
	frameInterval  = time.Second / 60
	requestTimeout = 5 * time.Minute
)
