package main

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"fluxcrop/internal/api"
	"fluxcrop/internal/cropcanvas"
	"fluxcrop/internal/liveupdate"
)

// programSender forwards messages from background goroutines into the
// running program. Messages sent before a program is attached are dropped.
type programSender struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *programSender) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *programSender) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func newModel(ctx context.Context, cfg *Config, logger *zap.Logger, client *api.Client, send func(tea.Msg)) model {
	canvas := cropcanvas.New(cropcanvas.Options{
		Preset:      cfg.preset(),
		GracePeriod: cfg.GracePeriod,
		Logger:      logger.Named("canvas"),
	})

	live := liveupdate.New(liveupdate.Config{
		URL:          client.EventsURL(),
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
		Pulse:        cfg.Pulse,
		Logger:       logger.Named("live"),
		OnLine:       func(liveupdate.Line) { send(logChangedMsg{}) },
		OnState:      func(s liveupdate.State) { send(connStateMsg(s)) },
		OnActive:     func(on bool) { send(activityMsg(on)) },
	})
	registerListeners(live, send)

	ta := textarea.New()
	ta.Placeholder = "Caption…"
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(captionHeight)
	ta.Blur()

	m := model{
		ctx:      ctx,
		config:   cfg,
		logger:   logger,
		client:   client,
		live:     live,
		canvas:   canvas,
		mode:     ModeBrowse,
		selected: -1,
		caption:  ta,
		logView:  viewport.New(80, logPanelHeight),
	}
	return m
}

func registerListeners(live *liveupdate.Channel, send func(tea.Msg)) {
	refresh := func(reason string) *liveupdate.Listener {
		return liveupdate.ListenerFunc(func(liveupdate.Event) {
			send(refreshFilesMsg{reason: reason})
		})
	}
	live.On(string(liveupdate.KindImportComplete), refresh("import complete"))
	live.On(string(liveupdate.KindFileDeleted), refresh("file deleted"))
	live.On(string(liveupdate.KindWorkspaceCleared), refresh("workspace cleared"))
	live.On(string(liveupdate.KindFileProcessed), liveupdate.ListenerFunc(func(e liveupdate.Event) {
		send(statusMsg(fmt.Sprintf("Processed %s as %s", e.String("original_filename"), e.String("output_filename"))))
	}))
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(m.ctx, m.live),
		loadFilesCmd(m.ctx, m.client),
		textarea.Blink,
	)
}

func connectCmd(ctx context.Context, live *liveupdate.Channel) tea.Cmd {
	return func() tea.Msg {
		live.Connect(ctx)
		return nil
	}
}

func loadFilesCmd(ctx context.Context, client *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		files, err := client.ListRawImages(ctx)
		return filesLoadedMsg{files: files, err: err}
	}
}

func loadImageCmd(ctx context.Context, client *api.Client, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		data, err := client.FetchRawImage(ctx, name)
		if err != nil {
			return imageLoadedMsg{name: name, err: err}
		}
		img, err := cropcanvas.Decode(bytes.NewReader(data))
		return imageLoadedMsg{name: name, img: img, err: err}
	}
}

func generateCaptionCmd(ctx context.Context, client *api.Client, name string, png []byte) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		caption, err := client.GenerateCaption(ctx, pngName(name), png)
		return captionGeneratedMsg{name: name, caption: caption, err: err}
	}
}

func submitCmd(ctx context.Context, client *api.Client, name string, png []byte, caption string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		res, err := client.Process(ctx, png, name, caption)
		return submittedMsg{name: name, result: res, err: err}
	}
}

func deleteCmd(ctx context.Context, client *api.Client, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := client.DeleteRawImage(ctx, name)
		return deletedMsg{name: name, err: err}
	}
}

func clearCmd(ctx context.Context, client *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		res, err := client.ClearRawImages(ctx)
		return clearedMsg{result: res, err: err}
	}
}

func frameCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}
