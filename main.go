package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runTUI starts the interactive crop tool. The live channel is only torn
// down after the program has stopped, since its hooks block on p.Send.
func runTUI(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sender := &programSender{}
	m := newModel(ctx, cfg, logger, client, sender.send)
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	sender.attach(p)

	logger.Info("starting crop tool", zap.String("server", cfg.Server), zap.String("preset", cfg.Preset))
	_, err = p.Run()

	cancel()
	sender.attach(nil)
	m.live.Disconnect()
	m.canvas.Destroy()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
