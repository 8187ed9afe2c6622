package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fluxcrop/internal/api"
	"fluxcrop/internal/dataset"
	"fluxcrop/internal/liveupdate"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	serverURL string

	cfg    *Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fluxcrop",
	Short: "Crop and caption images for FLUX LoRA training",
	Long: `fluxcrop is a terminal client for the LoRA dataset backend.

Run without arguments to open the interactive crop tool: pick an imported
image, frame it with the crop rectangle, caption it and submit the pair.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cfgFile)
		if err != nil {
			return err
		}
		if serverURL != "" {
			cfg.Server = serverURL
			if err := cfg.normalize(); err != nil {
				return err
			}
		}

		// The interactive tool owns the terminal, so only it logs to a file.
		logFile := ""
		if cmd == cmd.Root() {
			logFile = cfg.LogFile
		}
		logger, err = newLogger(verbose, logFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runTUI,
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the live update log without the interactive tool",
	Long: `Connects to the backend event stream and prints every log line as it
arrives. Exits when interrupted or when reconnect attempts run out.`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

var importCmd = &cobra.Command{
	Use:   "import <folder>",
	Short: "Replace the workspace with the images of a local folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List processed image and caption sets",
	Args:  cobra.NoArgs,
	RunE:  runSets,
}

var recaptionCmd = &cobra.Command{
	Use:   "recaption",
	Short: "Regenerate the caption of every processed set",
	Long: `Backs up each existing caption, asks the backend for a new one,
applies the configured vocabulary replacements and stores the result.`,
	Args: cobra.NoArgs,
	RunE: runRecaption,
}

var (
	watchImport bool
	dryRun      bool
	concurrency int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/fluxcrop/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend base URL (overrides config)")

	importCmd.Flags().BoolVarP(&watchImport, "watch", "w", false, "keep watching the folder and re-import on changes")
	recaptionCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show new captions without storing them")
	recaptionCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "sets to recaption in parallel (default from config)")

	rootCmd.AddCommand(tailCmd, importCmd, setsCmd, recaptionCmd)
}

func newClient() (*api.Client, error) {
	return api.New(cfg.Server, api.WithLogger(logger.Named("api")))
}

func runTail(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var mu sync.Mutex
	live := liveupdate.New(liveupdate.Config{
		URL:          client.EventsURL(),
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
		Pulse:        cfg.Pulse,
		Logger:       logger.Named("live"),
		OnLine: func(l liveupdate.Line) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(out, l.String())
		},
	})

	ctx := cmd.Context()
	live.Connect(ctx)
	live.Wait()
	live.Disconnect()

	if ctx.Err() != nil {
		return nil
	}
	return errors.New("live updates unavailable: reconnect attempts exhausted")
}

func runImport(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	importer := dataset.NewImporter(client, logger.Named("import"))

	ctx := cmd.Context()
	res, err := importer.Import(ctx, args[0])
	if err != nil {
		return err
	}
	printImport(out, res)
	if !watchImport {
		return nil
	}

	w := dataset.NewWatcher(args[0], importer, dataset.DefaultDebounce, logger.Named("watch"))
	w.OnImport = func(r dataset.ImportReport) {
		if r.Err != nil {
			fmt.Fprintf(out, "Re-import failed: %v\n", r.Err)
			return
		}
		fmt.Fprintf(out, "%d files changed. ", len(r.Changed))
		printImport(out, r.Result)
	}
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", args[0])
	return w.Run(ctx)
}

func printImport(out io.Writer, res api.ImportResult) {
	fmt.Fprintf(out, "Imported %d images, skipped %d\n", res.ImportedCount, res.SkippedCount)
}

func runSets(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	sets, err := client.ListProcessedSets(ctx)
	if err != nil {
		return fmt.Errorf("list processed sets: %w", err)
	}
	if len(sets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No processed sets")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), setsTable(sets))
	return nil
}

func setsTable(sets []api.ProcessedSet) string {
	rows := make([][]string, len(sets))
	for i, s := range sets {
		rows[i] = []string{s.BaseName, s.ImageFile, s.Created, truncate(s.Caption, 60)}
	}
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(sepStyle).
		Headers("SET", "IMAGE", "CREATED", "CAPTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.String()
}

func runRecaption(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	limit := cfg.Recaption.Concurrency
	if concurrency > 0 {
		limit = concurrency
	}
	var mu sync.Mutex
	r := &dataset.Recaptioner{
		Client:       client,
		BackupDir:    cfg.Recaption.BackupDir,
		Replacements: cfg.Recaption.Replacements,
		Concurrency:  limit,
		DryRun:       dryRun,
		Logger:       logger.Named("recaption"),
		OnResult: func(res dataset.RecaptionResult) {
			mu.Lock()
			defer mu.Unlock()
			if res.Err != nil {
				fmt.Fprintf(out, "%s: %v\n", res.BaseName, res.Err)
				return
			}
			fmt.Fprintf(out, "%s: %s\n", res.BaseName, res.New)
		},
	}

	results, err := r.Run(cmd.Context())
	if err != nil {
		return err
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	fmt.Fprintf(out, "Recaptioned %d of %d sets\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d sets failed", failed)
	}
	return nil
}
