package dataset

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fluxcrop/internal/api"
)

const DefaultDebounce = 2 * time.Second

// ImportReport describes one re-import triggered by folder changes.
type ImportReport struct {
	Changed []string
	Result  api.ImportResult
	Err     error
}

// Watcher re-imports a folder whenever images in it are created, changed or
// removed. Changes are debounced into a single import, because every import
// replaces the whole workspace.
type Watcher struct {
	dir      string
	importer *Importer
	debounce time.Duration
	logger   *zap.Logger

	// OnImport is called after every triggered import, on the watch goroutine.
	OnImport func(ImportReport)
}

func NewWatcher(dir string, importer *Importer, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, importer: importer, debounce: debounce, logger: logger}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("error accessing directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to add directory %s to watcher: %w", w.dir, err)
	}
	w.logger.Info("watching folder", zap.String("folder", w.dir))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})
	var order []string

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !IsImage(event.Name) {
				continue
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
				!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if _, seen := pending[event.Name]; !seen {
				pending[event.Name] = struct{}{}
				order = append(order, event.Name)
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify watcher error", zap.Error(err))

		case <-timer.C:
			report := ImportReport{Changed: order}
			pending = make(map[string]struct{})
			order = nil

			report.Result, report.Err = w.importer.Import(ctx, w.dir)
			if report.Err != nil {
				w.logger.Warn("re-import failed", zap.Error(report.Err))
			}
			if w.OnImport != nil {
				w.OnImport(report)
			}
		}
	}
}
