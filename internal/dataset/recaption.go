package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fluxcrop/internal/api"
)

const BackupPrefix = "BKUP_"

var ErrEmptyCaption = errors.New("dataset: generated caption is empty")

type CaptionService interface {
	ListProcessedSets(ctx context.Context) ([]api.ProcessedSet, error)
	FetchProcessedImage(ctx context.Context, filename string) ([]byte, error)
	GenerateCaption(ctx context.Context, filename string, image []byte) (string, error)
	UpdateCaption(ctx context.Context, baseName, caption string) (api.Result, error)
}

type RecaptionResult struct {
	BaseName string
	Old      string
	New      string
	Backup   string
	Err      error
}

// Recaptioner regenerates the caption of every processed set. The previous
// caption is backed up first and vocabulary replacements are applied to the
// new one.
type Recaptioner struct {
	Client       CaptionService
	BackupDir    string
	Replacements map[string]string
	Concurrency  int
	DryRun       bool
	Logger       *zap.Logger

	// OnResult is called as each set finishes, possibly from several
	// goroutines at once.
	OnResult func(RecaptionResult)
}

// Run processes all sets and returns their results in listing order. A
// failing set does not stop the others; only listing errors and
// cancellation are returned as err.
func (r *Recaptioner) Run(ctx context.Context) ([]RecaptionResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sets, err := r.Client.ListProcessedSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processed sets: %w", err)
	}
	if r.BackupDir != "" && !r.DryRun {
		if err := os.MkdirAll(r.BackupDir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}
	results := make([]RecaptionResult, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, set := range sets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.recaption(gctx, set)
			results[i] = res
			if res.Err != nil {
				logger.Warn("recaption failed", zap.String("set", set.BaseName), zap.Error(res.Err))
			} else {
				logger.Info("recaptioned", zap.String("set", set.BaseName), zap.Int("length", len(res.New)))
			}
			if r.OnResult != nil {
				r.OnResult(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Recaptioner) recaption(ctx context.Context, set api.ProcessedSet) RecaptionResult {
	res := RecaptionResult{BaseName: set.BaseName, Old: set.Caption}

	if r.BackupDir != "" && set.Caption != "" {
		res.Backup = filepath.Join(r.BackupDir, BackupPrefix+set.BaseName+".txt")
		if !r.DryRun {
			if err := os.WriteFile(res.Backup, []byte(set.Caption), 0o644); err != nil {
				res.Err = fmt.Errorf("write backup: %w", err)
				return res
			}
		}
	}

	imageFile := set.ImageFile
	if imageFile == "" {
		imageFile = set.BaseName + ".png"
	}
	img, err := r.Client.FetchProcessedImage(ctx, imageFile)
	if err != nil {
		res.Err = fmt.Errorf("fetch image: %w", err)
		return res
	}
	caption, err := r.Client.GenerateCaption(ctx, imageFile, img)
	if err != nil {
		res.Err = fmt.Errorf("generate caption: %w", err)
		return res
	}
	caption = Normalize(strings.TrimSpace(caption), r.Replacements)
	if caption == "" {
		res.Err = ErrEmptyCaption
		return res
	}
	res.New = caption

	if r.DryRun {
		return res
	}
	if _, err := r.Client.UpdateCaption(ctx, set.BaseName, caption); err != nil {
		res.Err = fmt.Errorf("update caption: %w", err)
	}
	return res
}

// Normalize replaces each term with its substitute, matching the term as
// written, in lower case and in title case. Longer terms are applied first so
// "sisters" wins over "sister".
func Normalize(text string, replacements map[string]string) string {
	if len(replacements) == 0 {
		return text
	}
	terms := make([]string, 0, len(replacements))
	for t := range replacements {
		if t != "" {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	title := cases.Title(language.Und)
	for _, term := range terms {
		sub := replacements[term]
		text = strings.ReplaceAll(text, term, sub)
		text = strings.ReplaceAll(text, strings.ToLower(term), sub)
		text = strings.ReplaceAll(text, title.String(term), sub)
	}
	return text
}
