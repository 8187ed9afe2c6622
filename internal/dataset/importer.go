package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"fluxcrop/internal/api"
)

var ErrNoImages = errors.New("dataset: folder contains no images")

type Uploader interface {
	UploadFolder(ctx context.Context, sourceFolder string, files []api.UploadFile) (api.ImportResult, error)
}

// Importer replaces the backend workspace with the images of a local folder.
type Importer struct {
	client Uploader
	logger *zap.Logger
}

func NewImporter(client Uploader, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{client: client, logger: logger}
}

func (im *Importer) Import(ctx context.Context, dir string) (api.ImportResult, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return api.ImportResult{}, fmt.Errorf("resolve folder: %w", err)
	}
	files, err := CollectImages(ctx, abs)
	if err != nil {
		return api.ImportResult{}, err
	}
	if len(files) == 0 {
		return api.ImportResult{}, fmt.Errorf("%w: %s", ErrNoImages, abs)
	}

	im.logger.Info("uploading folder", zap.String("folder", abs), zap.Int("files", len(files)))
	res, err := im.client.UploadFolder(ctx, abs, files)
	if err != nil {
		return res, fmt.Errorf("upload %s: %w", abs, err)
	}
	im.logger.Info("import finished",
		zap.Int("imported", res.ImportedCount),
		zap.Int("skipped", res.SkippedCount))
	return res, nil
}
