package whisper

import (
	"context"
	"fmt"

	"github.com/fmueller/whisperd/internal/download"
	"go.uber.org/zap"
)

type EnsureOptions struct {
	AutoDownload bool
	NoProgress   bool
	Logger       *zap.Logger
	// Download defaults to download.DownloadFile.
	Download func(ctx context.Context, opts download.Options) error
}

// EnsureModel resolves modelRef and downloads the catalog model when it is not
// on disk yet.
func EnsureModel(ctx context.Context, modelRef, modelDir string, opts EnsureOptions) (ResolvedModel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fetch := opts.Download
	if fetch == nil {
		fetch = download.DownloadFile
	}

	resolved, err := ResolveModel(modelRef, modelDir)
	if err != nil {
		return ResolvedModel{}, err
	}
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !opts.AutoDownload {
		return ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `whisperd setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	logger.Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := fetch(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		ChecksumURL:    resolved.SHA256URL,
		NoProgress:     opts.NoProgress,
		Logger:         logger,
	}); err != nil {
		return ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}
