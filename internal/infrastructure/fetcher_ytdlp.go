package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

const defaultProgressInterval = 500 * time.Millisecond

// LibraryFetcher implements Fetcher on top of go-ytdlp
type LibraryFetcher struct {
	config *domain.FetcherConfig
	logger *zap.Logger
}

// NewLibraryFetcher creates a new go-ytdlp backed fetcher
func NewLibraryFetcher(config *domain.FetcherConfig, logger *zap.Logger) *LibraryFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryFetcher{config: config, logger: logger}
}

// Name returns the backend name
func (f *LibraryFetcher) Name() string {
	return domain.BackendLibrary
}

// Fetch downloads source with the given options
func (f *LibraryFetcher) Fetch(ctx context.Context, source string, opts domain.FetchOptions) error {
	command := ytdlp.New().
		Format(opts.Format).
		Output(opts.OutputTemplate)

	if opts.Quiet {
		command = command.Quiet()
	}
	if opts.NoWarnings {
		command = command.NoWarnings()
	}
	if f.config.YTDLPBinary != "" {
		command = command.SetExecutable(f.config.YTDLPBinary)
	}
	if f.config.CookieFile != "" && fileExists(f.config.CookieFile) {
		command = command.Cookies(f.config.CookieFile)
	}

	if opts.Progress != nil {
		interval := f.config.ProgressInterval
		if interval <= 0 {
			interval = defaultProgressInterval
		}
		command = command.ProgressFunc(interval, func(update ytdlp.ProgressUpdate) {
			opts.Progress(reportFromUpdate(update))
		})
	}

	f.logger.Debug("Starting yt-dlp", zap.String("source", source), zap.String("format", opts.Format))

	res, err := command.Run(ctx, source)
	if err != nil {
		if res != nil && res.Stderr != "" {
			f.logger.Debug("yt-dlp stderr", zap.String("stderr", res.Stderr))
		}
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

// reportFromUpdate converts a go-ytdlp progress update into a ProgressReport
func reportFromUpdate(update ytdlp.ProgressUpdate) domain.ProgressReport {
	report := domain.ProgressReport{
		Status:          string(update.Status),
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		ETA:             -1,
	}

	if report.TotalBytes > 0 && report.DownloadedBytes > 0 && !update.Started.IsZero() {
		if eta := update.ETA(); eta > 0 {
			report.ETA = eta
		}
	}
	return report
}
