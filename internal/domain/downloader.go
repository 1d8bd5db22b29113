package domain

import (
	"context"
	"time"
)

// ProgressStatusDownloading is the only fetcher status relayed to observers
const ProgressStatusDownloading = "downloading"

// ProgressReport is the raw progress data emitted by a fetcher.
// Zero byte counts and empty strings mean the fetcher did not know the value.
type ProgressReport struct {
	Status             string
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	PercentText        string
	ETA                time.Duration // negative when unknown
	ETAText            string
}

// ProgressHook is invoked by a fetcher zero or more times during a transfer
type ProgressHook func(ProgressReport)

// FetchOptions are the transfer options handed to a fetcher
type FetchOptions struct {
	Format         string
	OutputTemplate string
	Quiet          bool
	NoWarnings     bool
	Progress       ProgressHook
}

// Fetcher performs the network retrieval and file write for a locator
type Fetcher interface {
	// Fetch blocks until the transfer ends and returns its error, if any
	Fetch(ctx context.Context, source string, opts FetchOptions) error

	// Name identifies the backend in logs and metrics
	Name() string
}
