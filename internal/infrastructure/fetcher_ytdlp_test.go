package infrastructure

import (
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/yourusername/vgrab-go/internal/domain"
)

func TestReportFromUpdate_KnownTotal(t *testing.T) {
	update := ytdlp.ProgressUpdate{
		Status:          "downloading",
		DownloadedBytes: 512,
		TotalBytes:      1024,
		Started:         time.Now().Add(-10 * time.Second),
	}

	report := reportFromUpdate(update)

	assert.Equal(t, domain.ProgressStatusDownloading, report.Status)
	assert.Equal(t, int64(512), report.DownloadedBytes)
	assert.Equal(t, int64(1024), report.TotalBytes)
	assert.Greater(t, report.ETA, time.Duration(0))
}

func TestReportFromUpdate_UnknownTotal(t *testing.T) {
	update := ytdlp.ProgressUpdate{
		Status:          "downloading",
		DownloadedBytes: 512,
	}

	report := reportFromUpdate(update)

	assert.Equal(t, int64(0), report.TotalBytes)
	assert.Equal(t, time.Duration(-1), report.ETA)
	assert.Empty(t, report.PercentText)
}

func TestReportFromUpdate_OtherStatus(t *testing.T) {
	report := reportFromUpdate(ytdlp.ProgressUpdate{Status: "finished"})
	assert.Equal(t, "finished", report.Status)
}

func TestLibraryFetcher_Name(t *testing.T) {
	f := NewLibraryFetcher(&domain.FetcherConfig{}, nil)
	assert.Equal(t, domain.BackendLibrary, f.Name())
}
