package app

import (
	"fmt"
	"time"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// ComputeProgress converts a fetcher report into a progress notification.
// With a known total the percent is computed from the byte counts; otherwise
// the fetcher's own percent text is passed through as is.
func ComputeProgress(jobID string, r domain.ProgressReport) domain.Progress {
	p := domain.Progress{
		JobID:           jobID,
		BytesDownloaded: r.DownloadedBytes,
		BytesTotal:      r.TotalBytes,
		PercentText:     r.PercentText,
		ETA:             r.ETA,
		ETAText:         r.ETAText,
	}

	total := r.TotalBytes
	if total <= 0 {
		total = r.TotalBytesEstimate
	}
	if total > 0 && r.DownloadedBytes >= 0 {
		p.BytesTotal = total
		p.Percent = float64(r.DownloadedBytes) / float64(total) * 100
		p.PercentKnown = true
		p.PercentText = fmt.Sprintf("%.1f%%", p.Percent)
	} else {
		p.BytesTotal = 0
	}

	if p.ETAText == "" && p.ETA >= 0 {
		p.ETAText = FormatETA(p.ETA)
	}

	return p
}

// FormatETA renders a duration as MM:SS, or H:MM:SS past one hour
func FormatETA(d time.Duration) string {
	if d < 0 {
		return ""
	}
	secs := int64(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
