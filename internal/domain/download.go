package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle position of a download job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// SuccessMessage is the result message of every successful job
const SuccessMessage = "download complete"

// IsTerminal checks if the state is final
func (s JobState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ValidateState checks if a state is known
func ValidateState(s JobState) bool {
	switch s {
	case StatePending, StateRunning, StateSucceeded, StateFailed:
		return true
	}
	return false
}

// DownloadJob is a single request to save the video behind a locator.
// The request fields never change after construction; the status fields are
// written only by the runner that owns the job.
type DownloadJob struct {
	id          string
	source      string
	quality     Quality
	destination string
	createdAt   time.Time

	claimed atomic.Bool

	state           JobState
	bytesDownloaded int64
	bytesTotal      int64
	percent         float64
	percentText     string
	etaSeconds      int64
	etaText         string
	resultMessage   string
	errorMessage    string
	startedAt       *time.Time
	finishedAt      *time.Time
	updatedAt       time.Time
}

// NewDownloadJob validates the request and creates a pending job
func NewDownloadJob(source string, quality Quality, destination string) (*DownloadJob, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source locator", ErrInvalidRequest)
	}
	if !quality.IsValid() {
		return nil, fmt.Errorf("%w: unsupported quality %q", ErrInvalidRequest, quality)
	}
	if strings.TrimSpace(destination) == "" {
		return nil, fmt.Errorf("%w: empty destination directory", ErrInvalidRequest)
	}
	abs, err := filepath.Abs(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: destination %q: %v", ErrInvalidRequest, destination, err)
	}

	now := time.Now()
	return &DownloadJob{
		id:          uuid.New().String(),
		source:      source,
		quality:     quality,
		destination: abs,
		createdAt:   now,
		state:       StatePending,
		etaSeconds:  -1,
		updatedAt:   now,
	}, nil
}

func (j *DownloadJob) ID() string          { return j.id }
func (j *DownloadJob) Source() string      { return j.source }
func (j *DownloadJob) Quality() Quality    { return j.quality }
func (j *DownloadJob) Destination() string { return j.destination }
func (j *DownloadJob) State() JobState     { return j.state }

// Claim hands the job to exactly one runner. Every later call fails, so a job
// is never executed twice or finished by a runner that does not own it.
func (j *DownloadJob) Claim() error {
	if !j.claimed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: job %s is already owned by a runner", ErrInvalidStateTransition, j.id)
	}
	return nil
}

// FormatSelector returns the format expression for the job's quality
func (j *DownloadJob) FormatSelector() string {
	return j.quality.FormatSelector()
}

// OutputTemplate returns the yt-dlp output path template inside the destination directory
func (j *DownloadJob) OutputTemplate() string {
	return filepath.Join(j.destination, "%(title)s.%(ext)s")
}

// MarkRunning moves a pending job to running
func (j *DownloadJob) MarkRunning() error {
	if j.state != StatePending {
		return j.transitionError(StateRunning)
	}
	now := time.Now()
	j.state = StateRunning
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// ApplyProgress records a progress update on a running job
func (j *DownloadJob) ApplyProgress(p Progress) error {
	if j.state != StateRunning {
		return fmt.Errorf("%w: progress on %s job", ErrInvalidStateTransition, j.state)
	}
	j.bytesDownloaded = p.BytesDownloaded
	j.bytesTotal = p.BytesTotal
	j.percent = p.Percent
	j.percentText = p.PercentText
	j.etaText = p.ETAText
	if p.ETA >= 0 {
		j.etaSeconds = int64(p.ETA / time.Second)
	} else {
		j.etaSeconds = -1
	}
	j.updatedAt = time.Now()
	return nil
}

// Succeed moves a running job to succeeded
func (j *DownloadJob) Succeed(message string) error {
	if j.state != StateRunning {
		return j.transitionError(StateSucceeded)
	}
	j.finish(StateSucceeded)
	j.resultMessage = message
	if j.bytesTotal > 0 {
		j.bytesDownloaded = j.bytesTotal
	}
	j.percent = 100
	return nil
}

// Fail moves a pending or running job to failed
func (j *DownloadJob) Fail(err error) error {
	if j.state.IsTerminal() {
		return j.transitionError(StateFailed)
	}
	j.finish(StateFailed)
	if err != nil {
		j.errorMessage = err.Error()
	}
	return nil
}

func (j *DownloadJob) finish(state JobState) {
	now := time.Now()
	j.state = state
	j.finishedAt = &now
	j.updatedAt = now
}

func (j *DownloadJob) transitionError(to JobState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, j.state, to)
}

// Snapshot returns a read-only copy of the job for observers and storage
func (j *DownloadJob) Snapshot() JobRecord {
	return JobRecord{
		ID:              j.id,
		Source:          j.source,
		Quality:         j.quality,
		Format:          j.quality.FormatSelector(),
		Destination:     j.destination,
		State:           j.state,
		BytesDownloaded: j.bytesDownloaded,
		BytesTotal:      j.bytesTotal,
		Percent:         j.percent,
		PercentText:     j.percentText,
		EtaSeconds:      j.etaSeconds,
		EtaText:         j.etaText,
		ResultMessage:   j.resultMessage,
		ErrorMessage:    j.errorMessage,
		CreatedAt:       j.createdAt,
		UpdatedAt:       j.updatedAt,
		StartedAt:       copyTime(j.startedAt),
		FinishedAt:      copyTime(j.finishedAt),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// JobRecord is a point-in-time view of a DownloadJob
type JobRecord struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Source          string     `json:"source" gorm:"not null"`
	Quality         Quality    `json:"quality" gorm:"not null"`
	Format          string     `json:"format"`
	Destination     string     `json:"destination" gorm:"not null"`
	State           JobState   `json:"state" gorm:"not null;index"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	BytesTotal      int64      `json:"bytes_total"` // 0 when unknown
	Percent         float64    `json:"percent"`
	PercentText     string     `json:"percent_text,omitempty"`
	EtaSeconds      int64      `json:"eta_seconds"` // -1 when unknown
	EtaText         string     `json:"eta_text,omitempty"`
	ResultMessage   string     `json:"result_message,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// TableName overrides the gorm table name
func (JobRecord) TableName() string {
	return "jobs"
}

// IsTerminal checks if the recorded job has finished
func (r *JobRecord) IsTerminal() bool {
	return r.State.IsTerminal()
}
