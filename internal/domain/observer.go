package domain

import (
	"fmt"
	"time"
)

// Progress is one progress notification for a running job
type Progress struct {
	JobID           string        `json:"job_id"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	BytesTotal      int64         `json:"bytes_total"`
	Percent         float64       `json:"percent"`
	PercentKnown    bool          `json:"percent_known"`
	PercentText     string        `json:"percent_text"`
	ETA             time.Duration `json:"eta"` // negative when unknown
	ETAText         string        `json:"eta_text"`
}

// String renders the progress the way the status line shows it
func (p Progress) String() string {
	pct := p.PercentText
	if p.PercentKnown {
		pct = fmt.Sprintf("%.1f%%", p.Percent)
	}
	eta := p.ETAText
	if eta == "" {
		eta = "unknown"
	}
	return fmt.Sprintf("downloading: %s (%s left)", pct, eta)
}

// Observer receives the notifications of a job.
// Calls for one job are never concurrent and arrive in publish order.
type Observer interface {
	OnProgress(p Progress)
	OnCompletion(r JobRecord)
	OnFailure(r JobRecord)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	Progress   func(Progress)
	Completion func(JobRecord)
	Failure    func(JobRecord)
}

func (o ObserverFuncs) OnProgress(p Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnCompletion(r JobRecord) {
	if o.Completion != nil {
		o.Completion(r)
	}
}

func (o ObserverFuncs) OnFailure(r JobRecord) {
	if o.Failure != nil {
		o.Failure(r)
	}
}
