package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/observability"
	"github.com/yourusername/vgrab-go/pkg/logger"
	"go.uber.org/zap"
)

// InterruptedMessage is the error recorded for jobs a previous process left unfinished
const InterruptedMessage = "interrupted by shutdown"

// ErrServiceClosed is returned by Submit once Shutdown has started
var ErrServiceClosed = errors.New("service is shutting down")

// progressSaveInterval throttles how often running progress is written to the repository
const progressSaveInterval = 2 * time.Second

// SubmitRequest describes a download requested through the service
type SubmitRequest struct {
	Source      string `json:"url"`
	Quality     string `json:"quality"`
	Destination string `json:"destination"`
}

// DownloadService runs every submitted job on its own JobRunner, keeps the job
// history in the repository and fans notifications out to the sinks.
type DownloadService struct {
	fetcher domain.Fetcher
	repo    domain.JobRepository
	config  *domain.DownloadConfig
	logger  *zap.Logger
	events  *logger.MultiLogger
	metrics *observability.Metrics
	sinks   []domain.Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	active map[string]*Handle
	closed bool
	wg     sync.WaitGroup
}

// ServiceOption configures a DownloadService
type ServiceOption func(*DownloadService)

// WithSink adds an observer that receives the notifications of every job
func WithSink(o domain.Observer) ServiceOption {
	return func(s *DownloadService) {
		s.sinks = append(s.sinks, o)
	}
}

// WithEventLog writes job lifecycle events to the job category log
func WithEventLog(ml *logger.MultiLogger) ServiceOption {
	return func(s *DownloadService) {
		s.events = ml
	}
}

// WithMetrics records job metrics
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *DownloadService) {
		s.metrics = m
	}
}

// NewDownloadService creates a new download service
func NewDownloadService(
	fetcher domain.Fetcher,
	repo domain.JobRepository,
	config *domain.DownloadConfig,
	log *zap.Logger,
	opts ...ServiceOption,
) *DownloadService {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &DownloadService{
		fetcher: fetcher,
		repo:    repo,
		config:  config,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, records the job and starts it
func (s *DownloadService) Submit(req SubmitRequest) (*domain.JobRecord, error) {
	qualityLabel := req.Quality
	if qualityLabel == "" {
		qualityLabel = s.config.DefaultQuality
	}
	quality, err := domain.ParseQuality(qualityLabel)
	if err != nil {
		return nil, err
	}

	dest := req.Destination
	if dest == "" {
		dest = s.config.Dir
	}

	job, err := domain.NewDownloadJob(req.Source, quality, dest)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	record := job.Snapshot()
	if err := s.repo.Create(&record); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	observers := append([]domain.Observer{s.newTracker(record)}, s.sinks...)
	runner := NewJobRunner(s.fetcher, s.logger.With(zap.String("job_id", job.ID())))
	for _, o := range observers {
		runner.Observe(o)
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted()
	}
	s.logEvent("job_submitted", record)

	h, err := runner.Submit(s.ctx, job)
	if err != nil {
		return nil, err
	}
	s.active[job.ID()] = h

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-h.Done()
		s.mu.Lock()
		delete(s.active, h.ID())
		s.mu.Unlock()
	}()

	return &record, nil
}

// SubmitFrom downloads whatever the provider currently points at
func (s *DownloadService) SubmitFrom(provider domain.SourceProvider, quality, destination string) (*domain.JobRecord, error) {
	locator, err := provider.CurrentLocator()
	if err != nil {
		return nil, err
	}
	return s.Submit(SubmitRequest{Source: locator, Quality: quality, Destination: destination})
}

// Cancel requests cancellation of an active job
func (s *DownloadService) Cancel(id string) error {
	s.mu.RLock()
	h, ok := s.active[id]
	s.mu.RUnlock()

	if ok {
		if !h.requestCancel() {
			// finished, terminal notifications still in flight
			return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidStateTransition, id, h.Snapshot().State)
		}
		s.logger.Info("Job cancel requested", zap.String("job_id", id))
		return nil
	}

	record, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidStateTransition, id, record.State)
}

// PruneResult reports a history prune
type PruneResult struct {
	Deleted   int   `json:"deleted"`
	Remaining int64 `json:"remaining"`
}

// Delete removes the stored record of a finished job
func (s *DownloadService) Delete(id string) error {
	if s.isActive(id) {
		return fmt.Errorf("%w: job %s is still active", domain.ErrInvalidStateTransition, id)
	}

	record, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	if !record.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidStateTransition, id, record.State)
	}

	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	s.logEvent("job_deleted", *record)
	return nil
}

// Prune deletes the records of finished jobs, only those in state when it is set
func (s *DownloadService) Prune(state domain.JobState) (*PruneResult, error) {
	states := []domain.JobState{domain.StateSucceeded, domain.StateFailed}
	if state != "" {
		if !state.IsTerminal() {
			return nil, fmt.Errorf("%w: only finished jobs can be pruned, got %q", domain.ErrInvalidRequest, state)
		}
		states = []domain.JobState{state}
	}

	result := &PruneResult{}
	for _, st := range states {
		records, err := s.repo.FindByState(st)
		if err != nil {
			return nil, fmt.Errorf("failed to find %s jobs: %w", st, err)
		}
		for _, r := range records {
			// terminal notifications still in flight
			if s.isActive(r.ID) {
				continue
			}
			if err := s.repo.Delete(r.ID); err != nil {
				return nil, fmt.Errorf("failed to delete job %s: %w", r.ID, err)
			}
			result.Deleted++
		}
	}

	remaining, err := s.repo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	result.Remaining = remaining

	s.logger.Info("Pruned job history",
		zap.Int("deleted", result.Deleted),
		zap.Int64("remaining", result.Remaining))
	if s.events != nil {
		s.events.LogJobEvent("history_pruned",
			zap.String("state", string(state)),
			zap.Int("deleted", result.Deleted),
			zap.Int64("remaining", result.Remaining))
	}
	return result, nil
}

func (s *DownloadService) isActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// Get returns the live view of an active job or the stored record
func (s *DownloadService) Get(id string) (*domain.JobRecord, error) {
	s.mu.RLock()
	h, ok := s.active[id]
	s.mu.RUnlock()

	if ok {
		record := h.Snapshot()
		return &record, nil
	}
	return s.repo.FindByID(id)
}

// List returns stored records with active jobs replaced by their live view
func (s *DownloadService) List(filters map[string]interface{}) ([]*domain.JobRecord, error) {
	records, err := s.repo.FindAll(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, r := range records {
		if h, ok := s.active[r.ID]; ok {
			live := h.Snapshot()
			records[i] = &live
		}
	}
	return records, nil
}

// Stats returns job statistics
func (s *DownloadService) Stats() (*domain.JobStats, error) {
	return s.repo.GetStats()
}

// ActiveCount returns the number of running jobs
func (s *DownloadService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Wait blocks until the job finished and returns its terminal record
func (s *DownloadService) Wait(ctx context.Context, id string) (*domain.JobRecord, error) {
	s.mu.RLock()
	h, ok := s.active[id]
	s.mu.RUnlock()

	if !ok {
		return s.repo.FindByID(id)
	}
	record, err := h.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	return &record, nil
}

// RecoverInterrupted fails the records a previous process left pending or running
func (s *DownloadService) RecoverInterrupted() (int, error) {
	count := 0
	for _, state := range []domain.JobState{domain.StatePending, domain.StateRunning} {
		records, err := s.repo.FindByState(state)
		if err != nil {
			return count, fmt.Errorf("failed to find %s jobs: %w", state, err)
		}
		for _, r := range records {
			if s.isActive(r.ID) {
				continue
			}

			now := time.Now()
			r.State = domain.StateFailed
			r.ErrorMessage = InterruptedMessage
			r.FinishedAt = &now
			if err := s.repo.Update(r); err != nil {
				return count, fmt.Errorf("failed to update job %s: %w", r.ID, err)
			}
			s.logEvent("job_interrupted", *r)
			count++
		}
	}

	if count > 0 {
		s.logger.Info("Marked interrupted jobs as failed", zap.Int("count", count))
	}
	return count, nil
}

// Shutdown cancels every active job and waits for their terminal notifications
func (s *DownloadService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Download service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DownloadService) logEvent(event string, r domain.JobRecord) {
	if s.events == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job_id", r.ID),
		zap.String("source", r.Source),
		zap.String("quality", string(r.Quality)),
		zap.String("state", string(r.State)),
		zap.String("destination", r.Destination),
	}
	if r.ErrorMessage != "" {
		fields = append(fields, zap.String("error", r.ErrorMessage))
	}
	s.events.LogJobEvent(event, fields...)
}

// jobTracker persists the notifications of one job; it runs before the other sinks
type jobTracker struct {
	svc       *DownloadService
	record    domain.JobRecord
	lastSaved time.Time
}

func (s *DownloadService) newTracker(r domain.JobRecord) *jobTracker {
	return &jobTracker{svc: s, record: r}
}

func (t *jobTracker) OnProgress(p domain.Progress) {
	if t.svc.metrics != nil {
		t.svc.metrics.RecordProgress()
	}

	first := t.record.State == domain.StatePending
	if first {
		now := time.Now()
		t.record.State = domain.StateRunning
		t.record.StartedAt = &now
	}
	t.record.BytesDownloaded = p.BytesDownloaded
	t.record.BytesTotal = p.BytesTotal
	t.record.Percent = p.Percent
	t.record.PercentText = p.PercentText
	t.record.EtaText = p.ETAText
	t.record.EtaSeconds = -1
	if p.ETA >= 0 {
		t.record.EtaSeconds = int64(p.ETA / time.Second)
	}

	if !first && time.Since(t.lastSaved) < progressSaveInterval {
		return
	}
	t.lastSaved = time.Now()
	if err := t.svc.repo.Update(&t.record); err != nil {
		t.svc.logger.Warn("Failed to save job progress", zap.String("job_id", t.record.ID), zap.Error(err))
	}
	if first {
		t.svc.logEvent("job_started", t.record)
	}
}

func (t *jobTracker) OnCompletion(r domain.JobRecord) {
	t.finish(r, "job_succeeded")
	if t.svc.metrics != nil {
		t.svc.metrics.RecordJobSucceeded(duration(r), r.BytesDownloaded)
	}
}

func (t *jobTracker) OnFailure(r domain.JobRecord) {
	event, reason := "job_failed", "error"
	if r.ErrorMessage == domain.ErrCancelled.Error() {
		event, reason = "job_cancelled", "cancelled"
	}
	t.finish(r, event)
	if t.svc.metrics != nil {
		t.svc.metrics.RecordJobFailed(duration(r), reason)
	}
}

func (t *jobTracker) finish(r domain.JobRecord, event string) {
	t.record = r
	if err := t.svc.repo.Update(&r); err != nil {
		t.svc.logger.Error("Failed to save job result", zap.String("job_id", r.ID), zap.Error(err))
		if t.svc.events != nil {
			t.svc.events.LogAppError("failed to save job result", zap.String("job_id", r.ID), zap.Error(err))
		}
	}
	t.svc.logEvent(event, r)
}

func duration(r domain.JobRecord) time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsClientError reports whether err was caused by the request rather than the service
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest)
}
