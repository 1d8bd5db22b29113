package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

// JobRunner executes one DownloadJob at a time on a worker goroutine and
// reports its progress and outcome to the registered observers.
type JobRunner struct {
	fetcher domain.Fetcher
	logger  *zap.Logger

	mu        sync.Mutex
	busy      bool
	observers []domain.Observer
}

// RunnerOption configures a JobRunner
type RunnerOption func(*JobRunner)

// WithObserver registers an observer at construction
func WithObserver(o domain.Observer) RunnerOption {
	return func(r *JobRunner) {
		r.observers = append(r.observers, o)
	}
}

// NewJobRunner creates a runner that transfers through fetcher
func NewJobRunner(fetcher domain.Fetcher, logger *zap.Logger, opts ...RunnerOption) *JobRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &JobRunner{
		fetcher: fetcher,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe registers an observer for jobs submitted after this call
func (r *JobRunner) Observe(o domain.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// OnProgress registers a progress callback
func (r *JobRunner) OnProgress(fn func(domain.Progress)) {
	r.Observe(domain.ObserverFuncs{Progress: fn})
}

// OnCompletion registers a success callback
func (r *JobRunner) OnCompletion(fn func(domain.JobRecord)) {
	r.Observe(domain.ObserverFuncs{Completion: fn})
}

// OnFailure registers a failure callback
func (r *JobRunner) OnFailure(fn func(domain.JobRecord)) {
	r.Observe(domain.ObserverFuncs{Failure: fn})
}

// Busy reports whether a job is executing
func (r *JobRunner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Submit starts job on a new worker goroutine and returns immediately
func (r *JobRunner) Submit(ctx context.Context, job *domain.DownloadJob) (*Handle, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", domain.ErrInvalidRequest)
	}

	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return nil, domain.ErrAlreadyRunning
	}
	if err := job.Claim(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.busy = true
	observers := append([]domain.Observer(nil), r.observers...)
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		job:       job,
		cancel:    cancel,
		done:      make(chan struct{}),
		notifier:  newNotifier(r.logger),
		observers: observers,
	}

	r.logger.Info("Job submitted",
		zap.String("job_id", job.ID()),
		zap.String("source", job.Source()),
		zap.String("quality", string(job.Quality())),
		zap.String("fetcher", r.fetcher.Name()))

	go r.run(runCtx, h)

	return h, nil
}

// Cancel requests cooperative cancellation of the job behind h
func (r *JobRunner) Cancel(h *Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", domain.ErrInvalidRequest)
	}
	h.Cancel()
	return nil
}

func (r *JobRunner) run(ctx context.Context, h *Handle) {
	h.mu.Lock()
	err := h.job.MarkRunning()
	h.mu.Unlock()
	if err != nil {
		// Nothing was started, so the job and its observers are left alone
		r.logger.Error("Job could not start", zap.String("job_id", h.job.ID()), zap.Error(err))
		h.mu.Lock()
		h.terminated = true
		h.record, h.err = h.job.Snapshot(), err
		h.mu.Unlock()
		r.release(h)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Job worker panicked",
				zap.String("job_id", h.job.ID()),
				zap.Any("panic", p),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: panic: %v", domain.ErrTransferFailed, p)
		}
		r.finish(ctx, h, err)
	}()

	if ctx.Err() != nil {
		err = domain.ErrCancelled
		return
	}

	if err = os.MkdirAll(h.job.Destination(), 0755); err != nil {
		err = fmt.Errorf("create destination directory: %w", err)
		return
	}

	opts := domain.FetchOptions{
		Format:         h.job.FormatSelector(),
		OutputTemplate: h.job.OutputTemplate(),
		Quiet:          true,
		NoWarnings:     true,
		Progress:       h.relay,
	}

	r.logger.Debug("Fetch started",
		zap.String("job_id", h.job.ID()),
		zap.String("format", opts.Format),
		zap.String("output", opts.OutputTemplate))

	if ferr := r.fetcher.Fetch(ctx, h.job.Source(), opts); ferr != nil {
		err = fmt.Errorf("%w: %w", domain.ErrTransferFailed, ferr)
	}
}

// finish applies the single terminal transition and releases the runner
func (r *JobRunner) finish(ctx context.Context, h *Handle, err error) {
	h.mu.Lock()
	if h.cancelled || (ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled)) {
		err = domain.ErrCancelled
	}

	var terr error
	if err == nil {
		terr = h.job.Succeed(domain.SuccessMessage)
	} else {
		terr = h.job.Fail(err)
	}
	if terr != nil {
		r.logger.Error("Terminal transition rejected", zap.String("job_id", h.job.ID()), zap.Error(terr))
	}

	h.terminated = true
	rec := h.job.Snapshot()
	h.record, h.err = rec, err
	for _, o := range h.observers {
		if err == nil {
			h.notifier.publish(func() { o.OnCompletion(rec) })
		} else {
			h.notifier.publish(func() { o.OnFailure(rec) })
		}
	}
	h.mu.Unlock()

	if err == nil {
		r.logger.Info("Job succeeded", zap.String("job_id", rec.ID))
	} else {
		r.logger.Warn("Job failed", zap.String("job_id", rec.ID), zap.Error(err))
	}

	r.release(h)
}

// release frees the runner and closes the handle once queued callbacks ran
func (r *JobRunner) release(h *Handle) {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()

	h.notifier.close()
	<-h.notifier.drained()
	h.cancel()
	close(h.done)
}

// Handle identifies one submitted job
type Handle struct {
	job       *domain.DownloadJob
	cancel    context.CancelFunc
	done      chan struct{}
	notifier  *notifier
	observers []domain.Observer

	mu         sync.Mutex
	cancelled  bool
	terminated bool
	record     domain.JobRecord
	err        error
}

// ID returns the job ID
func (h *Handle) ID() string {
	return h.job.ID()
}

// Done is closed after the terminal notification has been delivered
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops progress relaying and cancels the fetch context.
// A fetcher that ignores its context keeps transferring until it returns.
func (h *Handle) Cancel() {
	h.requestCancel()
}

// requestCancel cancels the job and reports whether it was still running
func (h *Handle) requestCancel() bool {
	h.mu.Lock()
	running := !h.terminated
	if running {
		h.cancelled = true
	}
	h.mu.Unlock()
	h.cancel()
	return running
}

// Snapshot returns the current view of the job
func (h *Handle) Snapshot() domain.JobRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.Snapshot()
}

// Wait blocks until the job finished or ctx ends. It returns the terminal
// record and the job error, nil on success. Observers must not call Wait.
func (h *Handle) Wait(ctx context.Context) (domain.JobRecord, error) {
	select {
	case <-h.done:
		return h.record, h.err
	case <-ctx.Done():
		return domain.JobRecord{}, ctx.Err()
	}
}

// Result returns the terminal record and job error without blocking;
// finished is false while the job is still running
func (h *Handle) Result() (record domain.JobRecord, finished bool, err error) {
	select {
	case <-h.done:
		return h.record, true, h.err
	default:
		return domain.JobRecord{}, false, nil
	}
}

// relay is the progress hook handed to the fetcher
func (h *Handle) relay(report domain.ProgressReport) {
	if report.Status != domain.ProgressStatusDownloading {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminated || h.cancelled {
		return
	}

	p := ComputeProgress(h.job.ID(), report)
	if err := h.job.ApplyProgress(p); err != nil {
		return
	}
	for _, o := range h.observers {
		h.notifier.publish(func() { o.OnProgress(p) })
	}
}
