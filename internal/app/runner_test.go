package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

type fetchCall struct {
	source string
	opts   domain.FetchOptions
}

// fakeFetcher records calls and runs an optional script in place of a transfer
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []fetchCall
	script func(ctx context.Context, opts domain.FetchOptions) error
}

func (f *fakeFetcher) Fetch(ctx context.Context, source string, opts domain.FetchOptions) error {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{source: source, opts: opts})
	script := f.script
	f.mu.Unlock()

	if script == nil {
		return nil
	}
	return script(ctx, opts)
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

// recorder is an observer that remembers the order of notifications
type recorder struct {
	mu       sync.Mutex
	events   []string
	progress []domain.Progress
	terminal []domain.JobRecord
}

func (r *recorder) OnProgress(p domain.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "progress")
	r.progress = append(r.progress, p)
}

func (r *recorder) OnCompletion(rec domain.JobRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "completion")
	r.terminal = append(r.terminal, rec)
}

func (r *recorder) OnFailure(rec domain.JobRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "failure")
	r.terminal = append(r.terminal, rec)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func downloading(done, total int64) domain.ProgressReport {
	return domain.ProgressReport{Status: domain.ProgressStatusDownloading, DownloadedBytes: done, TotalBytes: total, ETA: -1}
}

func newTestJob(t *testing.T, quality domain.Quality) *domain.DownloadJob {
	t.Helper()
	job, err := domain.NewDownloadJob("https://example/video", quality, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	return job
}

func waitJob(t *testing.T, h *Handle) (domain.JobRecord, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := h.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "job did not finish")
	return rec, err
}

func TestJobRunner_Success(t *testing.T) {
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		opts.Progress(downloading(50, 200))
		opts.Progress(domain.ProgressReport{Status: "finished", DownloadedBytes: 200, TotalBytes: 200})
		opts.Progress(downloading(200, 200))
		return nil
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))
	job := newTestJob(t, domain.Quality720p)

	h, err := runner.Submit(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID(), h.ID())

	record, err := waitJob(t, h)
	require.NoError(t, err)

	assert.Equal(t, domain.StateSucceeded, record.State)
	assert.Equal(t, domain.SuccessMessage, record.ResultMessage)
	assert.Equal(t, []string{"progress", "progress", "completion"}, rec.Events())
	assert.InDelta(t, 25.0, rec.progress[0].Percent, 0.0001)
	assert.InDelta(t, 100.0, rec.progress[1].Percent, 0.0001)
	assert.False(t, runner.Busy())
}

func TestJobRunner_TransferOptions(t *testing.T) {
	fetcher := &fakeFetcher{}
	runner := NewJobRunner(fetcher, zap.NewNop())
	job, err := domain.NewDownloadJob("https://example/video", domain.Quality720p, "/tmp/out")
	require.NoError(t, err)

	h, err := runner.Submit(context.Background(), job)
	require.NoError(t, err)
	_, err = waitJob(t, h)
	require.NoError(t, err)

	calls := fetcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://example/video", calls[0].source)
	assert.Equal(t, "best[height<=720]", calls[0].opts.Format)
	assert.Equal(t, "/tmp/out/%(title)s.%(ext)s", calls[0].opts.OutputTemplate)
	assert.True(t, calls[0].opts.Quiet)
	assert.True(t, calls[0].opts.NoWarnings)
	assert.NotNil(t, calls[0].opts.Progress)
}

func TestJobRunner_CreatesDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a", "b")
	var existed bool
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		_, err := os.Stat(dest)
		existed = err == nil
		return nil
	}}
	job, err := domain.NewDownloadJob("https://example/video", domain.QualityBest, dest)
	require.NoError(t, err)

	h, err := NewJobRunner(fetcher, zap.NewNop()).Submit(context.Background(), job)
	require.NoError(t, err)
	_, err = waitJob(t, h)

	require.NoError(t, err)
	assert.True(t, existed)
}

func TestJobRunner_DestinationFailureSkipsFetch(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	fetcher := &fakeFetcher{}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))
	job, err := domain.NewDownloadJob("https://example/video", domain.QualityBest, filepath.Join(blocker, "sub"))
	require.NoError(t, err)

	h, err := runner.Submit(context.Background(), job)
	require.NoError(t, err)
	record, err := waitJob(t, h)

	require.Error(t, err)
	var pathErr *os.PathError
	assert.True(t, errors.As(err, &pathErr))
	assert.Equal(t, domain.StateFailed, record.State)
	assert.NotEmpty(t, record.ErrorMessage)
	assert.Empty(t, fetcher.Calls())
	assert.Equal(t, []string{"failure"}, rec.Events())
}

func TestJobRunner_FetchError(t *testing.T) {
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		opts.Progress(downloading(10, 100))
		return errors.New("unsupported URL")
	}}
	rec := &recorder{}
	var failures []domain.JobRecord
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))
	runner.OnFailure(func(r domain.JobRecord) { failures = append(failures, r) })

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	record, err := waitJob(t, h)

	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, domain.StateFailed, record.State)
	assert.Contains(t, record.ErrorMessage, "unsupported URL")
	assert.Equal(t, []string{"progress", "failure"}, rec.Events())
	require.Len(t, failures, 1)
	assert.Equal(t, record.ID, failures[0].ID)
}

func TestJobRunner_FetcherPanic(t *testing.T) {
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		panic("library bug")
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	record, err := waitJob(t, h)

	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Contains(t, record.ErrorMessage, "library bug")
	assert.Equal(t, []string{"failure"}, rec.Events())
	assert.False(t, runner.Busy())
}

func TestJobRunner_AlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		<-release
		return nil
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))

	first, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)

	second, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	assert.Nil(t, second)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	close(release)
	record, err := waitJob(t, first)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSucceeded, record.State)
	assert.Equal(t, []string{"completion"}, rec.Events())

	third, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	_, err = waitJob(t, third)
	assert.NoError(t, err)
}

func TestJobRunner_RejectsUsedJob(t *testing.T) {
	runner := NewJobRunner(&fakeFetcher{}, zap.NewNop())
	job := newTestJob(t, domain.QualityBest)

	h, err := runner.Submit(context.Background(), job)
	require.NoError(t, err)
	_, err = waitJob(t, h)
	require.NoError(t, err)

	_, err = runner.Submit(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = runner.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestJobRunner_JobOwnedByOneRunner(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		<-release
		return nil
	}}
	recA, recB := &recorder{}, &recorder{}
	runnerA := NewJobRunner(fetcher, zap.NewNop(), WithObserver(recA))
	runnerB := NewJobRunner(fetcher, zap.NewNop(), WithObserver(recB))
	job := newTestJob(t, domain.QualityBest)

	h, err := runnerA.Submit(context.Background(), job)
	require.NoError(t, err)

	second, err := runnerB.Submit(context.Background(), job)
	assert.Nil(t, second)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.False(t, runnerB.Busy())

	close(release)
	record, err := waitJob(t, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSucceeded, record.State)
	assert.Equal(t, []string{"completion"}, recA.Events())
	assert.Empty(t, recB.Events())
	assert.Len(t, fetcher.Calls(), 1)
}

func TestJobRunner_CancelBeforeProgress(t *testing.T) {
	started := make(chan struct{})
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		close(started)
		<-ctx.Done()
		// progress emitted after cancellation is dropped
		opts.Progress(downloading(10, 100))
		return ctx.Err()
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	<-started
	require.NoError(t, runner.Cancel(h))

	record, err := waitJob(t, h)
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, domain.StateFailed, record.State)
	assert.Equal(t, domain.ErrCancelled.Error(), record.ErrorMessage)
	assert.Equal(t, []string{"failure"}, rec.Events())
}

func TestJobRunner_CancelIgnoredByFetcher(t *testing.T) {
	cancelled := make(chan struct{})
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		opts.Progress(downloading(10, 100))
		<-cancelled
		opts.Progress(downloading(90, 100))
		return nil
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.Events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	h.Cancel()
	close(cancelled)

	record, err := waitJob(t, h)
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, domain.StateFailed, record.State)
	assert.Equal(t, []string{"progress", "failure"}, rec.Events())
}

func TestJobRunner_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}}
	runner := NewJobRunner(fetcher, zap.NewNop())

	h, err := runner.Submit(ctx, newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	_, err = waitJob(t, h)

	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestJobRunner_NoProgressAfterTerminal(t *testing.T) {
	hookCh := make(chan domain.ProgressHook, 1)
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		hookCh <- opts.Progress
		return nil
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop(), WithObserver(rec))

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	_, err = waitJob(t, h)
	require.NoError(t, err)

	// a library goroutine calling the hook late must not produce events
	hook := <-hookCh
	hook(downloading(1, 2))

	assert.Equal(t, []string{"completion"}, rec.Events())
}

func TestJobRunner_ObserverPanicDoesNotAffectJob(t *testing.T) {
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		opts.Progress(downloading(1, 2))
		return nil
	}}
	rec := &recorder{}
	runner := NewJobRunner(fetcher, zap.NewNop())
	runner.OnProgress(func(domain.Progress) { panic("ui bug") })
	runner.Observe(rec)

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	record, err := waitJob(t, h)

	require.NoError(t, err)
	assert.Equal(t, domain.StateSucceeded, record.State)
	assert.Equal(t, []string{"progress", "completion"}, rec.Events())
}

func TestJobRunner_SubmitDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		<-release
		return nil
	}}

	start := time.Now()
	h, err := NewJobRunner(fetcher, zap.NewNop()).Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-h.Done():
		t.Fatal("job finished before the fetcher returned")
	default:
	}
}

func TestJobRunner_EndToEnd(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		for i := int64(1); i <= 4; i++ {
			opts.Progress(downloading(i*25, 100))
		}
		return nil
	}}
	var (
		mu        sync.Mutex
		progress  []float64
		terminals int
	)
	runner := NewJobRunner(fetcher, zap.NewNop())
	runner.OnProgress(func(p domain.Progress) {
		mu.Lock()
		progress = append(progress, p.Percent)
		mu.Unlock()
	})
	runner.OnCompletion(func(domain.JobRecord) { mu.Lock(); terminals++; mu.Unlock() })
	runner.OnFailure(func(domain.JobRecord) { mu.Lock(); terminals++; mu.Unlock() })

	job, err := domain.NewDownloadJob("https://example/video", domain.Quality720p, out)
	require.NoError(t, err)
	h, err := runner.Submit(context.Background(), job)
	require.NoError(t, err)
	_, err = waitJob(t, h)
	require.NoError(t, err)

	call := fetcher.Calls()[0]
	assert.Equal(t, "best[height<=720]", call.opts.Format)
	assert.Equal(t, out+"/%(title)s.%(ext)s", call.opts.OutputTemplate)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{25, 50, 75, 100}, progress)
	assert.Equal(t, 1, terminals)
}

func TestHandle_Result(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{script: func(ctx context.Context, opts domain.FetchOptions) error {
		<-release
		return errors.New("HTTP Error 410: Gone")
	}}
	runner := NewJobRunner(fetcher, zap.NewNop())

	h, err := runner.Submit(context.Background(), newTestJob(t, domain.QualityBest))
	require.NoError(t, err)

	_, finished, err := h.Result()
	assert.False(t, finished)
	assert.NoError(t, err)

	close(release)
	<-h.Done()

	record, finished, err := h.Result()
	assert.True(t, finished)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, domain.StateFailed, record.State)
}
