package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bulkio/internal/history"
)

// ErrShuttingDown is returned by Submit once Wait has been called.
var ErrShuttingDown = errors.New("job engine is shutting down")

const (
	// DefaultRetention is how long a finished job stays answerable by id.
	DefaultRetention = 15 * time.Minute

	// DefaultJobTimeout bounds a single job run.
	DefaultJobTimeout = 30 * time.Minute

	// notifyEvery throttles row-level progress pushes.
	notifyEvery = 100

	listenerBuffer = 10

	historyWriteTimeout = 10 * time.Second
)

// WorkFunc performs one job. It reports progress through the tracker and
// returns the terminal outcome. ctx is cancelled when the job times out.
type WorkFunc func(ctx context.Context, t *Tracker) Outcome

// OrchestratorOptions configures an Orchestrator. Zero values take defaults.
type OrchestratorOptions struct {
	MaxConcurrent int
	MaxWaitTime   time.Duration
	Retention     time.Duration
	Timeout       time.Duration
	// Ledger receives one record per terminal job. Nil disables history.
	Ledger history.Ledger
	Now    func() time.Time
}

// Orchestrator owns job identity, lifecycle, and progress. Each job is
// mutated only by the goroutine running it; everyone else reads snapshots.
type Orchestrator struct {
	mu      sync.RWMutex
	jobs    map[string]*jobEntry
	closing bool

	limiter   *JobLimiter
	retention time.Duration
	timeout   time.Duration
	ledger    history.Ledger
	now       func() time.Time
	logger    *slog.Logger

	wg sync.WaitGroup
}

type jobEntry struct {
	mu        sync.Mutex
	job       Job
	listeners []chan Job
	closed    bool
	done      chan struct{}
}

// NewOrchestrator creates an orchestrator with its own job table.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultJobTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		jobs:      make(map[string]*jobEntry),
		limiter:   NewJobLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		retention: opts.Retention,
		timeout:   opts.Timeout,
		ledger:    opts.Ledger,
		now:       opts.Now,
		logger:    slog.Default().With("component", "orchestrator"),
	}
}

// Submit registers a Pending job and starts work on its own goroutine. It
// returns as soon as the job is visible to Status.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission, work WorkFunc) (string, error) {
	if work == nil {
		return "", errors.New("submit: nil work function")
	}

	e := &jobEntry{
		job: Job{
			ID:            uuid.New().String(),
			Kind:          sub.Kind,
			EntityType:    sub.EntityType,
			Status:        StatusPending,
			Format:        sub.Format,
			Strategy:      sub.Strategy,
			FileName:      sub.FileName,
			FileSizeBytes: sub.FileSizeBytes,
			TriggeredBy:   sub.TriggeredBy,
			StartedAt:     o.now(),
		},
		done: make(chan struct{}),
	}
	if len(sub.Filters) > 0 {
		e.job.Filters = make(map[string]string, len(sub.Filters))
		for k, v := range sub.Filters {
			e.job.Filters[k] = v
		}
	}
	if len(sub.IDs) > 0 {
		e.job.IDs = append([]string(nil), sub.IDs...)
	}

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	o.jobs[e.job.ID] = e
	o.wg.Add(1)
	o.mu.Unlock()

	jobsSubmitted.WithLabelValues(string(sub.Kind), sub.EntityType).Inc()
	o.logger.InfoContext(ctx, "job submitted",
		"job_id", e.job.ID,
		"kind", sub.Kind,
		"entity_type", sub.EntityType,
	)

	go o.run(e, work)

	return e.job.ID, nil
}

// Status returns a consistent snapshot of the job.
func (o *Orchestrator) Status(jobID string) (Job, error) {
	e, ok := o.entry(jobID)
	if !ok {
		return Job{}, ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

// Subscribe returns a channel of snapshots for the job. The current
// snapshot is delivered first. Slow readers miss intermediate updates but
// always see the terminal one before the channel closes.
func (o *Orchestrator) Subscribe(jobID string) (<-chan Job, error) {
	e, ok := o.entry(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}

	ch := make(chan Job, listenerBuffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	ch <- e.job.clone()
	if e.closed {
		close(ch)
		return ch, nil
	}
	e.listeners = append(e.listeners, ch)
	return ch, nil
}

// Await blocks until the job is terminal or ctx is done.
func (o *Orchestrator) Await(ctx context.Context, jobID string) (Job, error) {
	e, ok := o.entry(jobID)
	if !ok {
		return Job{}, ErrJobNotFound
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

// Wait stops accepting jobs and blocks until every running job finishes
// or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of jobs currently held, finished or not.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.jobs)
}

// LimiterStatus reports worker slot usage.
func (o *Orchestrator) LimiterStatus() LimiterStatus {
	return o.limiter.Status()
}

func (o *Orchestrator) entry(jobID string) (*jobEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.jobs[jobID]
	return e, ok
}

func (o *Orchestrator) run(e *jobEntry, work WorkFunc) {
	defer o.wg.Done()

	t := &Tracker{o: o, e: e}

	if err := o.limiter.Acquire(context.Background()); err != nil {
		t.markProcessing()
		t.markTerminal(FailedOutcome(err))
		return
	}
	defer o.limiter.Release()

	kind := string(e.job.Kind)
	jobsRunning.WithLabelValues(kind).Inc()
	defer jobsRunning.WithLabelValues(kind).Dec()

	t.markProcessing()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	t.markTerminal(o.execute(ctx, t, work))
}

// execute runs work, turning a panic into a Failed outcome.
func (o *Orchestrator) execute(ctx context.Context, t *Tracker, work WorkFunc) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("job panicked",
				"job_id", t.ID(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = Outcome{Status: StatusFailed, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	out = work(ctx, t)
	if !out.Status.Terminal() || out.Status == StatusCancelled {
		out = Outcome{Status: StatusFailed, Message: fmt.Sprintf("internal error: worker returned status %q", out.Status)}
	}
	return out
}

func (o *Orchestrator) recordHistory(job Job) {
	if o.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := o.ledger.Record(ctx, job.HistoryRecord()); err != nil {
		historyWriteErrors.Inc()
		o.logger.Error("history record failed",
			"job_id", job.ID,
			"kind", job.Kind,
			"entity_type", job.EntityType,
			"error", err,
		)
	}
}

func (o *Orchestrator) scheduleEviction(jobID string) {
	time.AfterFunc(o.retention, func() {
		o.mu.Lock()
		delete(o.jobs, jobID)
		o.mu.Unlock()
	})
}

// Tracker is the single writer for one job. The orchestrator hands it to
// the job's WorkFunc; it must not be shared with other goroutines.
type Tracker struct {
	o *Orchestrator
	e *jobEntry
}

// ID returns the job id.
func (t *Tracker) ID() string {
	return t.e.job.ID
}

// Job returns a snapshot of the job.
func (t *Tracker) Job() Job {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	return t.e.job.clone()
}

// SetTotal sets the number of rows the job will process.
func (t *Tracker) SetTotal(n int) {
	t.update(true, func(j *Job) {
		if n < j.ProcessedRows {
			n = j.ProcessedRows
		}
		j.TotalRows = n
	})
}

// RecordRow counts one processed row. Progress stays below 100 until the
// job is marked Completed.
func (t *Tracker) RecordRow(out RowOutcome) {
	var notify bool
	t.update(false, func(j *Job) {
		j.ProcessedRows++
		switch {
		case !out.Success:
			j.ErrorCount++
		case out.Skip:
			j.SkippedCount++
		case out.Update:
			j.UpdatedCount++
		default:
			j.SuccessCount++
		}
		if j.ProcessedRows > j.TotalRows {
			j.TotalRows = j.ProcessedRows
		}
		raise(j, percentOf(j.ProcessedRows, j.TotalRows, 99))
		notify = j.ProcessedRows%notifyEvery == 0 || j.ProcessedRows == j.TotalRows
	})
	if notify {
		t.notify()
	}
}

// SetProcessed records how many rows have been handled so far. Lower
// values than the current count are ignored.
func (t *Tracker) SetProcessed(n int) {
	t.update(true, func(j *Job) {
		if n > j.ProcessedRows {
			j.ProcessedRows = n
		}
		if j.ProcessedRows > j.TotalRows {
			j.TotalRows = j.ProcessedRows
		}
	})
}

// SetProgress raises the progress percentage. Values below the current
// figure are ignored and values above 100 are clamped.
func (t *Tracker) SetProgress(percent int) {
	t.update(true, func(j *Job) {
		raise(j, percent)
	})
}

func (t *Tracker) update(notify bool, fn func(j *Job)) {
	t.e.mu.Lock()
	if t.e.job.Status != StatusProcessing {
		status := t.e.job.Status
		t.e.mu.Unlock()
		panic(fmt.Sprintf("job %s: progress update in status %s", t.e.job.ID, status))
	}
	fn(&t.e.job)
	t.e.mu.Unlock()
	if notify {
		t.notify()
	}
}

func (t *Tracker) notify() {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	t.e.broadcast()
}

// markProcessing moves Pending to Processing.
func (t *Tracker) markProcessing() {
	e := t.e
	e.mu.Lock()
	if e.job.Status != StatusPending {
		status := e.job.Status
		e.mu.Unlock()
		panic(fmt.Sprintf("job %s: illegal transition %s -> %s", e.job.ID, status, StatusProcessing))
	}
	e.job.Status = StatusProcessing
	e.broadcast()
	e.mu.Unlock()

	t.o.logger.Info("job processing",
		"job_id", e.job.ID,
		"kind", e.job.Kind,
		"entity_type", e.job.EntityType,
	)
}

// markTerminal moves Processing to Completed or Failed. The history record
// is written before the terminal status becomes visible, so anyone who
// reads a finished job can also find it in the ledger. Waiters are woken
// last and eviction is scheduled. Any other transition panics.
func (t *Tracker) markTerminal(out Outcome) {
	e := t.e
	e.mu.Lock()
	if e.job.Status != StatusProcessing || !out.Status.Terminal() || out.Status == StatusCancelled {
		from := e.job.Status
		e.mu.Unlock()
		panic(fmt.Sprintf("job %s: illegal transition %s -> %s", e.job.ID, from, out.Status))
	}
	snap := e.job.clone()
	e.mu.Unlock()

	now := t.o.now()
	snap.Status = out.Status
	snap.Message = out.Message
	snap.CompletedAt = &now
	if out.ErrorReportID != "" {
		snap.ErrorReportID = out.ErrorReportID
	}
	if out.DownloadRef != "" {
		snap.DownloadRef = out.DownloadRef
	}
	if out.FileSizeBytes > 0 {
		snap.FileSizeBytes = out.FileSizeBytes
	}
	if out.ExpiresAt != nil {
		exp := *out.ExpiresAt
		snap.ExpiresAt = &exp
	}
	if out.Status == StatusCompleted {
		snap.ProgressPercent = 100
	}

	t.o.recordHistory(snap)

	e.mu.Lock()
	e.job = snap.clone()
	for _, ch := range e.listeners {
		// Make room so the terminal snapshot is never dropped.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
		close(ch)
	}
	e.listeners = nil
	e.closed = true
	e.mu.Unlock()
	close(e.done)

	elapsed := now.Sub(snap.StartedAt)
	jobsFinished.WithLabelValues(string(snap.Kind), string(snap.Status)).Inc()
	jobDuration.WithLabelValues(string(snap.Kind), string(snap.Status)).Observe(elapsed.Seconds())

	level := slog.LevelInfo
	if snap.Status == StatusFailed {
		level = slog.LevelWarn
	}
	t.o.logger.Log(context.Background(), level, "job finished",
		"job_id", snap.ID,
		"kind", snap.Kind,
		"entity_type", snap.EntityType,
		"status", snap.Status,
		"processed_rows", snap.ProcessedRows,
		"error_count", snap.ErrorCount,
		"duration_ms", elapsed.Milliseconds(),
		"message", snap.Message,
	)

	t.o.scheduleEviction(snap.ID)
}

// broadcast sends the current snapshot to every listener without blocking.
// Callers hold e.mu.
func (e *jobEntry) broadcast() {
	if len(e.listeners) == 0 {
		return
	}
	snap := e.job.clone()
	for _, ch := range e.listeners {
		select {
		case ch <- snap:
		default:
			// Listener is slow, skip this update
		}
	}
}

func raise(j *Job, percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}
}

// percentOf returns done/total as a percentage, capped at ceiling.
func percentOf(done, total, ceiling int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > ceiling {
		p = ceiling
	}
	return p
}
