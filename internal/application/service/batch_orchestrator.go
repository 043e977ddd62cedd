package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/domain/workflow"
)

// BatchJob is one unit of a batch
type BatchJob struct {
	JobID   string `json:"job_id,omitempty" yaml:"job_id"`
	Name    string `json:"name,omitempty" yaml:"name"`
	Path    string `json:"path,omitempty" yaml:"file"`
	Content []byte `json:"-" yaml:"-"`
	Entity  string `json:"entity" yaml:"entity"`
	Period  string `json:"period" yaml:"period"`
	// Force reprocesses a fingerprint that already completed
	Force bool `json:"force,omitempty" yaml:"force"`
}

// BatchOptions bounds a batch run
type BatchOptions struct {
	MaxConcurrent int
	MaxRetries    int
	DryRun        bool
	SkipCompleted bool
	BackoffUnit   time.Duration
}

const (
	DefaultMaxConcurrent = 4
	DefaultMaxRetries    = 3
	DefaultBackoffUnit   = time.Second
)

func (o BatchOptions) withDefaults() BatchOptions {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = DefaultBackoffUnit
	}
	return o
}

// BatchOrchestrator runs ingestion jobs under bounded concurrency with retry and backoff
type BatchOrchestrator interface {
	// IngestBatch returns once every job reached a terminal state.
	// An error means the batch could not start; job failures are reported in the summary.
	IngestBatch(ctx context.Context, jobs []BatchJob, opts BatchOptions) (*entity.BatchSummary, error)
	// Cancel stops a pending, running or retrying job; false when the id is unknown or
	// the job already reached a terminal state
	Cancel(jobID string) bool
}

type batchOrchestratorImpl struct {
	ingestion IngestionService
	jobs      port.JobRepository
	events    emitter
	logger    Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewBatchOrchestrator creates a new BatchOrchestrator
func NewBatchOrchestrator(
	ingestion IngestionService,
	jobs port.JobRepository,
	d dispatcher.Dispatcher,
	logger Logger,
) BatchOrchestrator {
	logger = orNop(logger)
	return &batchOrchestratorImpl{
		ingestion: ingestion,
		jobs:      jobs,
		events:    emitter{dispatcher: d, logger: logger},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepContext,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// trackedJob is owned by exactly one goroutine once the batch starts
type trackedJob struct {
	spec    BatchJob
	job     *entity.IngestionJob
	machine workflow.StateMachine
	ctx     context.Context
	outcome *entity.JobOutcome
}

func (o *batchOrchestratorImpl) IngestBatch(ctx context.Context, jobs []BatchJob, opts BatchOptions) (*entity.BatchSummary, error) {
	opts = opts.withDefaults()
	started := o.now()

	tracked, err := o.prepare(ctx, jobs, opts)
	if err != nil {
		return nil, err
	}
	defer o.forget(tracked)

	o.logger.Info("Starting ingestion batch",
		"jobs", len(tracked),
		"max_concurrent", opts.MaxConcurrent,
		"max_retries", opts.MaxRetries,
		"dry_run", opts.DryRun,
	)

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrent))
	var wg sync.WaitGroup
	for _, t := range tracked {
		if t.ctx.Err() != nil {
			o.transition(t, workflow.TriggerCancel, opts)
			continue
		}
		// jobs beyond the limit wait here, before any goroutine exists for them
		if err := sem.Acquire(t.ctx, 1); err != nil {
			o.transition(t, workflow.TriggerCancel, opts)
			continue
		}
		wg.Add(1)
		go func(t *trackedJob) {
			defer wg.Done()
			defer sem.Release(1)
			o.runJob(t, opts)
		}(t)
	}
	wg.Wait()

	summary := summarize(tracked)
	summary.Elapsed = o.now().Sub(started)
	o.logger.Info("Ingestion batch finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"records_inserted", summary.TotalInserted,
		"records_failed", summary.TotalFailed,
	)
	return summary, nil
}

func (o *batchOrchestratorImpl) prepare(ctx context.Context, jobs []BatchJob, opts BatchOptions) ([]*trackedJob, error) {
	// the whole batch is checked before any job row is written
	specs := make([]BatchJob, len(jobs))
	seen := make(map[string]bool, len(jobs))
	for i, spec := range jobs {
		if spec.Entity == "" || spec.Period == "" || (spec.Path == "" && spec.Content == nil) {
			return nil, fmt.Errorf("%w: job %d needs a file, entity and period", ErrInvalidRequest, i)
		}
		if spec.JobID == "" {
			spec.JobID = uuid.NewString()
		}
		if seen[spec.JobID] {
			return nil, fmt.Errorf("%w: duplicate job id %s", ErrInvalidRequest, spec.JobID)
		}
		seen[spec.JobID] = true
		specs[i] = spec
	}

	tracked := make([]*trackedJob, 0, len(specs))
	for _, spec := range specs {
		name := spec.Name
		if name == "" {
			name = IngestRequest{Path: spec.Path}.sourceName()
		}
		job := &entity.IngestionJob{
			JobID:      spec.JobID,
			SourceName: name,
			SourcePath: spec.Path,
			Entity:     spec.Entity,
			Period:     spec.Period,
			Status:     workflow.StatePending,
			MaxRetries: opts.MaxRetries,
			Force:      spec.Force,
			CreatedAt:  o.now(),
		}
		if !opts.DryRun {
			if err := o.jobs.Create(ctx, job); err != nil {
				return nil, fmt.Errorf("create job %s: %w", job.JobID, err)
			}
		}
		tracked = append(tracked, &trackedJob{
			spec:    spec,
			job:     job,
			machine: workflow.NewJobMachine(workflow.StatePending),
			outcome: &entity.JobOutcome{},
		})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range tracked {
		jobCtx, cancel := context.WithCancel(ctx)
		t.ctx = jobCtx
		o.cancels[t.job.JobID] = cancel
	}
	return tracked, nil
}

func (o *batchOrchestratorImpl) forget(tracked []*trackedJob) {
	for _, t := range tracked {
		o.release(t.job.JobID)
	}
}

// release drops a job from the cancellable set and frees its context
func (o *batchOrchestratorImpl) release(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[jobID]; ok {
		cancel()
		delete(o.cancels, jobID)
	}
}

func (o *batchOrchestratorImpl) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		o.logger.Info("Cancellation requested", "job_id", jobID)
		cancel()
	}
	return ok
}

// runJob drives one job to a terminal state. Nothing escapes it: errors and panics
// become transitions.
func (o *batchOrchestratorImpl) runJob(t *trackedJob, opts BatchOptions) {
	policy := RetryPolicy{Unit: opts.BackoffUnit}
	o.transition(t, workflow.TriggerStart, opts)

	for {
		result, err := o.attempt(t, opts)
		if err == nil {
			t.outcome.Result = result
			o.transition(t, workflow.TriggerSucceed, opts)
			return
		}

		t.job.LastError = err.Error()
		switch {
		case t.ctx.Err() != nil:
			o.transition(t, workflow.TriggerCancel, opts)
			return
		case !apperr.IsRetryable(err) || errors.Is(err, ErrInvalidRequest):
			o.logger.Error("Job failed permanently", "job_id", t.job.JobID, "error", err)
			o.transition(t, workflow.TriggerFail, opts)
			return
		}

		t.job.RetryCount++
		if t.job.RetryCount > t.job.MaxRetries {
			o.logger.Error("Job exhausted retries", "job_id", t.job.JobID, "retries", t.job.MaxRetries, "error", err)
			o.transition(t, workflow.TriggerFail, opts)
			return
		}
		// cancellation is checked before every retry transition
		if t.ctx.Err() != nil {
			o.transition(t, workflow.TriggerCancel, opts)
			return
		}
		o.transition(t, workflow.TriggerRetry, opts)

		wait := policy.Backoff(t.job.RetryCount)
		o.logger.Info("Retrying job after backoff",
			"job_id", t.job.JobID, "retry", t.job.RetryCount, "backoff", wait.String(), "error", err)
		if err := o.sleep(t.ctx, wait); err != nil || t.ctx.Err() != nil {
			o.transition(t, workflow.TriggerCancel, opts)
			return
		}
		o.transition(t, workflow.TriggerResume, opts)
	}
}

// attempt runs the ingestion once and turns a panic into a retryable error
func (o *batchOrchestratorImpl) attempt(t *trackedJob, opts BatchOptions) (result *entity.IngestionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Ingestion panic recovered", "job_id", t.job.JobID, "panic", r)
			result, err = nil, fmt.Errorf("ingestion panicked: %v", r)
		}
	}()

	return o.ingestion.Ingest(t.ctx, IngestRequest{
		JobID:         t.job.JobID,
		Name:          t.job.SourceName,
		Path:          t.spec.Path,
		Content:       t.spec.Content,
		Entity:        t.spec.Entity,
		Period:        t.spec.Period,
		DryRun:        opts.DryRun,
		SkipCompleted: opts.SkipCompleted && !t.spec.Force,
	})
}

// transition fires a trigger, stamps timestamps and records the change
func (o *batchOrchestratorImpl) transition(t *trackedJob, trigger workflow.Trigger, opts BatchOptions) {
	from := t.machine.State()
	if err := t.machine.Fire(context.Background(), trigger); err != nil {
		o.logger.Error("Invalid job transition", "job_id", t.job.JobID, "trigger", trigger, "error", err)
		return
	}
	to := t.machine.State()
	now := o.now()

	t.job.Status = to
	if to == workflow.StateRunning && t.job.StartedAt == nil {
		t.job.StartedAt = &now
	}
	if to.IsTerminal() {
		t.job.CompletedAt = &now
		t.outcome.Job = *t.job
		if to != workflow.StateCompleted {
			t.outcome.Error = t.job.LastError
			if to == workflow.StateCancelled && t.outcome.Error == "" {
				t.outcome.Error = context.Canceled.Error()
			}
		}
	}

	if !opts.DryRun {
		// status writes must land even after the batch context is cancelled
		if err := o.jobs.Update(context.WithoutCancel(t.ctx), t.job); err != nil {
			o.logger.Error("Failed to persist job status", "job_id", t.job.JobID, "status", to, "error", err)
		}
	}

	o.events.emit(t.ctx, event.NewEventWithCorrelation(event.TypeJobStatusChanged, t.job.Entity, t.job.Period,
		map[string]interface{}{
			"job_id":      t.job.JobID,
			"from":        string(from),
			"to":          string(to),
			"retry_count": t.job.RetryCount,
			"last_error":  t.job.LastError,
			"dry_run":     opts.DryRun,
		}, t.job.JobID))

	if to.IsTerminal() {
		o.release(t.job.JobID)
	}
}

func summarize(tracked []*trackedJob) *entity.BatchSummary {
	summary := &entity.BatchSummary{
		Outcomes: make(map[string]*entity.JobOutcome, len(tracked)),
		JobOrder: make([]string, 0, len(tracked)),
	}
	for _, t := range tracked {
		summary.Outcomes[t.job.JobID] = t.outcome
		summary.JobOrder = append(summary.JobOrder, t.job.JobID)

		switch t.job.Status {
		case workflow.StateCompleted:
			summary.Completed++
		case workflow.StateFailed:
			summary.Failed++
		case workflow.StateCancelled:
			summary.Cancelled++
		}
		if r := t.outcome.Result; r != nil {
			summary.TotalInserted += r.RecordsInserted
			summary.TotalUpdated += r.RecordsUpdated
			summary.TotalFailed += r.RecordsFailed
		}
	}
	return summary
}
