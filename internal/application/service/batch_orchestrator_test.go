package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/domain/workflow"
)

type stubIngestion struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error)
}

func (s *stubIngestion) Ingest(ctx context.Context, req IngestRequest) (*entity.IngestionResult, error) {
	call := int(s.calls.Add(1))
	return s.fn(ctx, req, call)
}

func okResult(req IngestRequest) *entity.IngestionResult {
	return &entity.IngestionResult{JobID: req.JobID, Entity: req.Entity, Period: req.Period, RecordsInserted: 3, RecordsProcessed: 3, Success: true}
}

var errLocked = apperr.RetryableIO("ingest.write", errors.New("database is locked"))

type orchestratorFixture struct {
	ingestion *stubIngestion
	jobs      *fakeJobRepo
	events    *eventLog
	orch      *batchOrchestratorImpl

	mu     sync.Mutex
	sleeps []time.Duration
}

func newOrchestratorFixture(fn func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error)) *orchestratorFixture {
	f := &orchestratorFixture{ingestion: &stubIngestion{fn: fn}, jobs: newFakeJobRepo()}
	log, d := newEventLog()
	f.events = log
	f.orch = NewBatchOrchestrator(f.ingestion, f.jobs, d, nil).(*batchOrchestratorImpl)
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		return ctx.Err()
	}
	return f
}

func singleJob() []BatchJob {
	return []BatchJob{{JobID: "job-1", Name: "tb.csv", Content: []byte("x"), Entity: "ENT01", Period: "2024-03"}}
}

func TestIngestBatch_Success(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		return okResult(req), nil
	})

	summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{})
	require.NoError(t, err)

	assert.True(t, summary.AllCompleted())
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 3, summary.TotalInserted)
	outcome := summary.Outcomes["job-1"]
	require.NotNil(t, outcome)
	assert.Equal(t, workflow.StateCompleted, outcome.Job.Status)
	assert.NotNil(t, outcome.Job.StartedAt)
	assert.NotNil(t, outcome.Job.CompletedAt)
	assert.Equal(t, []workflow.State{workflow.StatePending, workflow.StateRunning, workflow.StateCompleted}, f.jobs.statesOf("job-1"))
	assert.Len(t, f.events.ofType(event.TypeJobStatusChanged), 2)
}

func TestIngestBatch_RetriesExhausted(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		return nil, errLocked
	})

	summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{MaxRetries: 3, BackoffUnit: time.Millisecond})
	require.NoError(t, err)

	outcome := summary.Outcomes["job-1"]
	assert.Equal(t, workflow.StateFailed, outcome.Job.Status)
	assert.Equal(t, 4, outcome.Job.RetryCount)
	assert.Contains(t, outcome.Error, "database is locked")
	assert.EqualValues(t, 4, f.ingestion.calls.Load())

	// 2^1 + 2^2 + 2^3 units
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond}, f.sleeps)
	var total time.Duration
	for _, d := range f.sleeps {
		total += d
	}
	assert.Equal(t, RetryPolicy{Unit: time.Millisecond}.TotalBackoff(3), total)
	assert.Equal(t, 1, summary.Failed)
}

func TestIngestBatch_RetryThenSuccess(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		if call < 3 {
			return nil, errLocked
		}
		return okResult(req), nil
	})

	summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{MaxRetries: 3, BackoffUnit: time.Millisecond})
	require.NoError(t, err)

	outcome := summary.Outcomes["job-1"]
	assert.Equal(t, workflow.StateCompleted, outcome.Job.Status)
	assert.Equal(t, 2, outcome.Job.RetryCount)
	assert.Equal(t, []workflow.State{
		workflow.StatePending,
		workflow.StateRunning, workflow.StateRetrying,
		workflow.StateRunning, workflow.StateRetrying,
		workflow.StateRunning, workflow.StateCompleted,
	}, f.jobs.statesOf("job-1"))
}

func TestIngestBatch_PermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"schema error", apperr.Schema("ingest.map", []string{"account_name"})},
		{"invalid request", fmt.Errorf("%w: entity and period are required", ErrInvalidRequest)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
				return nil, tt.err
			})

			summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{MaxRetries: 3})
			require.NoError(t, err)

			assert.Equal(t, workflow.StateFailed, summary.Outcomes["job-1"].Job.Status)
			assert.Zero(t, summary.Outcomes["job-1"].Job.RetryCount)
			assert.EqualValues(t, 1, f.ingestion.calls.Load())
			assert.Empty(t, f.sleeps)
		})
	}
}

func TestIngestBatch_PanicIsRetried(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		if call == 1 {
			panic("boom")
		}
		return okResult(req), nil
	})

	summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{MaxRetries: 1, BackoffUnit: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, summary.Outcomes["job-1"].Job.Status)
	assert.Equal(t, 1, summary.Outcomes["job-1"].Job.RetryCount)
}

func TestIngestBatch_CancelRunningJob(t *testing.T) {
	var f *orchestratorFixture
	f = newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		assert.True(t, f.orch.Cancel(req.JobID))
		return nil, ctx.Err()
	})

	summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{MaxRetries: 3})
	require.NoError(t, err)

	outcome := summary.Outcomes["job-1"]
	assert.Equal(t, workflow.StateCancelled, outcome.Job.Status)
	assert.Equal(t, 1, summary.Cancelled)
	assert.False(t, summary.AllCompleted())
	assert.Empty(t, f.sleeps)
	assert.False(t, f.orch.Cancel("job-1"), "finished jobs are forgotten")
}

func TestIngestBatch_CancelFinishedJob(t *testing.T) {
	var f *orchestratorFixture
	f = newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		if req.JobID == "job-2" {
			assert.False(t, f.orch.Cancel("job-1"), "job-1 already completed")
		}
		return okResult(req), nil
	})
	jobs := []BatchJob{
		{JobID: "job-1", Name: "a.csv", Content: []byte("x"), Entity: "ENT01", Period: "2024-03"},
		{JobID: "job-2", Name: "b.csv", Content: []byte("y"), Entity: "ENT02", Period: "2024-03"},
	}

	summary, err := f.orch.IngestBatch(context.Background(), jobs, BatchOptions{MaxConcurrent: 1})
	require.NoError(t, err)
	assert.True(t, summary.AllCompleted())
	assert.EqualValues(t, 2, f.ingestion.calls.Load())
}

func TestIngestBatch_CancelledContext(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		return okResult(req), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := append(singleJob(), BatchJob{JobID: "job-2", Content: []byte("y"), Entity: "ENT02", Period: "2024-03"})
	summary, err := f.orch.IngestBatch(ctx, jobs, BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Cancelled)
	assert.Zero(t, f.ingestion.calls.Load())
	assert.Equal(t, []workflow.State{workflow.StatePending, workflow.StateCancelled}, f.jobs.statesOf("job-2"))
}

func TestIngestBatch_ConcurrencyBound(t *testing.T) {
	var active, peak atomic.Int32
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return okResult(req), nil
	})

	var jobs []BatchJob
	for i := 0; i < 8; i++ {
		jobs = append(jobs, BatchJob{Name: fmt.Sprintf("tb-%d.csv", i), Content: []byte{byte(i)}, Entity: fmt.Sprintf("ENT%02d", i), Period: "2024-03"})
	}

	summary, err := f.orch.IngestBatch(context.Background(), jobs, BatchOptions{MaxConcurrent: 2})
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, summary.JobOrder, 8)
	for _, id := range summary.JobOrder {
		assert.NotEmpty(t, id)
	}
}

func TestIngestBatch_DryRunPersistsNoJobs(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		assert.True(t, req.DryRun)
		return okResult(req), nil
	})

	summary, err := f.orch.IngestBatch(context.Background(), singleJob(), BatchOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Empty(t, f.jobs.jobs)
	for _, evt := range f.events.ofType(event.TypeJobStatusChanged) {
		assert.True(t, evt.IsDryRun())
	}
}

func TestIngestBatch_ForceBypassesSkip(t *testing.T) {
	f := newOrchestratorFixture(func(ctx context.Context, req IngestRequest, call int) (*entity.IngestionResult, error) {
		assert.Equal(t, req.JobID == "job-1", req.SkipCompleted)
		return okResult(req), nil
	})

	jobs := append(singleJob(), BatchJob{JobID: "job-2", Content: []byte("y"), Entity: "ENT01", Period: "2024-03", Force: true})
	_, err := f.orch.IngestBatch(context.Background(), jobs, BatchOptions{SkipCompleted: true})
	require.NoError(t, err)
}

func TestIngestBatch_RejectsBadInput(t *testing.T) {
	f := newOrchestratorFixture(nil)

	_, err := f.orch.IngestBatch(context.Background(), append(singleJob(), singleJob()...), BatchOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.orch.IngestBatch(context.Background(), []BatchJob{{Entity: "ENT01", Period: "2024-03"}}, BatchOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, f.jobs.jobs)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{Unit: time.Second}
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 14*time.Second, p.TotalBackoff(3))
	assert.Zero(t, p.TotalBackoff(0))
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
