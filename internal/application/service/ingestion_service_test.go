package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/validation"
)

const balancedExtract = `account_code,account_name,balance,category,criticality,classification,review_status
10000001,Cash at bank,1500.00,cash,critical,BS,pending
20000001,Trade payables,-1000.00,payables,medium,BS,pending
40000001,Revenue,-500.00,revenue,critical,PL,pending
`

type ingestFixture struct {
	storage *fakeStorage
	records *fakeRecordRepo
	results *fakeResultRepo
	tx      *fakeTx
	events  *eventLog
	svc     IngestionService
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		storage: &fakeStorage{files: map[string][]byte{"tb.csv": []byte(balancedExtract)}},
		records: newFakeRecordRepo(),
		results: &fakeResultRepo{},
		tx:      &fakeTx{},
	}
	log, d := newEventLog()
	f.events = log
	f.svc = NewIngestionService(f.storage, f.records, f.results, f.tx, nil, nil, d, nil)
	return f
}

func TestIngest_BalancedExtract(t *testing.T) {
	f := newIngestFixture()

	result, err := f.svc.Ingest(context.Background(), IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.RecordsProcessed)
	assert.Equal(t, 3, result.RecordsInserted)
	assert.Zero(t, result.RecordsFailed)
	assert.True(t, result.Reconciles())
	assert.Equal(t, "tb.csv", result.SourceName)
	assert.Len(t, result.Fingerprint, 64)
	require.NotNil(t, result.Profile)
	assert.Equal(t, 3, result.Profile.RowCount)

	assert.Equal(t, 3, f.records.count())
	assert.Len(t, f.results.results, 1)
	assert.Equal(t, []event.Type{
		event.TypeIngestionStarted,
		event.TypeIngestionFingerprinted,
		event.TypeIngestionLoaded,
		event.TypeIngestionProfiled,
		event.TypeIngestionMapped,
		event.TypeIngestionCompleted,
	}, f.events.types())

	stored, err := f.records.ListByUnit(context.Background(), "ENT01", "2024-03")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "10000001", stored[0].AccountCode)
	assert.Equal(t, "ENT01", stored[0].CompanyCode)
	assert.Equal(t, entity.CriticalityCritical, stored[0].Criticality)
	assert.Equal(t, result.Fingerprint, stored[0].SourceFingerprint)
}

func TestIngest_MissingRequiredColumn(t *testing.T) {
	f := newIngestFixture()
	content := []byte("account_code,balance\n10000001,100\n")

	result, err := f.svc.Ingest(context.Background(), IngestRequest{Name: "bad.csv", Content: content, Entity: "ENT01", Period: "2024-03"})

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindSchema))
	assert.False(t, apperr.IsRetryable(err))
	assert.Contains(t, err.Error(), "account_name")
	assert.Zero(t, f.records.count())
	assert.Empty(t, f.results.results)
	assert.Len(t, f.events.ofType(event.TypeIngestionSchemaRejected), 1)
	assert.Empty(t, f.events.ofType(event.TypeIngestionCompleted))
}

func TestIngest_Idempotent(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	req := IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03"}

	first, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 3, first.RecordsInserted)
	assert.Zero(t, second.RecordsInserted)
	assert.Equal(t, 3, second.RecordsUpdated)
	assert.Equal(t, 3, f.records.count())
	// unchanged records are not rewritten
	assert.Equal(t, 3, f.records.writes)
}

func TestIngest_SkipCompletedFingerprint(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	req := IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03", SkipCompleted: true}

	_, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	again, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)

	assert.True(t, again.Skipped)
	assert.True(t, again.Success)
	assert.Zero(t, again.RecordsProcessed)
	assert.Len(t, f.results.results, 1)
}

func TestIngest_DryRunWritesNothing(t *testing.T) {
	f := newIngestFixture()

	result, err := f.svc.Ingest(context.Background(), IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03", DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 3, result.RecordsInserted)
	assert.Zero(t, f.records.count())
	assert.Empty(t, f.results.results)
	assert.Zero(t, f.tx.calls)

	completed := f.events.ofType(event.TypeIngestionCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].IsDryRun())
}

func TestIngest_RowErrorsDoNotAbort(t *testing.T) {
	f := newIngestFixture()
	content := []byte(`account_code,account_name,balance,entity
10000001,Cash,100.00,ENT01
20000001,Payables,-100.00,ENT99
,Missing code,5.00,ENT01
`)

	result, err := f.svc.Ingest(context.Background(), IngestRequest{Name: "tb.csv", Content: content, Entity: "ENT01", Period: "2024-03"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.RecordsProcessed)
	assert.Equal(t, 1, result.RecordsInserted)
	assert.Equal(t, 2, result.RecordsFailed)
	require.Len(t, result.RowErrors, 2)
	assert.Equal(t, 3, result.RowErrors[0].Row)
	assert.Equal(t, "20000001", result.RowErrors[0].AccountCode)
	assert.Contains(t, result.RowErrors[0].Message, "ENT99")
	assert.Equal(t, 4, result.RowErrors[1].Row)
}

func TestIngest_RetryableFailures(t *testing.T) {
	t.Run("read", func(t *testing.T) {
		f := newIngestFixture()
		f.storage.readErr = errors.New("disk unavailable")

		_, err := f.svc.Ingest(context.Background(), IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03"})
		assert.True(t, apperr.IsRetryable(err))
	})

	t.Run("lookup", func(t *testing.T) {
		f := newIngestFixture()
		f.records.lookupErr = errors.New("database is locked")

		_, err := f.svc.Ingest(context.Background(), IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03"})
		assert.True(t, apperr.IsRetryable(err))
		assert.Empty(t, f.results.results)
	})
}

func TestIngest_InvalidRequest(t *testing.T) {
	f := newIngestFixture()

	_, err := f.svc.Ingest(context.Background(), IngestRequest{Path: "tb.csv", Period: "2024-03"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Ingest(context.Background(), IngestRequest{Entity: "ENT01", Period: "2024-03"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestIngest_ThenValidatePasses(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024-03"})
	require.NoError(t, err)

	validations := &fakeValidationRepo{}
	svc := NewValidationService(f.records, validations, newTestRunner(t), nil, nil, 2)
	result, err := svc.Validate(ctx, ValidateRequest{Entity: "ENT01", Period: "2024-03", Policy: entity.PassPolicyCriticalOnly})
	require.NoError(t, err)

	assert.True(t, result.Passed, "failures: %+v", result.Failures())
	balance, ok := result.Outcome(validation.BalanceNil)
	require.True(t, ok)
	assert.True(t, balance.Success)
}

func TestIngest_ThenValidateSamePeriodSpelling(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()

	ingested, err := f.svc.Ingest(ctx, IngestRequest{Path: "tb.csv", Entity: "ENT01", Period: "2024/03"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03", ingested.Period)

	validations := &fakeValidationRepo{}
	svc := NewValidationService(f.records, validations, newTestRunner(t), nil, nil, 0)
	result, err := svc.Validate(ctx, ValidateRequest{Entity: "ENT01", Period: "2024/03", Policy: entity.PassPolicyCriticalOnly})
	require.NoError(t, err)

	assert.True(t, result.Passed, "failures: %+v", result.Failures())
	assert.Equal(t, "2024-03", result.Period)

	history, err := svc.History(ctx, "ENT01", "03/2024", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestIngest_RowErrorsReportSourceLines(t *testing.T) {
	content := []byte("account_code,account_name,balance,entity\n10000001,Cash,100.00,ENT01\n\n,,,\n20000001,Payables,-100.00,ENT99\n")

	for _, dryRun := range []bool{false, true} {
		f := newIngestFixture()
		result, err := f.svc.Ingest(context.Background(), IngestRequest{Name: "tb.csv", Content: content, Entity: "ENT01", Period: "2024-03", DryRun: dryRun})
		require.NoError(t, err)

		require.Len(t, result.RowErrors, 1, "dry run %v", dryRun)
		assert.Equal(t, 5, result.RowErrors[0].Row, "dry run %v", dryRun)
		assert.Equal(t, "20000001", result.RowErrors[0].AccountCode)
	}
}
