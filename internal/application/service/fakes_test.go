package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/garyjia/closeflow/internal/application/dispatcher"
	"github.com/garyjia/closeflow/internal/application/port"
	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/internal/domain/event"
	"github.com/garyjia/closeflow/internal/domain/workflow"
)

// In-memory fakes shared by the service tests

type fakeStorage struct {
	files   map[string][]byte
	readErr error
}

func (f *fakeStorage) Save(ctx context.Context, path string, content []byte) error {
	if f.files == nil {
		f.files = map[string][]byte{}
	}
	f.files[path] = content
	return nil
}

func (f *fakeStorage) Read(ctx context.Context, path string) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return content, nil
}

func (f *fakeStorage) Exists(ctx context.Context, path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *fakeStorage) Delete(ctx context.Context, path string) error {
	delete(f.files, path)
	return nil
}

func (f *fakeStorage) GetFullPath(relativePath string) string {
	return relativePath
}

type fakeRecordRepo struct {
	mu        sync.Mutex
	records   map[entity.NaturalKey]*entity.NormalizedRecord
	nextID    int64
	lookupErr error
	insertErr error
	writes    int
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: map[entity.NaturalKey]*entity.NormalizedRecord{}}
}

func (f *fakeRecordRepo) GetByKey(ctx context.Context, key entity.NaturalKey) (*entity.NormalizedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	r, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (f *fakeRecordRepo) Insert(ctx context.Context, record *entity.NormalizedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.records[record.Key()]; ok {
		return errors.New("UNIQUE constraint failed")
	}
	f.nextID++
	record.ID = f.nextID
	c := *record
	f.records[record.Key()] = &c
	f.writes++
	return nil
}

func (f *fakeRecordRepo) Update(ctx context.Context, record *entity.NormalizedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *record
	f.records[record.Key()] = &c
	f.writes++
	return nil
}

func (f *fakeRecordRepo) UpdateDepartment(ctx context.Context, id int64, department entity.Department) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			r.Department = department
			return nil
		}
	}
	return errors.New("record not found")
}

func (f *fakeRecordRepo) ListByUnit(ctx context.Context, entityCode, period string) ([]*entity.NormalizedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.NormalizedRecord
	for _, r := range f.records {
		if r.Entity == entityCode && r.Period == period {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out, nil
}

func (f *fakeRecordRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeRecordRepo) put(records ...*entity.NormalizedRecord) {
	for _, r := range records {
		_ = f.Insert(context.Background(), r)
	}
}

type fakeResultRepo struct {
	mu      sync.Mutex
	results []*entity.IngestionResult
}

func (f *fakeResultRepo) Create(ctx context.Context, result *entity.IngestionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *result
	f.results = append(f.results, &c)
	return nil
}

func (f *fakeResultRepo) FindSuccessful(ctx context.Context, entityCode, period, fingerprint string) (*entity.IngestionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.Entity == entityCode && r.Period == period && r.Fingerprint == fingerprint && r.Success {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeResultRepo) ListByUnit(ctx context.Context, entityCode, period string, limit int) ([]*entity.IngestionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.IngestionResult
	for _, r := range f.results {
		if r.Entity == entityCode && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]entity.IngestionJob
	history map[string][]workflow.State
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]entity.IngestionJob{}, history: map[string][]workflow.State{}}
}

func (f *fakeJobRepo) Create(ctx context.Context, job *entity.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.JobID] = *job
	f.history[job.JobID] = append(f.history[job.JobID], job.Status)
	return nil
}

func (f *fakeJobRepo) Update(ctx context.Context, job *entity.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.JobID] = *job
	f.history[job.JobID] = append(f.history[job.JobID], job.Status)
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*entity.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	return &j, nil
}

func (f *fakeJobRepo) ListByStatus(ctx context.Context, status workflow.State, limit int) ([]*entity.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.IngestionJob
	for _, j := range f.jobs {
		if j.Status == status {
			c := j
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) statesOf(jobID string) []workflow.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]workflow.State(nil), f.history[jobID]...)
}

type fakeValidationRepo struct {
	mu   sync.Mutex
	runs []*entity.ValidationResult
	err  error
}

func (f *fakeValidationRepo) Create(ctx context.Context, result *entity.ValidationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, result)
	return nil
}

func (f *fakeValidationRepo) ListByUnit(ctx context.Context, entityCode, period string, limit int) ([]*entity.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ValidationResult
	for i := len(f.runs) - 1; i >= 0; i-- {
		if r := f.runs[i]; r.Entity == entityCode && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAssignmentRepo struct {
	mu        sync.Mutex
	items     []*entity.AssignmentRecord
	createErr error
	seeds     [2]map[string]int
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, a *entity.AssignmentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	a.ID = int64(len(f.items) + 1)
	c := *a
	f.items = append(f.items, &c)
	return nil
}

func (f *fakeAssignmentRepo) ListByUnit(ctx context.Context, entityCode, period string) ([]*entity.AssignmentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.AssignmentRecord
	for _, a := range f.items {
		if a.Entity == entityCode && a.Period == period {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignmentRepo) OpenLoads(ctx context.Context) (map[string]int, map[string]int, error) {
	preparers, reviewers := map[string]int{}, map[string]int{}
	for id, n := range f.seeds[0] {
		preparers[id] = n
	}
	for id, n := range f.seeds[1] {
		reviewers[id] = n
	}
	return preparers, reviewers, nil
}

type fakeUserRepo struct {
	users map[string]*entity.User
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	f := &fakeUserRepo{users: map[string]*entity.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *entity.User) error {
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (f *fakeUserRepo) ListActive(ctx context.Context) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range f.users {
		if u.Active {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*entity.AuditEntry
}

func (f *fakeAuditRepo) Append(ctx context.Context, entry *entity.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.AuditEntry
	for _, e := range f.entries {
		if filter.EventType == "" || e.EventType == filter.EventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeTx runs fn directly; the fakes have no rollback
type fakeTx struct {
	calls int
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// eventLog captures every dispatched event
type eventLog struct {
	mu     sync.Mutex
	events []*event.Event
}

func newEventLog() (*eventLog, dispatcher.Dispatcher) {
	log := &eventLog{}
	d := dispatcher.NewDispatcher()
	d.SubscribeAll("test-log", func(ctx context.Context, evt *event.Event) error {
		log.mu.Lock()
		defer log.mu.Unlock()
		log.events = append(log.events, evt)
		return nil
	})
	return log, d
}

func (l *eventLog) types() []event.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Type, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func (l *eventLog) ofType(t event.Type) []*event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*event.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ port.FileStorage          = (*fakeStorage)(nil)
	_ port.RecordRepository     = (*fakeRecordRepo)(nil)
	_ port.ResultRepository     = (*fakeResultRepo)(nil)
	_ port.JobRepository        = (*fakeJobRepo)(nil)
	_ port.ValidationRepository = (*fakeValidationRepo)(nil)
	_ port.AssignmentRepository = (*fakeAssignmentRepo)(nil)
	_ port.UserRepository       = (*fakeUserRepo)(nil)
	_ port.AuditRepository      = (*fakeAuditRepo)(nil)
	_ port.TransactionManager   = (*fakeTx)(nil)
)
