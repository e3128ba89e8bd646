package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/you/bulkops/internal/domain"
)

// Memory is a mutex-guarded Store for tests and single-process runs. It
// honors the same monotonic-progress rule as the Postgres implementation.
type Memory struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	cancel map[string]bool
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job), cancel: make(map[string]bool)}
}

func (m *Memory) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) List(_ context.Context, f ListFilter) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Job
	for _, job := range m.jobs {
		if f.Status != nil && job.Status != *f.Status {
			continue
		}
		if f.Kind != nil && job.Kind != *f.Kind {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkActive(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.StatusQueued {
		return ErrNotQueued
	}
	job.Status = domain.StatusActive
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetTotal(_ context.Context, id string, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Counters.Total == nil {
		job.Counters.Total = &total
		job.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) UpdateCounters(_ context.Context, id string, d CounterDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Counters.Processed += d.Processed
	job.Counters.Succeeded += d.Succeeded
	job.Counters.Failed += d.Failed
	job.Progress = clampProgress(job.Progress, job.Counters.Total, job.Counters.Processed)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Finish(_ context.Context, id string, status domain.Status, res *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = status
	job.Result = res
	if status == domain.StatusCompleted {
		job.Progress = 100
	}
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

func (m *Memory) RequestCancel(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}
	m.cancel[id] = true
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) CancelRequested(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return false, ErrNotFound
	}
	return m.cancel[id], nil
}

func (m *Memory) StaleQueued(_ context.Context, olderThan time.Duration, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var ids []string
	for id, job := range m.jobs {
		if job.Status == domain.StatusQueued && job.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
