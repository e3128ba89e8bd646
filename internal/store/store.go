package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/you/bulkops/internal/domain"
)

var (
	ErrNotFound  = errors.New("store: job not found")
	ErrNotQueued = errors.New("store: job not in queued state")
)

// CounterDelta is applied atomically to a job's counters. Progress is
// recomputed in the same write so readers never observe it decrease.
type CounterDelta struct {
	Processed int64
	Succeeded int64
	Failed    int64
}

type ListFilter struct {
	Status *domain.Status
	Kind   *domain.Kind
	Limit  int
}

// Store is the durable shared record of job state. A job's row is written
// by the single worker owning it; reads may come from any process.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, f ListFilter) ([]*domain.Job, error)

	// MarkActive transitions queued -> active; ErrNotQueued otherwise.
	MarkActive(ctx context.Context, id string) error
	SetTotal(ctx context.Context, id string, total int64) error
	UpdateCounters(ctx context.Context, id string, d CounterDelta) error

	// Finish records the terminal status; result may be nil (cancelled).
	// A completed job's progress is forced to 100.
	Finish(ctx context.Context, id string, status domain.Status, res *domain.Result) error

	// RequestCancel records a cancellation request; false when the job
	// is already terminal.
	RequestCancel(ctx context.Context, id string) (bool, error)
	CancelRequested(ctx context.Context, id string) (bool, error)

	// StaleQueued lists queued jobs untouched for at least olderThan,
	// for re-enqueueing after a crash or queue outage.
	StaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}

// clampProgress applies the monotonic progress rule shared by the
// implementations: known total drives round(processed/total*100), unknown
// total holds progress until the terminal write.
func clampProgress(current int, total *int64, processed int64) int {
	if total == nil || *total == 0 {
		return current
	}
	p := int((processed*100 + *total/2) / *total)
	if p > 100 {
		p = 100
	}
	if p < current {
		p = current
	}
	return p
}
