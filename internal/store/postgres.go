package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/bulkops/internal/domain"
)

// Postgres is the production Store; the jobs table is the source of truth.
type Postgres struct{ db *pgxpool.Pool }

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{db} }

const jobColumns = `id, tenant, kind, params, status, total, processed, succeeded, failed,
progress, result, created_at, updated_at, finished_at`

func (s *Postgres) Create(ctx context.Context, job *domain.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return errors.Wrap(err, "encode params")
	}
	_, err = s.db.Exec(ctx, `insert into jobs(
id, tenant, kind, params, status, processed, succeeded, failed, progress,
cancel_requested, created_at, updated_at
) values ($1,$2,$3,$4,$5,0,0,0,0,false,now(),now())`,
		job.ID, job.Tenant, job.Kind, params, job.Status)
	return errors.Wrap(err, "insert job")
}

func (s *Postgres) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `select `+jobColumns+` from jobs where id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (s *Postgres) List(ctx context.Context, f ListFilter) ([]*domain.Job, error) {
	q := `select ` + jobColumns + ` from jobs where true`
	args := []any{}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += ` and status = $` + itoa(len(args))
	}
	if f.Kind != nil {
		args = append(args, *f.Kind)
		q += ` and kind = $` + itoa(len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += ` order by created_at desc limit $` + itoa(len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()
	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkActive(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`update jobs set status = $2, updated_at = now() where id = $1 and status = $3`,
		id, domain.StatusActive, domain.StatusQueued)
	if err != nil {
		return errors.Wrap(err, "mark active")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotQueued
	}
	return nil
}

func (s *Postgres) SetTotal(ctx context.Context, id string, total int64) error {
	_, err := s.db.Exec(ctx,
		`update jobs set total = $2, updated_at = now() where id = $1 and total is null`,
		id, total)
	return errors.Wrap(err, "set total")
}

func (s *Postgres) UpdateCounters(ctx context.Context, id string, d CounterDelta) error {
	_, err := s.db.Exec(ctx, `update jobs set
  processed = processed + $2,
  succeeded = succeeded + $3,
  failed    = failed + $4,
  progress  = case when total is null or total = 0 then progress
              else least(100, greatest(progress,
                   (((processed + $2) * 100 + total / 2) / total)::int)) end,
  updated_at = now()
where id = $1`, id, d.Processed, d.Succeeded, d.Failed)
	return errors.Wrap(err, "update counters")
}

func (s *Postgres) Finish(ctx context.Context, id string, status domain.Status, res *domain.Result) error {
	var result []byte
	if res != nil {
		var err error
		result, err = json.Marshal(res)
		if err != nil {
			return errors.Wrap(err, "encode result")
		}
	}
	_, err := s.db.Exec(ctx, `update jobs set
  status = $2,
  result = $3,
  progress = case when $2::text = 'completed' then 100 else progress end,
  finished_at = now(),
  updated_at = now()
where id = $1`, id, status, result)
	return errors.Wrap(err, "finish job")
}

func (s *Postgres) RequestCancel(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `update jobs set cancel_requested = true, updated_at = now()
where id = $1 and status in ($2, $3)`,
		id, domain.StatusQueued, domain.StatusActive)
	if err != nil {
		return false, errors.Wrap(err, "request cancel")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) CancelRequested(ctx context.Context, id string) (bool, error) {
	var v bool
	err := s.db.QueryRow(ctx, `select cancel_requested from jobs where id = $1`, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return v, errors.Wrap(err, "cancel requested")
}

func (s *Postgres) StaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx,
		`select id from jobs where status = $1 and updated_at < $2 order by created_at asc limit $3`,
		domain.StatusQueued, cutoff, limit)
	if err != nil {
		return nil, errors.Wrap(err, "stale queued")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job    domain.Job
		params []byte
		result []byte
	)
	err := row.Scan(&job.ID, &job.Tenant, &job.Kind, &params, &job.Status,
		&job.Counters.Total, &job.Counters.Processed, &job.Counters.Succeeded,
		&job.Counters.Failed, &job.Progress, &result,
		&job.CreatedAt, &job.UpdatedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &job.Params); err != nil {
		return nil, errors.Wrap(err, "decode params")
	}
	if result != nil {
		job.Result = &domain.Result{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, errors.Wrap(err, "decode result")
		}
	}
	return &job, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
