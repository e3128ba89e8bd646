package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/marketplace"
	"github.com/you/bulkops/internal/pricing"
	"github.com/you/bulkops/internal/scan"
	"github.com/you/bulkops/internal/store"
)

// Upstream is the slice of the marketplace client the executors need.
type Upstream interface {
	FetchItem(ctx context.Context, id string) (marketplace.Item, error)
	ResolveOffer(ctx context.Context, itemID string) (string, error)
	MutateItem(ctx context.Context, id string, payload map[string]any) error
}

type Config struct {
	// ExecConcurrency bounds how many items of one job mutate at once.
	ExecConcurrency int
	Pricing         pricing.Config
}

// Engine runs one job end to end: scan pages, filter items, dispatch
// eligible ones to the kind's executor under bounded concurrency, and
// write counters to the store after every item.
type Engine struct {
	store    store.Store
	scanner  *scan.Scanner
	upstream Upstream
	sink     RowSink
	cfg      Config
	log      *zap.Logger
}

func New(st store.Store, sc *scan.Scanner, up Upstream, sink RowSink, cfg Config, log *zap.Logger) *Engine {
	if cfg.ExecConcurrency <= 0 {
		cfg.ExecConcurrency = 4
	}
	if sink == nil {
		sink = &MemorySink{}
	}
	return &Engine{store: st, scanner: sc, upstream: up, sink: sink, cfg: cfg, log: log}
}

var errCancelled = errors.New("engine: job cancelled")

// Run owns the job exclusively until it reaches a terminal status. The
// returned error reports engine-level trouble (store writes failing);
// per-item failures are absorbed into the counters.
func (e *Engine) Run(ctx context.Context, job *domain.Job) error {
	log := e.log.With(zap.String("job", job.ID), zap.String("kind", string(job.Kind)))
	exec, err := e.executorFor(job)
	if err != nil {
		if markErr := e.store.MarkActive(ctx, job.ID); markErr != nil {
			return markErr
		}
		return e.fail(ctx, job, "invalid-parameters", err, log)
	}
	if err := e.store.MarkActive(ctx, job.ID); err != nil {
		return err
	}
	if t := job.Params.Options.ExpectedTotal; t != nil {
		if err := e.store.SetTotal(ctx, job.ID, *t); err != nil {
			return err
		}
	}

	totalSeen := job.Params.Options.ExpectedTotal != nil
	scanErr := e.scanner.Scan(ctx, job.Params.TargetSelector, job.Params.Statuses,
		func(ctx context.Context, page marketplace.Page) error {
			cancelled, err := e.store.CancelRequested(ctx, job.ID)
			if err != nil {
				return errors.Wrap(err, "read cancel flag")
			}
			if cancelled {
				return errCancelled
			}
			if !totalSeen && page.Total != nil {
				if err := e.store.SetTotal(ctx, job.ID, *page.Total); err != nil {
					return err
				}
				totalSeen = true
			}
			if err := e.runPage(ctx, job, exec, page.Items, log); err != nil {
				return err
			}
			// Re-check after the page so a cancel recorded while items
			// were executing stops the scan before the next fetch.
			cancelled, err = e.store.CancelRequested(ctx, job.ID)
			if err != nil {
				return errors.Wrap(err, "read cancel flag")
			}
			if cancelled {
				return errCancelled
			}
			return nil
		})

	switch {
	case scanErr == nil:
		return e.complete(ctx, job, log)
	case errors.Is(scanErr, errCancelled):
		log.Info("job cancelled")
		return e.store.Finish(ctx, job.ID, domain.StatusCancelled, nil)
	case errors.Is(scanErr, marketplace.ErrNotFound):
		return e.fail(ctx, job, "selector-not-found", scanErr, log)
	case errors.Is(scanErr, marketplace.ErrAuth):
		return e.fail(ctx, job, "auth", scanErr, log)
	default:
		return e.fail(ctx, job, "scan-failed", scanErr, log)
	}
}

// runPage filters one page and executes the eligible items. Page order is
// preserved for dispatch; completion order is not guaranteed when the
// execution concurrency is above one.
func (e *Engine) runPage(ctx context.Context, job *domain.Job, exec Executor, items []marketplace.Item, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ExecConcurrency)
	var stopped bool
	var checkErr error
	for _, it := range items {
		res := pricing.Resolve(it, job.Params.PricePolicy, e.cfg.Pricing)
		if !pricing.Eligible(it, job.Params.Filter, res) {
			log.Debug("item excluded by filter", zap.String("item", it.ID))
			continue
		}
		if needsPrice(job.Kind) && res.TargetPrice == nil {
			log.Debug("item excluded, price unresolvable", zap.String("item", it.ID))
			continue
		}
		if e.cfg.ExecConcurrency > 1 {
			cancelled, err := e.store.CancelRequested(ctx, job.ID)
			if err != nil {
				checkErr = errors.Wrap(err, "read cancel flag")
				break
			}
			if cancelled {
				stopped = true
				break
			}
		}
		it := it
		g.Go(func() error {
			out := exec.Execute(gctx, it, res)
			delta := store.CounterDelta{Processed: 1}
			if out.OK {
				delta.Succeeded = 1
			} else {
				delta.Failed = 1
				log.Info("item failed",
					zap.String("item", it.ID), zap.String("reason", out.Reason))
			}
			if err := e.store.UpdateCounters(gctx, job.ID, delta); err != nil {
				return errors.Wrap(err, "update counters")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if checkErr != nil {
		return checkErr
	}
	if stopped {
		return errCancelled
	}
	return nil
}

func needsPrice(kind domain.Kind) bool { return kind == domain.KindApply }

func (e *Engine) complete(ctx context.Context, job *domain.Job, log *zap.Logger) error {
	cur, err := e.store.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	total := cur.Counters.Processed
	if cur.Counters.Total != nil {
		total = *cur.Counters.Total
	} else if err := e.store.SetTotal(ctx, job.ID, total); err != nil {
		return err
	}
	res := &domain.Result{
		Total:      total,
		Succeeded:  cur.Counters.Succeeded,
		Failed:     cur.Counters.Failed,
		FinishedAt: time.Now().UTC(),
	}
	log.Info("job completed",
		zap.Int64("total", res.Total),
		zap.Int64("succeeded", res.Succeeded),
		zap.Int64("failed", res.Failed))
	return e.store.Finish(ctx, job.ID, domain.StatusCompleted, res)
}

func (e *Engine) fail(ctx context.Context, job *domain.Job, reason string, cause error, log *zap.Logger) error {
	log.Error("job failed", zap.String("reason", reason), zap.Error(cause))
	res := &domain.Result{Reason: reason, FinishedAt: time.Now().UTC()}
	if cur, err := e.store.Get(ctx, job.ID); err == nil {
		res.Succeeded = cur.Counters.Succeeded
		res.Failed = cur.Counters.Failed
		if cur.Counters.Total != nil {
			res.Total = *cur.Counters.Total
		}
	}
	return e.store.Finish(ctx, job.ID, domain.StatusFailed, res)
}
