package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/bulkops/internal/config"
	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/engine"
	"github.com/you/bulkops/internal/marketplace"
	"github.com/you/bulkops/internal/pricing"
	"github.com/you/bulkops/internal/queue"
	"github.com/you/bulkops/internal/scan"
	"github.com/you/bulkops/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()
	st := store.NewPostgres(db)

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	q := queue.New(rdb)

	client := marketplace.NewClient(marketplace.ClientConfig{
		BaseURL:        cfg.MarketBaseURL,
		Tenant:         cfg.MarketTenant,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RPS:            cfg.MarketRPS,
	}, marketplace.StaticSupplier(cfg.MarketToken), logger)

	scanner := scan.New(client, cfg.ScanPageSize, cfg.ScanOffsetCeiling, logger)
	eng := engine.New(st, scanner, client, nil, engine.Config{
		ExecConcurrency: cfg.ExecConcurrency,
		Pricing: pricing.Config{
			GapCeilingPercent: cfg.PriceGapCeiling,
			PercentBandMin:    cfg.PriceBandMin,
			PercentBandMax:    cfg.PriceBandMax,
		},
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.JobConcurrency)

	logger.Info("worker started", zap.Int("job_concurrency", cfg.JobConcurrency))
	for {
		id, err := q.Dequeue(gctx, cfg.DequeueBlock)
		if gctx.Err() != nil {
			break
		}
		if err != nil {
			logger.Warn("dequeue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if id == "" {
			sweepStale(gctx, st, q, cfg, logger)
			continue
		}
		jobID := id
		g.Go(func() error {
			runJob(gctx, st, eng, jobID, logger)
			return nil
		})
	}
	_ = g.Wait()
	logger.Info("worker stopped")
}

// runJob loads and executes one dequeued job. Duplicate deliveries and
// jobs cancelled before pickup are resolved here without touching the
// engine.
func runJob(ctx context.Context, st store.Store, eng *engine.Engine, id string, logger *zap.Logger) {
	job, err := st.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("dequeued unknown job", zap.String("job", id))
		return
	}
	if err != nil {
		logger.Error("load job", zap.String("job", id), zap.Error(err))
		return
	}
	if job.Status != domain.StatusQueued {
		return
	}
	if cancelled, err := st.CancelRequested(ctx, id); err == nil && cancelled {
		if err := st.Finish(ctx, id, domain.StatusCancelled, nil); err != nil {
			logger.Error("cancel queued job", zap.String("job", id), zap.Error(err))
		}
		return
	}
	if err := eng.Run(ctx, job); err != nil {
		logger.Error("job run", zap.String("job", id), zap.Error(err))
	}
}

// sweepStale re-enqueues queued jobs whose id never made it into, or fell
// out of, the ready queue.
func sweepStale(ctx context.Context, st store.Store, q *queue.RedisQ, cfg config.Config, logger *zap.Logger) {
	ids, err := st.StaleQueued(ctx, cfg.RequeueAfter, 50)
	if err != nil {
		logger.Warn("stale sweep", zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := q.Enqueue(ctx, id); err != nil {
			logger.Warn("requeue", zap.String("job", id), zap.Error(err))
			return
		}
	}
	if len(ids) > 0 {
		logger.Info("requeued stale jobs", zap.Int("count", len(ids)))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "dev" {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}
