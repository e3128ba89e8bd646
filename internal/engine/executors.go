package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/marketplace"
	"github.com/you/bulkops/internal/pricing"
)

// Outcome classifies one item's execution. Reason is a short stable code,
// never a raw upstream error body.
type Outcome struct {
	OK      bool
	Reason  string
	Payload map[string]any
}

// Executor performs a job's action against one eligible item. It must not
// return an error: a single item's failure never aborts the job.
type Executor interface {
	Execute(ctx context.Context, it marketplace.Item, res pricing.Resolution) Outcome
}

func (e *Engine) executorFor(job *domain.Job) (Executor, error) {
	dry := job.Params.Options.DryRun
	switch job.Kind {
	case domain.KindApply:
		return &applyExecutor{up: e.upstream, dryRun: dry}, nil
	case domain.KindRemove:
		return &removeExecutor{up: e.upstream, dryRun: dry}, nil
	case domain.KindExport:
		return &exportExecutor{up: e.upstream, sink: e.sink, dryRun: dry}, nil
	case domain.KindBulkUpdate:
		if len(job.Params.Payload) == 0 {
			return nil, errors.New("bulk-update job has no payload")
		}
		return &updateExecutor{up: e.upstream, payload: job.Params.Payload, dryRun: dry}, nil
	default:
		return nil, errors.Errorf("unknown job kind %q", job.Kind)
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, marketplace.ErrAuth):
		return "auth"
	case errors.Is(err, marketplace.ErrTransient):
		return "transient-exhausted"
	case errors.Is(err, marketplace.ErrNotFound):
		return "not-found"
	default:
		return "mutate-failed"
	}
}

// applyExecutor turns a resolved price into a promotion on the item's
// offer. The offer id is a secondary lookup; failing it fails the item
// with its own reason code.
type applyExecutor struct {
	up     Upstream
	dryRun bool
}

func (x *applyExecutor) Execute(ctx context.Context, it marketplace.Item, res pricing.Resolution) Outcome {
	payload := map[string]any{"action": "apply", "price": *res.TargetPrice}
	if x.dryRun {
		return Outcome{OK: true, Reason: "dry-run", Payload: payload}
	}
	offerID, err := x.up.ResolveOffer(ctx, it.ID)
	if err != nil {
		return Outcome{Reason: "offer-lookup-failed"}
	}
	if err := x.up.MutateItem(ctx, offerID, payload); err != nil {
		return Outcome{Reason: classify(err)}
	}
	return Outcome{OK: true, Reason: "ok", Payload: payload}
}

type removeExecutor struct {
	up     Upstream
	dryRun bool
}

func (x *removeExecutor) Execute(ctx context.Context, it marketplace.Item, _ pricing.Resolution) Outcome {
	payload := map[string]any{"action": "remove"}
	if x.dryRun {
		return Outcome{OK: true, Reason: "dry-run", Payload: payload}
	}
	if err := x.up.MutateItem(ctx, it.ID, payload); err != nil {
		return Outcome{Reason: classify(err)}
	}
	return Outcome{OK: true, Reason: "ok", Payload: payload}
}

// exportExecutor reads the item's detail and appends a normalized row to
// the sink. Rendering the rows to bytes happens elsewhere.
type exportExecutor struct {
	up     Upstream
	sink   RowSink
	dryRun bool
}

func (x *exportExecutor) Execute(ctx context.Context, it marketplace.Item, _ pricing.Resolution) Outcome {
	if x.dryRun {
		return Outcome{OK: true, Reason: "dry-run"}
	}
	full, err := x.up.FetchItem(ctx, it.ID)
	if err != nil {
		return Outcome{Reason: classify(err)}
	}
	row := Row{
		ID:            full.ID,
		Status:        full.Status,
		OriginalPrice: full.OriginalPrice,
		CurrentPrice:  full.CurrentPrice,
	}
	if err := x.sink.Append(ctx, row); err != nil {
		return Outcome{Reason: "sink-failed"}
	}
	return Outcome{OK: true, Reason: "ok"}
}

type updateExecutor struct {
	up      Upstream
	payload map[string]any
	dryRun  bool
}

func (x *updateExecutor) Execute(ctx context.Context, it marketplace.Item, _ pricing.Resolution) Outcome {
	if x.dryRun {
		return Outcome{OK: true, Reason: "dry-run", Payload: x.payload}
	}
	if err := x.up.MutateItem(ctx, it.ID, x.payload); err != nil {
		return Outcome{Reason: classify(err)}
	}
	return Outcome{OK: true, Reason: "ok", Payload: x.payload}
}
