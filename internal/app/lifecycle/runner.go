package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/adt-armada/internal/domain/lifecycle"
	"github.com/ahrav/adt-armada/internal/domain/object"
)

// RunResult pairs one plan's outcome with the fault that ended it, if
// any.
type RunResult struct {
	Identity object.Identity
	Result   lifecycle.Result
	Err      error
}

// CreateAll runs the create workflow for every plan with at most limit
// running concurrently; a non-positive limit runs them all at once.
// Every plan gets its own session id, and a failing plan never cancels
// the others. Results come back per plan, in input order.
func (o *Orchestrator) CreateAll(ctx context.Context, plans []Plan, limit int) []RunResult {
	return o.runAll(ctx, "create_all", plans, limit, o.Create)
}

// UpdateAll runs the update workflow for every plan with at most limit
// running concurrently.
func (o *Orchestrator) UpdateAll(ctx context.Context, plans []Plan, limit int) []RunResult {
	return o.runAll(ctx, "update_all", plans, limit, o.Update)
}

// DeleteAll runs the delete workflow for every plan with at most limit
// running concurrently.
func (o *Orchestrator) DeleteAll(ctx context.Context, plans []Plan, limit int) []RunResult {
	return o.runAll(ctx, "delete_all", plans, limit, o.Delete)
}

func (o *Orchestrator) runAll(
	ctx context.Context,
	name string,
	plans []Plan,
	limit int,
	run func(context.Context, Plan) (lifecycle.Result, error),
) []RunResult {
	ctx, span := o.tracer.Start(ctx, "lifecycle_orchestrator."+name, trace.WithAttributes(
		attribute.Int("plan_count", len(plans)),
		attribute.Int("limit", limit),
	))
	defer span.End()

	results := make([]RunResult, len(plans))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			res, err := run(ctx, plan)
			results[i] = RunResult{Identity: plan.Definition.Identity, Result: res, Err: err}
			return nil
		})
	}
	// Workflow failures land in results, never here.
	_ = g.Wait()

	return results
}
