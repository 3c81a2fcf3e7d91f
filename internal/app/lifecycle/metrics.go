package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/adt-armada/internal/domain/fault"
	"github.com/ahrav/adt-armada/internal/domain/protocol"
)

// LifecycleMetrics defines the metrics operations the orchestrator
// records while driving workflows.
type LifecycleMetrics interface {
	// Workflow metrics.
	IncWorkflowStarted(ctx context.Context, workflow string)
	IncWorkflowCompleted(ctx context.Context, workflow string)
	IncWorkflowAborted(ctx context.Context, workflow string)
	ObserveWorkflowDuration(ctx context.Context, workflow string, duration time.Duration)

	// Step metrics.
	IncStepFault(ctx context.Context, op protocol.Operation, category fault.Category)
	IncVerifyRetries(ctx context.Context)

	// Cleanup metrics.
	IncRollback(ctx context.Context)
	IncRollbackErrors(ctx context.Context)
	IncLocksRecovered(ctx context.Context)
}

// lifecycleMetrics implements LifecycleMetrics.
type lifecycleMetrics struct {
	workflowsStarted   metric.Int64Counter
	workflowsCompleted metric.Int64Counter
	workflowsAborted   metric.Int64Counter
	workflowDuration   metric.Float64Histogram

	stepFaults    metric.Int64Counter
	verifyRetries metric.Int64Counter

	rollbacks      metric.Int64Counter
	rollbackErrors metric.Int64Counter
	locksRecovered metric.Int64Counter
}

const namespace = "lifecycle"

// NewLifecycleMetrics creates a new lifecycle metrics instance.
func NewLifecycleMetrics(mp metric.MeterProvider) (*lifecycleMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(lifecycleMetrics)
	var err error

	if m.workflowsStarted, err = meter.Int64Counter(
		"workflows_started_total",
		metric.WithDescription("Total number of lifecycle workflows started"),
	); err != nil {
		return nil, err
	}

	if m.workflowsCompleted, err = meter.Int64Counter(
		"workflows_completed_total",
		metric.WithDescription("Total number of lifecycle workflows that completed"),
	); err != nil {
		return nil, err
	}

	if m.workflowsAborted, err = meter.Int64Counter(
		"workflows_aborted_total",
		metric.WithDescription("Total number of lifecycle workflows that aborted"),
	); err != nil {
		return nil, err
	}

	if m.workflowDuration, err = meter.Float64Histogram(
		"workflow_duration_seconds",
		metric.WithDescription("Time taken to run a lifecycle workflow"),
	); err != nil {
		return nil, err
	}

	if m.stepFaults, err = meter.Int64Counter(
		"step_faults_total",
		metric.WithDescription("Total number of classified step failures"),
	); err != nil {
		return nil, err
	}

	if m.verifyRetries, err = meter.Int64Counter(
		"verify_retries_total",
		metric.WithDescription("Total number of post-activation read retries"),
	); err != nil {
		return nil, err
	}

	if m.rollbacks, err = meter.Int64Counter(
		"rollbacks_total",
		metric.WithDescription("Total number of rollback sequences executed"),
	); err != nil {
		return nil, err
	}

	if m.rollbackErrors, err = meter.Int64Counter(
		"rollback_errors_total",
		metric.WithDescription("Total number of failed rollback steps"),
	); err != nil {
		return nil, err
	}

	if m.locksRecovered, err = meter.Int64Counter(
		"locks_recovered_total",
		metric.WithDescription("Total number of crashed-workflow locks released via recovery"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *lifecycleMetrics) IncWorkflowStarted(ctx context.Context, workflow string) {
	m.workflowsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
}

func (m *lifecycleMetrics) IncWorkflowCompleted(ctx context.Context, workflow string) {
	m.workflowsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
}

func (m *lifecycleMetrics) IncWorkflowAborted(ctx context.Context, workflow string) {
	m.workflowsAborted.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
}

func (m *lifecycleMetrics) ObserveWorkflowDuration(ctx context.Context, workflow string, duration time.Duration) {
	m.workflowDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("workflow", workflow)))
}

func (m *lifecycleMetrics) IncStepFault(ctx context.Context, op protocol.Operation, category fault.Category) {
	m.stepFaults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op.String()),
		attribute.String("category", string(category)),
	))
}

func (m *lifecycleMetrics) IncVerifyRetries(ctx context.Context) { m.verifyRetries.Add(ctx, 1) }

func (m *lifecycleMetrics) IncRollback(ctx context.Context) { m.rollbacks.Add(ctx, 1) }

func (m *lifecycleMetrics) IncRollbackErrors(ctx context.Context) { m.rollbackErrors.Add(ctx, 1) }

func (m *lifecycleMetrics) IncLocksRecovered(ctx context.Context) { m.locksRecovered.Add(ctx, 1) }
