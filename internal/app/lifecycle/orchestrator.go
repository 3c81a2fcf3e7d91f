// Package lifecycle orchestrates repository-object workflows against
// the remote system. It drives the create, update, and delete state
// machines step by step, persists the recovery material (session
// state, lock records) before any step that could crash with a lock
// held, rolls partially applied work back on failure, and releases
// locks stranded by crashed processes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/fault"
	"github.com/ahrav/adt-armada/internal/domain/lifecycle"
	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/internal/domain/protocol"
	"github.com/ahrav/adt-armada/internal/domain/session"
	"github.com/ahrav/adt-armada/pkg/common/idgen"
	"github.com/ahrav/adt-armada/pkg/common/logger"
)

var (
	// ErrNoPlanIdentity indicates a workflow plan without an object
	// identity.
	ErrNoPlanIdentity = errors.New("workflow plan has no object identity")

	// ErrNoProducer indicates a workflow plan without a content
	// producer.
	ErrNoProducer = errors.New("workflow plan has no content producer")
)

const (
	defaultVerifyAttempts  = 3
	defaultVerifyDelay     = 2 * time.Second
	defaultRollbackTimeout = 30 * time.Second
)

// Workflow kind labels used in spans, logs, and metrics.
const (
	workflowCreate = "create"
	workflowUpdate = "update"
	workflowDelete = "delete"
)

// Config tunes orchestrator behavior. Zero values get safe defaults.
type Config struct {
	// Timeouts bounds each remote call by operation kind.
	Timeouts protocol.Timeouts

	// VerifyAttempts caps the post-activation read attempts while the
	// server is still importing the activated object.
	VerifyAttempts int

	// VerifyDelay is the pause between verify attempts.
	VerifyDelay time.Duration

	// RollbackTimeout bounds the cleanup calls issued after a failure
	// or cancellation. Rollback runs detached from the caller's
	// context so cancellation cannot strand a remote lock.
	RollbackTimeout time.Duration

	// KeepSessions retains persisted session material after a clean
	// finish instead of deleting it. Useful for diagnosis; stale
	// session files are harmless.
	KeepSessions bool
}

// Plan describes one workflow: the object to operate on, the producer
// that renders its payloads, and which optional steps to run.
type Plan struct {
	// Definition carries the object identity, metadata, and source.
	Definition object.Definition

	// Producer renders the create/update payloads and extracts read
	// responses for the object's type.
	Producer object.ContentProducer

	// Activate runs activation after the lock is released. Without it
	// the object remains created-but-inactive, which is a valid end
	// state.
	Activate bool

	// SkipCheck bypasses the syntax check between populate and unlock.
	SkipCheck bool
}

func (p Plan) validate() error {
	if p.Definition.Identity.IsZero() {
		return ErrNoPlanIdentity
	}
	if p.Producer == nil {
		return ErrNoProducer
	}
	return nil
}

// Orchestrator drives object lifecycles. Each workflow runs under its
// own fresh session id on a single goroutine; the orchestrator itself
// holds no per-object state between runs, so concurrent workflows and
// repeated runs against the same identity behave identically. All
// durable state lives in the session repository and the lock registry.
type Orchestrator struct {
	config Config

	// dialer opens the per-workflow stateful connections.
	dialer protocol.Dialer

	// sessions persists session material for crash recovery.
	sessions session.Repository

	// locks is the durable lock registry.
	locks locking.Registry

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics LifecycleMetrics

	newSessionID func() string
	ownerPID     int
}

// NewOrchestrator returns an orchestrator that executes workflows over
// connections from the dialer, persisting recovery material in the
// given session repository and lock registry.
func NewOrchestrator(
	config Config,
	dialer protocol.Dialer,
	sessions session.Repository,
	locks locking.Registry,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics LifecycleMetrics,
) *Orchestrator {
	logger = logger.With("component", "lifecycle_orchestrator")

	if config.Timeouts == (protocol.Timeouts{}) {
		config.Timeouts = protocol.DefaultTimeouts()
	}
	if config.VerifyAttempts <= 0 {
		config.VerifyAttempts = defaultVerifyAttempts
	}
	if config.VerifyDelay <= 0 {
		config.VerifyDelay = defaultVerifyDelay
	}
	if config.RollbackTimeout <= 0 {
		config.RollbackTimeout = defaultRollbackTimeout
	}

	return &Orchestrator{
		config:       config,
		dialer:       dialer,
		sessions:     sessions,
		locks:        locks,
		logger:       logger,
		tracer:       tracer,
		metrics:      metrics,
		newSessionID: idgen.NewSessionID,
		ownerPID:     os.Getpid(),
	}
}

// Create runs the full creation lifecycle: validate, create, lock,
// populate, check, unlock, then optional activation and verification.
// The returned result always reflects what actually happened on the
// server; the error is the classified fault that ended the workflow,
// or nil.
func (o *Orchestrator) Create(ctx context.Context, plan Plan) (lifecycle.Result, error) {
	return o.execute(ctx, workflowCreate, plan)
}

// Update rewrites an existing object's content: confirm it exists,
// lock, populate, check, unlock, then optional activation and
// verification. Updates never delete on rollback because the object
// is not this workflow's creation.
func (o *Orchestrator) Update(ctx context.Context, plan Plan) (lifecycle.Result, error) {
	return o.execute(ctx, workflowUpdate, plan)
}

// Delete removes an object: lock, delete under the lock handle, then
// registry cleanup.
func (o *Orchestrator) Delete(ctx context.Context, plan Plan) (lifecycle.Result, error) {
	return o.execute(ctx, workflowDelete, plan)
}

func (o *Orchestrator) execute(ctx context.Context, kind string, plan Plan) (lifecycle.Result, error) {
	log := o.logger.With("operation", kind, "object", plan.Definition.Identity.Key())
	ctx, span := o.tracer.Start(ctx, "lifecycle_orchestrator."+kind, trace.WithAttributes(
		attribute.String("object_key", plan.Definition.Identity.Key()),
	))
	defer span.End()

	start := time.Now()
	o.metrics.IncWorkflowStarted(ctx, kind)

	if err := plan.validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid workflow plan")
		o.metrics.IncWorkflowAborted(ctx, kind)

		run := lifecycle.NewRun(plan.Definition.Identity)
		run.RecordFault(fault.FromError(err))
		return run.Finalize(lifecycle.FinalStateAborted), err
	}

	w, err := o.openWorkflow(ctx, plan, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open workflow session")
		o.metrics.IncWorkflowAborted(ctx, kind)

		run := lifecycle.NewRun(plan.Definition.Identity)
		run.RecordFault(fault.FromError(err))
		return run.Finalize(lifecycle.FinalStateAborted), err
	}
	span.SetAttributes(attribute.String("session_id", w.run.SessionID()))

	var result lifecycle.Result
	switch kind {
	case workflowCreate:
		result, err = w.create(ctx)
	case workflowUpdate:
		result, err = w.update(ctx)
	case workflowDelete:
		result, err = w.teardown(ctx)
	}

	duration := time.Since(start)
	o.metrics.ObserveWorkflowDuration(ctx, kind, duration)
	span.SetAttributes(attribute.String("final_state", result.FinalState().String()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow failed")
		o.metrics.IncWorkflowAborted(ctx, kind)
		log.Error(ctx, "workflow failed",
			"final_state", result.FinalState().String(), "error", err)
		return result, err
	}

	o.metrics.IncWorkflowCompleted(ctx, kind)
	log.Info(ctx, "workflow completed",
		"final_state", result.FinalState().String(), "duration", duration.String())
	return result, nil
}

// openWorkflow binds a fresh session to a new run. Sessions are never
// shared between runs: the remote system ties lock ownership to the
// session that acquired it.
func (o *Orchestrator) openWorkflow(ctx context.Context, plan Plan, log *logger.Logger) (*workflow, error) {
	sessionID := o.newSessionID()
	conn, err := o.dialer.Open(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	run := lifecycle.NewRun(plan.Definition.Identity)
	run.BindSession(sessionID)

	return &workflow{
		orch: o,
		plan: plan,
		conn: conn,
		run:  run,
		log:  log.With("session_id", sessionID),
	}, nil
}

// workflow is the single-goroutine execution of one plan.
type workflow struct {
	orch *Orchestrator
	plan Plan
	conn protocol.StatefulConnection
	run  *lifecycle.Run
	log  *logger.Logger
}

func (w *workflow) identity() object.Identity { return w.run.Identity() }

// create walks the creation state machine.
func (w *workflow) create(ctx context.Context) (lifecycle.Result, error) {
	if err := w.validateObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if err := w.createObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if err := w.lockObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if err := w.populateObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if !w.plan.SkipCheck {
		if err := w.checkObject(ctx); err != nil {
			return w.abort(ctx, err)
		}
	}
	if err := w.unlockObject(ctx); err != nil {
		return w.abort(ctx, err)
	}

	return w.finish(ctx, lifecycle.FinalStateCreated)
}

// update walks the same machine without the create step; rollback
// consequently never deletes, because the run never owns the object's
// existence.
func (w *workflow) update(ctx context.Context) (lifecycle.Result, error) {
	if err := w.confirmExists(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if err := w.lockObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if err := w.populateObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if !w.plan.SkipCheck {
		if err := w.checkObject(ctx); err != nil {
			return w.abort(ctx, err)
		}
	}
	if err := w.unlockObject(ctx); err != nil {
		return w.abort(ctx, err)
	}

	return w.finish(ctx, lifecycle.FinalStateUpdated)
}

// teardown locks the object and deletes it under the lock handle.
func (w *workflow) teardown(ctx context.Context) (lifecycle.Result, error) {
	if err := w.lockObject(ctx); err != nil {
		return w.abort(ctx, err)
	}
	if err := w.deleteObject(ctx); err != nil {
		return w.abort(ctx, err)
	}

	w.finishSession(ctx)
	return w.run.Finalize(lifecycle.FinalStateDeleted), nil
}

// finish runs the optional activation and verification tail shared by
// create and update, then finalizes. Activation failure is not a
// workflow failure: the object remains created-but-inactive, a valid
// end state the result reports through the recorded fault.
func (w *workflow) finish(ctx context.Context, completed lifecycle.FinalState) (lifecycle.Result, error) {
	if !w.plan.Activate {
		w.finishSession(ctx)
		return w.run.Finalize(completed), nil
	}

	if err := w.activateObject(ctx); err != nil {
		w.run.RecordFault(fault.FromError(err))
		w.log.Warn(ctx, "activation failed, object remains inactive", "error", err)
		w.finishSession(ctx)
		return w.run.Finalize(completed), nil
	}

	if err := w.verify(ctx); err != nil {
		w.run.RecordFault(fault.FromError(err))
		w.finishSession(ctx)
		return w.run.Finalize(lifecycle.FinalStateActivated), err
	}

	w.finishSession(ctx)
	return w.run.Finalize(lifecycle.FinalStateActivated), nil
}

// abort records the triggering fault, rolls back whatever the run left
// on the server, and finalizes the aborted result. The returned error
// is always the original fault; cleanup failures are recorded after it
// and logged, never allowed to mask it.
func (w *workflow) abort(ctx context.Context, cause error) (lifecycle.Result, error) {
	w.run.RecordFault(fault.FromError(cause))

	// Cleanup runs detached so cancellation drains instead of
	// stranding a remote lock or an orphaned object.
	cleanupCtx := context.WithoutCancel(ctx)
	w.rollback(cleanupCtx)
	if !w.run.Locked() {
		w.finishSession(cleanupCtx)
	}

	_ = w.run.TransitionTo(lifecycle.StateAborted)
	return w.run.Finalize(lifecycle.FinalStateAborted), cause
}

// rollback releases what the failed run still owns remotely: a
// best-effort unlock while the lock is held, then a best-effort delete
// when this run created the object. The lock registry entry is removed
// only after the remote unlock is confirmed, so recovery keeps working
// when rollback itself fails.
func (w *workflow) rollback(ctx context.Context) {
	if !w.run.Locked() && !w.run.Created() {
		return
	}
	w.orch.metrics.IncRollback(ctx)

	ctx, cancel := context.WithTimeout(ctx, w.orch.config.RollbackTimeout)
	defer cancel()

	if w.run.Locked() {
		if err := w.unlockRemote(ctx, w.run.LockHandle()); err != nil {
			w.orch.metrics.IncRollbackErrors(ctx)
			w.run.RecordFault(fault.FromError(err))
			w.log.Error(ctx, "rollback unlock failed, lock record kept for recovery", "error", err)
		} else {
			if err := w.orch.locks.RemoveLock(ctx, w.identity()); err != nil {
				w.log.Warn(ctx, "failed to remove lock record after rollback unlock", "error", err)
			}
			w.run.MarkUnlocked()
		}
	}

	if w.run.Created() {
		if err := w.deleteRemote(ctx, ""); err != nil {
			w.orch.metrics.IncRollbackErrors(ctx)
			w.run.RecordFault(fault.FromError(err))
			w.log.Error(ctx, "rollback delete failed, object may remain", "error", err)
		} else {
			w.run.MarkDeleted()
		}
	}
}

// finishSession clears the persisted session material once the run no
// longer holds server-side resources. Failures only warn: a leftover
// session file is harmless and reclaimable.
func (w *workflow) finishSession(ctx context.Context) {
	if w.orch.config.KeepSessions {
		return
	}
	if err := w.orch.sessions.Delete(ctx, w.run.SessionID()); err != nil {
		w.log.Warn(ctx, "failed to delete session state", "error", err)
	}
}
