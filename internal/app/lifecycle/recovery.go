package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/fault"
	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/internal/domain/protocol"
	"github.com/ahrav/adt-armada/internal/domain/session"
)

// ErrNothingToRecover indicates no recovery material exists for the
// identity and session: either no lock record is registered or the
// session state is gone, so there is no stranded lock to release.
var ErrNothingToRecover = errors.New("no recovery material found")

// Recovered bundles what a crashed workflow left behind: the session
// that owns the server-side lock and the lock record itself. A new
// process feeds it to UnlockRecovered to release the lock without
// manual intervention.
type Recovered struct {
	Session *session.State
	Lock    *locking.Record
}

// Recover loads the session state and lock record a previous process
// persisted for the identity. Both must be present; either one missing
// yields ErrNothingToRecover. The lock record must belong to the given
// session, since the remote system only honors an unlock from the
// session that acquired the lock.
func (o *Orchestrator) Recover(ctx context.Context, identity object.Identity, sessionID string) (*Recovered, error) {
	log := o.logger.With("operation", "recover", "object", identity.Key(), "session_id", sessionID)
	ctx, span := o.tracer.Start(ctx, "lifecycle_orchestrator.recover", trace.WithAttributes(
		attribute.String("object_key", identity.Key()),
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	lock, err := o.locks.GetLock(ctx, identity)
	if err != nil {
		if errors.Is(err, locking.ErrLockNotFound) {
			return nil, fmt.Errorf("%w: no lock record for %s", ErrNothingToRecover, identity.Key())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load lock record")
		return nil, fmt.Errorf("failed to load lock record: %w", err)
	}

	if lock.SessionID() != sessionID {
		err := fmt.Errorf("lock for %s is owned by session %s, not %s",
			identity.Key(), lock.SessionID(), sessionID)
		span.RecordError(err)
		return nil, err
	}

	state, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoSessionState) {
			return nil, fmt.Errorf("%w: no session state for %s", ErrNothingToRecover, sessionID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load session state")
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	log.Info(ctx, "recovered stranded lock material",
		"lock_handle", lock.LockHandle(), "owner_pid", lock.OwnerPID(),
		"session_age", state.Age().String())
	return &Recovered{Session: state, Lock: lock}, nil
}

// UnlockRecovered releases the server-side lock a crashed workflow
// left behind. It resumes the recovered session, replays the unlock
// with the persisted lock handle, and only then clears the registry
// entry and the session material, preserving the invariant that a
// registry entry implies a potentially-held remote lock.
func (o *Orchestrator) UnlockRecovered(ctx context.Context, rec *Recovered) error {
	if rec == nil || rec.Session == nil || rec.Lock == nil {
		return errors.New("incomplete recovery material")
	}

	identity := rec.Lock.Identity()
	log := o.logger.With("operation", "unlock_recovered",
		"object", identity.Key(), "session_id", rec.Session.ID())
	ctx, span := o.tracer.Start(ctx, "lifecycle_orchestrator.unlock_recovered", trace.WithAttributes(
		attribute.String("object_key", identity.Key()),
		attribute.String("session_id", rec.Session.ID()),
	))
	defer span.End()

	conn, err := o.dialer.Resume(ctx, rec.Session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resume session")
		return fmt.Errorf("failed to resume session: %w", err)
	}

	resp, err := conn.Do(ctx, protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.ObjectPath(identity),
		Query: url.Values{
			protocol.QueryAction:     {protocol.ActionUnlock},
			protocol.QueryLockHandle: {rec.Lock.LockHandle()},
		},
		Timeout: o.config.Timeouts.For(protocol.OpUnlock),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recovered unlock call failed")
		return fault.FromError(err)
	}
	if c, faulted := fault.Classify(resp.StatusCode, resp.Body); faulted {
		span.RecordError(c)
		span.SetStatus(codes.Error, "server rejected recovered unlock")
		return c
	}

	if err := o.locks.RemoveLock(ctx, identity); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove recovered lock record: %w", err)
	}
	if err := o.sessions.Delete(ctx, rec.Session.ID()); err != nil {
		log.Warn(ctx, "failed to delete recovered session state", "error", err)
	}

	o.metrics.IncLocksRecovered(ctx)
	log.Info(ctx, "released recovered lock", "lock_handle", rec.Lock.LockHandle())
	return nil
}
