package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/adt-armada/internal/domain/fault"
	"github.com/ahrav/adt-armada/internal/domain/lifecycle"
	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/protocol"
)

// call issues one remote call bounded by the operation's timeout and
// classifies the outcome. The returned error, when non-nil, is always
// a fault.Classification. Recording faults on the run is the caller's
// business: verification retries transient faults without keeping
// them.
func (w *workflow) call(ctx context.Context, op protocol.Operation, req protocol.Request) (*protocol.Response, error) {
	req.Timeout = w.orch.config.Timeouts.For(op)

	resp, err := w.conn.Do(ctx, req)
	if err != nil {
		c := fault.FromError(err)
		w.orch.metrics.IncStepFault(ctx, op, c.Category)
		return nil, c
	}
	if c, faulted := fault.Classify(resp.StatusCode, resp.Body); faulted {
		w.orch.metrics.IncStepFault(ctx, op, c.Category)
		return resp, c
	}
	return resp, nil
}

// payloadHeaders returns the content headers for producer-rendered
// bodies.
func (w *workflow) payloadHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", w.plan.Producer.ContentType())
	return h
}

// validateObject submits the definition to the validation endpoint
// before any mutating call. Success needs a 2xx status and no
// error-severity findings in the body; the remote protocol reports
// some rejections, including an existing prior instance, inside a 200
// response.
func (w *workflow) validateObject(ctx context.Context) error {
	payload, err := w.plan.Producer.BuildCreatePayload(w.plan.Definition)
	if err != nil {
		return fault.FromError(fmt.Errorf("failed to build validation payload: %w", err))
	}

	if _, err := w.call(ctx, protocol.OpValidate, protocol.Request{
		Method:  http.MethodPost,
		Path:    protocol.ValidationPath(w.identity().Type()),
		Headers: w.payloadHeaders(),
		Body:    payload,
	}); err != nil {
		return err
	}
	return w.transition(lifecycle.StateValidated)
}

// confirmExists is the update workflow's validation: read the object
// and require it to be there.
func (w *workflow) confirmExists(ctx context.Context) error {
	if _, err := w.call(ctx, protocol.OpRead, protocol.Request{
		Method: http.MethodGet,
		Path:   protocol.ObjectPath(w.identity()),
	}); err != nil {
		return err
	}
	return w.transition(lifecycle.StateValidated)
}

// createObject registers the empty object with the repository. From
// here on the run owes a delete on failure.
func (w *workflow) createObject(ctx context.Context) error {
	payload, err := w.plan.Producer.BuildCreatePayload(w.plan.Definition)
	if err != nil {
		return fault.FromError(fmt.Errorf("failed to build create payload: %w", err))
	}

	if _, err := w.call(ctx, protocol.OpCreate, protocol.Request{
		Method:  http.MethodPost,
		Path:    protocol.CollectionPath(w.identity().Type()),
		Headers: w.payloadHeaders(),
		Body:    payload,
	}); err != nil {
		return err
	}
	return w.transition(lifecycle.StateCreated)
}

// lockObject acquires the modify lock and persists the recovery
// material. The session state and lock record must be durable before
// any subsequent step that could crash while the lock is held.
func (w *workflow) lockObject(ctx context.Context) error {
	resp, err := w.call(ctx, protocol.OpLock, protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.ObjectPath(w.identity()),
		Query: url.Values{
			protocol.QueryAction:     {protocol.ActionLock},
			protocol.QueryAccessMode: {protocol.AccessModeModify},
		},
	})
	if err != nil {
		return err
	}

	handle := extractLockHandle(resp.Body)
	if handle == "" {
		return fault.New(fault.CategoryFatal, "lock response carried no lock handle", resp.StatusCode)
	}
	if err := w.transition(lifecycle.StateLocked); err != nil {
		return err
	}
	w.run.RecordLockHandle(handle)

	if err := w.persistSession(ctx); err != nil {
		return err
	}

	record, err := locking.NewRecord(w.identity(), w.run.SessionID(), handle, w.orch.ownerPID)
	if err != nil {
		return fault.FromError(err)
	}
	if err := w.orch.locks.RegisterLock(ctx, record); err != nil {
		return fault.FromError(fmt.Errorf("failed to register lock: %w", err))
	}

	w.log.Debug(ctx, "lock acquired", "lock_handle", handle)
	return nil
}

// persistSession snapshots the connection's session material into the
// repository so a later process can resume it.
func (w *workflow) persistSession(ctx context.Context) error {
	state, err := w.conn.Snapshot()
	if err != nil {
		return fault.FromError(fmt.Errorf("failed to snapshot session: %w", err))
	}
	if err := w.orch.sessions.Save(ctx, state); err != nil {
		return fault.FromError(fmt.Errorf("failed to persist session state: %w", err))
	}
	return nil
}

// populateObject writes the full content under the lock handle.
func (w *workflow) populateObject(ctx context.Context) error {
	payload, err := w.plan.Producer.BuildUpdatePayload(w.plan.Definition)
	if err != nil {
		return fault.FromError(fmt.Errorf("failed to build update payload: %w", err))
	}

	if _, err := w.call(ctx, protocol.OpUpdate, protocol.Request{
		Method:  http.MethodPut,
		Path:    protocol.ObjectPath(w.identity()),
		Query:   url.Values{protocol.QueryLockHandle: {w.run.LockHandle()}},
		Headers: w.payloadHeaders(),
		Body:    payload,
	}); err != nil {
		return err
	}
	return w.transition(lifecycle.StatePopulated)
}

// checkObject runs the syntax/consistency check against the inactive
// version. Warnings are logged and do not fail the step; error
// findings do.
func (w *workflow) checkObject(ctx context.Context) error {
	resp, err := w.call(ctx, protocol.OpCheck, protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.CheckRunPath(),
		Query: url.Values{
			protocol.QueryObjectURI: {protocol.ObjectPath(w.identity())},
			protocol.QueryVersion:   {protocol.VersionInactive},
		},
	})
	if err != nil {
		return err
	}

	for _, f := range fault.Findings(resp.Body) {
		if f.IsWarning() {
			w.log.Warn(ctx, "check reported warning", "message", f.Message)
		}
	}
	return w.transition(lifecycle.StateChecked)
}

// unlockObject releases the lock. The registry entry is removed only
// after the server confirms the release; a failed removal is recorded
// but does not fail the workflow, since the stale entry is reclaimable
// and the remote work is already done.
func (w *workflow) unlockObject(ctx context.Context) error {
	if _, err := w.call(ctx, protocol.OpUnlock, protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.ObjectPath(w.identity()),
		Query: url.Values{
			protocol.QueryAction:     {protocol.ActionUnlock},
			protocol.QueryLockHandle: {w.run.LockHandle()},
		},
	}); err != nil {
		return err
	}

	if err := w.transition(lifecycle.StateUnlocked); err != nil {
		return err
	}
	if err := w.orch.locks.RemoveLock(ctx, w.identity()); err != nil {
		w.run.RecordFault(fault.FromError(fmt.Errorf("failed to remove lock record: %w", err)))
		w.log.Warn(ctx, "failed to remove lock record after unlock", "error", err)
	}
	return nil
}

// activateObject activates the inactive version.
func (w *workflow) activateObject(ctx context.Context) error {
	if _, err := w.call(ctx, protocol.OpActivate, protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.ActivationPath(),
		Query:  url.Values{protocol.QueryObjectURI: {protocol.ObjectPath(w.identity())}},
	}); err != nil {
		return err
	}
	return w.transition(lifecycle.StateActivated)
}

// deleteObject removes the object under the lock handle (teardown
// path). Deletion dissolves the server-side lock with the object, so
// the registry entry is cleared afterwards.
func (w *workflow) deleteObject(ctx context.Context) error {
	if err := w.deleteRemote(ctx, w.run.LockHandle()); err != nil {
		return err
	}

	if err := w.transition(lifecycle.StateDeleted); err != nil {
		return err
	}
	if err := w.orch.locks.RemoveLock(ctx, w.identity()); err != nil {
		w.run.RecordFault(fault.FromError(fmt.Errorf("failed to remove lock record: %w", err)))
		w.log.Warn(ctx, "failed to remove lock record after delete", "error", err)
	}
	return nil
}

// verify re-reads the object after activation to confirm the write
// round-tripped. The read long-polls so a still-running activation
// finishes first; deployments that reject the flag with a 400 get one
// plain retry. An importing-in-progress answer classifies NotReadyYet
// and is the only retried failure, on a fixed budget; transient faults
// that later succeed are not kept on the run.
func (w *workflow) verify(ctx context.Context) error {
	longPoll := true

	attempt := func() error {
		resp, err := w.readBack(ctx, longPoll)
		if err != nil {
			var c fault.Classification
			if errors.As(err, &c) && c.StatusCode == http.StatusBadRequest && longPoll {
				longPoll = false
				resp, err = w.readBack(ctx, longPoll)
			}
		}
		if err != nil {
			var c fault.Classification
			if errors.As(err, &c) && c.Retryable {
				w.orch.metrics.IncVerifyRetries(ctx)
				w.log.Debug(ctx, "object not ready yet, retrying verification")
				return err
			}
			return backoff.Permanent(err)
		}

		content, ok := w.plan.Producer.ExtractReadPayload(resp.Body)
		if !ok {
			return backoff.Permanent(fault.New(fault.CategoryFatal,
				"verification read returned no extractable content", resp.StatusCode))
		}
		if want := strings.TrimSpace(w.plan.Definition.Source); want != "" && content != want {
			return backoff.Permanent(fault.New(fault.CategoryFatal,
				"verification read does not match the written source", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(w.orch.config.VerifyDelay),
		uint64(w.orch.config.VerifyAttempts-1),
	), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return err
	}
	return w.transition(lifecycle.StateVerified)
}

// readBack issues the verification read.
func (w *workflow) readBack(ctx context.Context, longPoll bool) (*protocol.Response, error) {
	q := url.Values{protocol.QueryVersion: {protocol.VersionActive}}
	if longPoll {
		q.Set(protocol.QueryLongPolling, "true")
	}
	return w.call(ctx, protocol.OpRead, protocol.Request{
		Method: http.MethodGet,
		Path:   protocol.ObjectPath(w.identity()),
		Query:  q,
	})
}

// unlockRemote issues the raw unlock call. Rollback and recovery use
// it without the step bookkeeping.
func (w *workflow) unlockRemote(ctx context.Context, lockHandle string) error {
	_, err := w.call(ctx, protocol.OpUnlock, protocol.Request{
		Method: http.MethodPost,
		Path:   protocol.ObjectPath(w.identity()),
		Query: url.Values{
			protocol.QueryAction:     {protocol.ActionUnlock},
			protocol.QueryLockHandle: {lockHandle},
		},
	})
	return err
}

// deleteRemote issues the raw delete call. Rollback uses it without a
// lock handle, after the lock has been released.
func (w *workflow) deleteRemote(ctx context.Context, lockHandle string) error {
	q := url.Values{}
	if lockHandle != "" {
		q.Set(protocol.QueryLockHandle, lockHandle)
	}
	_, err := w.call(ctx, protocol.OpDelete, protocol.Request{
		Method: http.MethodDelete,
		Path:   protocol.ObjectPath(w.identity()),
		Query:  q,
	})
	return err
}

// transition advances the run, converting an ordering violation into a
// fatal fault. These only fire on orchestrator bugs, never on remote
// behavior.
func (w *workflow) transition(target lifecycle.State) error {
	if err := w.run.TransitionTo(target); err != nil {
		return fault.FromError(err)
	}
	return nil
}

// extractLockHandle pulls the server-issued handle out of a lock
// response. Deployments answer in either XML or JSON; the handle is
// the text of the LOCK_HANDLE field wherever it nests.
func extractLockHandle(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if trimmed[0] == '<' {
		dec := xml.NewDecoder(bytes.NewReader(trimmed))
		var inHandle bool
		var handle strings.Builder
		for {
			tok, err := dec.Token()
			if err != nil {
				return ""
			}
			switch t := tok.(type) {
			case xml.StartElement:
				inHandle = strings.EqualFold(t.Name.Local, "LOCK_HANDLE")
			case xml.CharData:
				if inHandle {
					handle.Write(t)
				}
			case xml.EndElement:
				if inHandle {
					return strings.TrimSpace(handle.String())
				}
			}
		}
	}

	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return ""
	}
	return findLockHandle(parsed)
}

func findLockHandle(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			switch strings.ToUpper(k) {
			case "LOCK_HANDLE", "LOCKHANDLE":
				if s, ok := child.(string); ok {
					return strings.TrimSpace(s)
				}
			}
		}
		for _, child := range val {
			if h := findLockHandle(child); h != "" {
				return h
			}
		}
	case []any:
		for _, child := range val {
			if h := findLockHandle(child); h != "" {
				return h
			}
		}
	}
	return ""
}
