// Package fs provides the filesystem-backed session repository: one
// JSON file per session id under a root directory, so a second process
// can restore material saved by a first.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/session"
	"github.com/ahrav/adt-armada/internal/infra/storage"
)

// sessionStore implements session.Repository on the local filesystem.
// Saves write to a temp file and rename into place, which keeps
// concurrent writers to distinct ids independent and makes a write to
// the same id atomic, so the last writer wins cleanly.
var _ session.Repository = (*sessionStore)(nil)

type sessionStore struct {
	root   string
	tracer trace.Tracer
}

// NewSessionStore creates a session repository rooted at the given
// directory, creating it if needed.
func NewSessionStore(root string, tracer trace.Tracer) (*sessionStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session store root %s: %w", root, err)
	}
	return &sessionStore{root: root, tracer: tracer}, nil
}

// defaultFSAttributes defines standard OpenTelemetry attributes for
// filesystem store operations.
var defaultFSAttributes = []attribute.KeyValue{
	attribute.String("store.system", "filesystem"),
}

// Save persists the session state, replacing any previous file for the
// same id. The file is synced before the rename so the state is
// durable when Save returns.
func (s *sessionStore) Save(ctx context.Context, state *session.State) error {
	attrs := append(defaultFSAttributes, attribute.String("session_id", state.ID()))

	return storage.ExecuteAndTrace(ctx, s.tracer, "fs.save_session", attrs, func(ctx context.Context) error {
		path, err := s.path(state.ID())
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal session state: %w", err)
		}

		return storage.WriteFileAtomic(path, data)
	})
}

// Load restores the state for the given session id.
func (s *sessionStore) Load(ctx context.Context, sessionID string) (*session.State, error) {
	attrs := append(defaultFSAttributes, attribute.String("session_id", sessionID))

	var state session.State
	err := storage.ExecuteAndTrace(ctx, s.tracer, "fs.load_session", attrs, func(ctx context.Context) error {
		path, err := s.path(sessionID)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", session.ErrNoSessionState, sessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to read session file: %w", err)
		}

		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("failed to decode session file %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &state, nil
}

// Delete removes the state for the given session id. Deleting a
// missing session is not an error.
func (s *sessionStore) Delete(ctx context.Context, sessionID string) error {
	attrs := append(defaultFSAttributes, attribute.String("session_id", sessionID))

	return storage.ExecuteAndTrace(ctx, s.tracer, "fs.delete_session", attrs, func(ctx context.Context) error {
		path, err := s.path(sessionID)
		if err != nil {
			return err
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete session file: %w", err)
		}
		return nil
	})
}

// path maps a session id onto its file, rejecting ids that would
// escape the root directory.
func (s *sessionStore) path(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.root, sessionID+".json"), nil
}
