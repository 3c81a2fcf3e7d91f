// Package config defines the configuration surface shared by the
// lifecycle tooling: the remote endpoint, the durable store locations,
// workflow tuning, the janitor sweep settings, and the object
// definitions a one-shot run operates on.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/internal/domain/protocol"
)

// Config represents the top-level configuration.
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Stores   StoresConfig   `yaml:"stores"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Objects  []ObjectSpec   `yaml:"objects"`
}

// EndpointConfig describes the remote repository system.
type EndpointConfig struct {
	// BaseURL is the root of the remote system, scheme and host plus an
	// optional path prefix.
	BaseURL string `yaml:"base_url"`

	// Username and Password authenticate every request. Password may be
	// left empty in the file and supplied via environment instead.
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`

	// TokenPath overrides the route used to fetch CSRF tokens.
	TokenPath string `yaml:"token_path,omitempty"`

	// RequestsPerSecond and Burst bound the client-side request rate
	// shared across all sessions.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// StoresConfig locates the durable recovery state on the local
// filesystem.
type StoresConfig struct {
	// SessionDir is the directory holding one JSON file per session.
	SessionDir string `yaml:"session_dir"`

	// LockRegistryPath is the JSON document holding the lock records.
	LockRegistryPath string `yaml:"lock_registry_path"`
}

// WorkflowConfig tunes lifecycle execution.
type WorkflowConfig struct {
	// Activate runs activation after a successful create or update.
	Activate bool `yaml:"activate"`

	// SkipCheck bypasses the syntax check between populate and unlock.
	SkipCheck bool `yaml:"skip_check,omitempty"`

	// Concurrency caps how many workflows run at once in a bulk run.
	// Zero or negative runs them all at once.
	Concurrency int `yaml:"concurrency,omitempty"`

	// VerifyAttempts and VerifyDelay tune the post-activation re-read.
	VerifyAttempts int           `yaml:"verify_attempts,omitempty"`
	VerifyDelay    time.Duration `yaml:"verify_delay,omitempty"`

	// KeepSessions retains session files after clean finishes.
	KeepSessions bool `yaml:"keep_sessions,omitempty"`

	// Timeouts overrides the per-operation network timeouts. Zero
	// fields keep their defaults.
	Timeouts TimeoutsConfig `yaml:"timeouts,omitempty"`
}

// TimeoutsConfig overrides the per-operation network timeouts.
type TimeoutsConfig struct {
	Validate time.Duration `yaml:"validate,omitempty"`
	Create   time.Duration `yaml:"create,omitempty"`
	Lock     time.Duration `yaml:"lock,omitempty"`
	Update   time.Duration `yaml:"update,omitempty"`
	Check    time.Duration `yaml:"check,omitempty"`
	Unlock   time.Duration `yaml:"unlock,omitempty"`
	Activate time.Duration `yaml:"activate,omitempty"`
	Read     time.Duration `yaml:"read,omitempty"`
	Delete   time.Duration `yaml:"delete,omitempty"`
}

// Protocol maps the overrides onto the stock defaults: configured
// fields win, zero fields keep the default.
func (t TimeoutsConfig) Protocol() protocol.Timeouts {
	out := protocol.DefaultTimeouts()
	if t.Validate > 0 {
		out.Validate = t.Validate
	}
	if t.Create > 0 {
		out.Create = t.Create
	}
	if t.Lock > 0 {
		out.Lock = t.Lock
	}
	if t.Update > 0 {
		out.Update = t.Update
	}
	if t.Check > 0 {
		out.Check = t.Check
	}
	if t.Unlock > 0 {
		out.Unlock = t.Unlock
	}
	if t.Activate > 0 {
		out.Activate = t.Activate
	}
	if t.Read > 0 {
		out.Read = t.Read
	}
	if t.Delete > 0 {
		out.Delete = t.Delete
	}
	return out
}

// JanitorConfig tunes the periodic lock sweep.
type JanitorConfig struct {
	// Interval is the pause between sweeps.
	Interval time.Duration `yaml:"interval,omitempty"`

	// MaxLockAge is the age past which a lock record counts as stale.
	// Zero disables age-based reclaim, leaving only dead-owner records.
	MaxLockAge time.Duration `yaml:"max_lock_age,omitempty"`
}

// ObjectSpec describes one repository object a run operates on.
type ObjectSpec struct {
	// Type is the object type token or friendly name ("DOMA",
	// "domain", ...).
	Type string `yaml:"type"`

	// Name is the object name.
	Name string `yaml:"name"`

	// Group is the containing group for grouped object types, such as
	// a function module's function group.
	Group string `yaml:"group,omitempty"`

	// Description and Package are recorded at creation.
	Description string `yaml:"description,omitempty"`
	Package     string `yaml:"package,omitempty"`

	// Source is the object's full content. SourceFile names a file to
	// read it from instead, resolved relative to the config file.
	Source     string `yaml:"source,omitempty"`
	SourceFile string `yaml:"source_file,omitempty"`

	// Attributes carries producer-specific fields.
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Definition converts the spec into the domain form the lifecycle
// machinery consumes.
func (s ObjectSpec) Definition() (object.Definition, error) {
	identity, err := object.NewGroupedIdentity(object.ParseType(s.Type), s.Name, s.Group)
	if err != nil {
		return object.Definition{}, fmt.Errorf("object %q: %w", s.Name, err)
	}

	return object.Definition{
		Identity:    identity,
		Description: s.Description,
		Package:     s.Package,
		Source:      s.Source,
		Attributes:  s.Attributes,
	}, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Endpoint.BaseURL == "" {
		return errors.New("config: endpoint.base_url is required")
	}
	if c.Endpoint.Username == "" {
		return errors.New("config: endpoint.username is required")
	}
	if c.Stores.SessionDir == "" {
		return errors.New("config: stores.session_dir is required")
	}
	if c.Stores.LockRegistryPath == "" {
		return errors.New("config: stores.lock_registry_path is required")
	}
	for i, spec := range c.Objects {
		if spec.Name == "" {
			return fmt.Errorf("config: objects[%d] has no name", i)
		}
		if spec.Type == "" {
			return fmt.Errorf("config: objects[%d] (%s) has no type", i, spec.Name)
		}
		if spec.Source != "" && spec.SourceFile != "" {
			return fmt.Errorf("config: objects[%d] (%s) sets both source and source_file", i, spec.Name)
		}
	}
	return nil
}
