// Package janitor implements the background service that reclaims
// abandoned lock records: entries whose owning process has died, or
// that have outlived the configured maximum age.
//
// The janitor only touches the local registry. Remote locks belonging
// to reclaimed records are released separately through the recovery
// flow; dropping the record here simply stops the registry from
// growing without bound when workflows crash.
package janitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/pkg/common/logger"
	"github.com/ahrav/adt-armada/pkg/common/timeutil"
	"github.com/ahrav/adt-armada/pkg/metrics"
)

// Reclaim reasons reported to metrics and logs.
const (
	reasonStale = "stale"
	reasonDead  = "dead"
)

const (
	defaultInterval = 5 * time.Minute
	defaultMaxAge   = 30 * time.Minute
)

// Config controls the sweep cadence.
type Config struct {
	// Interval is the period between sweeps. Defaults to 5 minutes.
	Interval time.Duration

	// MaxAge is the age beyond which a record is considered abandoned
	// even when its owner is still alive. A non-positive value disables
	// age-based reclaim so only dead-owner records are swept.
	MaxAge time.Duration
}

// Service periodically sweeps the lock registry, removing records
// whose owner has died or whose age exceeds the configured maximum.
type Service struct {
	cfg      Config
	registry locking.Registry

	timeProvider timeutil.Provider

	metrics metrics.JanitorMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewService creates a janitor sweeping the given registry.
func NewService(
	cfg Config,
	registry locking.Registry,
	m metrics.JanitorMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Service{
		cfg:          cfg,
		registry:     registry,
		timeProvider: timeutil.Default(),
		metrics:      m,
		logger:       log.With("component", "lock_janitor"),
		tracer:       tracer,
	}
}

// Run sweeps the registry on the configured interval until the context
// is canceled. The first sweep is delayed by a random fraction of the
// interval so multiple janitors sharing a registry do not align.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "lock janitor started",
		"interval", s.cfg.Interval.String(),
		"max_age", s.cfg.MaxAge.String(),
	)

	delay := rand.N(s.cfg.Interval)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error(ctx, "registry sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "lock janitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one cleanup pass and returns the reclaimed records.
func (s *Service) Sweep(ctx context.Context) ([]*locking.Record, error) {
	ctx, span := s.tracer.Start(ctx, "lock_janitor.sweep",
		trace.WithAttributes(
			attribute.String("max_age", s.cfg.MaxAge.String()),
		))
	defer span.End()

	var removed []*locking.Record
	err := s.metrics.TrackSweep(func() error {
		var err error
		removed, err = s.registry.Cleanup(ctx, s.cfg.MaxAge)
		return err
	})
	if err != nil {
		s.metrics.IncSweepFailures()
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		return nil, fmt.Errorf("registry sweep failed: %w", err)
	}

	now := s.timeProvider.Now()
	var stale, dead int
	for _, rec := range removed {
		// Cleanup removes the union of stale and dead records, so a
		// removed record that is not over the age limit must have had a
		// dead owner.
		reason := reasonDead
		if rec.IsStale(now, s.cfg.MaxAge) {
			reason = reasonStale
			stale++
		} else {
			dead++
		}

		s.logger.Info(ctx, "reclaimed abandoned lock record",
			"object", rec.Identity().String(),
			"session_id", rec.SessionID(),
			"lock_handle", rec.LockHandle(),
			"owner_pid", rec.OwnerPID(),
			"age", now.Sub(rec.CreatedAt()).String(),
			"reason", reason,
		)
	}
	if stale > 0 {
		s.metrics.AddLocksReclaimed(reasonStale, stale)
	}
	if dead > 0 {
		s.metrics.AddLocksReclaimed(reasonDead, dead)
	}

	remaining, err := s.registry.List(ctx)
	if err != nil {
		span.RecordError(err)
		return removed, fmt.Errorf("failed to count remaining lock records: %w", err)
	}
	s.metrics.SetTrackedLocks(len(remaining))

	span.SetAttributes(
		attribute.Int("removed", len(removed)),
		attribute.Int("remaining", len(remaining)),
	)
	span.SetStatus(codes.Ok, "sweep complete")
	return removed, nil
}
