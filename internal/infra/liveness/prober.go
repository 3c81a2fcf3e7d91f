// Package liveness provides the process liveness probe the lock
// registry uses to detect records whose owning workflow died.
package liveness

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/pkg/common/logger"
)

// Prober implements locking.ProcessProber by probing the pid with a
// no-op signal (or the procfs equivalent). Only a definitive "no such
// process" outcome counts as dead; existence, permission denied, and
// probe errors all count as alive, because reclaiming a lock whose
// owner might still run is worse than keeping it one more sweep.
var _ locking.ProcessProber = (*Prober)(nil)

type Prober struct{ logger *logger.Logger }

// NewProber creates a process liveness prober.
func NewProber(logger *logger.Logger) *Prober {
	return &Prober{logger: logger}
}

// Alive reports whether the process with the given pid exists.
func (p *Prober) Alive(ctx context.Context, pid int) bool {
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		p.logger.Warn(ctx, "process liveness probe failed; treating owner as alive",
			"pid", pid, "error", err)
		return true
	}
	return exists
}
