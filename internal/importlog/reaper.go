package importlog

import (
	"context"
	"time"

	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/tenant"
)

// TenantLister enumerates the tenants a reaper sweeps.
type TenantLister interface {
	Tenants() []tenant.Tenant
}

// Reaper periodically recovers imports left in processing by a crashed or cancelled run.
type Reaper struct {
	manager   *Manager
	tenants   TenantLister
	olderThan time.Duration
	interval  time.Duration
}

// NewReaper sweeps every tenant of tenants each interval.
func NewReaper(manager *Manager, tenants TenantLister, olderThan, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{manager: manager, tenants: tenants, olderThan: olderThan, interval: interval}
}

// Run sweeps until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every tenant and returns the number of imports settled.
func (r *Reaper) Sweep(ctx context.Context) int {
	l := logger.FromContext(ctx)
	total := 0
	for _, t := range r.tenants.Tenants() {
		settled, err := r.manager.ReapStuck(ctx, t, r.olderThan)
		if err != nil {
			l.Error().Err(err).Str("tenant_id", t.ID).Msg("failed to reap stuck imports")
		}
		for _, log := range settled {
			l.Warn().
				Str("tenant_id", t.ID).
				Str("import_id", log.ID.String()).
				Str("status", string(log.Status)).
				Msg("reaped stuck import")
		}
		total += len(settled)
	}
	return total
}
