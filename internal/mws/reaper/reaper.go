// Package reaper expires idle tenants: their registered collections are
// dropped and the tenant record removed, built entirely on the registry and
// scope primitives the core exposes.
package reaper

import (
	"context"
	"sync"
	"time"

	"mws-server/internal/mws/domain/repository"
	"mws-server/internal/shared/logger"
)

// Reaper sweeps the control collection on an interval for tenants whose
// last activity is older than the idle duration.
type Reaper struct {
	registry repository.TenantRegistry
	acquirer repository.ScopedAcquirer
	every    time.Duration
	idle     time.Duration
	log      logger.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Reaper. Start must be called to begin sweeping.
func New(registry repository.TenantRegistry, acquirer repository.ScopedAcquirer, every, idle time.Duration, log logger.Logger) *Reaper {
	return &Reaper{
		registry: registry,
		acquirer: acquirer,
		every:    every,
		idle:     idle,
		log:      log.WithComponent("reaper"),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (r *Reaper) Start() {
	go func() {
		ticker := time.NewTicker(r.every)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), r.every)
				r.Sweep(ctx)
				cancel()
			}
		}
	}()
	r.log.Infof("Reaper started, sweeping every %s for tenants idle over %s", r.every, r.idle)
}

// Stop halts the sweep loop.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Sweep expires every tenant idle since before now minus the idle duration.
// Exported so operators can trigger a sweep out of band.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.idle)
	tenants, err := r.registry.ExpiredTenants(ctx, cutoff)
	if err != nil {
		r.log.Errorf("Failed to list expired tenants: %v", err)
		return
	}

	for _, tenant := range tenants {
		if err := r.expire(ctx, tenant.ResID); err != nil {
			r.log.WithFields(map[string]interface{}{
				"res_id": tenant.ResID,
			}).Errorf("Failed to expire tenant: %v", err)
		}
	}
	if len(tenants) > 0 {
		r.log.Infof("Timed out expired sessions dead before %s", cutoff)
	}
}

// expire drops the tenant's collections, then removes its record. The
// record is kept when any drop fails so a later sweep retries the rest.
func (r *Reaper) expire(ctx context.Context, resID string) error {
	scope, err := r.acquirer.WithTenant(ctx, resID)
	if err != nil {
		return err
	}
	defer scope.Release()

	if err := scope.DropAll(ctx); err != nil {
		return err
	}
	return r.registry.RemoveTenant(ctx, resID)
}
