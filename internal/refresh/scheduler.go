// Package refresh drives the periodic fetch-parse-build-publish cycle.
// One refresh runs at startup and then on a fixed interval; a trigger that
// fires while a cycle is still in flight is coalesced into a no-op. A
// failed cycle logs, leaves the current snapshot untouched, and is never
// fatal to the process.
package refresh

import (
	"context"
	"time"

	"github.com/prefixd/prefixd/errs"
	"github.com/prefixd/prefixd/internal/dataset"
	"github.com/prefixd/prefixd/internal/directory"
	"github.com/prefixd/prefixd/internal/fetch"
	"github.com/prefixd/prefixd/internal/index"
	"github.com/prefixd/prefixd/internal/observability"
	"github.com/prefixd/prefixd/internal/telemetry"
	"github.com/prefixd/prefixd/lib/async"
)

const (
	outcomeSuccess      = "success"
	outcomeFetchFailure = "fetch_failure"
	outcomeUnparsable   = "unparsable"
)

// Scheduler owns the background refresh activity for one directory.
type Scheduler struct {
	fetchFn      fetch.Func
	dir          *directory.Directory
	interval     time.Duration
	fetchTimeout time.Duration
	pool         *async.Pool
	metrics      *telemetry.DirectoryMetrics
}

// NewScheduler wires a scheduler for the directory. Interval is the gap
// between refresh triggers; fetchTimeout bounds one whole cycle's fetch.
func NewScheduler(dir *directory.Directory, fetchFn fetch.Func, interval, fetchTimeout time.Duration, metrics *telemetry.DirectoryMetrics) (*Scheduler, error) {
	if dir == nil || fetchFn == nil {
		return nil, errs.New("refresh", errs.CodeInvalid,
			errs.WithMessage("directory and fetch function are required"))
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if fetchTimeout <= 0 {
		fetchTimeout = time.Minute
	}
	// Single worker, zero queue: a trigger landing on a busy pool is
	// rejected, which is exactly the coalescing the refresh needs.
	pool, err := async.NewPool(1, 0)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		fetchFn:      fetchFn,
		dir:          dir,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		pool:         pool,
		metrics:      metrics,
	}, nil
}

// Run performs the startup refresh and then triggers on the fixed interval
// until ctx is cancelled. It returns after draining the worker pool; an
// in-flight fetch finishes on its own timeout, and whatever it publishes
// after shutdown is simply ignored by a process that is exiting.
func (s *Scheduler) Run(ctx context.Context) error {
	s.trigger(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
			defer cancel()
			return s.pool.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// TriggerNow requests an immediate refresh, subject to the same coalescing
// as scheduled triggers.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.trigger(ctx)
}

func (s *Scheduler) trigger(ctx context.Context) {
	err := s.pool.Submit(ctx, func(context.Context) error {
		// The cycle deliberately detaches from the trigger's context:
		// shutdown must not forcibly cancel an in-flight fetch.
		s.refreshOnce(context.WithoutCancel(ctx))
		return nil
	})
	if err != nil {
		observability.Log().Debug("refresh_trigger_coalesced",
			observability.F("reason", err.Error()))
	}
}

// refreshOnce runs one full cycle. Failures log and leave the current
// snapshot authoritative.
func (s *Scheduler) refreshOnce(ctx context.Context) {
	log := observability.Log()
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	raw, err := s.fetchFn(fetchCtx)
	if err != nil {
		s.metrics.RecordRefresh(ctx, outcomeFetchFailure, time.Since(start))
		log.Error("refresh_fetch_failed", observability.F("err", err.Error()))
		return
	}

	doc, err := dataset.Parse(raw)
	if err != nil {
		s.metrics.RecordRefresh(ctx, outcomeUnparsable, time.Since(start))
		log.Error("refresh_dataset_unparsable", observability.F("err", err.Error()))
		return
	}

	snapshot := index.Build(doc.SyncToken, doc.Records)
	s.dir.Publish(snapshot)

	elapsed := time.Since(start)
	s.metrics.RecordRefresh(ctx, outcomeSuccess, elapsed)
	s.metrics.RecordSnapshot(ctx, snapshot.PrefixCount(), doc.Dropped)
	log.Info("refresh_done",
		observability.F("snapshot_id", snapshot.ID()),
		observability.F("sync_token", snapshot.SyncToken()),
		observability.F("prefixes", snapshot.PrefixCount()),
		observability.F("dropped", doc.Dropped),
		observability.F("elapsed", elapsed.String()),
	)
}
