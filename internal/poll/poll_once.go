package poll

import (
	"context"
	"log"
	"time"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/reconcile"
	"jobfeed-engine/internal/store"
)

// Syncer is the part of the reconcile engine the poller drives.
type Syncer interface {
	SyncAll(ctx context.Context, concurrency int) ([]reconcile.Result, error)
}

type Summary struct {
	Sources     int   `json:"sources"`
	Failed      int   `json:"failed"`
	Added       int   `json:"added"`
	Updated     int   `json:"updated"`
	Removed     int   `json:"removed"`
	Reactivated int   `json:"reactivated"`
	Purged      int64 `json:"purged"`
}

// PollOnce syncs every source and then purges removed jobs past retention.
// Per-source failures are counted, not returned.
func PollOnce(ctx context.Context, db *store.DB, eng Syncer, cfg config.Config, now time.Time) (Summary, error) {
	var sum Summary

	results, err := eng.SyncAll(ctx, cfg.Sync.Concurrency)
	if err != nil {
		return sum, err
	}
	for _, r := range results {
		sum.Sources++
		if !r.Success {
			sum.Failed++
			continue
		}
		sum.Added += r.Added
		sum.Updated += r.Updated
		sum.Removed += r.Removed
		sum.Reactivated += r.Reactivated
	}

	if days := cfg.Sync.RemovedRetentionDays; days > 0 {
		age := time.Duration(days) * 24 * time.Hour
		n, err := store.PurgeRemovedJobs(ctx, db.Pool, age, now)
		if err != nil {
			log.Printf("[poll] purge error: %v", err)
		} else {
			sum.Purged = n
		}
	}

	log.Printf("[poll] sources=%d failed=%d added=%d updated=%d removed=%d reactivated=%d purged=%d",
		sum.Sources, sum.Failed, sum.Added, sum.Updated, sum.Removed, sum.Reactivated, sum.Purged)
	return sum, nil
}
