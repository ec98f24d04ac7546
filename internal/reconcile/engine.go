package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/store"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrSyncRunning is reported when another run holds the source lock.
var ErrSyncRunning = errors.New("sync already running")

// Result is the outcome of one SyncSource call. Errors never escape
// SyncSource; they are reported here and on the source row.
type Result struct {
	RunID       string `json:"runId"`
	SourceID    int64  `json:"sourceId"`
	Success     bool   `json:"success"`
	Added       int    `json:"added"`
	Updated     int    `json:"updated"`
	Unchanged   int    `json:"unchanged"`
	Removed     int    `json:"removed"`
	Reactivated int    `json:"reactivated"`
	TotalActive int    `json:"totalActive"`
	Error       string `json:"error,omitempty"`
}

// Extractor is the post-commit technology pass.
type Extractor interface {
	ExtractForJobs(ctx context.Context, jobs []domain.Job) int
}

type Options struct {
	// LockDir holds per-source lock files; empty disables file locking.
	LockDir    string
	Sticky     StickySet
	RunTimeout time.Duration
	Extractor  Extractor
	// OnSynced is called after every run, successful or not.
	OnSynced func(src domain.ImportSource, res Result)
	Now      func() time.Time
}

type Engine struct {
	db   *store.DB
	reg  *ats.Registry
	opts Options
}

func New(db *store.DB, reg *ats.Registry, opts Options) *Engine {
	if opts.Sticky == nil {
		opts.Sticky = DefaultSticky()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{db: db, reg: reg, opts: opts}
}

func (e *Engine) Registry() *ats.Registry { return e.reg }

// SyncSource fetches one source and reconciles its stored jobs.
func (e *Engine) SyncSource(ctx context.Context, sourceID int64) Result {
	res := Result{RunID: uuid.NewString(), SourceID: sourceID}

	src, err := store.GetSource(ctx, e.db.Pool, sourceID)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	unlock, err := e.lock(sourceID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer unlock()

	res = e.run(ctx, src, res)
	if e.opts.OnSynced != nil {
		e.opts.OnSynced(src, res)
	}
	return res
}

func (e *Engine) lock(sourceID int64) (func(), error) {
	if e.opts.LockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(e.opts.LockDir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(e.opts.LockDir, fmt.Sprintf("source-%d.lock", sourceID)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock source %d: %w", sourceID, err)
	}
	if !ok {
		return nil, ErrSyncRunning
	}
	return func() { _ = fl.Unlock() }, nil
}

func (e *Engine) run(ctx context.Context, src domain.ImportSource, res Result) Result {
	started := e.opts.Now()

	fetched, err := e.fetch(ctx, src)
	if err != nil {
		res.Error = err.Error()
		if rerr := store.RecordFetch(ctx, e.db.Pool, src.ID, domain.FetchError, res.Error, e.opts.Now()); rerr != nil {
			log.Printf("[sync] source=%d record error failed: %v", src.ID, rerr)
		}
		log.Printf("[sync] source=%d type=%s run=%s fetch failed: %v", src.ID, src.Type, res.RunID, err)
		return res
	}

	now := e.opts.Now()
	var cs Changeset
	err = e.db.InTx(ctx, func(tx *sql.Tx) error {
		existing, err := store.ListJobsForSource(ctx, tx, src.ID)
		if err != nil {
			return err
		}
		cs = Plan(src, existing, fetched, now, e.opts.Sticky)
		if err := apply(ctx, tx, &cs); err != nil {
			return err
		}
		if res.TotalActive, err = store.CountActive(ctx, tx, src.ID); err != nil {
			return err
		}
		return store.RecordFetch(ctx, tx, src.ID, domain.FetchSuccess, "", now)
	})
	if err != nil {
		res.Error = fmt.Sprintf("persist: %v", err)
		if rerr := store.RecordFetch(ctx, e.db.Pool, src.ID, domain.FetchError, res.Error, e.opts.Now()); rerr != nil {
			log.Printf("[sync] source=%d record error failed: %v", src.ID, rerr)
		}
		log.Printf("[sync] source=%d type=%s run=%s %s", src.ID, src.Type, res.RunID, res.Error)
		return res
	}

	res.Success = true
	res.Added = len(cs.Inserts)
	res.Updated = len(cs.Updates)
	res.Unchanged = len(cs.Unchanged)
	res.Removed = len(cs.Removals)
	res.Reactivated = len(cs.Reactivations)

	if e.opts.Extractor != nil {
		if touched := cs.Touched(); len(touched) > 0 {
			n := e.opts.Extractor.ExtractForJobs(ctx, touched)
			log.Printf("[sync] source=%d technologies jobs=%d mentions=%d", src.ID, len(touched), n)
		}
	}

	log.Printf("[sync] source=%d type=%s run=%s fetched=%d added=%d updated=%d unchanged=%d removed=%d reactivated=%d active=%d took=%s",
		src.ID, src.Type, res.RunID, len(fetched), res.Added, res.Updated, res.Unchanged, res.Removed, res.Reactivated,
		res.TotalActive, e.opts.Now().Sub(started).Round(time.Millisecond))
	return res
}

// fetch resolves the connector and runs it under the per-run timeout.
// A connector panic is reported as a fetch error.
func (e *Engine) fetch(ctx context.Context, src domain.ImportSource) (jobs []domain.FetchedJob, err error) {
	c, err := e.reg.Resolve(src.Type)
	if err != nil {
		return nil, err
	}
	if e.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			jobs, err = nil, fmt.Errorf("%s connector panic: %v", src.Type, rec)
		}
	}()
	return c.FetchJobs(ctx, src.SourceConfig)
}

func apply(ctx context.Context, tx *sql.Tx, cs *Changeset) error {
	for i := range cs.Inserts {
		id, err := store.InsertJob(ctx, tx, cs.Inserts[i])
		if err != nil {
			return err
		}
		cs.Inserts[i].ID = id
	}
	for _, batch := range [][]domain.Job{cs.Updates, cs.Reactivations} {
		for _, j := range batch {
			if err := store.UpdateJob(ctx, tx, j); err != nil {
				return err
			}
		}
	}
	for _, batch := range [][]domain.Job{cs.Unchanged, cs.Sticky} {
		for _, j := range batch {
			if err := store.TouchJob(ctx, tx, j.ID, j.LastSeenAt); err != nil {
				return err
			}
		}
	}
	for _, j := range cs.Removals {
		if err := store.MarkRemoved(ctx, tx, j.ID, *j.RemovedAt); err != nil {
			return err
		}
	}
	return nil
}

// SyncAll syncs every source, at most concurrency at a time. One failing
// source never stops the others.
func (e *Engine) SyncAll(ctx context.Context, concurrency int) ([]Result, error) {
	sources, err := store.ListSources(ctx, e.db.Pool, 0)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]Result, len(sources))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = e.SyncSource(ctx, src.ID)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
