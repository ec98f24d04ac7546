package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/events"
	"jobfeed-engine/internal/scheduler"
	"jobfeed-engine/internal/store"
)

var ErrBusy = errors.New("sync-all already running")

// Status is the snapshot served on /sync/status.
type Status struct {
	LastRunAt   string  `json:"last_run_at"`
	LastOkAt    string  `json:"last_ok_at"`
	LastError   string  `json:"last_error"`
	LastSummary Summary `json:"last_summary"`
	Running     bool    `json:"running"`
	NextRunAt   string  `json:"next_run_at,omitempty"`
}

// Poller runs sync-all on the configured interval and on demand. Only
// one run is in flight at a time.
type Poller struct {
	DB     *store.DB
	Engine Syncer
	CfgVal *atomic.Value
	Hub    *events.Hub
	Now    func() time.Time

	mu      sync.Mutex
	running bool
	status  atomic.Value
	lastRun time.Time
}

func New(db *store.DB, eng Syncer, cfgVal *atomic.Value, hub *events.Hub) *Poller {
	p := &Poller{DB: db, Engine: eng, CfgVal: cfgVal, Hub: hub, Now: time.Now}
	p.status.Store(Status{})
	return p
}

func (p *Poller) Status() Status {
	st, _ := p.status.Load().(Status)
	return st
}

func (p *Poller) config() config.Config {
	if v := p.CfgVal.Load(); v != nil {
		return v.(config.Config)
	}
	return config.Default()
}

// RunNow performs one sync-all pass unless one is already running.
func (p *Poller) RunNow(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return Summary{}, ErrBusy
	}
	p.running = true
	p.lastRun = p.Now()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	cfg := p.config()
	st := p.Status()
	st.Running = true
	st.LastRunAt = p.lastRun.UTC().Format(time.RFC3339)
	p.status.Store(st)

	sum, err := PollOnce(ctx, p.DB, p.Engine, cfg, p.Now())

	st = p.Status()
	st.Running = false
	st.LastSummary = sum
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
		st.LastOkAt = p.Now().UTC().Format(time.RFC3339)
	}
	st.NextRunAt = p.lastRun.Add(interval(cfg)).UTC().Format(time.RFC3339)
	p.status.Store(st)

	if p.Hub != nil {
		p.Hub.Publish(events.MakeEvent("", events.TypeSyncAllFinished, 1, sum))
	}
	return sum, err
}

// due reports whether the configured interval has elapsed since the last run.
func (p *Poller) due() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	return p.lastRun.IsZero() || p.Now().Sub(p.lastRun) >= interval(p.config())
}

func (p *Poller) tick(ctx context.Context) error {
	if !p.due() {
		return nil
	}
	_, err := p.RunNow(ctx)
	if errors.Is(err, ErrBusy) {
		return nil
	}
	return err
}

// Start checks every check interval whether a run is due. Interval changes
// from a config reload apply on the next check.
func (p *Poller) Start(ctx context.Context, check time.Duration) {
	go scheduler.Every(ctx, check, "poll", p.tick)
}

func interval(cfg config.Config) time.Duration {
	m := cfg.Sync.IntervalMinutes
	if m <= 0 {
		m = config.Default().Sync.IntervalMinutes
	}
	return time.Duration(m) * time.Minute
}
