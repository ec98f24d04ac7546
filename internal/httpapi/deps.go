package httpapi

import (
	"sync/atomic"
	"time"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/events"
	"jobfeed-engine/internal/poll"
	"jobfeed-engine/internal/reconcile"
	"jobfeed-engine/internal/store"
)

type Deps struct {
	DB *store.DB

	Engine *reconcile.Engine
	Poller *poll.Poller
	Hub    *events.Hub

	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Tokens wraps the OS keychain; nil uses internal/secrets.
	Tokens TokenStore

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
