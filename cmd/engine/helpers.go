package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/events"
	"jobfeed-engine/internal/reconcile"
	"jobfeed-engine/internal/scrape"
	"jobfeed-engine/internal/store"
	"jobfeed-engine/internal/techextract"
)

// app is the wiring shared by serve and the one-shot commands.
type app struct {
	dataDir     string
	userCfgPath string
	cfgVal      atomic.Value // stores config.Config

	db  *store.DB
	eng *reconcile.Engine
	hub *events.Hub
}

func openApp(ctx context.Context) (*app, error) {
	dataDir, err := config.ResolveDataDir(dataDirFlag)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	userCfgPath, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
	if err != nil {
		return nil, fmt.Errorf("config bootstrap failed: %w", err)
	}
	cfg, err := config.Load(userCfgPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", userCfgPath, err)
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		return nil, fmt.Errorf("config %s: %v", userCfgPath, vr.Errors)
	}
	for _, w := range vr.Warnings {
		log.Printf("[config] warning: %s", w)
	}

	db, err := store.Open(filepath.Join(dataDir, "jobfeed.db"))
	if err != nil {
		return nil, err
	}

	a := &app{dataDir: dataDir, userCfgPath: userCfgPath, db: db, hub: events.NewHub()}
	a.cfgVal.Store(cfg)

	opts := reconcile.Options{
		LockDir:    filepath.Join(dataDir, "locks"),
		Sticky:     reconcile.ParseSticky(cfg.Sync.StickyStatuses),
		RunTimeout: time.Duration(cfg.Sync.RunTimeoutSeconds) * time.Second,
		OnSynced:   a.publishSynced,
	}
	if cfg.Sync.ExtractTechnologies {
		x, err := techextract.New(ctx, db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("technology table: %w", err)
		}
		opts.Extractor = x
	}

	reg := scrape.NewRegistry(scrape.Deps{HTTP: scrape.NewHTTPClient(cfg.HTTP)})
	a.eng = reconcile.New(db, reg, opts)
	return a, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) config() config.Config { return a.cfgVal.Load().(config.Config) }

func (a *app) publishSynced(src domain.ImportSource, res reconcile.Result) {
	a.hub.Publish(events.MakeEvent("", events.TypeSourceSynced, 1, events.SourceSynced{
		SourceID:    src.ID,
		OwnerID:     src.OwnerID,
		SourceType:  src.Type,
		RunID:       res.RunID,
		Success:     res.Success,
		Added:       res.Added,
		Updated:     res.Updated,
		Removed:     res.Removed,
		Reactivated: res.Reactivated,
		TotalActive: res.TotalActive,
		Error:       res.Error,
	}))
}

// seedSources creates the sources listed in sources.yml that are not stored yet.
func seedSources(ctx context.Context, db *store.DB, seeds []config.SeedSource, now time.Time) (created int, err error) {
	for _, s := range seeds {
		cfg := domain.SourceConfig{OwnerID: s.OwnerID, Type: s.Type, Identifier: s.Identifier, URL: s.URL}
		_, found, err := store.FindSource(ctx, db.Pool, cfg)
		if err != nil {
			return created, err
		}
		if found {
			continue
		}
		if _, err := store.CreateSource(ctx, db.Pool, cfg, now); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdownHandler(token string, shutdown func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		got := r.Header.Get("X-Shutdown-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("shutting down\n"))
		go shutdown()
	}
}
