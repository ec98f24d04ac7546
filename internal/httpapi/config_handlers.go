package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"slices"
	"sync/atomic"

	"jobfeed-engine/internal/config"
)

type ConfigHandler struct {
	CfgVal      *atomic.Value // stores config.Config
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cur := h.CfgVal.Load().(config.Config)
	writeJSON(w, cur)
}

func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var incoming config.Config
	if err := dec.Decode(&incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if dec.More() {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: trailing data")
		return
	}

	normalized, vr := config.NormalizeAndValidate(incoming)
	if !vr.OK() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(vr)
		return
	}

	prev := h.CfgVal.Load().(config.Config)
	if err := config.SaveAtomic(h.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusBadRequest, "save_failed", err.Error())
		return
	}

	saved, err := h.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", "saved but reload failed: "+err.Error())
		return
	}
	h.CfgVal.Store(saved)
	warnings := append(vr.Warnings, restartWarnings(prev, saved)...)
	log.Printf("level=info msg=\"config saved\" request_id=%s path=%s warnings=%d",
		RequestIDFrom(r.Context()), h.UserCfgPath, len(warnings))
	writeJSON(w, map[string]any{"config": saved, "warnings": warnings})
}

// restartWarnings lists changed settings that are only read at startup.
// The poller picks up interval, concurrency and retention on its next tick.
func restartWarnings(prev, next config.Config) []string {
	var out []string
	if prev.App.Port != next.App.Port {
		out = append(out, "app.port takes effect after restart")
	}
	if prev.HTTP != next.HTTP {
		out = append(out, "http settings take effect after restart")
	}
	if prev.Sync.RunTimeoutSeconds != next.Sync.RunTimeoutSeconds ||
		prev.Sync.ExtractTechnologies != next.Sync.ExtractTechnologies ||
		!slices.Equal(prev.Sync.StickyStatuses, next.Sync.StickyStatuses) {
		out = append(out, "sync.run_timeout_seconds, sync.sticky_statuses and sync.extract_technologies take effect after restart")
	}
	return out
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, _ := filepath.Abs(h.UserCfgPath)
	writeJSON(w, map[string]any{"path": abs})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	cur := h.CfgVal.Load().(config.Config)
	_, vr := config.NormalizeAndValidate(cur)

	writeJSON(w, vr)
}
