package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/events"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/reconcile"
	"jobfeed-engine/internal/store"
)

type SourcesHandler struct {
	DB     *store.DB
	Engine *reconcile.Engine
	Hub    *events.Hub
	Now    func() time.Time
}

type createSourceReq struct {
	domain.SourceConfig
	SkipValidation bool `json:"skipValidation"`
}

type createSourceResp struct {
	Source     domain.ImportSource   `json:"source"`
	Validation *ats.ValidationResult `json:"validation,omitempty"`
}

func (h SourcesHandler) Types(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"types": h.Engine.Registry().Types()})
}

func (h SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, err := queryInt64(r, "owner_id")
	if err != nil || owner < 0 {
		WriteError(w, r, http.StatusBadRequest, "invalid_owner", "owner_id must be a positive integer")
		return
	}
	sources, err := store.ListSources(r.Context(), h.DB.Pool, owner)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if sources == nil {
		sources = []domain.ImportSource{}
	}
	writeJSON(w, sources)
}

// checkConfig returns an error message for a config that can never work,
// or "" if the connector should be asked.
func (h SourcesHandler) checkConfig(cfg *domain.SourceConfig) (code, msg string) {
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	cfg.Identifier = strings.TrimSpace(cfg.Identifier)
	cfg.URL = strings.TrimSpace(cfg.URL)
	if !h.Engine.Registry().IsSupported(cfg.Type) {
		return "unsupported_type", "unsupported source type " + `"` + cfg.Type + `"`
	}
	if cfg.Identifier == "" {
		return "invalid_identifier", "sourceIdentifier is required"
	}
	return "", ""
}

func (h SourcesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var cfg domain.SourceConfig
	if err := decodeStrict(r, &cfg); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if code, msg := h.checkConfig(&cfg); code != "" {
		WriteError(w, r, http.StatusBadRequest, code, msg)
		return
	}
	c, _ := h.Engine.Registry().Resolve(cfg.Type)
	writeJSON(w, c.ValidateConfig(r.Context(), cfg))
}

func (h SourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSourceReq
	if err := decodeStrict(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	cfg := req.SourceConfig
	if cfg.OwnerID <= 0 {
		WriteError(w, r, http.StatusBadRequest, "invalid_owner", "ownerId must be a positive integer")
		return
	}
	if code, msg := h.checkConfig(&cfg); code != "" {
		WriteError(w, r, http.StatusBadRequest, code, msg)
		return
	}

	if _, found, err := store.FindSource(r.Context(), h.DB.Pool, cfg); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	} else if found {
		WriteError(w, r, http.StatusConflict, "duplicate_source", "source already exists for this owner")
		return
	}

	var resp createSourceResp
	if !req.SkipValidation {
		c, _ := h.Engine.Registry().Resolve(cfg.Type)
		vr := c.ValidateConfig(r.Context(), cfg)
		if !vr.Valid {
			WriteError(w, r, http.StatusUnprocessableEntity, "invalid_source", vr.Error)
			return
		}
		resp.Validation = &vr
	}

	src, err := store.CreateSource(r.Context(), h.DB.Pool, cfg, h.Now())
	if errors.Is(err, store.ErrDuplicateSource) {
		WriteError(w, r, http.StatusConflict, "duplicate_source", "source already exists for this owner")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	resp.Source = src

	h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), events.TypeSourceCreated, 1, src))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, resp)
}

// ByPath serves /sources/{id}, /sources/{id}/sync and /sources/{id}/jobs.
func (h SourcesHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitIDPath(r.URL.Path, "/sources/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid source id")
		return
	}
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case rest == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case rest == "sync" && r.Method == http.MethodPost:
		h.sync(w, r, id)
	case rest == "jobs" && r.Method == http.MethodGet:
		h.jobs(w, r, id)
	case rest == "" || rest == "sync" || rest == "jobs":
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "not found")
	}
}

func (h SourcesHandler) get(w http.ResponseWriter, r *http.Request, id int64) {
	src, err := store.GetSource(r.Context(), h.DB.Pool, id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "source not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, src)
}

func (h SourcesHandler) delete(w http.ResponseWriter, r *http.Request, id int64) {
	err := store.DeleteSource(r.Context(), h.DB.Pool, id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "source not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), events.TypeSourceDeleted, 1, map[string]any{"id": id}))
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

func (h SourcesHandler) sync(w http.ResponseWriter, r *http.Request, id int64) {
	if _, err := store.GetSource(r.Context(), h.DB.Pool, id); errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "source not found")
		return
	}
	res := h.Engine.SyncSource(r.Context(), id)
	annotate(r.Context(), "source_id", id)
	annotate(r.Context(), "run_id", res.RunID)
	if !res.Success && res.Error == reconcile.ErrSyncRunning.Error() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
	}
	writeJSON(w, res)
}

func (h SourcesHandler) jobs(w http.ResponseWriter, r *http.Request, id int64) {
	jobs, err := store.ListJobsForSource(r.Context(), h.DB.Pool, id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, jobs)
}
