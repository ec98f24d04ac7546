package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/events"
	"jobfeed-engine/internal/store"
)

type JobsHandler struct {
	DB  *store.DB
	Hub *events.Hub
	Now func() time.Time
}

// statuses a caller may set by hand; removed belongs to sync.
var manualStatuses = map[domain.JobStatus]bool{
	domain.StatusActive:  true,
	domain.StatusHidden:  true,
	domain.StatusFilled:  true,
	domain.StatusExpired: true,
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, err := queryInt64(r, "owner_id")
	if err != nil || owner < 0 {
		WriteError(w, r, http.StatusBadRequest, "invalid_owner", "owner_id must be a positive integer")
		return
	}
	opts := store.ListJobsOpts{OwnerID: owner}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		st, ok := domain.ParseJobStatus(s)
		if !ok {
			WriteError(w, r, http.StatusBadRequest, "invalid_status", "unknown status "+strconv.Quote(s))
			return
		}
		opts.Status = st
	}
	if s := q.Get("limit"); s != "" {
		opts.Limit, _ = strconv.Atoi(s)
	}

	jobs, err := store.ListJobs(r.Context(), h.DB.Pool, opts)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, jobs)
}

// OwnerJobs serves /owners/{id}/jobs: the owner's active listing.
func (h JobsHandler) OwnerJobs(w http.ResponseWriter, r *http.Request) {
	owner, rest, ok := splitIDPath(r.URL.Path, "/owners/")
	if !ok || rest != "jobs" {
		WriteError(w, r, http.StatusNotFound, "not_found", "not found")
		return
	}
	jobs, err := store.GetActiveJobs(r.Context(), h.DB.Pool, owner)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, jobs)
}

// ByPath serves /jobs/{id}, /jobs/{id}/status and /jobs/{id}/technologies.
func (h JobsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitIDPath(r.URL.Path, "/jobs/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case rest == "status" && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		h.setStatus(w, r, id)
	case rest == "technologies" && r.Method == http.MethodGet:
		h.technologies(w, r, id)
	case rest == "" || rest == "status" || rest == "technologies":
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "not found")
	}
}

func (h JobsHandler) get(w http.ResponseWriter, r *http.Request, id int64) {
	j, err := store.GetJob(r.Context(), h.DB.Pool, id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, j)
}

type setStatusReq struct {
	Status string `json:"status"`
}

func (h JobsHandler) setStatus(w http.ResponseWriter, r *http.Request, id int64) {
	var req setStatusReq
	if err := decodeStrict(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	st, ok := domain.ParseJobStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !ok || !manualStatuses[st] {
		WriteError(w, r, http.StatusBadRequest, "invalid_status", "status must be one of active, hidden, filled, expired")
		return
	}

	j, err := store.SetJobStatus(r.Context(), h.DB.Pool, id, st, h.Now())
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), events.TypeJobStatusChanged, 1,
		map[string]any{"id": j.ID, "sourceId": j.SourceID, "status": j.Status}))
	writeJSON(w, j)
}

func (h JobsHandler) technologies(w http.ResponseWriter, r *http.Request, id int64) {
	if _, err := store.GetJob(r.Context(), h.DB.Pool, id); errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	ms, err := store.ListMentionsForJob(r.Context(), h.DB.Pool, id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if ms == nil {
		ms = []domain.TechnologyMention{}
	}
	writeJSON(w, ms)
}

func (h JobsHandler) Technologies(w http.ResponseWriter, r *http.Request) {
	techs, err := store.ListTechnologies(r.Context(), h.DB.Pool)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, techs)
}
