package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/events"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/poll"
	"jobfeed-engine/internal/reconcile"
	"jobfeed-engine/internal/store"
)

type fakeConnector struct {
	mu    sync.Mutex
	jobs  map[string][]domain.FetchedJob
	calls int
}

func (f *fakeConnector) Type() string { return "fake" }

func (f *fakeConnector) FetchJobs(_ context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	jobs, ok := f.jobs[src.Identifier]
	if !ok {
		return nil, errors.New("fake list: status 404")
	}
	return jobs, nil
}

func (f *fakeConnector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, f, src, nil)
}

type memTokens map[string]string

func (m memTokens) Set(t, i, tok string) error { m[t+"/"+i] = tok; return nil }
func (m memTokens) Delete(t, i string) error   { delete(m, t+"/"+i); return nil }
func (m memTokens) Has(t, i string) bool       { _, ok := m[t+"/"+i]; return ok }

type testEnv struct {
	db      *store.DB
	fake    *fakeConnector
	hub     *events.Hub
	cfgVal  *atomic.Value
	cfgPath string
	tokens  memTokens
	poller  *poll.Poller
	h       http.Handler
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := &fakeConnector{jobs: map[string][]domain.FetchedJob{
		"acme": {
			{ExternalID: "1", Title: "Backend Engineer", DescriptionText: "Go and PostgreSQL"},
			{ExternalID: "2", Title: "Designer"},
		},
		"empty": {},
	}}
	eng := reconcile.New(db, ats.NewRegistry(fake), reconcile.Options{})

	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	if err := config.SaveAtomic(cfgPath, config.Default()); err != nil {
		t.Fatalf("save config: %v", err)
	}
	var cfgVal atomic.Value
	cfgVal.Store(config.Default())
	hub := events.NewHub()

	env := &testEnv{
		db: db, fake: fake, hub: hub, cfgVal: &cfgVal, cfgPath: cfgPath,
		tokens: memTokens{},
		poller: poll.New(db, eng, &cfgVal, hub),
	}
	env.h = NewHandler(Deps{
		DB:          db,
		Engine:      eng,
		Poller:      env.poller,
		Hub:         hub,
		CfgVal:      &cfgVal,
		UserCfgPath: cfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(cfgPath) },
		Tokens:      env.tokens,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) createSource(t *testing.T, ident string) domain.ImportSource {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/sources", map[string]any{
		"ownerId": 1, "sourceType": "fake", "sourceIdentifier": ident,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: %d %s", ident, rec.Code, rec.Body.String())
	}
	return decode[createSourceResp](t, rec).Source
}

func TestHealthAndRequestID(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", rec.Code)
	}
	apiErr := decode[APIError](t, rec)
	if apiErr.Error.RequestID != "abc-123" || apiErr.Error.Code != "method_not_allowed" {
		t.Fatalf("error envelope %+v", apiErr)
	}
}

func TestCreateSourceValidation(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"bad json", `{"ownerId":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"ownerId":1,"sourceType":"fake","sourceIdentifier":"acme","extra":1}`, http.StatusBadRequest, "invalid_json"},
		{"no owner", map[string]any{"sourceType": "fake", "sourceIdentifier": "acme"}, http.StatusBadRequest, "invalid_owner"},
		{"unsupported type", map[string]any{"ownerId": 1, "sourceType": "taleo", "sourceIdentifier": "acme"}, http.StatusBadRequest, "unsupported_type"},
		{"blank identifier", map[string]any{"ownerId": 1, "sourceType": "fake", "sourceIdentifier": "  "}, http.StatusBadRequest, "invalid_identifier"},
		{"fetch fails", map[string]any{"ownerId": 1, "sourceType": "fake", "sourceIdentifier": "missing"}, http.StatusUnprocessableEntity, "invalid_source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/sources", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decode[APIError](t, rec).Error.Code; got != tt.wantErr {
				t.Fatalf("error code = %q, want %q", got, tt.wantErr)
			}
		})
	}

	// skipValidation stores a source the connector cannot reach yet
	rec := env.do(t, http.MethodPost, "/sources", map[string]any{
		"ownerId": 1, "sourceType": "fake", "sourceIdentifier": "missing", "skipValidation": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("skip validation: %d %s", rec.Code, rec.Body.String())
	}
	if resp := decode[createSourceResp](t, rec); resp.Validation != nil || resp.Source.FetchStatus != domain.FetchPending {
		t.Fatalf("resp %+v", resp)
	}
}

func TestSourceLifecycle(t *testing.T) {
	env := newEnv(t)
	ch := env.hub.Subscribe()
	defer env.hub.Unsubscribe(ch)

	src := env.createSource(t, "acme")
	if evt := <-ch; !strings.Contains(evt, events.TypeSourceCreated) {
		t.Fatalf("event %s", evt)
	}

	rec := env.do(t, http.MethodPost, "/sources", map[string]any{
		"ownerId": 1, "sourceType": "fake", "sourceIdentifier": "acme",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d", rec.Code)
	}

	list := decode[[]domain.ImportSource](t, env.do(t, http.MethodGet, "/sources?owner_id=1", nil))
	if len(list) != 1 || list[0].ID != src.ID {
		t.Fatalf("list %+v", list)
	}
	if other := decode[[]domain.ImportSource](t, env.do(t, http.MethodGet, "/sources?owner_id=2", nil)); len(other) != 0 {
		t.Fatalf("owner 2 sees %+v", other)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/sources/%d/sync", src.ID), nil)
	res := decode[reconcile.Result](t, rec)
	if !res.Success || res.Added != 2 || res.TotalActive != 2 || res.RunID == "" {
		t.Fatalf("sync result %+v", res)
	}

	got := decode[domain.ImportSource](t, env.do(t, http.MethodGet, fmt.Sprintf("/sources/%d", src.ID), nil))
	if got.FetchStatus != domain.FetchSuccess || got.LastFetchedAt == nil {
		t.Fatalf("source after sync %+v", got)
	}
	if jobs := decode[[]domain.Job](t, env.do(t, http.MethodGet, fmt.Sprintf("/sources/%d/jobs", src.ID), nil)); len(jobs) != 2 {
		t.Fatalf("source jobs %d", len(jobs))
	}

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/sources/%d", src.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, fmt.Sprintf("/sources/%d", src.ID), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, fmt.Sprintf("/sources/%d", src.ID), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", rec.Code)
	}
	if jobs := decode[[]domain.Job](t, env.do(t, http.MethodGet, "/owners/1/jobs", nil)); len(jobs) != 0 {
		t.Fatalf("jobs survived source delete: %d", len(jobs))
	}
}

func TestSourcePaths(t *testing.T) {
	env := newEnv(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/sources/abc", http.StatusBadRequest},
		{http.MethodGet, "/sources/99", http.StatusNotFound},
		{http.MethodPost, "/sources/99/sync", http.StatusNotFound},
		{http.MethodGet, "/sources/99/sync", http.StatusMethodNotAllowed},
		{http.MethodGet, "/sources/99/nope", http.StatusNotFound},
		{http.MethodGet, "/jobs/0", http.StatusBadRequest},
		{http.MethodGet, "/jobs/99", http.StatusNotFound},
		{http.MethodGet, "/jobs/99/technologies", http.StatusNotFound},
		{http.MethodGet, "/owners/1/sources", http.StatusNotFound},
	}
	for _, c := range cases {
		if rec := env.do(t, c.method, c.path, nil); rec.Code != c.want {
			t.Errorf("%s %s = %d, want %d", c.method, c.path, rec.Code, c.want)
		}
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newEnv(t)
	vr := decode[ats.ValidationResult](t, env.do(t, http.MethodPost, "/sources/validate",
		map[string]any{"sourceType": "fake", "sourceIdentifier": "acme"}))
	if !vr.Valid || vr.JobCount != 2 {
		t.Fatalf("validate acme %+v", vr)
	}
	vr = decode[ats.ValidationResult](t, env.do(t, http.MethodPost, "/sources/validate",
		map[string]any{"sourceType": "fake", "sourceIdentifier": "missing"}))
	if vr.Valid || vr.Error == "" {
		t.Fatalf("validate missing %+v", vr)
	}

	types := decode[map[string][]string](t, env.do(t, http.MethodGet, "/source-types", nil))
	if len(types["types"]) != 1 || types["types"][0] != "fake" {
		t.Fatalf("types %+v", types)
	}
}

func TestJobStatusTransitions(t *testing.T) {
	env := newEnv(t)
	src := env.createSource(t, "acme")
	env.do(t, http.MethodPost, fmt.Sprintf("/sources/%d/sync", src.ID), nil)

	jobs := decode[[]domain.Job](t, env.do(t, http.MethodGet, "/owners/1/jobs", nil))
	if len(jobs) != 2 {
		t.Fatalf("active jobs %d", len(jobs))
	}
	id := jobs[0].ID

	ch := env.hub.Subscribe()
	defer env.hub.Unsubscribe(ch)

	rec := env.do(t, http.MethodPatch, fmt.Sprintf("/jobs/%d/status", id), map[string]string{"status": "Hidden"})
	if rec.Code != http.StatusOK {
		t.Fatalf("hide: %d %s", rec.Code, rec.Body.String())
	}
	if j := decode[domain.Job](t, rec); j.Status != domain.StatusHidden {
		t.Fatalf("status %q", j.Status)
	}
	if evt := <-ch; !strings.Contains(evt, events.TypeJobStatusChanged) {
		t.Fatalf("event %s", evt)
	}
	if jobs := decode[[]domain.Job](t, env.do(t, http.MethodGet, "/owners/1/jobs", nil)); len(jobs) != 1 {
		t.Fatalf("hidden job still listed: %d", len(jobs))
	}
	if hidden := decode[[]domain.Job](t, env.do(t, http.MethodGet, "/jobs?owner_id=1&status=hidden", nil)); len(hidden) != 1 || hidden[0].ID != id {
		t.Fatalf("hidden filter %+v", hidden)
	}

	// a re-sync leaves the hidden job alone
	env.do(t, http.MethodPost, fmt.Sprintf("/sources/%d/sync", src.ID), nil)
	if j := decode[domain.Job](t, env.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d", id), nil)); j.Status != domain.StatusHidden {
		t.Fatalf("status after resync %q", j.Status)
	}

	for _, bad := range []string{"removed", "archived", ""} {
		rec := env.do(t, http.MethodPatch, fmt.Sprintf("/jobs/%d/status", id), map[string]string{"status": bad})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %q = %d", bad, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodPatch, "/jobs/999/status", map[string]string{"status": "hidden"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/jobs?status=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus filter = %d", rec.Code)
	}

	if ms := decode[[]domain.TechnologyMention](t, env.do(t, http.MethodGet, fmt.Sprintf("/jobs/%d/technologies", id), nil)); len(ms) != 0 {
		t.Fatalf("mentions without extractor %+v", ms)
	}
}

func TestConfigPut(t *testing.T) {
	env := newEnv(t)

	bad := config.Default()
	bad.Sync.Concurrency = 0
	rec := env.do(t, http.MethodPut, "/config", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid config = %d", rec.Code)
	}
	if v := decode[config.Validation](t, rec); len(v.Errors) == 0 {
		t.Fatal("expected validation errors")
	}

	good := config.Default()
	good.Sync.IntervalMinutes = 15
	good.Sync.StickyStatuses = []string{"HIDDEN", "filled", "hidden"}
	rec = env.do(t, http.MethodPut, "/config", good)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: %d %s", rec.Code, rec.Body.String())
	}
	put := decode[struct {
		Warnings []string `json:"warnings"`
	}](t, rec)
	if len(put.Warnings) != 1 || !strings.Contains(put.Warnings[0], "sticky_statuses") {
		t.Fatalf("warnings %v", put.Warnings)
	}
	cur := env.cfgVal.Load().(config.Config)
	if cur.Sync.IntervalMinutes != 15 || len(cur.Sync.StickyStatuses) != 2 {
		t.Fatalf("stored config %+v", cur.Sync)
	}
	onDisk, err := config.Load(env.cfgPath)
	if err != nil || onDisk.Sync.IntervalMinutes != 15 {
		t.Fatalf("on disk %+v err=%v", onDisk.Sync, err)
	}

	got := decode[config.Config](t, env.do(t, http.MethodGet, "/config", nil))
	if got.Sync.IntervalMinutes != 15 {
		t.Fatalf("GET /config %+v", got.Sync)
	}
	if p := decode[map[string]string](t, env.do(t, http.MethodGet, "/config/path", nil)); !filepath.IsAbs(p["path"]) {
		t.Fatalf("path %q", p["path"])
	}
}

func TestSourceTokenSecrets(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodPost, "/api/secrets/source-token", map[string]string{
		"sourceType": "Teamtailor", "sourceIdentifier": "acme", "token": "s3cret",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set: %d %s", rec.Code, rec.Body.String())
	}
	if env.tokens["teamtailor/acme"] != "s3cret" {
		t.Fatalf("tokens %+v", env.tokens)
	}
	has := decode[map[string]bool](t, env.do(t, http.MethodGet, "/api/secrets/source-token?sourceType=teamtailor&sourceIdentifier=acme", nil))
	if !has["present"] {
		t.Fatal("token not reported present")
	}
	if rec := env.do(t, http.MethodPost, "/api/secrets/source-token", map[string]string{"sourceType": "teamtailor"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/secrets/source-token?sourceType=teamtailor&sourceIdentifier=acme", nil)
	if rec.Code != http.StatusNoContent || len(env.tokens) != 0 {
		t.Fatalf("delete: %d tokens=%+v", rec.Code, env.tokens)
	}
}

func TestSyncRunAndStatus(t *testing.T) {
	env := newEnv(t)
	env.createSource(t, "acme")
	env.createSource(t, "empty")

	rec := env.do(t, http.MethodPost, "/sync/run", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run = %d", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	var st poll.Status
	for {
		st = decode[poll.Status](t, env.do(t, http.MethodGet, "/sync/status", nil))
		if !st.Running && st.LastOkAt != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sync never finished: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.LastSummary.Sources != 2 || st.LastSummary.Added != 2 || st.LastSummary.Failed != 0 {
		t.Fatalf("summary %+v", st.LastSummary)
	}
}

func TestEventsStream(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(env.h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return ""
	}
	if first := next(); !strings.Contains(first, `"type":"ping"`) {
		t.Fatalf("first event %s", first)
	}

	env.hub.Publish(events.MakeEvent("", events.TypeSourceSynced, 1, events.SourceSynced{SourceID: 7, Success: true}))
	if evt := next(); !strings.Contains(evt, events.TypeSourceSynced) {
		t.Fatalf("event %s", evt)
	}
}

func TestAccessLogCarriesHandlerFields(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		annotate(r.Context(), "source_id", 7)
		annotate(r.Context(), "run_id", "run-abc")
		w.WriteHeader(http.StatusInternalServerError)
	}), RequestID, AccessLog)

	req := httptest.NewRequest(http.MethodPost, "/sources/7/sync", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"level=error", "request_id=req-1", "status=500", "source_id=7", "run_id=run-abc"} {
		if !strings.Contains(line, want) {
			t.Errorf("access log %q missing %q", line, want)
		}
	}
}

func TestAnnotateOutsideAccessLog(t *testing.T) {
	annotate(context.Background(), "run_id", "x")
}
