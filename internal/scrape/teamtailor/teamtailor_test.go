package teamtailor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    ident
		wantErr bool
	}{
		{"acme", ident{Company: "acme", Region: "eu"}, false},
		{"Acme:NA", ident{Company: "acme", Region: "na"}, false},
		{"acme:apac", ident{}, true},
		{"", ident{}, true},
		{"ac me", ident{}, true},
	}
	for _, tt := range tests {
		got, err := ParseIdentifier(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIdentifier(%q) = %+v, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ats.ErrInvalidIdentifier) {
			t.Errorf("ParseIdentifier(%q) err = %v", tt.in, err)
		}
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token token=secret-acme" || r.Header.Get("X-Api-Version") != apiVersion {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/jobs" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"data": [
				{"id": "11", "attributes": {"title": "Duplicate", "status": "open"}},
				{"id": "13", "attributes": {"title": "Designer", "remote-status": "fully", "status": "open"}}
			], "links": {}}`))
			return
		}
		if r.URL.Query().Get("include") != "department,locations" {
			t.Errorf("include query %q", r.URL.RawQuery)
		}
		fmt.Fprintf(w, `{
			"data": [
				{"id": "11",
				 "attributes": {"title": "Go Engineer", "body": "<p>Hello</p>", "remote-status": "hybrid",
				                "created-at": "2024-02-02T10:00:00+01:00", "status": "open"},
				 "links": {"careersite-job-url": "https://acme.teamtailor.com/jobs/11-go"},
				 "relationships": {
				   "department": {"data": {"id": "d1", "type": "departments"}},
				   "locations": {"data": [{"id": "l1", "type": "locations"}, {"id": "l2", "type": "locations"}]}
				 }},
				{"id": "12", "attributes": {"title": "Closed role", "status": "archived"}}
			],
			"included": [
				{"id": "d1", "type": "departments", "attributes": {"name": "Engineering"}},
				{"id": "l1", "type": "locations", "attributes": {"city": "Stockholm", "country": "Sweden"}},
				{"id": "l2", "type": "locations", "attributes": {"name": "Remote"}}
			],
			"links": {"next": "%s/jobs?page=2"}
		}`, srv.URL)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchJobsPaginates(t *testing.T) {
	srv := newTestServer(t)
	var asked string
	c := New(util.NewClient(0, nil, ""), func(company string) (string, error) {
		asked = company
		return "secret-" + company, nil
	}).WithAPIBase(srv.URL)

	jobs, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "acme:na"})
	if err != nil {
		t.Fatalf("FetchJobs: %v", err)
	}
	if asked != "acme" {
		t.Fatalf("token requested for %q", asked)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}

	j := jobs[0]
	if j.ExternalID != "11" || j.Department != "Engineering" || j.Location != "Stockholm, Sweden; Remote" {
		t.Fatalf("job %+v", j)
	}
	if j.WorkplaceType != domain.WorkplaceHybrid || j.DescriptionText != "Hello" || j.URL != "https://acme.teamtailor.com/jobs/11-go" {
		t.Fatalf("job %+v", j)
	}
	if jobs[1].ExternalID != "13" || jobs[1].WorkplaceType != domain.WorkplaceRemote {
		t.Fatalf("second page job %+v", jobs[1])
	}
}

func TestFetchJobsTokenErrors(t *testing.T) {
	srv := newTestServer(t)

	c := New(util.NewClient(0, nil, ""), nil).WithAPIBase(srv.URL)
	if _, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "acme"}); err == nil {
		t.Fatal("missing token source accepted")
	}

	missing := errors.New("no token stored")
	c = New(util.NewClient(0, nil, ""), func(string) (string, error) { return "", missing }).WithAPIBase(srv.URL)
	if _, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "acme"}); !errors.Is(err, missing) {
		t.Fatalf("token error = %v", err)
	}

	c = New(util.NewClient(0, nil, ""), func(string) (string, error) { return "wrong", nil }).WithAPIBase(srv.URL)
	_, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "acme"})
	var se *util.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token err = %v", err)
	}
}
