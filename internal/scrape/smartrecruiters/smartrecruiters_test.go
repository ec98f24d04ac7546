package smartrecruiters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const listFixture = `{
  "totalFound": 3,
  "offset": 0,
  "limit": 100,
  "content": [
    {
      "id": "744000011",
      "name": "Backend Engineer",
      "releasedDate": "2024-06-01T10:00:00.000Z",
      "location": {"city": "Lisbon", "country": "pt", "hybrid": true},
      "department": {"label": "Engineering"}
    },
    {
      "id": "744000012",
      "name": "Field Sales",
      "location": {"fullLocation": "Remote, Portugal", "remote": true},
      "function": {"label": "Sales"}
    },
    {"id": "", "name": "ghost"}
  ]
}`

const detailFixture = `{
  "id": "744000011",
  "name": "Backend Engineer",
  "releasedDate": "2024-06-01T10:00:00.000Z",
  "location": {"city": "Lisbon", "country": "pt", "hybrid": true},
  "department": {"label": "Engineering"},
  "postingUrl": "https://jobs.smartrecruiters.com/Acme/744000011-backend-engineer",
  "jobAd": {"sections": {
    "jobDescription": {"title": "Job Description", "text": "<p>Build APIs in Go.</p>"},
    "qualifications": {"title": "Qualifications", "text": "<ul><li>Go</li></ul>"},
    "additionalInformation": {"title": "Extra", "text": "  "}
  }}
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Acme/postings":
			if r.URL.Query().Get("limit") != "100" || r.URL.Query().Get("offset") != "0" {
				t.Errorf("paging query %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(listFixture))
		case "/Acme/postings/744000011":
			_, _ = w.Write([]byte(detailFixture))
		case "/Acme/postings/744000012":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Acme", "Acme", false},
		{"https://jobs.smartrecruiters.com/Acme", "Acme", false},
		{"https://jobs.smartrecruiters.com/Acme/744000011-backend", "Acme", false},
		{"", "", true},
		{"acme inc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIdentifier(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIdentifier(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ats.ErrInvalidIdentifier) {
			t.Errorf("ParseIdentifier(%q) err = %v", tt.in, err)
		}
	}
}

func TestFetchJobsMergesDetails(t *testing.T) {
	srv := newTestServer(t)
	c := New(util.NewClient(0, nil, "")).WithAPIBase(srv.URL)

	jobs, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "Acme"})
	if err != nil {
		t.Fatalf("FetchJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}

	j := jobs[0]
	if j.ExternalID != "744000011" || j.Location != "Lisbon, pt" || j.WorkplaceType != domain.WorkplaceHybrid {
		t.Fatalf("job %+v", j)
	}
	if j.URL != "https://jobs.smartrecruiters.com/Acme/744000011-backend-engineer" {
		t.Fatalf("url %q", j.URL)
	}
	if want := "Job Description\nBuild APIs in Go.\nQualifications\n\n- Go"; j.DescriptionText != want {
		t.Fatalf("description %q, want %q", j.DescriptionText, want)
	}
	if j.PostedAt == nil {
		t.Fatal("posted date not parsed")
	}

	// detail failure keeps the listing data
	s := jobs[1]
	if s.Title != "Field Sales" || s.Department != "Sales" || s.WorkplaceType != domain.WorkplaceRemote {
		t.Fatalf("listing-only job %+v", s)
	}
	if s.DescriptionText != "" || s.URL != "https://jobs.smartrecruiters.com/Acme/744000012" {
		t.Fatalf("listing-only job %+v", s)
	}
}

func TestFetchJobsListError(t *testing.T) {
	srv := newTestServer(t)
	c := New(util.NewClient(0, nil, "")).WithAPIBase(srv.URL)
	if _, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "nobody"}); !util.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
}
