package lever

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

const postingsFixture = `[
  {
    "id": "a1b2",
    "text": "Platform Engineer",
    "hostedUrl": "https://jobs.lever.co/acme/a1b2",
    "createdAt": 1714557600000,
    "updatedAt": 1714644000000,
    "categories": {"location": "Toronto", "team": "Infrastructure", "department": "Engineering"},
    "description": "<p>Run our Kubernetes fleet.</p>",
    "workplaceType": "remote",
    "lists": [{"text": "Requirements", "content": "<li>Terraform</li><li>Go</li>"}],
    "additional": "<p>Benefits included.</p>"
  },
  {
    "id": "c3d4",
    "text": "Account Executive",
    "hostedUrl": "https://jobs.lever.co/acme/c3d4",
    "categories": {"allLocations": ["London", "Paris"], "department": "Sales"},
    "description": "",
    "workplaceType": "unspecified"
  },
  {
    "id": "e5f6",
    "text": "Office Manager",
    "categories": {"location": "Austin (On-site)"},
    "description": ""
  },
  {"id": "", "text": "ghost"}
]`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/acme":
			if r.URL.Query().Get("mode") != "json" {
				t.Errorf("mode=json missing")
			}
			_, _ = w.Write([]byte(postingsFixture))
		case "/acme/c3d4":
			_, _ = w.Write([]byte(`{"id":"c3d4","text":"Account Executive","categories":{"allLocations":["London","Paris"],"department":"Sales"},"description":"<p>Close deals.</p>"}`))
		case "/acme/e5f6":
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
		want    site
		wantErr bool
	}{
		{"acme", site{Slug: "acme"}, false},
		{"eu:acme", site{Region: "eu", Slug: "acme"}, false},
		{"EU: acme", site{Region: "eu", Slug: "acme"}, false},
		{"https://jobs.lever.co/acme/a1b2", site{Slug: "acme"}, false},
		{"https://jobs.eu.lever.co/acme", site{Region: "eu", Slug: "acme"}, false},
		{"us:acme", site{}, true},
		{"", site{}, true},
		{"https://jobs.lever.co/", site{}, true},
		{"acme inc", site{}, true},
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

func TestRegionSelectsHost(t *testing.T) {
	c := New(nil)
	if got := c.apiFor("eu"); got != euAPI {
		t.Fatalf("eu host %q", got)
	}
	if got := c.apiFor(""); got != globalAPI {
		t.Fatalf("global host %q", got)
	}
}

func TestFetchJobs(t *testing.T) {
	srv := newTestServer(t)
	c := New(util.NewClient(0, nil, "")).WithAPIBase(srv.URL)

	jobs, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "acme"})
	if err != nil {
		t.Fatalf("FetchJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs", len(jobs))
	}

	a := jobs[0]
	if a.Department != "Infrastructure" || a.Location != "Toronto" || a.WorkplaceType != domain.WorkplaceRemote {
		t.Fatalf("first job %+v", a)
	}
	want := "Run our Kubernetes fleet.\nRequirements\n\n- Terraform\n- Go\nBenefits included."
	if a.DescriptionText != want {
		t.Fatalf("description %q, want %q", a.DescriptionText, want)
	}
	if a.PostedAt == nil || a.PostedAt.Unix() != 1714557600 {
		t.Fatalf("posted %v", a.PostedAt)
	}

	// empty listing body filled from the detail endpoint
	b := jobs[1]
	if b.DescriptionText != "Close deals." || b.Location != "London, Paris" || b.WorkplaceType != domain.WorkplaceUnknown {
		t.Fatalf("second job %+v", b)
	}

	// detail failure keeps the listing record
	e := jobs[2]
	if e.ExternalID != "e5f6" || e.DescriptionText != "" || e.WorkplaceType != domain.WorkplaceOnsite {
		t.Fatalf("third job %+v", e)
	}
}

func TestFetchJobsListingError(t *testing.T) {
	srv := newTestServer(t)
	c := New(util.NewClient(0, nil, "")).WithAPIBase(srv.URL)
	_, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: "nobody"})
	if !util.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
	if vr := c.ValidateConfig(context.Background(), domain.SourceConfig{Identifier: "us:acme"}); vr.Valid {
		t.Fatalf("bad region validated: %+v", vr)
	}
}
