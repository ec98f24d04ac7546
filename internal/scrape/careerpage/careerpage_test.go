package careerpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/scrape/util"
)

const pageURL = "https://acme.example/careers"

const containerPage = `<html><body>
<div class="job-listing" data-job-id="j-1">
  <h3>Senior Backend Engineer</h3>
  <span class="location">Remote, EU</span>
  <a href="/careers/backend">Details</a>
  <p>Go and Postgres</p>
</div>
<div class="job-listing"><h3>Benefits</h3><a href="/careers/benefits">x</a></div>
<div class="job-listing" data-job-id="j-1"><h3>Senior Backend Engineer</h3></div>
</body></html>`

const headingPage = `<html><body>
<nav><h3>Platform Engineer</h3></nav>
<main>
  <h2>Open positions</h2>
  <h3>Data Analyst (m/w/d)</h3>
  <p>Location: Berlin</p>
  <p>Work with data.</p>
  <a href="/jobs/data-analyst">Apply</a>
  <h3>Our values</h3>
  <p>We are nice.</p>
  <h3>Office Hero</h3>
  <p>short</p>
</main>
</body></html>`

const emptyPage = `<html><body><main>
  <h2>Careers</h2>
  <p>There are currently no open positions.</p>
</main></body></html>`

const linkPage = `<html><body><ul>
  <li><a class="x" href="/jobs/123-go-developer">Go <b>Developer</b></a></li>
  <li><a href="/jobs/">Jobs</a></li>
  <li><a href="https://acme.example/careers">Careers page</a></li>
</ul></body></html>`

func TestParseIdentifier(t *testing.T) {
	if got, err := ParseIdentifier("acme.example/careers"); err != nil || got != pageURL {
		t.Fatalf("ParseIdentifier = %q, %v", got, err)
	}
	if _, err := ParseIdentifier("  "); err == nil {
		t.Fatal("empty identifier accepted")
	}
}

func TestParsePageContainers(t *testing.T) {
	jobs, err := ParsePage([]byte(containerPage), pageURL)
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1 (noise heading and duplicate id dropped)", len(jobs))
	}
	j := jobs[0]
	if j.ExternalID != "j-1" || j.Title != "Senior Backend Engineer" || j.Location != "Remote, EU" {
		t.Fatalf("job %+v", j)
	}
	if j.URL != "https://acme.example/careers/backend" || j.WorkplaceType != domain.WorkplaceRemote {
		t.Fatalf("job %+v", j)
	}
	if !strings.Contains(j.DescriptionText, "Go and Postgres") || strings.Contains(j.DescriptionText, "Senior Backend Engineer") {
		t.Fatalf("description %q", j.DescriptionText)
	}
}

const nearDuplicatePage = `<html><body>
<div class="job-item"><h3>Senior Go Engineer</h3><a href="/jobs/1">More</a></div>
<div class="job-item"><h3>Senior Go Engineer (m/w/d)</h3><a href="/jobs/1?utm_source=site">More</a></div>
<div class="job-item"><h3>Senior Go-Engineer (w/m/d)</h3><a href="/jobs/9">More</a></div>
<div class="job-item" data-job-id="go-munich"><h3>Senior Go Engineer</h3><span class="location">Munich</span><a href="/jobs/2">More</a></div>
</body></html>`

func TestParsePageDropsNearDuplicates(t *testing.T) {
	jobs, err := ParsePage([]byte(nearDuplicatePage), pageURL)
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2: %+v", len(jobs), jobs)
	}
	if jobs[0].ExternalID != "senior-go-engineer" || jobs[0].URL != "https://acme.example/jobs/1" {
		t.Fatalf("first job %+v", jobs[0])
	}
	if jobs[1].ExternalID != "go-munich" || jobs[1].Location != "Munich" || jobs[1].URL != "https://acme.example/jobs/2" {
		t.Fatalf("same title elsewhere %+v", jobs[1])
	}
}

func TestTitleKey(t *testing.T) {
	for _, in := range []string{"Senior Go Engineer (m/w/d)", "senior go-engineer", "Senior Go Engineer (W / M / D)", "Senior Go Engineer (all genders)"} {
		if got := titleKey(in); got != "senior-go-engineer" {
			t.Errorf("titleKey(%q) = %q", in, got)
		}
	}
}

func TestParsePageHeadings(t *testing.T) {
	jobs, err := ParsePage([]byte(headingPage), pageURL)
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1: %+v", len(jobs), jobs)
	}
	j := jobs[0]
	if j.ExternalID != "data-analyst-m-w-d" || j.Location != "Berlin" || j.URL != "https://acme.example/jobs/data-analyst" {
		t.Fatalf("job %+v", j)
	}
	if !strings.Contains(j.DescriptionText, "Work with data.") || strings.Contains(j.DescriptionText, "We are nice") {
		t.Fatalf("description %q", j.DescriptionText)
	}
}

func TestParsePageNoOpenings(t *testing.T) {
	jobs, err := ParsePage([]byte(emptyPage), pageURL)
	if err != nil || len(jobs) != 0 {
		t.Fatalf("no-openings page = %+v, %v", jobs, err)
	}
}

func TestParsePageLinkFallback(t *testing.T) {
	jobs, err := ParsePage([]byte(linkPage), pageURL)
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1: %+v", len(jobs), jobs)
	}
	if j := jobs[0]; j.Title != "Go Developer" || j.ExternalID != "go-developer" || j.URL != "https://acme.example/jobs/123-go-developer" {
		t.Fatalf("job %+v", j)
	}
}

func TestFetchJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/careers" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "Mozilla") {
			t.Errorf("career page fetched without a browser user agent: %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(headingPage))
	}))
	defer srv.Close()

	c := New(util.NewClient(0, nil, ""))
	jobs, err := c.FetchJobs(context.Background(), domain.SourceConfig{Identifier: srv.URL + "/careers"})
	if err != nil {
		t.Fatalf("FetchJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].URL != srv.URL+"/jobs/data-analyst" {
		t.Fatalf("jobs %+v", jobs)
	}

	vr := c.ValidateConfig(context.Background(), domain.SourceConfig{Identifier: srv.URL + "/missing"})
	if vr.Valid {
		t.Fatalf("missing page validated: %+v", vr)
	}
}
