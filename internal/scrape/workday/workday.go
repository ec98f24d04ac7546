package workday

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "workday"

const (
	pageSize = 20
	maxJobs  = 5000
)

var ErrWorkdayBlocked = errors.New("workday blocked by cloudflare")

// blockTTL is how long a host that answered with a challenge page is skipped.
const blockTTL = 30 * time.Minute

type Connector struct {
	hc *util.Client

	mu           sync.Mutex
	blockedUntil map[string]time.Time
	now          func() time.Time
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, blockedUntil: map[string]time.Time{}, now: time.Now}
}

func (c *Connector) Type() string { return Type }

type board struct {
	Scheme string
	Host   string
	Tenant string
	Site   string
	Locale string
	Raw    string
}

type wdRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type wdResponse struct {
	Total       int         `json:"total"`
	JobPostings []wdPosting `json:"jobPostings"`
}

type wdPosting struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	RemoteType    string   `json:"remoteType"`
	BulletFields  []string `json:"bulletFields"`
}

type wdDetail struct {
	JobPostingInfo struct {
		ID                  string   `json:"id"`
		Title               string   `json:"title"`
		JobDescription      string   `json:"jobDescription"`
		Location            string   `json:"location"`
		AdditionalLocations []string `json:"additionalLocations"`
		StartDate           string   `json:"startDate"`
		JobReqID            string   `json:"jobReqId"`
		ExternalURL         string   `json:"externalUrl"`
		RemoteType          string   `json:"remoteType"`
	} `json:"jobPostingInfo"`
}

var workplaceRules = util.WorkplaceRules{
	{Contains: "hybrid", Type: domain.WorkplaceHybrid},
	{Contains: "flexible", Type: domain.WorkplaceHybrid},
	{Contains: "remote", Type: domain.WorkplaceRemote},
	{Contains: "on-site", Type: domain.WorkplaceOnsite},
	{Contains: "onsite", Type: domain.WorkplaceOnsite},
	{Contains: "on site", Type: domain.WorkplaceOnsite},
}

// ParseIdentifier validates a public board URL such as
// https://acme.wd5.myworkdayjobs.com/en-US/External.
func ParseIdentifier(raw string) error {
	_, err := parseBoardURL(raw)
	return err
}

func parseBoardURL(raw string) (board, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return board{}, ats.InvalidIdentifier(Type, "empty board url")
	}
	u, ok := util.ParseHTTPURL(raw)
	if !ok {
		return board{}, ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
	}

	parts := strings.Split(u.Hostname(), ".")
	if len(parts) < 3 {
		return board{}, ats.InvalidIdentifier(Type, fmt.Sprintf("unexpected host %q", u.Host))
	}
	tenant := parts[0]

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return board{}, ats.InvalidIdentifier(Type, fmt.Sprintf("missing site in path %q", u.Path))
	}

	locale := ""
	if len(segs) >= 2 && looksLikeLocale(segs[0]) {
		locale = normalizeLocale(segs[0])
		segs = segs[1:]
	}
	site := segs[0]

	return board{
		Scheme: u.Scheme,
		Host:   u.Host,
		Tenant: tenant,
		Site:   site,
		Locale: locale,
		Raw:    strings.TrimRight(u.String(), "/"),
	}, nil
}

func looksLikeLocale(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	return isAlpha(s[0:2]) && isAlpha(s[3:5])
}

func normalizeLocale(s string) string {
	return strings.ToLower(s[0:2]) + "-" + strings.ToUpper(s[3:5])
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func (b board) origin() string { return b.Scheme + "://" + b.Host }

func (b board) cxsBase() string {
	return fmt.Sprintf("%s/wday/cxs/%s/%s", b.origin(), b.Tenant, b.Site)
}

func (b board) jobsEndpoint() string {
	if b.Locale == "" {
		return b.cxsBase() + "/jobs"
	}
	return b.cxsBase() + "/jobs?locale=" + url.QueryEscape(b.Locale)
}

func (b board) publicURL(externalPath string) string {
	p := strings.TrimSpace(externalPath)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return b.Raw + p
}

func (b board) headers(csrf string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", util.BrowserUserAgent)
	h.Set("Origin", b.origin())
	h.Set("Referer", b.Raw)
	h.Set("Accept-Language", util.FirstNonEmpty(b.Locale, "en-US"))
	if csrf != "" {
		h.Set("x-calypso-csrf-token", csrf)
	}
	return h
}

func (c *Connector) isBlocked(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.blockedUntil[host]
	if !ok {
		return false
	}
	if !c.now().Before(until) {
		delete(c.blockedUntil, host)
		return false
	}
	return true
}

func (c *Connector) markBlocked(host string) {
	c.mu.Lock()
	c.blockedUntil[host] = c.now().Add(blockTTL)
	c.mu.Unlock()
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	b, err := parseBoardURL(src.Identifier)
	if err != nil {
		return nil, err
	}
	if c.isBlocked(b.Host) {
		return nil, fmt.Errorf("workday list: %w", ErrWorkdayBlocked)
	}

	// Some tenants require CALYPSO_CSRF_TOKEN and a session cookie.
	hc := c.hc.WithCookieJar()
	csrf, bootErr := bootstrapSession(ctx, hc, b)
	if errors.Is(bootErr, ErrWorkdayBlocked) {
		c.markBlocked(b.Host)
		return nil, fmt.Errorf("workday list: %w", ErrWorkdayBlocked)
	}

	var out []domain.FetchedJob
	seen := map[string]bool{}
	failed := 0
	for offset := 0; offset < maxJobs; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var page wdResponse
		req := wdRequest{AppliedFacets: map[string]any{}, Limit: pageSize, Offset: offset}
		if err := hc.PostJSON(ctx, b.jobsEndpoint(), req, &page, b.headers(csrf)); err != nil {
			return nil, fmt.Errorf("workday list: %w", err)
		}

		for _, p := range page.JobPostings {
			j, ok := listingJob(b, p)
			if !ok || seen[j.ExternalID] {
				continue
			}
			seen[j.ExternalID] = true
			if d, ok := c.fetchDetail(ctx, hc, b, csrf, p.ExternalPath); ok {
				j = mergeDetail(j, d)
			} else {
				failed++
			}
			out = append(out, j)
		}

		if len(page.JobPostings) < pageSize {
			break
		}
		if page.Total > 0 && offset+pageSize >= page.Total {
			break
		}
	}

	log.Printf("[ats:workday] tenant=%q site=%q jobs=%d detail_failed=%d", b.Tenant, b.Site, len(out), failed)
	return out, nil
}

func (c *Connector) fetchDetail(ctx context.Context, hc *util.Client, b board, csrf, externalPath string) (wdDetail, bool) {
	var d wdDetail
	if strings.TrimSpace(externalPath) == "" {
		return d, false
	}
	if err := hc.GetJSON(ctx, b.cxsBase()+externalPath, &d, b.headers(csrf)); err != nil {
		log.Printf("[ats:workday] tenant=%q path=%q detail err=%v", b.Tenant, externalPath, err)
		return d, false
	}
	return d, true
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, ParseIdentifier)
}

// listingJob maps a search hit. The requisition id is the first bullet field
// when present, otherwise the last path segment.
func listingJob(b board, p wdPosting) (domain.FetchedJob, bool) {
	title := util.CleanText(p.Title)
	if title == "" || strings.TrimSpace(p.ExternalPath) == "" {
		return domain.FetchedJob{}, false
	}
	id := ""
	if len(p.BulletFields) > 0 {
		id = strings.TrimSpace(p.BulletFields[0])
	}
	if id == "" {
		segs := strings.Split(strings.Trim(p.ExternalPath, "/"), "/")
		id = segs[len(segs)-1]
	}
	loc := util.NormalizeLocation(p.LocationsText)
	return domain.FetchedJob{
		ExternalID:    id,
		Title:         title,
		Location:      loc,
		URL:           b.publicURL(p.ExternalPath),
		WorkplaceType: workplaceRules.Classify(p.RemoteType, loc),
	}, true
}

func mergeDetail(j domain.FetchedJob, d wdDetail) domain.FetchedJob {
	info := d.JobPostingInfo
	if info.JobDescription != "" {
		j.DescriptionHTML = info.JobDescription
		j.DescriptionText = util.HTMLToText(info.JobDescription)
	}
	if info.Location != "" {
		locs := append([]string{info.Location}, info.AdditionalLocations...)
		j.Location = util.NormalizeLocation(strings.Join(util.NonEmpty(locs...), "; "))
	}
	if info.ExternalURL != "" {
		j.URL = strings.TrimSpace(info.ExternalURL)
	}
	if wt := workplaceRules.Classify(info.RemoteType); wt != "" {
		j.WorkplaceType = wt
	}
	j.PostedAt = util.ParseTime(info.StartDate)
	return j
}

func bootstrapSession(ctx context.Context, hc *util.Client, b board) (string, error) {
	data, hdr, err := hc.Fetch(ctx, http.MethodGet, b.Raw, nil, http.Header{
		"User-Agent":      {util.BrowserUserAgent},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US"},
	})
	status := http.StatusOK
	var se *util.StatusError
	if errors.As(err, &se) {
		status = se.StatusCode
	} else if err != nil {
		return "", err
	}
	if looksLikeCloudflareBlock(status, hdr, util.Truncate(string(data), 4096)) {
		return "", ErrWorkdayBlocked
	}

	u, _ := url.Parse(b.Raw)
	for _, ck := range hc.HC.Jar.Cookies(u) {
		if ck.Name == "CALYPSO_CSRF_TOKEN" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", nil
}

func looksLikeCloudflareBlock(status int, hdr http.Header, bodyPreview string) bool {
	server := strings.ToLower(hdr.Get("Server"))
	if strings.Contains(server, "cloudflare") && hdr.Get("CF-RAY") != "" && status >= 400 {
		return true
	}
	low := strings.ToLower(bodyPreview)
	if strings.Contains(low, "/cdn-cgi/challenge") ||
		(strings.Contains(low, "cloudflare") && strings.Contains(low, "checking your browser")) ||
		(strings.Contains(low, "attention required") && strings.Contains(low, "cloudflare")) {
		return true
	}
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}
