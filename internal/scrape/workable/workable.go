package workable

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "workable"

const (
	defaultBase = "https://apply.workable.com"
	maxPages    = 40
)

type Connector struct {
	hc   *util.Client
	base string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, base: defaultBase}
}

func (c *Connector) WithBase(base string) *Connector {
	c.base = strings.TrimRight(base, "/")
	return c
}

func (c *Connector) Type() string { return Type }

// ParseIdentifier accepts an account slug or an apply.workable.com/<slug> URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "account slug is empty")
	}
	if strings.Contains(raw, "workable.com") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		host := strings.ToLower(u.Host)
		if host == "apply.workable.com" {
			raw, _, _ = strings.Cut(strings.Trim(u.Path, "/"), "/")
		} else {
			// legacy <slug>.workable.com
			raw = strings.TrimSuffix(host, ".workable.com")
		}
	}
	if !util.IsToken(raw) || strings.Contains(raw, ".") {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad account slug %q", raw))
	}
	return raw, nil
}

type wkLocation struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

type wkJob struct {
	ID         int64      `json:"id"`
	Shortcode  string     `json:"shortcode"`
	Title      string     `json:"title"`
	Remote     bool       `json:"remote"`
	Location   wkLocation `json:"location"`
	Published  string     `json:"published"`
	Department []string   `json:"department"`
	Workplace  string     `json:"workplace"` // on_site | hybrid | remote
}

type wkListRequest struct {
	Query      string   `json:"query"`
	Location   []string `json:"location"`
	Department []string `json:"department"`
	Worktype   []string `json:"worktype"`
	Remote     []string `json:"remote"`
	Token      string   `json:"token,omitempty"`
}

type wkListResponse struct {
	Total    int     `json:"total"`
	Results  []wkJob `json:"results"`
	NextPage string  `json:"nextPage"`
}

type wkDetail struct {
	wkJob
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	Benefits     string `json:"benefits"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	slug, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	listURL := fmt.Sprintf("%s/api/v3/accounts/%s/jobs", c.base, url.PathEscape(slug))

	var out []domain.FetchedJob
	seen := map[string]bool{}
	req := wkListRequest{Location: []string{}, Department: []string{}, Worktype: []string{}, Remote: []string{}}
	for page := 0; page < maxPages; page++ {
		var res wkListResponse
		if err := c.hc.PostJSON(ctx, listURL, req, &res, nil); err != nil {
			return nil, fmt.Errorf("workable list: %w", err)
		}
		for _, j := range res.Results {
			if j.Shortcode == "" || strings.TrimSpace(j.Title) == "" || seen[j.Shortcode] {
				continue
			}
			seen[j.Shortcode] = true
			out = append(out, toFetched(slug, j))
		}
		if res.NextPage == "" || len(res.Results) == 0 || (res.Total > 0 && len(out) >= res.Total) {
			break
		}
		req.Token = res.NextPage
	}

	failed := 0
	for i := range out {
		d, ok := c.FetchJobDetails(ctx, out[i].ExternalID, src)
		if !ok {
			failed++
			continue
		}
		out[i] = d
	}

	log.Printf("[ats:workable] account=%q jobs=%d detail_failed=%d", slug, len(out), failed)
	return out, nil
}

func (c *Connector) FetchJobDetails(ctx context.Context, externalID string, src domain.SourceConfig) (domain.FetchedJob, bool) {
	slug, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return domain.FetchedJob{}, false
	}
	u := fmt.Sprintf("%s/api/v2/accounts/%s/jobs/%s", c.base, url.PathEscape(slug), url.PathEscape(externalID))
	var d wkDetail
	if err := c.hc.GetJSON(ctx, u, &d, nil); err != nil {
		log.Printf("[ats:workable] account=%q job=%s detail err=%v", slug, externalID, err)
		return domain.FetchedJob{}, false
	}
	if d.Shortcode == "" {
		return domain.FetchedJob{}, false
	}
	j := toFetched(slug, d.wkJob)
	var b strings.Builder
	b.WriteString(d.Description)
	if strings.TrimSpace(d.Requirements) != "" {
		b.WriteString("<h3>Requirements</h3>" + d.Requirements)
	}
	if strings.TrimSpace(d.Benefits) != "" {
		b.WriteString("<h3>Benefits</h3>" + d.Benefits)
	}
	j.DescriptionHTML = b.String()
	j.DescriptionText = util.HTMLToText(j.DescriptionHTML)
	return j, true
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

var workplaceRules = util.WorkplaceRules{
	{"hybrid", domain.WorkplaceHybrid},
	{"remote", domain.WorkplaceRemote},
	{"on_site", domain.WorkplaceOnsite},
	{"onsite", domain.WorkplaceOnsite},
}

func toFetched(slug string, j wkJob) domain.FetchedJob {
	wt := workplaceRules.Classify(j.Workplace)
	if wt == domain.WorkplaceUnknown && j.Remote {
		wt = domain.WorkplaceRemote
	}
	return domain.FetchedJob{
		ExternalID:    j.Shortcode,
		Title:         util.CleanText(j.Title),
		Location:      util.JoinLocation(j.Location.City, j.Location.Region, j.Location.Country),
		Department:    strings.Join(util.NonEmpty(j.Department...), ", "),
		URL:           fmt.Sprintf("https://apply.workable.com/%s/j/%s/", slug, j.Shortcode),
		WorkplaceType: wt,
		PostedAt:      util.ParseTime(j.Published),
	}
}
