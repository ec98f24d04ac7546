package lever

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

const Type = "lever"

const (
	globalAPI = "https://api.lever.co/v0/postings"
	euAPI     = "https://api.eu.lever.co/v0/postings"
)

type Connector struct {
	hc *util.Client
	// apiFor returns the postings base for a region ("" or "eu").
	apiFor func(region string) string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, apiFor: func(region string) string {
		if region == "eu" {
			return euAPI
		}
		return globalAPI
	}}
}

// WithAPIBase sends every region to base (tests).
func (c *Connector) WithAPIBase(base string) *Connector {
	base = strings.TrimRight(base, "/")
	c.apiFor = func(string) string { return base }
	return c
}

func (c *Connector) Type() string { return Type }

type site struct {
	Region string // "" or "eu"
	Slug   string
}

// ParseIdentifier accepts "slug", "eu:slug", or a jobs.lever.co /
// jobs.eu.lever.co URL.
func ParseIdentifier(raw string) (site, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return site{}, ats.InvalidIdentifier(Type, "site slug is empty")
	}
	if strings.Contains(raw, "lever.co") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return site{}, ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segs) == 0 || !util.IsToken(segs[0]) {
			return site{}, ats.InvalidIdentifier(Type, fmt.Sprintf("no site slug in %q", raw))
		}
		s := site{Slug: segs[0]}
		if strings.Contains(strings.ToLower(u.Host), ".eu.") {
			s.Region = "eu"
		}
		return s, nil
	}
	region, slug, found := strings.Cut(raw, ":")
	if !found {
		region, slug = "", raw
	}
	region = strings.ToLower(strings.TrimSpace(region))
	slug = strings.TrimSpace(slug)
	if region != "" && region != "eu" {
		return site{}, ats.InvalidIdentifier(Type, fmt.Sprintf("unknown region %q (use eu:<slug>)", region))
	}
	if !util.IsToken(slug) {
		return site{}, ats.InvalidIdentifier(Type, fmt.Sprintf("bad site slug %q", slug))
	}
	return site{Region: region, Slug: slug}, nil
}

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"` // title
	HostedURL  string `json:"hostedUrl"`
	CreatedAt  int64  `json:"createdAt"` // ms epoch
	UpdatedAt  int64  `json:"updatedAt"`
	Categories struct {
		Location     string   `json:"location"`
		AllLocations []string `json:"allLocations"`
		Team         string   `json:"team"`
		Department   string   `json:"department"`
	} `json:"categories"`
	Description   string `json:"description"` // html
	WorkplaceType string `json:"workplaceType"`
	Lists         []struct {
		Text    string `json:"text"`
		Content string `json:"content"` // <li> html
	} `json:"lists"`
	Additional string `json:"additional"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	s, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/%s?mode=json", c.apiFor(s.Region), url.PathEscape(s.Slug))
	var postings []leverPosting
	if err := c.hc.GetJSON(ctx, apiURL, &postings, nil); err != nil {
		return nil, fmt.Errorf("lever list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(postings))
	for _, p := range postings {
		if p.ID == "" || strings.TrimSpace(p.Text) == "" {
			continue
		}
		j := toFetched(p)
		if j.DescriptionHTML == "" {
			// listing occasionally omits bodies; keep listing data if this fails
			if d, ok := c.FetchJobDetails(ctx, p.ID, src); ok {
				j = d
			}
		}
		out = append(out, j)
	}

	log.Printf("[ats:lever] site=%q region=%q jobs=%d", s.Slug, s.Region, len(out))
	return out, nil
}

func (c *Connector) FetchJobDetails(ctx context.Context, externalID string, src domain.SourceConfig) (domain.FetchedJob, bool) {
	s, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return domain.FetchedJob{}, false
	}
	u := fmt.Sprintf("%s/%s/%s", c.apiFor(s.Region), url.PathEscape(s.Slug), url.PathEscape(externalID))
	var p leverPosting
	if err := c.hc.GetJSON(ctx, u, &p, nil); err != nil {
		log.Printf("[ats:lever] site=%q job=%s detail err=%v", s.Slug, externalID, err)
		return domain.FetchedJob{}, false
	}
	if p.ID == "" {
		return domain.FetchedJob{}, false
	}
	return toFetched(p), true
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

// workplaceType is authoritative when set; the location string is the fallback.
var workplaceRules = util.WorkplaceRules{
	{"hybrid", domain.WorkplaceHybrid},
	{"remote", domain.WorkplaceRemote},
	{"onsite", domain.WorkplaceOnsite},
	{"on-site", domain.WorkplaceOnsite},
}

func toFetched(p leverPosting) domain.FetchedJob {
	var b strings.Builder
	b.WriteString(p.Description)
	for _, l := range p.Lists {
		fmt.Fprintf(&b, "<h3>%s</h3><ul>%s</ul>", l.Text, l.Content)
	}
	b.WriteString(p.Additional)
	descHTML := strings.TrimSpace(b.String())

	loc := util.NormalizeLocation(p.Categories.Location)
	if loc == "" && len(p.Categories.AllLocations) > 0 {
		loc = util.NormalizeLocation(strings.Join(p.Categories.AllLocations, ", "))
	}

	wt := p.WorkplaceType
	if strings.EqualFold(wt, "unspecified") {
		wt = ""
	}

	return domain.FetchedJob{
		ExternalID:      p.ID,
		Title:           util.CleanText(p.Text),
		Location:        loc,
		Department:      util.FirstNonEmpty(p.Categories.Team, p.Categories.Department),
		DescriptionHTML: descHTML,
		DescriptionText: util.HTMLToText(descHTML),
		URL:             strings.TrimSpace(p.HostedURL),
		WorkplaceType:   workplaceRules.Classify(util.FirstNonEmpty(wt, loc)),
		PostedAt:        util.EpochTime(p.CreatedAt),
		UpdatedAt:       util.EpochTime(p.UpdatedAt),
	}
}
