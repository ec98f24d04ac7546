package recruitee

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "recruitee"

type Connector struct {
	hc      *util.Client
	hostFor func(company string) string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, hostFor: func(company string) string {
		return fmt.Sprintf("https://%s.recruitee.com", company)
	}}
}

func (c *Connector) WithBase(base string) *Connector {
	base = strings.TrimRight(base, "/")
	c.hostFor = func(string) string { return base }
	return c
}

func (c *Connector) Type() string { return Type }

// ParseIdentifier accepts the careers subdomain or a <company>.recruitee.com URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "company subdomain is empty")
	}
	if strings.Contains(raw, "recruitee.com") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		raw = strings.TrimSuffix(strings.ToLower(u.Host), ".recruitee.com")
	}
	if !util.IsToken(raw) || strings.Contains(raw, ".") {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad company subdomain %q", raw))
	}
	return strings.ToLower(raw), nil
}

type offer struct {
	ID           int64  `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	Location     string `json:"location"`
	City         string `json:"city"`
	Country      string `json:"country"`
	Remote       bool   `json:"remote"`
	Hybrid       bool   `json:"hybrid"`
	OnSite       bool   `json:"on_site"`
	Department   string `json:"department"`
	CareersURL   string `json:"careers_url"`
	PublishedAt  string `json:"published_at"`
	UpdatedAt    string `json:"updated_at"`
	Status       string `json:"status"`
}

type offersResponse struct {
	Offers []offer `json:"offers"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	company, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	var res offersResponse
	if err := c.hc.GetJSON(ctx, c.hostFor(company)+"/api/offers/", &res, nil); err != nil {
		return nil, fmt.Errorf("recruitee list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(res.Offers))
	for _, o := range res.Offers {
		if o.ID == 0 || strings.TrimSpace(o.Title) == "" {
			continue
		}
		if o.Status != "" && o.Status != "published" {
			continue
		}
		out = append(out, toFetched(o))
	}
	log.Printf("[ats:recruitee] company=%q jobs=%d", company, len(out))
	return out, nil
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

func toFetched(o offer) domain.FetchedJob {
	var wt domain.WorkplaceType
	switch {
	case o.Hybrid:
		wt = domain.WorkplaceHybrid
	case o.Remote:
		wt = domain.WorkplaceRemote
	case o.OnSite:
		wt = domain.WorkplaceOnsite
	}

	descHTML := o.Description
	if strings.TrimSpace(o.Requirements) != "" {
		descHTML += "<h3>Requirements</h3>" + o.Requirements
	}

	return domain.FetchedJob{
		ExternalID:      strconv.FormatInt(o.ID, 10),
		Title:           util.CleanText(o.Title),
		Location:        util.FirstNonEmpty(util.NormalizeLocation(o.Location), util.JoinLocation(o.City, o.Country)),
		Department:      util.CleanText(o.Department),
		DescriptionHTML: descHTML,
		DescriptionText: util.HTMLToText(descHTML),
		URL:             strings.TrimSpace(o.CareersURL),
		WorkplaceType:   wt,
		PostedAt:        util.ParseTime(o.PublishedAt),
		UpdatedAt:       util.ParseTime(o.UpdatedAt),
	}
}
