package personio

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "personio"

type Connector struct {
	hc *util.Client
	// hostFor returns the feed origin for a company.
	hostFor func(company string) string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, hostFor: func(company string) string {
		return fmt.Sprintf("https://%s.jobs.personio.de", company)
	}}
}

func (c *Connector) WithBase(base string) *Connector {
	base = strings.TrimRight(base, "/")
	c.hostFor = func(string) string { return base }
	return c
}

func (c *Connector) Type() string { return Type }

type feed struct {
	Company  string
	Language string
}

// ParseIdentifier accepts "company", "company:lang" (two-letter language) or
// a https://<company>.jobs.personio.de|com URL with an optional ?language=.
func ParseIdentifier(raw string) (feed, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return feed{}, ats.InvalidIdentifier(Type, "company is empty")
	}
	if strings.Contains(raw, "personio.") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return feed{}, ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		company, _, _ := strings.Cut(strings.ToLower(u.Host), ".")
		f := feed{Company: company, Language: strings.ToLower(u.Query().Get("language"))}
		return f, f.check()
	}
	company, lang, _ := strings.Cut(raw, ":")
	f := feed{Company: strings.ToLower(strings.TrimSpace(company)), Language: strings.ToLower(strings.TrimSpace(lang))}
	return f, f.check()
}

func (f feed) check() error {
	if !util.IsToken(f.Company) || strings.Contains(f.Company, ".") {
		return ats.InvalidIdentifier(Type, fmt.Sprintf("bad company %q", f.Company))
	}
	if f.Language != "" && len(f.Language) != 2 {
		return ats.InvalidIdentifier(Type, fmt.Sprintf("language must be a two-letter code, got %q", f.Language))
	}
	return nil
}

type xmlFeed struct {
	XMLName   xml.Name      `xml:"workzag-jobs"`
	Positions []xmlPosition `xml:"position"`
}

type xmlPosition struct {
	ID                string   `xml:"id"`
	Office            string   `xml:"office"`
	AdditionalOffices []string `xml:"additionalOffices>office"`
	Department        string   `xml:"department"`
	Name              string   `xml:"name"`
	Descriptions      []struct {
		Name  string `xml:"name"`
		Value string `xml:"value"`
	} `xml:"jobDescriptions>jobDescription"`
	Schedule  string `xml:"schedule"`
	Keywords  string `xml:"keywords"`
	CreatedAt string `xml:"createdAt"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	f, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	origin := c.hostFor(f.Company)
	feedURL := origin + "/xml"
	if f.Language != "" {
		feedURL += "?language=" + url.QueryEscape(f.Language)
	}

	h := http.Header{}
	h.Set("Accept", "application/xml")
	data, _, err := c.hc.Fetch(ctx, http.MethodGet, feedURL, nil, h)
	if err != nil {
		return nil, fmt.Errorf("personio feed: %w", err)
	}

	var x xmlFeed
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("personio decode: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(x.Positions))
	for _, p := range x.Positions {
		id := strings.TrimSpace(p.ID)
		if id == "" || strings.TrimSpace(p.Name) == "" {
			continue
		}
		out = append(out, toFetched(origin, f.Language, p))
	}
	log.Printf("[ats:personio] company=%q lang=%q jobs=%d", f.Company, f.Language, len(out))
	return out, nil
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

// Personio feeds are often German.
var workplaceRules = util.WorkplaceRules{
	{"hybrid", domain.WorkplaceHybrid},
	{"remote", domain.WorkplaceRemote},
	{"homeoffice", domain.WorkplaceRemote},
	{"home office", domain.WorkplaceRemote},
	{"home-office", domain.WorkplaceRemote},
	{"vor ort", domain.WorkplaceOnsite},
	{"on-site", domain.WorkplaceOnsite},
	{"onsite", domain.WorkplaceOnsite},
}

func toFetched(origin, lang string, p xmlPosition) domain.FetchedJob {
	var b strings.Builder
	for _, d := range p.Descriptions {
		if strings.TrimSpace(d.Value) == "" {
			continue
		}
		if d.Name != "" {
			fmt.Fprintf(&b, "<h3>%s</h3>", d.Name)
		}
		b.WriteString(d.Value)
	}
	descHTML := b.String()

	locs := append([]string{p.Office}, p.AdditionalOffices...)
	loc := util.JoinLocation(locs...)

	jobURL := fmt.Sprintf("%s/job/%s", origin, strings.TrimSpace(p.ID))
	if lang != "" {
		jobURL += "?language=" + lang
	}

	return domain.FetchedJob{
		ExternalID:      strings.TrimSpace(p.ID),
		Title:           util.CleanText(p.Name),
		Location:        loc,
		Department:      util.CleanText(p.Department),
		DescriptionHTML: descHTML,
		DescriptionText: util.HTMLToText(descHTML),
		URL:             jobURL,
		WorkplaceType:   workplaceRules.Classify(loc, p.Keywords),
		PostedAt:        util.ParseTime(p.CreatedAt),
	}
}
