package breezy

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
)

const Type = "breezy"

type Connector struct {
	hc      *util.Client
	hostFor func(company string) string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, hostFor: func(company string) string {
		return fmt.Sprintf("https://%s.breezy.hr", company)
	}}
}

func (c *Connector) WithBase(base string) *Connector {
	base = strings.TrimRight(base, "/")
	c.hostFor = func(string) string { return base }
	return c
}

func (c *Connector) Type() string { return Type }

// ParseIdentifier accepts the portal subdomain or a <company>.breezy.hr URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "company subdomain is empty")
	}
	if strings.Contains(raw, "breezy.hr") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		raw = strings.TrimSuffix(strings.ToLower(u.Host), ".breezy.hr")
	}
	if !util.IsToken(raw) || strings.Contains(raw, ".") {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad company subdomain %q", raw))
	}
	return strings.ToLower(raw), nil
}

type position struct {
	ID            string `json:"id"`
	FriendlyID    string `json:"friendly_id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	PublishedDate string `json:"published_date"`
	Department    string `json:"department"`
	Location      struct {
		Name     string `json:"name"`
		IsRemote bool   `json:"is_remote"`
		City     string `json:"city"`
		Country  struct {
			Name string `json:"name"`
		} `json:"country"`
	} `json:"location"`
	Type struct {
		Name string `json:"name"`
	} `json:"type"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	company, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	origin := c.hostFor(company)
	var positions []position
	if err := c.hc.GetJSON(ctx, origin+"/json", &positions, nil); err != nil {
		return nil, fmt.Errorf("breezy list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(positions))
	failed := 0
	for _, p := range positions {
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			continue
		}
		j := toFetched(origin, p)
		// JSON feed has no description; the public posting page does
		if html, ok := c.fetchDescription(ctx, j.URL); ok {
			j.DescriptionHTML = html
			j.DescriptionText = util.HTMLToText(html)
		} else {
			failed++
		}
		out = append(out, j)
	}
	log.Printf("[ats:breezy] company=%q jobs=%d detail_failed=%d", company, len(out), failed)
	return out, nil
}

func (c *Connector) fetchDescription(ctx context.Context, pageURL string) (string, bool) {
	if pageURL == "" {
		return "", false
	}
	data, err := c.hc.GetHTML(ctx, pageURL)
	if err != nil {
		log.Printf("[ats:breezy] page=%q detail err=%v", pageURL, err)
		return "", false
	}
	html, ok := ParseDescription(data)
	return html, ok
}

// ParseDescription returns the inner HTML of a posting page's description block.
func ParseDescription(page []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", false
	}
	for _, sel := range []string{".description", "[itemprop='description']", ".position-description"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if h, err := s.Html(); err == nil && strings.TrimSpace(h) != "" {
				return strings.TrimSpace(h), true
			}
		}
	}
	return "", false
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

func toFetched(origin string, p position) domain.FetchedJob {
	jobURL := strings.TrimSpace(p.URL)
	if jobURL == "" && p.FriendlyID != "" {
		jobURL = origin + "/p/" + url.PathEscape(p.FriendlyID)
	}
	loc := util.FirstNonEmpty(util.NormalizeLocation(p.Location.Name), util.JoinLocation(p.Location.City, p.Location.Country.Name))

	wt := util.DefaultWorkplaceRules.Classify(loc)
	if p.Location.IsRemote && wt != domain.WorkplaceHybrid {
		wt = domain.WorkplaceRemote
	}

	return domain.FetchedJob{
		ExternalID:    p.ID,
		Title:         util.CleanText(p.Name),
		Location:      loc,
		Department:    util.CleanText(p.Department),
		URL:           jobURL,
		WorkplaceType: wt,
		PostedAt:      util.ParseTime(p.PublishedDate),
	}
}
