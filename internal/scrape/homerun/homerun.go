package homerun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "homerun"

type Connector struct {
	hc      *util.Client
	hostFor func(company string) string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, hostFor: func(company string) string {
		return fmt.Sprintf("https://%s.homerun.co", company)
	}}
}

func (c *Connector) WithBase(base string) *Connector {
	base = strings.TrimRight(base, "/")
	c.hostFor = func(string) string { return base }
	return c
}

func (c *Connector) Type() string { return Type }

// ParseIdentifier accepts the careers subdomain or a <company>.homerun.co URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "company subdomain is empty")
	}
	if strings.Contains(raw, "homerun.co") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		raw = strings.TrimSuffix(strings.ToLower(u.Hostname()), ".homerun.co")
	}
	if !util.IsToken(raw) || strings.Contains(raw, ".") {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad company subdomain %q", raw))
	}
	return strings.ToLower(raw), nil
}

// Vacancy is one entry of the Inertia page props.
type Vacancy struct {
	ID             util.FlexString `json:"id"`
	Slug           string          `json:"slug"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Department     string          `json:"department"`
	Location       string          `json:"location"`
	LocationType   string          `json:"location_type"`
	URL            string          `json:"url"`
	PublishedAt    string          `json:"published_at"`
	UpdatedAt      string          `json:"updated_at"`
	EmploymentType string          `json:"employment_type"`
}

// PageState is the subset of the data-page payload the connector reads.
type PageState struct {
	Component string
	Vacancies []Vacancy
}

type inertiaPage struct {
	Component string `json:"component"`
	Props     struct {
		Vacancies []Vacancy `json:"vacancies"`
		Jobs      []Vacancy `json:"jobs"`
	} `json:"props"`
}

// ParsePageState reads the JSON carried in the Inertia root's data-page attribute.
func ParsePageState(page []byte) (PageState, error) {
	raw, err := util.AttrJSON(page, "[data-page]", "data-page")
	if err != nil {
		return PageState{}, err
	}
	var p inertiaPage
	if err := json.Unmarshal(raw, &p); err != nil {
		return PageState{}, fmt.Errorf("homerun page state: %w", err)
	}
	st := PageState{Component: p.Component, Vacancies: p.Props.Vacancies}
	if len(st.Vacancies) == 0 {
		st.Vacancies = p.Props.Jobs
	}
	return st, nil
}

var workplaceRules = util.WorkplaceRules{
	{Contains: "hybrid", Type: domain.WorkplaceHybrid},
	{Contains: "remote", Type: domain.WorkplaceRemote},
	{Contains: "on_site", Type: domain.WorkplaceOnsite},
	{Contains: "onsite", Type: domain.WorkplaceOnsite},
	{Contains: "office", Type: domain.WorkplaceOnsite},
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	company, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	origin := c.hostFor(company)
	page, err := c.hc.GetHTML(ctx, origin+"/")
	if err != nil {
		return nil, fmt.Errorf("homerun list: %w", err)
	}
	st, err := ParsePageState(page)
	if errors.Is(err, util.ErrNoEmbeddedState) && strings.Contains(strings.ToLower(string(page)), "no open positions") {
		log.Printf("[scrape:homerun] company=%q jobs=0 (no open positions)", company)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("homerun list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(st.Vacancies))
	seen := map[string]bool{}
	for _, v := range st.Vacancies {
		j, ok := toFetched(origin, v)
		if !ok || seen[j.ExternalID] {
			continue
		}
		seen[j.ExternalID] = true
		out = append(out, j)
	}
	log.Printf("[scrape:homerun] company=%q jobs=%d", company, len(out))
	return out, nil
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

// toFetched prefers the platform id, then the slug, then a title slug.
func toFetched(origin string, v Vacancy) (domain.FetchedJob, bool) {
	title := util.CleanText(v.Title)
	if title == "" {
		return domain.FetchedJob{}, false
	}
	id := util.FirstNonEmpty(v.ID.String(), v.Slug, util.Slugify(title))

	jobURL := strings.TrimSpace(v.URL)
	if jobURL == "" {
		jobURL = origin + "/" + util.FirstNonEmpty(v.Slug, util.Slugify(title))
	} else {
		jobURL = util.ResolveURL(origin+"/", jobURL)
	}

	loc := util.NormalizeLocation(v.Location)
	return domain.FetchedJob{
		ExternalID:      id,
		Title:           title,
		Location:        loc,
		Department:      util.CleanText(v.Department),
		DescriptionHTML: v.Description,
		DescriptionText: util.HTMLToText(v.Description),
		URL:             jobURL,
		WorkplaceType:   workplaceRules.Classify(v.LocationType, loc),
		PostedAt:        util.ParseTime(v.PublishedAt),
		UpdatedAt:       util.ParseTime(v.UpdatedAt),
	}, true
}
