package teamtailor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "teamtailor"

const (
	apiVersion = "20240404"
	pageSize   = 30
	maxPages   = 50
)

var apiHosts = map[string]string{
	"eu": "https://api.teamtailor.com/v1",
	"na": "https://api.na.teamtailor.com/v1",
}

// TokenFunc resolves the API token for a company identifier.
type TokenFunc func(company string) (string, error)

type Connector struct {
	hc      *util.Client
	token   TokenFunc
	apiBase string
}

func New(hc *util.Client, token TokenFunc) *Connector {
	return &Connector{hc: hc, token: token}
}

// WithAPIBase overrides the region host (tests).
func (c *Connector) WithAPIBase(base string) *Connector {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

func (c *Connector) Type() string { return Type }

type ident struct {
	Company string
	Region  string
}

// ParseIdentifier accepts "company" or "company:region" where region is eu or na.
func ParseIdentifier(raw string) (ident, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ident{}, ats.InvalidIdentifier(Type, "company is empty")
	}
	id := ident{Company: raw, Region: "eu"}
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		id.Company, id.Region = raw[:i], raw[i+1:]
	}
	if _, ok := apiHosts[id.Region]; !ok {
		return ident{}, ats.InvalidIdentifier(Type, fmt.Sprintf("unknown region %q (want eu or na)", id.Region))
	}
	if !util.IsToken(id.Company) {
		return ident{}, ats.InvalidIdentifier(Type, fmt.Sprintf("bad company %q", id.Company))
	}
	return id, nil
}

type resourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type jobResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Title        string `json:"title"`
		Body         string `json:"body"`
		RemoteStatus string `json:"remote-status"`
		CreatedAt    string `json:"created-at"`
		UpdatedAt    string `json:"updated-at"`
		Status       string `json:"status"`
	} `json:"attributes"`
	Links struct {
		CareersiteJobURL string `json:"careersite-job-url"`
	} `json:"links"`
	Relationships struct {
		Department struct {
			Data *resourceRef `json:"data"`
		} `json:"department"`
		Locations struct {
			Data []resourceRef `json:"data"`
		} `json:"locations"`
	} `json:"relationships"`
}

type included struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name    string `json:"name"`
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"attributes"`
}

type jobsPage struct {
	Data     []jobResource `json:"data"`
	Included []included    `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

var workplaceRules = util.WorkplaceRules{
	{Contains: "hybrid", Type: domain.WorkplaceHybrid},
	{Contains: "temporary", Type: domain.WorkplaceHybrid},
	{Contains: "fully", Type: domain.WorkplaceRemote},
	{Contains: "remote", Type: domain.WorkplaceRemote},
	{Contains: "none", Type: domain.WorkplaceOnsite},
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	id, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	if c.token == nil {
		return nil, errors.New("teamtailor: no token source configured")
	}
	tok, err := c.token(id.Company)
	if err != nil {
		return nil, fmt.Errorf("teamtailor token: %w", err)
	}

	base := util.FirstNonEmpty(c.apiBase, apiHosts[id.Region])
	q := url.Values{}
	q.Set("include", "department,locations")
	q.Set("page[size]", fmt.Sprint(pageSize))
	next := base + "/jobs?" + q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Token token="+tok)
	h.Set("X-Api-Version", apiVersion)
	h.Set("Accept", "application/vnd.api+json")

	var out []domain.FetchedJob
	seen := map[string]bool{}
	for page := 0; next != "" && page < maxPages; page++ {
		var res jobsPage
		if err := c.hc.GetJSON(ctx, next, &res, h); err != nil {
			return nil, fmt.Errorf("teamtailor list: %w", err)
		}
		side := indexIncluded(res.Included)
		for _, r := range res.Data {
			if r.ID == "" || seen[r.ID] {
				continue
			}
			if r.Attributes.Status != "" && r.Attributes.Status != "open" {
				continue
			}
			seen[r.ID] = true
			out = append(out, toFetched(r, side))
		}
		next = strings.TrimSpace(res.Links.Next)
	}

	log.Printf("[ats:teamtailor] company=%q region=%s jobs=%d", id.Company, id.Region, len(out))
	return out, nil
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

func indexIncluded(items []included) map[string]included {
	m := make(map[string]included, len(items))
	for _, it := range items {
		m[it.Type+"/"+it.ID] = it
	}
	return m
}

func toFetched(r jobResource, side map[string]included) domain.FetchedJob {
	var locs []string
	for _, ref := range r.Relationships.Locations.Data {
		if it, ok := side[ref.Type+"/"+ref.ID]; ok {
			locs = append(locs, util.FirstNonEmpty(
				util.JoinLocation(it.Attributes.City, it.Attributes.Country),
				it.Attributes.Name,
			))
		}
	}
	dept := ""
	if ref := r.Relationships.Department.Data; ref != nil {
		dept = side[ref.Type+"/"+ref.ID].Attributes.Name
	}

	a := r.Attributes
	return domain.FetchedJob{
		ExternalID:      r.ID,
		Title:           util.CleanText(a.Title),
		Location:        util.NormalizeLocation(strings.Join(util.NonEmpty(locs...), "; ")),
		Department:      util.CleanText(dept),
		DescriptionHTML: a.Body,
		DescriptionText: util.HTMLToText(a.Body),
		URL:             strings.TrimSpace(r.Links.CareersiteJobURL),
		WorkplaceType:   workplaceRules.Classify(a.RemoteStatus),
		PostedAt:        util.ParseTime(a.CreatedAt),
		UpdatedAt:       util.ParseTime(a.UpdatedAt),
	}
}
