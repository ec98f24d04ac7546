package join

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

const Type = "join"

const defaultBase = "https://join.com"

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

// ParseIdentifier accepts a company slug or a join.com/companies/<slug> URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "company slug is empty")
	}
	if strings.Contains(raw, "join.com") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segs) < 2 || segs[0] != "companies" {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("expected /companies/<slug> in %q", raw))
		}
		raw = segs[1]
	}
	if !util.IsToken(raw) {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad company slug %q", raw))
	}
	return strings.ToLower(raw), nil
}

// Job is one entry of the hydration payload.
type Job struct {
	ID            util.FlexString `json:"id"`
	IDParam       string          `json:"idParam"`
	Title         string          `json:"title"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
	WorkplaceType string          `json:"workplaceType"`
	Description   string          `json:"description"`
	City          struct {
		CityName string `json:"cityName"`
	} `json:"city"`
	Country struct {
		Name string `json:"name"`
	} `json:"country"`
	Category struct {
		Name string `json:"name"`
	} `json:"category"`
}

// NextState is the part of __NEXT_DATA__ the connector reads.
type NextState struct {
	Jobs []Job
	Job  *Job
}

type nextData struct {
	Props struct {
		PageProps struct {
			Jobs         json.RawMessage `json:"jobs"`
			Job          *Job            `json:"job"`
			InitialState struct {
				Jobs json.RawMessage `json:"jobs"`
			} `json:"initialState"`
		} `json:"pageProps"`
	} `json:"props"`
}

// ParseNextData reads the Next.js hydration script of a company or job page.
// The job list is either an array or an object with "items".
func ParseNextData(page []byte) (NextState, error) {
	raw, err := util.ScriptJSON(page, "script#__NEXT_DATA__")
	if err != nil {
		return NextState{}, err
	}
	var nd nextData
	if err := json.Unmarshal(raw, &nd); err != nil {
		return NextState{}, fmt.Errorf("join next data: %w", err)
	}
	pp := nd.Props.PageProps

	st := NextState{Job: pp.Job}
	for _, blob := range []json.RawMessage{pp.InitialState.Jobs, pp.Jobs} {
		jobs, err := decodeJobList(blob)
		if err != nil {
			return NextState{}, err
		}
		if len(jobs) > 0 {
			st.Jobs = jobs
			break
		}
	}
	return st, nil
}

func decodeJobList(blob json.RawMessage) ([]Job, error) {
	s := strings.TrimSpace(string(blob))
	if s == "" || s == "null" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var jobs []Job
		if err := json.Unmarshal(blob, &jobs); err != nil {
			return nil, fmt.Errorf("join jobs: %w", err)
		}
		return jobs, nil
	}
	var wrapped struct {
		Items []Job `json:"items"`
	}
	if err := json.Unmarshal(blob, &wrapped); err != nil {
		return nil, fmt.Errorf("join jobs: %w", err)
	}
	return wrapped.Items, nil
}

var workplaceRules = util.WorkplaceRules{
	{Contains: "hybrid", Type: domain.WorkplaceHybrid},
	{Contains: "remote", Type: domain.WorkplaceRemote},
	{Contains: "onsite", Type: domain.WorkplaceOnsite},
	{Contains: "on_site", Type: domain.WorkplaceOnsite},
}

func (c *Connector) companyURL(slug string) string {
	return c.base + "/companies/" + slug
}

func (c *Connector) jobURL(slug string, j Job) string {
	param := util.FirstNonEmpty(j.IDParam, j.ID.String()+"-"+util.Slugify(j.Title))
	return c.companyURL(slug) + "/" + param
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	slug, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	page, err := c.hc.GetHTML(ctx, c.companyURL(slug))
	if err != nil {
		return nil, fmt.Errorf("join list: %w", err)
	}
	st, err := ParseNextData(page)
	if errors.Is(err, util.ErrNoEmbeddedState) && hasNoOpenings(page) {
		log.Printf("[scrape:join] company=%q jobs=0 (no open positions)", slug)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("join list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(st.Jobs))
	seen := map[string]bool{}
	failed := 0
	for _, j := range st.Jobs {
		id := j.ID.String()
		if id == "" || strings.TrimSpace(j.Title) == "" || seen[id] {
			continue
		}
		seen[id] = true
		fj := toFetched(j, c.jobURL(slug, j))
		if fj.DescriptionHTML == "" {
			if d, ok := c.fetchDetail(ctx, fj.URL); ok {
				fj = mergeDetail(fj, d)
			} else {
				failed++
			}
		}
		out = append(out, fj)
	}
	log.Printf("[scrape:join] company=%q jobs=%d detail_failed=%d", slug, len(out), failed)
	return out, nil
}

func (c *Connector) fetchDetail(ctx context.Context, pageURL string) (Job, bool) {
	page, err := c.hc.GetHTML(ctx, pageURL)
	if err != nil {
		log.Printf("[scrape:join] page=%q detail err=%v", pageURL, err)
		return Job{}, false
	}
	st, err := ParseNextData(page)
	if err != nil || st.Job == nil {
		return Job{}, false
	}
	return *st.Job, true
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

func hasNoOpenings(page []byte) bool {
	low := strings.ToLower(string(page))
	for _, m := range []string{"no open positions", "no jobs available", "keine offenen stellen"} {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

func toFetched(j Job, jobURL string) domain.FetchedJob {
	loc := util.JoinLocation(j.City.CityName, j.Country.Name)
	return domain.FetchedJob{
		ExternalID:      j.ID.String(),
		Title:           util.CleanText(j.Title),
		Location:        loc,
		Department:      util.CleanText(j.Category.Name),
		DescriptionHTML: j.Description,
		DescriptionText: util.HTMLToText(j.Description),
		URL:             jobURL,
		WorkplaceType:   workplaceRules.Classify(j.WorkplaceType, loc),
		PostedAt:        util.ParseTime(j.CreatedAt),
		UpdatedAt:       util.ParseTime(j.UpdatedAt),
	}
}

func mergeDetail(fj domain.FetchedJob, d Job) domain.FetchedJob {
	if d.Description != "" {
		fj.DescriptionHTML = d.Description
		fj.DescriptionText = util.HTMLToText(d.Description)
	}
	if fj.WorkplaceType == "" {
		fj.WorkplaceType = workplaceRules.Classify(d.WorkplaceType)
	}
	return fj
}
