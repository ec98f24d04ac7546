package ashby

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

const Type = "ashby"

const defaultAPIBase = "https://api.ashbyhq.com/posting-api/job-board"

type Connector struct {
	hc      *util.Client
	apiBase string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, apiBase: defaultAPIBase}
}

func (c *Connector) WithAPIBase(base string) *Connector {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

func (c *Connector) Type() string { return Type }

// ParseIdentifier accepts an organization slug or a jobs.ashbyhq.com/<org> URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "organization slug is empty")
	}
	if strings.Contains(raw, "ashbyhq.com") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		seg, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if seg == "" {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("no organization in %q", raw))
		}
		raw = seg
	}
	if !util.IsToken(raw) {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad organization slug %q", raw))
	}
	return raw, nil
}

type ashbyJob struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Department         string `json:"department"`
	Team               string `json:"team"`
	Location           string `json:"location"`
	SecondaryLocations []struct {
		Location string `json:"location"`
	} `json:"secondaryLocations"`
	PublishedAt      string `json:"publishedAt"`
	IsListed         *bool  `json:"isListed"`
	IsRemote         bool   `json:"isRemote"`
	WorkplaceType    string `json:"workplaceType"`
	JobURL           string `json:"jobUrl"`
	DescriptionHTML  string `json:"descriptionHtml"`
	DescriptionPlain string `json:"descriptionPlain"`
}

type ashbyBoard struct {
	Jobs []ashbyJob `json:"jobs"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	org, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}

	var board ashbyBoard
	u := fmt.Sprintf("%s/%s?includeCompensation=false", c.apiBase, url.PathEscape(org))
	if err := c.hc.GetJSON(ctx, u, &board, nil); err != nil {
		return nil, fmt.Errorf("ashby list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		if j.IsListed != nil && !*j.IsListed {
			continue
		}
		if j.ID == "" || strings.TrimSpace(j.Title) == "" {
			continue
		}
		out = append(out, toFetched(j))
	}
	log.Printf("[ats:ashby] org=%q jobs=%d", org, len(out))
	return out, nil
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

// Ashby sends "OnSite", "Remote", "Hybrid".
var workplaceRules = util.WorkplaceRules{
	{"hybrid", domain.WorkplaceHybrid},
	{"remote", domain.WorkplaceRemote},
	{"onsite", domain.WorkplaceOnsite},
	{"on-site", domain.WorkplaceOnsite},
}

func toFetched(j ashbyJob) domain.FetchedJob {
	locs := []string{j.Location}
	for _, s := range j.SecondaryLocations {
		locs = append(locs, s.Location)
	}
	loc := util.JoinLocation(locs...)

	wt := workplaceRules.Classify(j.WorkplaceType)
	if wt == domain.WorkplaceUnknown && j.IsRemote {
		wt = domain.WorkplaceRemote
	}

	text := util.HTMLToText(j.DescriptionHTML)
	if text == "" {
		text = util.HTMLToText(j.DescriptionPlain)
	}

	return domain.FetchedJob{
		ExternalID:      j.ID,
		Title:           util.CleanText(j.Title),
		Location:        loc,
		Department:      util.FirstNonEmpty(j.Department, j.Team),
		DescriptionHTML: strings.TrimSpace(j.DescriptionHTML),
		DescriptionText: text,
		URL:             strings.TrimSpace(j.JobURL),
		WorkplaceType:   wt,
		PostedAt:        util.ParseTime(j.PublishedAt),
	}
}
