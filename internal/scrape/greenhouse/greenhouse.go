package greenhouse

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"
)

const Type = "greenhouse"

const defaultAPIBase = "https://boards-api.greenhouse.io/v1/boards"

type Connector struct {
	hc      *util.Client
	apiBase string
}

func New(hc *util.Client) *Connector {
	return &Connector{hc: hc, apiBase: defaultAPIBase}
}

// WithAPIBase points the connector at another host (tests).
func (c *Connector) WithAPIBase(base string) *Connector {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

func (c *Connector) Type() string { return Type }

type ghJob struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	AbsoluteURL    string `json:"absolute_url"`
	UpdatedAt      string `json:"updated_at"`
	FirstPublished string `json:"first_published"`
	Content        string `json:"content"` // entity-encoded html
	Location       struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
	Metadata []struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	} `json:"metadata"`
}

type ghList struct {
	Jobs []ghJob `json:"jobs"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// ParseIdentifier accepts a bare board token, a board URL
// (boards.greenhouse.io/<token>, job-boards.greenhouse.io/<token>) or an
// embed URL carrying ?for=<token>.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "board token is empty")
	}
	if util.IsToken(raw) && !strings.Contains(raw, ".") {
		return raw, nil
	}
	u, ok := util.ParseHTTPURL(raw)
	if !ok || !strings.HasSuffix(strings.ToLower(u.Host), "greenhouse.io") {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("%q is neither a board token nor a greenhouse.io URL", raw))
	}
	if f := strings.TrimSpace(u.Query().Get("for")); f != "" {
		if !util.IsToken(f) {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad board token %q", f))
		}
		return f, nil
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" || segs[0] == "embed" || !util.IsToken(segs[0]) {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("no board token in %q", raw))
	}
	return segs[0], nil
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	token, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}

	var list ghList
	u := fmt.Sprintf("%s/%s/jobs?content=true", c.apiBase, url.PathEscape(token))
	if err := c.hc.GetJSON(ctx, u, &list, nil); err != nil {
		return nil, fmt.Errorf("greenhouse list: %w", err)
	}

	out := make([]domain.FetchedJob, 0, len(list.Jobs))
	for _, j := range list.Jobs {
		if j.ID == 0 || strings.TrimSpace(j.Title) == "" {
			continue
		}
		out = append(out, toFetched(j))
	}
	log.Printf("[ats:greenhouse] board=%q jobs=%d", token, len(out))
	return out, nil
}

func (c *Connector) FetchJobDetails(ctx context.Context, externalID string, src domain.SourceConfig) (domain.FetchedJob, bool) {
	token, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return domain.FetchedJob{}, false
	}
	var j ghJob
	u := fmt.Sprintf("%s/%s/jobs/%s", c.apiBase, url.PathEscape(token), url.PathEscape(externalID))
	if err := c.hc.GetJSON(ctx, u, &j, nil); err != nil {
		if !util.IsNotFound(err) {
			log.Printf("[ats:greenhouse] board=%q job=%s detail err=%v", token, externalID, err)
		}
		return domain.FetchedJob{}, false
	}
	if j.ID == 0 {
		return domain.FetchedJob{}, false
	}
	return toFetched(j), true
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
	{"in-office", domain.WorkplaceOnsite},
	{"in office", domain.WorkplaceOnsite},
	{"on-site", domain.WorkplaceOnsite},
	{"onsite", domain.WorkplaceOnsite},
}

func toFetched(j ghJob) domain.FetchedJob {
	descHTML := util.DecodeEncodedHTML(j.Content)
	loc := util.NormalizeLocation(j.Location.Name)

	var depts []string
	for _, d := range j.Departments {
		depts = append(depts, d.Name)
	}

	// custom "Workplace Type" / "Location Type" metadata beats the location string
	var meta string
	for _, m := range j.Metadata {
		n := strings.ToLower(m.Name)
		if strings.Contains(n, "workplace") || strings.Contains(n, "location type") || strings.Contains(n, "remote") {
			if s, ok := m.Value.(string); ok {
				meta = s
			}
		}
	}

	f := domain.FetchedJob{
		ExternalID:      strconv.FormatInt(j.ID, 10),
		Title:           util.CleanText(j.Title),
		Location:        loc,
		Department:      strings.Join(util.NonEmpty(depts...), ", "),
		DescriptionHTML: descHTML,
		DescriptionText: util.HTMLToText(descHTML),
		URL:             strings.TrimSpace(j.AbsoluteURL),
		WorkplaceType:   workplaceRules.Classify(util.FirstNonEmpty(meta, loc)),
		PostedAt:        util.ParseTime(j.FirstPublished),
		UpdatedAt:       util.ParseTime(j.UpdatedAt),
	}
	return f
}
