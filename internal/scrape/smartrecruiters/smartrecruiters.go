package smartrecruiters

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

const Type = "smartrecruiters"

const (
	defaultAPIBase = "https://api.smartrecruiters.com/v1/companies"
	pageSize       = 100
	// maxPages stops runaway loops when totalFound is inconsistent.
	maxPages = 50
)

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

// ParseIdentifier accepts the company identifier used in
// https://jobs.smartrecruiters.com/<company>, or that URL.
func ParseIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ats.InvalidIdentifier(Type, "company identifier is empty")
	}
	if strings.Contains(raw, "smartrecruiters.com") {
		u, ok := util.ParseHTTPURL(raw)
		if !ok {
			return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
		}
		seg, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		raw = seg
	}
	if !util.IsToken(raw) {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad company identifier %q", raw))
	}
	return raw, nil
}

type location struct {
	City         string `json:"city"`
	Region       string `json:"region"`
	Country      string `json:"country"`
	FullLocation string `json:"fullLocation"`
	Remote       bool   `json:"remote"`
	Hybrid       bool   `json:"hybrid"`
}

type posting struct {
	ID           string   `json:"id"`
	UUID         string   `json:"uuid"`
	Name         string   `json:"name"`
	ReleasedDate string   `json:"releasedDate"`
	Location     location `json:"location"`
	Department   struct {
		Label string `json:"label"`
	} `json:"department"`
	Function struct {
		Label string `json:"label"`
	} `json:"function"`
}

type postingsResponse struct {
	Content    []posting `json:"content"`
	TotalFound int       `json:"totalFound"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
}

type section struct {
	Title string `json:"title"`
	Text  string `json:"text"` // html
}

type postingDetail struct {
	posting
	PostingURL string `json:"postingUrl"`
	JobAd      struct {
		Sections struct {
			CompanyDescription    section `json:"companyDescription"`
			JobDescription        section `json:"jobDescription"`
			Qualifications        section `json:"qualifications"`
			AdditionalInformation section `json:"additionalInformation"`
		} `json:"sections"`
	} `json:"jobAd"`
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	company, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("%s/%s/postings", c.apiBase, url.PathEscape(company))

	var out []domain.FetchedJob
	offset := 0
	for page := 0; page < maxPages; page++ {
		var pr postingsResponse
		u := fmt.Sprintf("%s?limit=%d&offset=%d", base, pageSize, offset)
		if err := c.hc.GetJSON(ctx, u, &pr, nil); err != nil {
			return nil, fmt.Errorf("smartrecruiters list: %w", err)
		}

		for _, p := range pr.Content {
			if p.ID == "" || strings.TrimSpace(p.Name) == "" {
				continue
			}
			out = append(out, listingJob(company, p))
		}

		offset += len(pr.Content)
		if len(pr.Content) < pageSize {
			break
		}
		if pr.TotalFound > 0 && offset >= pr.TotalFound {
			break
		}
	}

	// the listing has no description; one detail call per job, failures keep listing data
	failed := 0
	for i := range out {
		d, ok := c.FetchJobDetails(ctx, out[i].ExternalID, src)
		if !ok {
			failed++
			continue
		}
		out[i] = d
	}

	log.Printf("[ats:smartrecruiters] company=%q jobs=%d detail_failed=%d", company, len(out), failed)
	return out, nil
}

func (c *Connector) FetchJobDetails(ctx context.Context, externalID string, src domain.SourceConfig) (domain.FetchedJob, bool) {
	company, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return domain.FetchedJob{}, false
	}
	u := fmt.Sprintf("%s/%s/postings/%s", c.apiBase, url.PathEscape(company), url.PathEscape(externalID))
	var d postingDetail
	if err := c.hc.GetJSON(ctx, u, &d, nil); err != nil {
		log.Printf("[ats:smartrecruiters] company=%q job=%s detail err=%v", company, externalID, err)
		return domain.FetchedJob{}, false
	}
	if d.ID == "" {
		return domain.FetchedJob{}, false
	}

	j := listingJob(company, d.posting)
	var b strings.Builder
	s := d.JobAd.Sections
	for _, sec := range []section{s.CompanyDescription, s.JobDescription, s.Qualifications, s.AdditionalInformation} {
		if strings.TrimSpace(sec.Text) == "" {
			continue
		}
		if sec.Title != "" {
			fmt.Fprintf(&b, "<h3>%s</h3>", sec.Title)
		}
		b.WriteString(sec.Text)
	}
	j.DescriptionHTML = b.String()
	j.DescriptionText = util.HTMLToText(j.DescriptionHTML)
	if d.PostingURL != "" {
		j.URL = d.PostingURL
	}
	return j, true
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

func listingJob(company string, p posting) domain.FetchedJob {
	loc := util.FirstNonEmpty(p.Location.FullLocation, util.JoinLocation(p.Location.City, p.Location.Region, p.Location.Country))

	var wt domain.WorkplaceType
	switch {
	case p.Location.Hybrid:
		wt = domain.WorkplaceHybrid
	case p.Location.Remote:
		wt = domain.WorkplaceRemote
	default:
		wt = util.DefaultWorkplaceRules.Classify(loc)
	}

	return domain.FetchedJob{
		ExternalID:    p.ID,
		Title:         util.CleanText(p.Name),
		Location:      util.NormalizeLocation(loc),
		Department:    util.FirstNonEmpty(p.Department.Label, p.Function.Label),
		URL:           fmt.Sprintf("https://jobs.smartrecruiters.com/%s/%s", company, p.ID),
		WorkplaceType: wt,
		PostedAt:      util.ParseTime(p.ReleasedDate),
	}
}
