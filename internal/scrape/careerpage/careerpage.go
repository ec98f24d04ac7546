package careerpage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const Type = "careerpage"

const (
	minTitleLen = 4
	maxTitleLen = 120
	// a heading with no job marker needs at least this much body text
	minBlockLen = 200
)

type Connector struct {
	hc *util.Client
}

func New(hc *util.Client) *Connector { return &Connector{hc: hc} }

func (c *Connector) Type() string { return Type }

// ParseIdentifier accepts the absolute URL of a company's career page.
func ParseIdentifier(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ats.InvalidIdentifier(Type, "page URL is empty")
	}
	u, ok := util.ParseHTTPURL(raw)
	if !ok {
		return "", ats.InvalidIdentifier(Type, fmt.Sprintf("bad URL %q", raw))
	}
	return u.String(), nil
}

func (c *Connector) FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error) {
	pageURL, err := ParseIdentifier(src.Identifier)
	if err != nil {
		return nil, err
	}
	page, err := c.hc.GetHTML(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("careerpage list: %w", err)
	}
	jobs, err := ParsePage(page, pageURL)
	if err != nil {
		return nil, fmt.Errorf("careerpage list: %w", err)
	}
	log.Printf("[scrape:careerpage] url=%q jobs=%d", pageURL, len(jobs))
	return jobs, nil
}

func (c *Connector) ValidateConfig(ctx context.Context, src domain.SourceConfig) ats.ValidationResult {
	return ats.ValidateByFetch(ctx, c, src, func(s string) error {
		_, err := ParseIdentifier(s)
		return err
	})
}

var noOpeningMarkers = []string{
	"no open positions",
	"no current openings",
	"no vacancies",
	"there are currently no open",
	"we are not hiring",
	"keine offenen stellen",
	"derzeit keine stellen",
}

// containerSelectors match listing items rendered by common site builders.
var containerSelectors = strings.Join([]string{
	".job-listing",
	".job-item",
	".job-post",
	".job-opening",
	".position",
	".opening",
	".vacancy",
	".career-item",
	"[itemtype*='JobPosting']",
	"[data-job-id]",
}, ", ")

var jobMarkers = []string{
	"engineer", "developer", "manager", "designer", "analyst", "intern",
	"lead", "architect", "scientist", "consultant", "specialist", "administrator",
	"(m/w/d)", "(f/m/d)", "(m/f/d)", "(w/m/d)", "entwickler", "werkstudent",
}

var noiseHeadings = []string{
	"about us", "contact", "imprint", "impressum", "privacy", "cookie",
	"our team", "our values", "benefits", "why join", "why work",
	"how to apply", "apply now", "application form", "application process",
	"open positions", "open roles", "current openings", "careers", "jobs",
	"newsletter", "follow us", "faq", "menu", "navigation",
	"our mission", "who we are", "what we offer", "culture",
}

// bodyMarkers qualify an unmarked heading whose block is long enough.
var bodyMarkers = []string{
	"requirements", "responsibilities", "qualifications", "you will", "your profile",
	"what you'll do", "ihre aufgaben", "dein profil", "apply",
}

// ParsePage extracts jobs from a career page. Structured containers are
// tried first, then heading blocks; only when neither yields a candidate does
// the link-pattern fallback run. A "no open positions" marker on a page with
// no accepted job yields an empty result.
func ParsePage(page []byte, pageURL string) ([]domain.FetchedJob, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style, noscript, svg").Remove()

	acc := newAccumulator(pageURL)
	candidates := 0

	doc.Find(containerSelectors).Each(func(_ int, s *goquery.Selection) {
		candidates++
		acc.add(fromContainer(s, pageURL))
	})

	if candidates == 0 {
		content := doc.Find("main, article, [role='main']").First()
		if content.Length() == 0 {
			content = doc.Find("body")
		}
		content.Find("h2, h3, h4").Each(func(_ int, h *goquery.Selection) {
			if h.Closest("nav, footer, header, form, aside").Length() > 0 {
				return
			}
			candidates++
			acc.add(fromHeading(h, pageURL))
		})
	}

	if len(acc.jobs) == 0 && hasNoOpenings(doc.Find("body").Text()) {
		return nil, nil
	}
	if candidates == 0 {
		for _, j := range extractByPattern(string(page), pageURL) {
			acc.add(j, true)
		}
	}
	return acc.jobs, nil
}

// accumulator drops repeats of one posting: same id, same job URL, or the
// same title up to gender tags, punctuation and case at the same location.
type accumulator struct {
	page   string
	ids    map[string]bool
	urls   map[string]bool
	titles map[string]bool
	jobs   []domain.FetchedJob
}

func newAccumulator(pageURL string) *accumulator {
	return &accumulator{
		page:   util.CanonicalizeURL(pageURL),
		ids:    map[string]bool{},
		urls:   map[string]bool{},
		titles: map[string]bool{},
	}
}

func (a *accumulator) add(j domain.FetchedJob, ok bool) {
	if !ok || j.ExternalID == "" || a.ids[j.ExternalID] {
		return
	}
	u := util.CanonicalizeURL(j.URL)
	if u == a.page {
		u = ""
	}
	if u != "" && a.urls[u] {
		return
	}
	tk := titleKey(j.Title) + "|" + strings.ToLower(j.Location)
	if a.titles[tk] {
		return
	}
	a.ids[j.ExternalID] = true
	if u != "" {
		a.urls[u] = true
	}
	a.titles[tk] = true
	a.jobs = append(a.jobs, j)
}

var reGenderTag = regexp.MustCompile(`(?i)\(\s*(?:[mwfdx]\s*(?:/\s*[mwfdx]\s*){1,3}|all genders|gn\*?)\)`)

// titleKey compares titles without gender tags, punctuation or case.
func titleKey(title string) string {
	return util.Slugify(reGenderTag.ReplaceAllString(title, " "))
}

func fromContainer(s *goquery.Selection, pageURL string) (domain.FetchedJob, bool) {
	titleSel := s.Find("h1, h2, h3, h4, .title, .job-title, [itemprop='title']").First()
	link := s.Find("a[href]").First()
	if titleSel.Length() == 0 {
		titleSel = link
	}
	title := util.CleanText(titleSel.Text())
	if !acceptTitle(title, true) {
		return domain.FetchedJob{}, false
	}

	href, _ := link.Attr("href")
	body := s.Clone()
	body.Find("h1, h2, h3, h4, .title, .job-title, [itemprop='title']").First().Remove()
	descHTML, _ := body.Html()

	id := util.Slugify(title)
	if v, ok := s.Attr("data-job-id"); ok && strings.TrimSpace(v) != "" {
		id = strings.TrimSpace(v)
	}
	return build(id, title, util.FindLocation(s), strings.TrimSpace(descHTML), util.ResolveURL(pageURL, href), pageURL), true
}

// fromHeading takes a heading plus its following siblings up to the next
// heading of the same or a higher level.
func fromHeading(h *goquery.Selection, pageURL string) (domain.FetchedJob, bool) {
	title := util.CleanText(h.Text())
	level := goquery.NodeName(h)

	var parts []string
	var href string
	if a := h.Find("a[href]").First(); a.Length() > 0 {
		href, _ = a.Attr("href")
	}
	for sib := h.Next(); sib.Length() > 0; sib = sib.Next() {
		name := goquery.NodeName(sib)
		if isHeading(name) && name <= level {
			break
		}
		if href == "" {
			if a := sib.Find("a[href]").First(); a.Length() > 0 {
				href, _ = a.Attr("href")
			} else if goquery.NodeName(sib) == "a" {
				href, _ = sib.Attr("href")
			}
		}
		if frag, err := goquery.OuterHtml(sib); err == nil {
			parts = append(parts, frag)
		}
	}
	descHTML := strings.Join(parts, "\n")
	descText := util.HTMLToText(descHTML)

	if !acceptTitle(title, len(descText) >= minBlockLen && containsAny(strings.ToLower(descText), bodyMarkers)) {
		return domain.FetchedJob{}, false
	}
	loc := util.NormalizeLocation(util.ExtractLocationFromLabeledText(descText))
	return build(util.Slugify(title), title, loc, descHTML, util.ResolveURL(pageURL, href), pageURL), true
}

func isHeading(name string) bool {
	return len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6'
}

// acceptTitle applies the noise filter, length bounds and the marker/size
// heuristic. longBody stands in for a marker when the block is substantial.
func acceptTitle(title string, longBody bool) bool {
	if len(title) < minTitleLen || len(title) > maxTitleLen {
		return false
	}
	low := strings.ToLower(title)
	for _, n := range noiseHeadings {
		if low == n || strings.HasPrefix(low, n+" ") || strings.HasPrefix(low, n+":") {
			return false
		}
	}
	return longBody || containsAny(low, jobMarkers)
}

func hasNoOpenings(text string) bool {
	return containsAny(strings.ToLower(util.CleanText(text)), noOpeningMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, m := range subs {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func build(id, title, loc, descHTML, jobURL, pageURL string) domain.FetchedJob {
	text := util.HTMLToText(descHTML)
	return domain.FetchedJob{
		ExternalID:      id,
		Title:           title,
		Location:        loc,
		DescriptionHTML: descHTML,
		DescriptionText: text,
		URL:             util.FirstNonEmpty(jobURL, pageURL),
		WorkplaceType:   util.DefaultWorkplaceRules.Classify(loc, title),
	}
}

var reJobLink = regexp.MustCompile(`(?is)<a[^>]+href\s*=\s*["']([^"']*(?:/jobs?/|/careers?/|/positions?/|/vacanc(?:y|ies)/|/stellen/|/openings?/)[^"']*)["'][^>]*>(.*?)</a>`)

var reInnerTag = regexp.MustCompile(`<[^>]+>`)

// extractByPattern is the last resort for pages without usable structure:
// anchors whose href looks like a job detail path.
func extractByPattern(page, pageURL string) []domain.FetchedJob {
	var out []domain.FetchedJob
	for _, m := range reJobLink.FindAllStringSubmatch(page, -1) {
		title := util.CleanText(html.UnescapeString(reInnerTag.ReplaceAllString(m[2], " ")))
		if !acceptTitle(title, false) {
			continue
		}
		jobURL := util.ResolveURL(pageURL, html.UnescapeString(m[1]))
		if jobURL == "" || util.CanonicalizeURL(jobURL) == util.CanonicalizeURL(pageURL) {
			continue
		}
		out = append(out, build(util.Slugify(title), title, "", "", jobURL, pageURL))
	}
	return out
}
