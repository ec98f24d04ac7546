package techextract

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"jobfeed-engine/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed technologies.yml
var aliasTable []byte

const (
	baseConfidence  = 50
	exactCaseBonus  = 20
	repeatBonus     = 5
	maxRepeatBonus  = 20
	proximityBonus  = 10
	proximityWindow = 200
	contextRadius   = 60
	maxConfidence   = 100
	minTermLen      = 2
)

var sectionMarkers = []string{"requirements", "qualifications", "experience with"}

type aliasFile struct {
	Technologies []domain.Technology `yaml:"technologies"`
}

// LoadTable parses the embedded alias table.
func LoadTable() ([]domain.Technology, error) {
	return ParseTable(aliasTable)
}

func ParseTable(b []byte) ([]domain.Technology, error) {
	var f aliasFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("technology table: %w", err)
	}
	seen := map[string]bool{}
	for i, t := range f.Technologies {
		if t.Slug == "" || t.Name == "" {
			return nil, fmt.Errorf("technology table: entry %d needs slug and name", i)
		}
		if seen[t.Slug] {
			return nil, fmt.Errorf("technology table: duplicate slug %q", t.Slug)
		}
		seen[t.Slug] = true
		for _, a := range t.Aliases {
			if len(strings.TrimSpace(a)) < minTermLen {
				return nil, fmt.Errorf("technology table: %s alias %q too short", t.Slug, a)
			}
		}
	}
	return f.Technologies, nil
}

type term struct {
	text string
	re   *regexp.Regexp
}

type entry struct {
	tech  domain.Technology
	terms []term
}

// Match is one technology found in a text.
type Match struct {
	Technology domain.Technology
	Term       string
	Confidence int
	Context    string
}

// Matcher holds the compiled alias table. It is safe for concurrent use.
type Matcher struct {
	entries []entry
}

func NewMatcher(techs []domain.Technology) *Matcher {
	m := &Matcher{entries: make([]entry, 0, len(techs))}
	for _, t := range techs {
		e := entry{tech: t}
		for _, s := range append([]string{t.Name}, t.Aliases...) {
			s = strings.TrimSpace(s)
			if len(s) < minTermLen {
				continue
			}
			e.terms = append(e.terms, term{text: s, re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(s))})
		}
		m.entries = append(m.entries, e)
	}
	return m
}

// Match scans text and returns at most one match per technology, highest
// confidence first.
func (m *Matcher) Match(text string) []Match {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	markers := markerPositions(text)

	var out []Match
	for _, e := range m.entries {
		for _, t := range e.terms {
			hits := boundedHits(text, t.re)
			if len(hits) == 0 {
				continue
			}
			out = append(out, Match{
				Technology: e.tech,
				Term:       t.text,
				Confidence: score(text, t.text, hits, markers),
				Context:    snippet(text, hits[0][0], hits[0][1]),
			})
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// boundedHits returns occurrences not embedded in a longer token. Letters,
// digits and underscore bound on both sides; '+' and '#' also bound on the
// right so "C" never matches inside "C++".
func boundedHits(text string, re *regexp.Regexp) [][]int {
	var out [][]int
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:loc[0]])
			if isWordRune(r) {
				continue
			}
		}
		if loc[1] < len(text) {
			r, _ := utf8.DecodeRuneInString(text[loc[1]:])
			if isWordRune(r) || r == '+' || r == '#' {
				continue
			}
		}
		out = append(out, loc)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func score(text, termText string, hits [][]int, markers []int) int {
	c := baseConfidence
	for _, h := range hits {
		if text[h[0]:h[1]] == termText {
			c += exactCaseBonus
			break
		}
	}
	c += min((len(hits)-1)*repeatBonus, maxRepeatBonus)
	if nearMarker(hits[0][0], markers) {
		c += proximityBonus
	}
	return min(c, maxConfidence)
}

func markerPositions(text string) []int {
	low := strings.ToLower(text)
	var out []int
	for _, mk := range sectionMarkers {
		for off := 0; ; {
			i := strings.Index(low[off:], mk)
			if i < 0 {
				break
			}
			out = append(out, off+i)
			off += i + len(mk)
		}
	}
	return out
}

func nearMarker(pos int, markers []int) bool {
	for _, mk := range markers {
		d := pos - mk
		if d < 0 {
			d = -d
		}
		if d <= proximityWindow {
			return true
		}
	}
	return false
}

func snippet(text string, start, end int) string {
	from := max(0, start-contextRadius)
	to := min(len(text), end+contextRadius)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.Join(strings.Fields(text[from:to]), " ")
}
