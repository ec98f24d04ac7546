package util

import (
	"strings"

	"jobfeed-engine/internal/domain"
)

// WorkplaceRule maps a lowercase substring onto a workplace type.
type WorkplaceRule struct {
	Contains string
	Type     domain.WorkplaceType
}

// WorkplaceRules is evaluated in order; the first rule whose substring occurs wins.
type WorkplaceRules []WorkplaceRule

func (rs WorkplaceRules) Classify(parts ...string) domain.WorkplaceType {
	blob := strings.ToLower(strings.Join(NonEmpty(parts...), " "))
	if blob == "" {
		return domain.WorkplaceUnknown
	}
	for _, r := range rs {
		if strings.Contains(blob, r.Contains) {
			return r.Type
		}
	}
	return domain.WorkplaceUnknown
}

// DefaultWorkplaceRules covers free-text location strings.
var DefaultWorkplaceRules = WorkplaceRules{
	{"hybrid", domain.WorkplaceHybrid},
	{"remote", domain.WorkplaceRemote},
	{"work from home", domain.WorkplaceRemote},
	{"on-site", domain.WorkplaceOnsite},
	{"onsite", domain.WorkplaceOnsite},
	{"on site", domain.WorkplaceOnsite},
	{"in-office", domain.WorkplaceOnsite},
	{"in office", domain.WorkplaceOnsite},
}
