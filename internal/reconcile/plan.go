package reconcile

import (
	"strings"
	"time"

	"jobfeed-engine/internal/domain"
)

// Changeset is the diff between one fetch and the stored jobs of a source.
type Changeset struct {
	Inserts       []domain.Job
	Updates       []domain.Job // active, at least one field changed
	Unchanged     []domain.Job // active, only last_seen moves
	Reactivations []domain.Job
	Sticky        []domain.Job // sticky status kept, only last_seen moves
	Removals      []domain.Job
}

// Touched is every job the fetch observed that needs extraction.
func (c Changeset) Touched() []domain.Job {
	out := make([]domain.Job, 0, len(c.Inserts)+len(c.Updates)+len(c.Reactivations))
	out = append(out, c.Inserts...)
	out = append(out, c.Updates...)
	return append(out, c.Reactivations...)
}

// StickySet holds statuses that a reappearing job keeps. Hidden is always in it.
type StickySet map[domain.JobStatus]bool

func DefaultSticky() StickySet { return StickySet{domain.StatusHidden: true} }

// ParseSticky adds the configured statuses to the default set. Active and
// removed are never sticky.
func ParseSticky(names []string) StickySet {
	s := DefaultSticky()
	for _, n := range names {
		if st, ok := domain.ParseJobStatus(strings.ToLower(strings.TrimSpace(n))); ok &&
			st != domain.StatusActive && st != domain.StatusRemoved {
			s[st] = true
		}
	}
	return s
}

// Dedupe drops fetched jobs with no external id or title and keeps the first
// of any duplicate external id.
func Dedupe(fetched []domain.FetchedJob) []domain.FetchedJob {
	seen := make(map[string]bool, len(fetched))
	out := make([]domain.FetchedJob, 0, len(fetched))
	for _, f := range fetched {
		f.ExternalID = strings.TrimSpace(f.ExternalID)
		f.Title = strings.TrimSpace(f.Title)
		if f.ExternalID == "" || f.Title == "" || seen[f.ExternalID] {
			continue
		}
		seen[f.ExternalID] = true
		out = append(out, f)
	}
	return out
}

// Plan computes the changeset for one run. It is pure: existing and
// fetched are not modified and nothing is read from the clock.
func Plan(src domain.ImportSource, existing []domain.Job, fetched []domain.FetchedJob, now time.Time, sticky StickySet) Changeset {
	now = now.UTC()
	if sticky == nil {
		sticky = DefaultSticky()
	}

	byExt := make(map[string]domain.Job, len(existing))
	for _, j := range existing {
		byExt[j.ExternalID] = j
	}

	var cs Changeset
	observed := make(map[string]bool, len(fetched))
	for _, f := range Dedupe(fetched) {
		observed[f.ExternalID] = true

		stored, ok := byExt[f.ExternalID]
		switch {
		case !ok:
			cs.Inserts = append(cs.Inserts, newJob(src, f, now))

		case sticky[stored.Status]:
			stored.LastSeenAt = now
			cs.Sticky = append(cs.Sticky, stored)

		case stored.Status != domain.StatusActive:
			merged, _ := merge(stored, f)
			merged.Status = domain.StatusActive
			merged.RemovedAt = nil
			merged.LastSeenAt = now
			cs.Reactivations = append(cs.Reactivations, merged)

		default:
			merged, changed := merge(stored, f)
			merged.LastSeenAt = now
			if changed {
				cs.Updates = append(cs.Updates, merged)
			} else {
				cs.Unchanged = append(cs.Unchanged, merged)
			}
		}
	}

	for _, j := range existing {
		if j.Status == domain.StatusActive && !observed[j.ExternalID] {
			j.Status = domain.StatusRemoved
			t := now
			j.RemovedAt = &t
			cs.Removals = append(cs.Removals, j)
		}
	}
	return cs
}

func newJob(src domain.ImportSource, f domain.FetchedJob, now time.Time) domain.Job {
	return domain.Job{
		OwnerID:           src.OwnerID,
		SourceID:          src.ID,
		ExternalID:        f.ExternalID,
		Title:             f.Title,
		Location:          f.Location,
		Department:        f.Department,
		DescriptionHTML:   f.DescriptionHTML,
		DescriptionText:   f.DescriptionText,
		URL:               f.URL,
		WorkplaceType:     f.WorkplaceType,
		PostedAt:          f.PostedAt,
		ExternalUpdatedAt: f.UpdatedAt,
		FirstSeenAt:       now,
		LastSeenAt:        now,
		Status:            domain.StatusActive,
	}
}

// merge overwrites stored fields with non-empty fetched values. Empty
// fetched values mean unknown and never clear a stored value.
func merge(j domain.Job, f domain.FetchedJob) (domain.Job, bool) {
	changed := false
	setStr := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	setTime := func(dst **time.Time, v *time.Time) {
		if v != nil && (*dst == nil || !(*dst).Equal(*v)) {
			t := *v
			*dst = &t
			changed = true
		}
	}

	setStr(&j.Title, f.Title)
	setStr(&j.Location, f.Location)
	setStr(&j.Department, f.Department)
	setStr(&j.DescriptionHTML, f.DescriptionHTML)
	setStr(&j.DescriptionText, f.DescriptionText)
	setStr(&j.URL, f.URL)
	if f.WorkplaceType != domain.WorkplaceUnknown && j.WorkplaceType != f.WorkplaceType {
		j.WorkplaceType = f.WorkplaceType
		changed = true
	}
	setTime(&j.PostedAt, f.PostedAt)
	setTime(&j.ExternalUpdatedAt, f.UpdatedAt)
	return j, changed
}
