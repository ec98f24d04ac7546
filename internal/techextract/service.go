package techextract

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"jobfeed-engine/internal/domain"
	"jobfeed-engine/internal/store"
)

// Extractor records technology mentions for stored jobs.
type Extractor struct {
	db      *store.DB
	matcher *Matcher
	now     func() time.Time
}

// New seeds the alias table into the technologies table and compiles it.
func New(ctx context.Context, db *store.DB) (*Extractor, error) {
	techs, err := LoadTable()
	if err != nil {
		return nil, err
	}
	ids, err := store.SeedTechnologies(ctx, db.Pool, techs)
	if err != nil {
		return nil, err
	}
	for i := range techs {
		techs[i].ID = ids[techs[i].Slug]
	}
	return &Extractor{db: db, matcher: NewMatcher(techs), now: time.Now}, nil
}

// JobText is what gets scanned: the title plus the normalized description.
func JobText(j domain.Job) string {
	return strings.TrimSpace(j.Title + "\n\n" + j.DescriptionText)
}

// ExtractForJob replaces the job's mentions with a fresh scan. Running it
// twice on the same text leaves the same rows.
func (x *Extractor) ExtractForJob(ctx context.Context, j domain.Job) (int, error) {
	matches := x.matcher.Match(JobText(j))
	ms := make([]domain.TechnologyMention, 0, len(matches))
	for _, m := range matches {
		ms = append(ms, domain.TechnologyMention{
			JobID:        j.ID,
			TechnologyID: m.Technology.ID,
			Technology:   m.Technology.Name,
			Confidence:   m.Confidence,
			Context:      m.Context,
		})
	}
	err := x.db.InTx(ctx, func(tx *sql.Tx) error {
		return store.ReplaceMentions(ctx, tx, j.ID, ms, x.now())
	})
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

// ExtractForJobs is best-effort: a failing job is logged and skipped.
func (x *Extractor) ExtractForJobs(ctx context.Context, jobs []domain.Job) int {
	total := 0
	for _, j := range jobs {
		n, err := x.ExtractForJob(ctx, j)
		if err != nil {
			log.Printf("[techextract] job=%d err=%v", j.ID, err)
			continue
		}
		total += n
	}
	return total
}
