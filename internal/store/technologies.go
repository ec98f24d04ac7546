package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobfeed-engine/internal/domain"
)

// SeedTechnologies upserts the alias table by slug and returns slug -> id.
func SeedTechnologies(ctx context.Context, q Querier, techs []domain.Technology) (map[string]int64, error) {
	ids := make(map[string]int64, len(techs))
	for _, t := range techs {
		aliases, err := json.Marshal(t.Aliases)
		if err != nil {
			return nil, err
		}
		if _, err := q.ExecContext(ctx, `
INSERT INTO technologies (slug, name, aliases) VALUES (?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET name = excluded.name, aliases = excluded.aliases;`,
			t.Slug, t.Name, string(aliases)); err != nil {
			return nil, fmt.Errorf("seed technology %q: %w", t.Slug, err)
		}
		var id int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM technologies WHERE slug = ?;`, t.Slug).Scan(&id); err != nil {
			return nil, err
		}
		ids[t.Slug] = id
	}
	return ids, nil
}

func ListTechnologies(ctx context.Context, q Querier) ([]domain.Technology, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, slug, name, aliases FROM technologies ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Technology
	for rows.Next() {
		var t domain.Technology
		var aliases string
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &aliases); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(aliases), &t.Aliases)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReplaceMentions clears a job's mentions and inserts the new set. Run it
// inside a transaction to make re-extraction atomic.
func ReplaceMentions(ctx context.Context, q Querier, jobID int64, ms []domain.TechnologyMention, now time.Time) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM technology_mentions WHERE job_id = ?;`, jobID); err != nil {
		return fmt.Errorf("clear mentions %d: %w", jobID, err)
	}
	for _, m := range ms {
		if _, err := q.ExecContext(ctx, `
INSERT INTO technology_mentions (job_id, technology_id, confidence, context, created_at)
VALUES (?, ?, ?, ?, ?);`, jobID, m.TechnologyID, m.Confidence, m.Context, fmtTime(now)); err != nil {
			return fmt.Errorf("insert mention %d/%d: %w", jobID, m.TechnologyID, err)
		}
	}
	return nil
}

func ListMentionsForJob(ctx context.Context, q Querier, jobID int64) ([]domain.TechnologyMention, error) {
	rows, err := q.QueryContext(ctx, `
SELECT m.job_id, m.technology_id, t.name, m.confidence, m.context, m.created_at
FROM technology_mentions m
JOIN technologies t ON t.id = m.technology_id
WHERE m.job_id = ?
ORDER BY m.confidence DESC, t.name;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TechnologyMention
	for rows.Next() {
		var m domain.TechnologyMention
		var created string
		if err := rows.Scan(&m.JobID, &m.TechnologyID, &m.Technology, &m.Confidence, &m.Context, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
