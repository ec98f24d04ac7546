package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobfeed-engine/internal/domain"
)

const jobCols = `id, owner_id, source_id, external_id, title, location, department,
  description_html, description_text, url, workplace_type, posted_at, external_updated_at,
  first_seen_at, last_seen_at, removed_at, status`

func scanJob(sc interface{ Scan(...any) error }) (domain.Job, error) {
	var j domain.Job
	var wt, status, firstSeen, lastSeen string
	var posted, extUpdated, removed sql.NullString
	if err := sc.Scan(&j.ID, &j.OwnerID, &j.SourceID, &j.ExternalID, &j.Title, &j.Location, &j.Department,
		&j.DescriptionHTML, &j.DescriptionText, &j.URL, &wt, &posted, &extUpdated,
		&firstSeen, &lastSeen, &removed, &status); err != nil {
		return j, err
	}
	j.WorkplaceType = domain.WorkplaceType(wt)
	j.Status = domain.JobStatus(status)
	j.PostedAt = parseTimePtr(posted)
	j.ExternalUpdatedAt = parseTimePtr(extUpdated)
	j.FirstSeenAt = parseTime(firstSeen)
	j.LastSeenAt = parseTime(lastSeen)
	j.RemovedAt = parseTimePtr(removed)
	return j, nil
}

func queryJobs(ctx context.Context, q Querier, query string, args ...any) ([]domain.Job, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobsForSource returns every stored job of one source, in any status.
func ListJobsForSource(ctx context.Context, q Querier, sourceID int64) ([]domain.Job, error) {
	return queryJobs(ctx, q, `SELECT `+jobCols+` FROM jobs WHERE source_id = ? ORDER BY id;`, sourceID)
}

// GetActiveJobs is the read path for an owner's public listing.
func GetActiveJobs(ctx context.Context, q Querier, ownerID int64) ([]domain.Job, error) {
	return queryJobs(ctx, q, `SELECT `+jobCols+` FROM jobs
WHERE owner_id = ? AND status = 'active'
ORDER BY COALESCE(posted_at, first_seen_at) DESC, id DESC;`, ownerID)
}

type ListJobsOpts struct {
	OwnerID int64
	Status  domain.JobStatus // empty = any
	Limit   int
}

func ListJobs(ctx context.Context, q Querier, opts ListJobsOpts) ([]domain.Job, error) {
	if opts.Limit <= 0 || opts.Limit > 2000 {
		opts.Limit = 500
	}
	query := `SELECT ` + jobCols + ` FROM jobs WHERE 1=1`
	var args []any
	if opts.OwnerID > 0 {
		query += ` AND owner_id = ?`
		args = append(args, opts.OwnerID)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY last_seen_at DESC, id DESC LIMIT ?;`
	args = append(args, opts.Limit)
	return queryJobs(ctx, q, query, args...)
}

func GetJob(ctx context.Context, q Querier, id int64) (domain.Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return j, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return j, err
}

func InsertJob(ctx context.Context, q Querier, j domain.Job) (int64, error) {
	res, err := q.ExecContext(ctx, `
INSERT INTO jobs (owner_id, source_id, external_id, title, location, department,
  description_html, description_text, url, workplace_type, posted_at, external_updated_at,
  first_seen_at, last_seen_at, removed_at, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		j.OwnerID, j.SourceID, j.ExternalID, j.Title, j.Location, j.Department,
		j.DescriptionHTML, j.DescriptionText, j.URL, string(j.WorkplaceType),
		fmtTimePtr(j.PostedAt), fmtTimePtr(j.ExternalUpdatedAt),
		fmtTime(j.FirstSeenAt), fmtTime(j.LastSeenAt), fmtTimePtr(j.RemovedAt), string(j.Status))
	if err != nil {
		return 0, fmt.Errorf("insert job %q: %w", j.ExternalID, err)
	}
	return res.LastInsertId()
}

// UpdateJob rewrites every mutable column of an existing row.
func UpdateJob(ctx context.Context, q Querier, j domain.Job) error {
	_, err := q.ExecContext(ctx, `
UPDATE jobs SET title = ?, location = ?, department = ?, description_html = ?, description_text = ?,
  url = ?, workplace_type = ?, posted_at = ?, external_updated_at = ?,
  last_seen_at = ?, removed_at = ?, status = ?
WHERE id = ?;`,
		j.Title, j.Location, j.Department, j.DescriptionHTML, j.DescriptionText,
		j.URL, string(j.WorkplaceType), fmtTimePtr(j.PostedAt), fmtTimePtr(j.ExternalUpdatedAt),
		fmtTime(j.LastSeenAt), fmtTimePtr(j.RemovedAt), string(j.Status), j.ID)
	if err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	return nil
}

func TouchJob(ctx context.Context, q Querier, id int64, seen time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE jobs SET last_seen_at = ? WHERE id = ?;`, fmtTime(seen), id)
	if err != nil {
		return fmt.Errorf("touch job %d: %w", id, err)
	}
	return nil
}

func MarkRemoved(ctx context.Context, q Querier, id int64, at time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE jobs SET status = 'removed', removed_at = ? WHERE id = ?;`, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("mark removed %d: %w", id, err)
	}
	return nil
}

func CountActive(ctx context.Context, q Querier, sourceID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE source_id = ? AND status = 'active';`, sourceID).Scan(&n)
	return n, err
}

// SetJobStatus is the manual curation path (hide, unhide, filled, expired).
// Returning to active clears removed_at; moving to removed stamps it.
func SetJobStatus(ctx context.Context, q Querier, id int64, status domain.JobStatus, now time.Time) (domain.Job, error) {
	j, err := GetJob(ctx, q, id)
	if err != nil {
		return j, err
	}
	j.Status = status
	switch status {
	case domain.StatusActive:
		j.RemovedAt = nil
	case domain.StatusRemoved:
		if j.RemovedAt == nil {
			t := now.UTC()
			j.RemovedAt = &t
		}
	}
	_, err = q.ExecContext(ctx, `UPDATE jobs SET status = ?, removed_at = ? WHERE id = ?;`,
		string(j.Status), fmtTimePtr(j.RemovedAt), id)
	if err != nil {
		return j, fmt.Errorf("set job status %d: %w", id, err)
	}
	return j, nil
}

// PurgeRemovedJobs deletes jobs that have been removed for longer than age.
func PurgeRemovedJobs(ctx context.Context, q Querier, age time.Duration, now time.Time) (deleted int64, err error) {
	res, err := q.ExecContext(ctx, `
DELETE FROM jobs
WHERE status = 'removed' AND removed_at IS NOT NULL AND removed_at < ?;`, fmtTime(now.Add(-age)))
	if err != nil {
		return 0, fmt.Errorf("purge removed jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
