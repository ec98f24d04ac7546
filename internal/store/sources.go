package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobfeed-engine/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateSource = errors.New("source already exists")
)

const sourceCols = `id, owner_id, source_type, source_identifier, source_url,
  last_fetched_at, fetch_status, last_fetch_error, created_at`

func scanSource(sc interface{ Scan(...any) error }) (domain.ImportSource, error) {
	var s domain.ImportSource
	var lastFetched sql.NullString
	var status, created string
	if err := sc.Scan(&s.ID, &s.OwnerID, &s.Type, &s.Identifier, &s.URL,
		&lastFetched, &status, &s.LastFetchError, &created); err != nil {
		return s, err
	}
	s.LastFetchedAt = parseTimePtr(lastFetched)
	s.FetchStatus = domain.FetchStatus(status)
	s.CreatedAt = parseTime(created)
	return s, nil
}

func CreateSource(ctx context.Context, q Querier, cfg domain.SourceConfig, now time.Time) (domain.ImportSource, error) {
	res, err := q.ExecContext(ctx, `
INSERT INTO import_sources (owner_id, source_type, source_identifier, source_url, fetch_status, created_at)
VALUES (?, ?, ?, ?, ?, ?);`,
		cfg.OwnerID, cfg.Type, cfg.Identifier, cfg.URL, string(domain.FetchPending), fmtTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ImportSource{}, fmt.Errorf("%w: %s %q for owner %d", ErrDuplicateSource, cfg.Type, cfg.Identifier, cfg.OwnerID)
		}
		return domain.ImportSource{}, fmt.Errorf("insert source: %w", err)
	}
	id, _ := res.LastInsertId()
	return domain.ImportSource{
		ID:           id,
		SourceConfig: cfg,
		FetchStatus:  domain.FetchPending,
		CreatedAt:    now.UTC(),
	}, nil
}

func GetSource(ctx context.Context, q Querier, id int64) (domain.ImportSource, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sourceCols+` FROM import_sources WHERE id = ?;`, id)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	return s, err
}

// FindSource looks a source up by its natural key.
func FindSource(ctx context.Context, q Querier, cfg domain.SourceConfig) (domain.ImportSource, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sourceCols+` FROM import_sources
WHERE owner_id = ? AND source_type = ? AND source_identifier = ?;`, cfg.OwnerID, cfg.Type, cfg.Identifier)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, false, nil
	}
	return s, err == nil, err
}

// ListSources returns every source, or one owner's when ownerID > 0.
func ListSources(ctx context.Context, q Querier, ownerID int64) ([]domain.ImportSource, error) {
	query := `SELECT ` + sourceCols + ` FROM import_sources`
	var args []any
	if ownerID > 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY id;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ImportSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSource removes a source; its jobs and their mentions cascade.
func DeleteSource(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM import_sources WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	return nil
}

// RecordFetch stores the outcome of one sync run on the source row.
func RecordFetch(ctx context.Context, q Querier, id int64, status domain.FetchStatus, fetchErr string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
UPDATE import_sources
SET last_fetched_at = ?, fetch_status = ?, last_fetch_error = ?
WHERE id = ?;`, fmtTime(at), string(status), fetchErr, id)
	if err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}
	return nil
}
