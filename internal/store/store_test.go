package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"jobfeed-engine/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenFileUsesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.Pool.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := db.Pool.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		t.Fatalf("foreign_keys = %d, %v", fk, err)
	}
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func mustSource(t *testing.T, db *DB, owner int64, typ, ident string) domain.ImportSource {
	t.Helper()
	s, err := CreateSource(context.Background(), db.Pool, domain.SourceConfig{OwnerID: owner, Type: typ, Identifier: ident}, t0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	return s
}

func mustJob(t *testing.T, db *DB, src domain.ImportSource, ext string, status domain.JobStatus) int64 {
	t.Helper()
	id, err := InsertJob(context.Background(), db.Pool, domain.Job{
		OwnerID: src.OwnerID, SourceID: src.ID, ExternalID: ext, Title: "Job " + ext,
		FirstSeenAt: t0, LastSeenAt: t0, Status: status,
	})
	if err != nil {
		t.Fatalf("insert job: %v", err)
	}
	return id
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db.Pool); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var v int
	if err := db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil || v != schemaVersion {
		t.Fatalf("user_version = %d err=%v", v, err)
	}
}

func TestSourceLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := mustSource(t, db, 7, "greenhouse", "acme")
	if s.FetchStatus != domain.FetchPending {
		t.Fatalf("status = %q", s.FetchStatus)
	}

	_, err := CreateSource(ctx, db.Pool, s.SourceConfig, t0)
	if !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("expected ErrDuplicateSource, got %v", err)
	}

	if err := RecordFetch(ctx, db.Pool, s.ID, domain.FetchError, "status 404", t0.Add(time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := GetSource(ctx, db.Pool, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FetchStatus != domain.FetchError || got.LastFetchError != "status 404" {
		t.Fatalf("got %+v", got)
	}
	if got.LastFetchedAt == nil || !got.LastFetchedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("last fetched = %v", got.LastFetchedAt)
	}

	found, ok, err := FindSource(ctx, db.Pool, s.SourceConfig)
	if err != nil || !ok || found.ID != s.ID {
		t.Fatalf("find: %+v %v %v", found, ok, err)
	}

	mustSource(t, db, 8, "lever", "other")
	all, _ := ListSources(ctx, db.Pool, 0)
	mine, _ := ListSources(ctx, db.Pool, 7)
	if len(all) != 2 || len(mine) != 1 {
		t.Fatalf("all=%d mine=%d", len(all), len(mine))
	}
}

func TestDeleteSourceCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := mustSource(t, db, 1, "lever", "acme")
	jobID := mustJob(t, db, s, "a", domain.StatusActive)

	ids, err := SeedTechnologies(ctx, db.Pool, []domain.Technology{{Slug: "go", Name: "Go"}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := ReplaceMentions(ctx, db.Pool, jobID, []domain.TechnologyMention{{TechnologyID: ids["go"], Confidence: 50}}, t0); err != nil {
		t.Fatalf("mentions: %v", err)
	}

	if err := DeleteSource(ctx, db.Pool, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetJob(ctx, db.Pool, jobID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("job survived delete: %v", err)
	}
	var n int
	_ = db.Pool.QueryRow(`SELECT COUNT(*) FROM technology_mentions;`).Scan(&n)
	if n != 0 {
		t.Fatalf("mentions survived delete: %d", n)
	}
	if err := DeleteSource(ctx, db.Pool, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestJobRoundTripAndActiveReadPath(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := mustSource(t, db, 3, "ashby", "acme")

	posted := t0.Add(-48 * time.Hour)
	id, err := InsertJob(ctx, db.Pool, domain.Job{
		OwnerID: 3, SourceID: s.ID, ExternalID: "x1", Title: "Go Engineer",
		Location: "Berlin", WorkplaceType: domain.WorkplaceHybrid, PostedAt: &posted,
		FirstSeenAt: t0, LastSeenAt: t0, Status: domain.StatusActive,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	mustJob(t, db, s, "x2", domain.StatusHidden)

	j, err := GetJob(ctx, db.Pool, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Title != "Go Engineer" || j.WorkplaceType != domain.WorkplaceHybrid || j.PostedAt == nil || !j.PostedAt.Equal(posted) {
		t.Fatalf("round trip: %+v", j)
	}
	if j.RemovedAt != nil || j.ExternalUpdatedAt != nil {
		t.Fatalf("unexpected timestamps: %+v", j)
	}

	active, err := GetActiveJobs(ctx, db.Pool, 3)
	if err != nil || len(active) != 1 || active[0].ID != id {
		t.Fatalf("active = %+v err=%v", active, err)
	}
	if n, _ := CountActive(ctx, db.Pool, s.ID); n != 1 {
		t.Fatalf("count active = %d", n)
	}

	hidden, _ := ListJobs(ctx, db.Pool, ListJobsOpts{OwnerID: 3, Status: domain.StatusHidden})
	if len(hidden) != 1 || hidden[0].ExternalID != "x2" {
		t.Fatalf("hidden = %+v", hidden)
	}
}

func TestUniqueExternalIDPerSource(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := mustSource(t, db, 1, "lever", "acme")
	mustJob(t, db, s, "dup", domain.StatusActive)
	_, err := InsertJob(ctx, db.Pool, domain.Job{OwnerID: 1, SourceID: s.ID, ExternalID: "dup", Title: "again",
		FirstSeenAt: t0, LastSeenAt: t0, Status: domain.StatusActive})
	if err == nil {
		t.Fatal("expected unique violation")
	}
}

func TestSetJobStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := mustSource(t, db, 1, "lever", "acme")
	id := mustJob(t, db, s, "a", domain.StatusActive)

	j, err := SetJobStatus(ctx, db.Pool, id, domain.StatusRemoved, t0)
	if err != nil || j.RemovedAt == nil {
		t.Fatalf("removed: %+v %v", j, err)
	}
	j, err = SetJobStatus(ctx, db.Pool, id, domain.StatusActive, t0)
	if err != nil || j.RemovedAt != nil {
		t.Fatalf("reactivated: %+v %v", j, err)
	}
	got, _ := GetJob(ctx, db.Pool, id)
	if got.Status != domain.StatusActive || got.RemovedAt != nil {
		t.Fatalf("stored = %+v", got)
	}
	if _, err := SetJobStatus(ctx, db.Pool, 999, domain.StatusHidden, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing job: %v", err)
	}
}

func TestPurgeRemovedJobs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := mustSource(t, db, 1, "lever", "acme")
	old := mustJob(t, db, s, "old", domain.StatusActive)
	recent := mustJob(t, db, s, "recent", domain.StatusActive)
	_ = MarkRemoved(ctx, db.Pool, old, t0.Add(-100*24*time.Hour))
	_ = MarkRemoved(ctx, db.Pool, recent, t0.Add(-time.Hour))

	n, err := PurgeRemovedJobs(ctx, db.Pool, 90*24*time.Hour, t0)
	if err != nil || n != 1 {
		t.Fatalf("purged %d err=%v", n, err)
	}
	if _, err := GetJob(ctx, db.Pool, recent); err != nil {
		t.Fatalf("recent job purged: %v", err)
	}
}

func TestReplaceMentionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := mustSource(t, db, 1, "lever", "acme")
	jobID := mustJob(t, db, s, "a", domain.StatusActive)

	ids, err := SeedTechnologies(ctx, db.Pool, []domain.Technology{
		{Slug: "go", Name: "Go", Aliases: []string{"golang"}},
		{Slug: "postgresql", Name: "PostgreSQL", Aliases: []string{"postgres"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// reseeding keeps ids stable
	again, _ := SeedTechnologies(ctx, db.Pool, []domain.Technology{{Slug: "go", Name: "Go"}})
	if again["go"] != ids["go"] {
		t.Fatalf("id changed on reseed: %d vs %d", again["go"], ids["go"])
	}

	ms := []domain.TechnologyMention{
		{TechnologyID: ids["go"], Confidence: 80, Context: "Go"},
		{TechnologyID: ids["postgresql"], Confidence: 55, Context: "postgres"},
	}
	for i := 0; i < 2; i++ {
		err := db.InTx(ctx, func(tx *sql.Tx) error { return ReplaceMentions(ctx, tx, jobID, ms, t0) })
		if err != nil {
			t.Fatalf("replace #%d: %v", i, err)
		}
	}
	got, err := ListMentionsForJob(ctx, db.Pool, jobID)
	if err != nil || len(got) != 2 {
		t.Fatalf("mentions = %+v err=%v", got, err)
	}
	if got[0].Technology != "Go" || got[0].Confidence != 80 {
		t.Fatalf("ordering: %+v", got)
	}

	techs, _ := ListTechnologies(ctx, db.Pool)
	if len(techs) != 2 {
		t.Fatalf("technologies = %+v", techs)
	}
}
