package ats

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"jobfeed-engine/internal/domain"
)

// ErrInvalidIdentifier marks a source identifier that a connector cannot parse.
// It is always reported before any network call.
var ErrInvalidIdentifier = errors.New("invalid source identifier")

// Connector is implemented once per hiring platform.
//
// FetchJobs returns the full current listing for one source. A failing
// per-job detail request degrades that job to listing data; only a failing
// listing request (or an unparseable listing payload) is returned as an error.
type Connector interface {
	Type() string
	FetchJobs(ctx context.Context, src domain.SourceConfig) ([]domain.FetchedJob, error)
	ValidateConfig(ctx context.Context, src domain.SourceConfig) ValidationResult
}

// DetailFetcher is implemented by connectors that can load one job on its own.
// The bool is false when the job is unknown or the platform could not be reached.
type DetailFetcher interface {
	FetchJobDetails(ctx context.Context, externalID string, src domain.SourceConfig) (domain.FetchedJob, bool)
}

type ValidationResult struct {
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
	JobCount int    `json:"jobCount"`
}

func Invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

func InvalidIdentifier(sourceType, detail string) error {
	return fmt.Errorf("%w for %s: %s", ErrInvalidIdentifier, sourceType, detail)
}

// ValidateByFetch is the shared ValidateConfig flow: parse first, then do one
// full fetch and report the job count. It never panics.
func ValidateByFetch(ctx context.Context, c Connector, src domain.SourceConfig, parse func(string) error) (res ValidationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("level=error msg=\"validate panic\" type=%s identifier=%q err=%v", c.Type(), src.Identifier, rec)
			res = Invalid("%s: unexpected error while validating source", c.Type())
		}
	}()

	if strings.TrimSpace(src.Identifier) == "" {
		return Invalid("%s: source identifier is required", c.Type())
	}
	if parse != nil {
		if err := parse(src.Identifier); err != nil {
			return Invalid("%v", err)
		}
	}

	jobs, err := c.FetchJobs(ctx, src)
	if err != nil {
		return Invalid("%s: could not load jobs: %v", c.Type(), err)
	}
	return ValidationResult{Valid: true, JobCount: len(jobs)}
}
