package scrape

import (
	"time"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/ingest/ats"
	"jobfeed-engine/internal/scrape/ashby"
	"jobfeed-engine/internal/scrape/breezy"
	"jobfeed-engine/internal/scrape/careerpage"
	"jobfeed-engine/internal/scrape/greenhouse"
	"jobfeed-engine/internal/scrape/homerun"
	"jobfeed-engine/internal/scrape/join"
	"jobfeed-engine/internal/scrape/lever"
	"jobfeed-engine/internal/scrape/personio"
	"jobfeed-engine/internal/scrape/recruitee"
	"jobfeed-engine/internal/scrape/smartrecruiters"
	"jobfeed-engine/internal/scrape/teamtailor"
	"jobfeed-engine/internal/scrape/util"
	"jobfeed-engine/internal/scrape/workable"
	"jobfeed-engine/internal/scrape/workday"
	"jobfeed-engine/internal/secrets"
)

type Deps struct {
	HTTP *util.Client
	// TeamtailorToken defaults to the OS keychain.
	TeamtailorToken teamtailor.TokenFunc
}

// NewHTTPClient builds the shared outbound client from config.
func NewHTTPClient(cfg config.HTTPConfig) *util.Client {
	limiter := util.NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst)
	return util.NewClient(time.Duration(cfg.TimeoutSeconds)*time.Second, limiter, cfg.UserAgent)
}

// NewRegistry wires every connector. Built once at process start.
func NewRegistry(deps Deps) *ats.Registry {
	hc := deps.HTTP
	if hc == nil {
		hc = util.NewClient(0, nil, "")
	}
	tok := deps.TeamtailorToken
	if tok == nil {
		tok = func(company string) (string, error) {
			return secrets.GetSourceToken(teamtailor.Type, company)
		}
	}

	return ats.NewRegistry(
		greenhouse.New(hc),
		lever.New(hc),
		ashby.New(hc),
		smartrecruiters.New(hc),
		workable.New(hc),
		personio.New(hc),
		recruitee.New(hc),
		breezy.New(hc),
		workday.New(hc),
		teamtailor.New(hc, tok),
		join.New(hc),
		homerun.New(hc),
		careerpage.New(hc),
	)
}
