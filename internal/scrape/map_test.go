package scrape

import (
	"errors"
	"reflect"
	"testing"

	"jobfeed-engine/internal/config"
	"jobfeed-engine/internal/ingest/ats"
)

func TestNewRegistryWiresEveryConnector(t *testing.T) {
	reg := NewRegistry(Deps{})
	want := []string{
		"ashby", "breezy", "careerpage", "greenhouse", "homerun", "join", "lever",
		"personio", "recruitee", "smartrecruiters", "teamtailor", "workable", "workday",
	}
	if got := reg.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Types() = %v", got)
	}
	for _, typ := range want {
		c, err := reg.Resolve(typ)
		if err != nil || c.Type() != typ {
			t.Fatalf("Resolve(%q) = %v, %v", typ, c, err)
		}
	}
	if _, err := reg.Resolve("monster"); !errors.Is(err, ats.ErrUnsupportedSourceType) {
		t.Fatalf("unknown type err = %v", err)
	}
}

func TestDetailFetchers(t *testing.T) {
	reg := NewRegistry(Deps{})
	for _, typ := range []string{"greenhouse", "lever", "smartrecruiters", "workable"} {
		c, _ := reg.Resolve(typ)
		if _, ok := c.(ats.DetailFetcher); !ok {
			t.Errorf("%s does not fetch single jobs", typ)
		}
	}
}

func TestNewHTTPClient(t *testing.T) {
	hc := NewHTTPClient(config.HTTPConfig{TimeoutSeconds: 7, RequestsPerSecond: 2, Burst: 1, UserAgent: "jobfeed-test"})
	if hc.HC.Timeout.Seconds() != 7 || hc.UserAgent != "jobfeed-test" || hc.Limiter == nil {
		t.Fatalf("client %+v", hc)
	}
}
