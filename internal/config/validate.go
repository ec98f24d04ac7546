package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// statuses a sync may leave untouched when the job reappears in the feed
var stickyAllowed = map[string]bool{"hidden": true, "filled": true, "expired": true}

// NormalizeAndValidate returns a normalized copy plus errors and warnings.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.HTTP.UserAgent = strings.TrimSpace(out.HTTP.UserAgent)

	seen := map[string]bool{}
	var sticky []string
	for _, s := range out.Sync.StickyStatuses {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		sticky = append(sticky, s)
	}
	out.Sync.StickyStatuses = sticky

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.HTTP.TimeoutSeconds <= 0 {
		res.addErr("http.timeout_seconds must be > 0")
	} else if out.HTTP.TimeoutSeconds > 120 {
		res.addWarn("http.timeout_seconds is very high (%d); one slow host can stall a sync run.", out.HTTP.TimeoutSeconds)
	}
	if out.HTTP.RequestsPerSecond < 0 {
		res.addErr("http.requests_per_second must be >= 0 (0 disables limiting)")
	} else if out.HTTP.RequestsPerSecond == 0 {
		res.addWarn("http.requests_per_second is 0; outbound requests are not rate limited.")
	}
	if out.HTTP.Burst < 0 {
		res.addErr("http.burst must be >= 0")
	}

	if out.Sync.IntervalMinutes <= 0 {
		res.addErr("sync.interval_minutes must be > 0")
	} else if out.Sync.IntervalMinutes < 5 {
		res.addWarn("sync.interval_minutes is very low (%d) and may cause rate limits.", out.Sync.IntervalMinutes)
	}
	if out.Sync.RunTimeoutSeconds <= 0 {
		res.addErr("sync.run_timeout_seconds must be > 0")
	} else if out.Sync.RunTimeoutSeconds < out.HTTP.TimeoutSeconds {
		res.addWarn("sync.run_timeout_seconds (%d) is shorter than http.timeout_seconds (%d).",
			out.Sync.RunTimeoutSeconds, out.HTTP.TimeoutSeconds)
	}
	if out.Sync.Concurrency <= 0 {
		res.addErr("sync.concurrency must be > 0")
	} else if out.Sync.Concurrency > 32 {
		res.addWarn("sync.concurrency is high (%d).", out.Sync.Concurrency)
	}
	if out.Sync.RemovedRetentionDays < 0 {
		res.addErr("sync.removed_retention_days must be >= 0 (0 keeps removed jobs)")
	}

	for _, s := range out.Sync.StickyStatuses {
		if s == "active" || s == "removed" {
			res.addErr("sync.sticky_statuses cannot contain %q", s)
		} else if !stickyAllowed[s] {
			res.addErr("sync.sticky_statuses: unknown status %q (allowed: hidden, filled, expired)", s)
		}
	}
	if !seen["hidden"] {
		res.addErr("sync.sticky_statuses must include hidden")
	}

	return out, res
}
