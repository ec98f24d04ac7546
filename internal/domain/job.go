package domain

import "time"

type JobStatus string

const (
	StatusActive  JobStatus = "active"
	StatusRemoved JobStatus = "removed"
	StatusHidden  JobStatus = "hidden"
	StatusFilled  JobStatus = "filled"
	StatusExpired JobStatus = "expired"
)

var jobStatuses = []JobStatus{StatusActive, StatusRemoved, StatusHidden, StatusFilled, StatusExpired}

func ParseJobStatus(s string) (JobStatus, bool) {
	for _, st := range jobStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// WorkplaceType is remote/onsite/hybrid; the zero value means unknown.
type WorkplaceType string

const (
	WorkplaceUnknown WorkplaceType = ""
	WorkplaceRemote  WorkplaceType = "remote"
	WorkplaceOnsite  WorkplaceType = "onsite"
	WorkplaceHybrid  WorkplaceType = "hybrid"
)

// FetchedJob is one posting as returned by a connector. Only ExternalID and
// Title are guaranteed; every other empty field means "unknown".
type FetchedJob struct {
	ExternalID      string
	Title           string
	Location        string
	Department      string
	DescriptionHTML string
	DescriptionText string
	URL             string
	WorkplaceType   WorkplaceType
	PostedAt        *time.Time
	UpdatedAt       *time.Time
}

// Job is the persisted row keyed by (SourceID, ExternalID).
type Job struct {
	ID                int64         `json:"id"`
	OwnerID           int64         `json:"ownerId"`
	SourceID          int64         `json:"sourceId"`
	ExternalID        string        `json:"externalId"`
	Title             string        `json:"title"`
	Location          string        `json:"location,omitempty"`
	Department        string        `json:"department,omitempty"`
	DescriptionHTML   string        `json:"descriptionHtml,omitempty"`
	DescriptionText   string        `json:"descriptionText,omitempty"`
	URL               string        `json:"url,omitempty"`
	WorkplaceType     WorkplaceType `json:"workplaceType,omitempty"`
	PostedAt          *time.Time    `json:"postedAt,omitempty"`
	ExternalUpdatedAt *time.Time    `json:"externalUpdatedAt,omitempty"`
	FirstSeenAt       time.Time     `json:"firstSeenAt"`
	LastSeenAt        time.Time     `json:"lastSeenAt"`
	RemovedAt         *time.Time    `json:"removedAt,omitempty"`
	Status            JobStatus     `json:"status"`
}
