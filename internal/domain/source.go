package domain

import "time"

type FetchStatus string

const (
	FetchPending FetchStatus = "pending"
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// SourceConfig is everything a connector needs to address one feed.
// Identifier is opaque outside the connector that owns Type.
type SourceConfig struct {
	OwnerID    int64  `json:"ownerId"`
	Type       string `json:"sourceType"`
	Identifier string `json:"sourceIdentifier"`
	URL        string `json:"sourceUrl,omitempty"`
}

type ImportSource struct {
	ID int64 `json:"id"`
	SourceConfig
	LastFetchedAt  *time.Time  `json:"lastFetchedAt,omitempty"`
	FetchStatus    FetchStatus `json:"fetchStatus"`
	LastFetchError string      `json:"lastFetchError,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}
