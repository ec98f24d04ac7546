package events

import (
	"encoding/json"
	"time"
)

// Event types published on the hub.
const (
	TypePing             = "ping"
	TypeSourceSynced     = "source_synced"
	TypeSourceCreated    = "source_created"
	TypeSourceDeleted    = "source_deleted"
	TypeJobStatusChanged = "job_status_changed"
	TypeSyncAllFinished  = "sync_all_finished"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// SourceSynced is the payload of a source_synced event.
type SourceSynced struct {
	SourceID    int64  `json:"sourceId"`
	OwnerID     int64  `json:"ownerId"`
	SourceType  string `json:"sourceType"`
	RunID       string `json:"runId"`
	Success     bool   `json:"success"`
	Added       int    `json:"added"`
	Updated     int    `json:"updated"`
	Removed     int    `json:"removed"`
	Reactivated int    `json:"reactivated"`
	TotalActive int    `json:"totalActive"`
	Error       string `json:"error,omitempty"`
}
