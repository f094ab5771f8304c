package model

import "time"

const (
	IngestJobIngest  = "ingest"
	IngestJobReindex = "reindex"
)

// IngestJob is the message published to the ingest queue.
type IngestJob struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Dir         string    `json:"dir"`
	RequestedAt time.Time `json:"requested_at"`
}
