package model

import "time"

const (
	IngestStatusDone    = "done"
	IngestStatusFailed  = "failed"
	IngestStatusSkipped = "skipped"
)

// IngestRecord is the ledger row kept for each source file ingested.
type IngestRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SourceFile string    `gorm:"size:512;not null;uniqueIndex" json:"source_file"`
	Status     string    `gorm:"size:16;not null" json:"status"`
	Chunks     int       `gorm:"not null;default:0" json:"chunks"`
	Dimension  int       `gorm:"not null;default:0" json:"dimension"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
