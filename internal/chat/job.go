package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ExportJob is an asynchronous bulk-export request processed by the worker.
type ExportJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	// JSON array of chat ids to export.
	ChatIDs string `gorm:"type:text;not null"`

	Format string `gorm:"type:varchar(16);not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_export_idempo,unique" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultPath *string `gorm:"type:text"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ExportJob) TableName() string { return "export_jobs" }
