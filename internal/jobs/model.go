// Package jobs is a Postgres-backed queue for work that must outlive the
// request or process that scheduled it.
package jobs

import "time"

type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// DefaultMaxAttempts applies when Enqueue is given no cap.
const DefaultMaxAttempts = 8

type Job struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Type    string `gorm:"type:text;not null"` // e.g. VIDEO_POLL
	Payload []byte `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	RunAt  time.Time `gorm:"index;not null"`
	Status Status    `gorm:"type:text;index;not null;default:'PENDING'"`

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time `gorm:"type:timestamptz"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Job) TableName() string { return "jobs" }

// LastAttempt reports whether the run in progress is the final one allowed.
func (j *Job) LastAttempt() bool {
	return j.Attempts+1 >= j.MaxAttempts
}
