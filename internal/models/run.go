package models

import (
	"time"

	"github.com/google/uuid"
)

// RunKind is the type of a sync run.
type RunKind string

// RunKind constants.
const (
	RunKindDump RunKind = "dump"
	RunKindSync RunKind = "sync"
)

// RunStatus is the outcome of a sync run.
type RunStatus string

// RunStatus constants.
const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// SyncRun is the audit record of one dump or sync execution.
type SyncRun struct {
	ID        uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	ChannelID int64     `json:"channel_id" gorm:"index"`
	Kind      RunKind   `json:"kind" gorm:"size:16"`
	Status    RunStatus `json:"status" gorm:"size:16"`

	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`

	CheckpointBefore *int64 `json:"checkpoint_before,omitempty"`
	CheckpointAfter  *int64 `json:"checkpoint_after,omitempty"`

	Error string `json:"error,omitempty" gorm:"type:text"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
