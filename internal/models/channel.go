package models

import "time"

// Channel is a broadcast channel whose messages are stored locally.
type Channel struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	AccessHash  int64  `json:"-"`
	Title       string `json:"title"`
	Username    string `json:"username,omitempty" gorm:"index;size:64"`
	Description string `json:"description,omitempty" gorm:"type:text"`
	MemberCount *int   `json:"member_count,omitempty"`

	// highest message id known to be persisted, nil until the first dump
	LastSyncedMessageID *int64     `json:"last_synced_message_id,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`

	// lease held by the process currently running a dump or sync of this channel
	RunOwner      string     `json:"-" gorm:"size:64"`
	RunLeaseUntil *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Handle returns @username when the channel has one, else the numeric id.
func (c *Channel) Handle() string {
	if c.Username != "" {
		return "@" + c.Username
	}
	return formatID(c.ID)
}

// HasCheckpoint reports whether the channel was dumped at least once.
func (c *Channel) HasCheckpoint() bool {
	return c.LastSyncedMessageID != nil
}
