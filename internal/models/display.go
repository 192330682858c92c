package models

import "time"

// MediaItem is one attachment inside a display unit.
type MediaItem struct {
	MessageID int64     `json:"message_id"`
	MediaType MediaType `json:"media_type"`
}

// DisplayUnit is what a reader sees as one post: a standalone message or a whole album.
type DisplayUnit struct {
	ID         int64          `json:"id"`
	ChannelID  int64          `json:"channel_id"`
	Date       time.Time      `json:"date"`
	Text       string         `json:"text"`
	SenderName string         `json:"sender_name,omitempty"`
	GroupedID  *int64         `json:"grouped_id,omitempty"`
	MessageIDs []int64        `json:"message_ids"`
	Media      []MediaItem    `json:"media,omitempty"`
	Forward    *ForwardSource `json:"forward,omitempty"`
	IsEdited   bool           `json:"is_edited"`

	Views    int `json:"views"`
	Forwards int `json:"forwards"`
	Replies  int `json:"replies"`
}

// IsAlbum reports whether the unit was built from a grouped message.
func (u *DisplayUnit) IsAlbum() bool {
	return u.GroupedID != nil
}
