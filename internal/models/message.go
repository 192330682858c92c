package models

import (
	"strconv"
	"strings"
	"time"
)

// MediaType classifies the attachment of a message.
type MediaType string

// MediaType constants.
const (
	MediaNone       MediaType = "none"
	MediaPhoto      MediaType = "photo"
	MediaVideo      MediaType = "video"
	MediaRoundVideo MediaType = "round_video"
	MediaDocument   MediaType = "document"
	MediaAudio      MediaType = "audio"
	MediaVoice      MediaType = "voice"
	MediaSticker    MediaType = "sticker"
	MediaAnimation  MediaType = "animation"
	MediaWebPage    MediaType = "webpage"
	MediaGeo        MediaType = "geo"
	MediaVenue      MediaType = "venue"
	MediaContact    MediaType = "contact"
	MediaPoll       MediaType = "poll"
	MediaDice       MediaType = "dice"
	MediaService    MediaType = "service"
	MediaOther      MediaType = "other"
)

// HasMedia reports whether the type describes an actual attachment.
func (t MediaType) HasMedia() bool {
	return t != "" && t != MediaNone && t != MediaService
}

// ForwardSource describes where a forwarded message came from.
// All fields are empty for messages that were not forwarded.
type ForwardSource struct {
	FromChannelID *int64     `json:"from_channel_id,omitempty"`
	FromUserID    *int64     `json:"from_user_id,omitempty"`
	FromName      string     `json:"from_name,omitempty"`
	MessageID     *int64     `json:"message_id,omitempty"`
	Date          *time.Time `json:"date,omitempty"`
	Signature     string     `json:"signature,omitempty"`
}

// IsZero reports whether no forward attribution is present.
func (f ForwardSource) IsZero() bool {
	return f.FromChannelID == nil && f.FromUserID == nil && f.FromName == "" &&
		f.MessageID == nil && f.Date == nil && f.Signature == ""
}

// Message is a stored channel message, keyed by (ChannelID, MessageID).
type Message struct {
	ChannelID int64 `json:"channel_id" gorm:"primaryKey;autoIncrement:false"`
	MessageID int64 `json:"message_id" gorm:"primaryKey;autoIncrement:false"`

	Text string    `json:"text" gorm:"type:text"`
	Date time.Time `json:"date"`

	// SearchText is Text lower-cased with Unicode rules; SQLite LIKE only folds ASCII.
	SearchText string `json:"-" gorm:"type:text;not null;default:''"`

	SenderID   *int64 `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	PostAuthor string `json:"post_author,omitempty"`

	Views    int `json:"views"`
	Forwards int `json:"forwards"`
	Replies  int `json:"replies"`

	MediaType MediaType `json:"media_type" gorm:"size:32;default:none"`
	GroupedID *int64    `json:"grouped_id,omitempty"`

	Forward ForwardSource `json:"forward" gorm:"embedded;embeddedPrefix:fwd_"`

	EditDate *time.Time `json:"edit_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEdited reports whether the message was edited after posting.
func (m *Message) IsEdited() bool {
	return m.EditDate != nil
}

// IsForwarded reports whether the message carries forward attribution.
func (m *Message) IsForwarded() bool {
	return !m.Forward.IsZero()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// FoldText lower-cases s for case-insensitive matching.
func FoldText(s string) string {
	return strings.ToLower(s)
}
