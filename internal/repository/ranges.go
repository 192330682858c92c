package repository

import (
	"context"

	"github.com/blockedby/telememo/internal/models"
)

// ParsedRange is the span of message ids stored for a channel.
// The zero value is an empty range.
type ParsedRange struct {
	MinMsgID int64 `json:"min_message_id"`
	MaxMsgID int64 `json:"max_message_id"`
	Count    int64 `json:"count"`
}

// IsEmpty reports whether nothing is stored.
func (r *ParsedRange) IsEmpty() bool {
	return r.Count == 0
}

// Extend expands the range to include new min/max values
func (r *ParsedRange) Extend(newMin, newMax int64) {
	// handle first initialization (0,0 is empty range)
	if r.MinMsgID == 0 && r.MaxMsgID == 0 {
		r.MinMsgID = newMin
		r.MaxMsgID = newMax
		return
	}

	if newMin < r.MinMsgID {
		r.MinMsgID = newMin
	}
	if newMax > r.MaxMsgID {
		r.MaxMsgID = newMax
	}
}

// MessageIDFilter drops ids at or below a checkpoint
type MessageIDFilter struct {
	maxParsed int64
}

// NewMessageIDFilter creates a filter with max parsed message id
func NewMessageIDFilter(maxParsed int64) *MessageIDFilter {
	return &MessageIDFilter{maxParsed: maxParsed}
}

// IsNew reports whether id is above the checkpoint.
func (f *MessageIDFilter) IsNew(id int64) bool {
	return id > f.maxParsed
}

// FilterNew returns only messages that are newer than max parsed
func (f *MessageIDFilter) FilterNew(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.IsNew(m.MessageID) {
			out = append(out, m)
		}
	}
	return out
}

// Range returns the stored id span of a channel.
func (r *MessagesRepository) Range(ctx context.Context, channelID int64) (ParsedRange, error) {
	var row struct {
		MinMsgID *int64
		MaxMsgID *int64
		Count    int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("MIN(message_id) AS min_msg_id, MAX(message_id) AS max_msg_id, COUNT(*) AS count").
		Where("channel_id = ?", channelID).
		Scan(&row).Error
	if err != nil {
		return ParsedRange{}, storageErr("message range", err)
	}

	pr := ParsedRange{Count: row.Count}
	if row.MinMsgID != nil && row.MaxMsgID != nil {
		pr.Extend(*row.MinMsgID, *row.MaxMsgID)
	}
	return pr, nil
}
