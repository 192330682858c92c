// Package display folds stored messages into the units a reader sees, merging album members.
package display

import (
	"iter"
	"slices"

	"github.com/blockedby/telememo/internal/models"
)

type albumKey struct {
	channelID int64
	groupedID int64
}

// Group folds album members into one unit per grouped id.
// Units come out in the order their first member appears in seq.
// Nothing is read from seq until the result is ranged over, and the result is meant to be ranged once.
func Group(seq iter.Seq[models.Message]) iter.Seq[models.DisplayUnit] {
	return func(yield func(models.DisplayUnit) bool) {
		var units []*models.DisplayUnit
		albums := make(map[albumKey]*models.DisplayUnit)

		for msg := range seq {
			if msg.GroupedID == nil {
				units = append(units, newUnit(msg))
				continue
			}

			key := albumKey{channelID: msg.ChannelID, groupedID: *msg.GroupedID}
			if unit, ok := albums[key]; ok {
				merge(unit, msg)
				continue
			}

			unit := newUnit(msg)
			albums[key] = unit
			units = append(units, unit)
		}

		for _, unit := range units {
			if !yield(*unit) {
				return
			}
		}
	}
}

// GroupSlice is Group over a slice, collected.
func GroupSlice(msgs []models.Message) []models.DisplayUnit {
	return slices.Collect(Group(slices.Values(msgs)))
}

func newUnit(msg models.Message) *models.DisplayUnit {
	unit := &models.DisplayUnit{
		ID:         msg.MessageID,
		ChannelID:  msg.ChannelID,
		Date:       msg.Date,
		Text:       msg.Text,
		SenderName: msg.SenderName,
		GroupedID:  msg.GroupedID,
		MessageIDs: []int64{msg.MessageID},
		IsEdited:   msg.IsEdited(),
		Views:      msg.Views,
		Forwards:   msg.Forwards,
		Replies:    msg.Replies,
	}
	if msg.MediaType.HasMedia() {
		unit.Media = append(unit.Media, models.MediaItem{MessageID: msg.MessageID, MediaType: msg.MediaType})
	}
	if msg.IsForwarded() {
		fwd := msg.Forward
		unit.Forward = &fwd
	}
	return unit
}

func merge(unit *models.DisplayUnit, msg models.Message) {
	unit.MessageIDs = append(unit.MessageIDs, msg.MessageID)
	if msg.MediaType.HasMedia() {
		unit.Media = append(unit.Media, models.MediaItem{MessageID: msg.MessageID, MediaType: msg.MediaType})
	}

	// the caption usually sits on one member only
	if unit.Text == "" {
		unit.Text = msg.Text
	}
	if unit.Forward == nil && msg.IsForwarded() {
		fwd := msg.Forward
		unit.Forward = &fwd
	}

	unit.IsEdited = unit.IsEdited || msg.IsEdited()
	unit.Views = max(unit.Views, msg.Views)
	unit.Forwards = max(unit.Forwards, msg.Forwards)
	unit.Replies += msg.Replies
}
