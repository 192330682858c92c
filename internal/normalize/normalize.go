// Package normalize turns raw MTProto messages into storable records.
// Everything here is pure: no I/O, same input gives the same output.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"github.com/blockedby/telememo/internal/models"
)

// ErrMalformedInput marks a raw message lacking an id or a date.
var ErrMalformedInput = errors.New("malformed message")

// Message converts a raw message of channelID into a record.
// ents may be nil, in which case sender and forward names stay empty.
func Message(channelID int64, raw tg.MessageClass, ents *Entities) (models.Message, error) {
	switch m := raw.(type) {
	case *tg.Message:
		return message(channelID, m, ents)
	case *tg.MessageService:
		return service(channelID, m, ents)
	case *tg.MessageEmpty:
		return models.Message{}, fmt.Errorf("%w: message %d is empty", ErrMalformedInput, m.ID)
	case nil:
		return models.Message{}, fmt.Errorf("%w: nil message", ErrMalformedInput)
	default:
		return models.Message{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedInput, raw)
	}
}

func message(channelID int64, m *tg.Message, ents *Entities) (models.Message, error) {
	if err := checkRequired(m.ID, m.Date); err != nil {
		return models.Message{}, err
	}

	rec := models.Message{
		ChannelID:  channelID,
		MessageID:  int64(m.ID),
		Text:       m.Message,
		Date:       unixTime(m.Date),
		PostAuthor: m.PostAuthor,
		Views:      m.Views,
		Forwards:   m.Forwards,
		Replies:    m.Replies.Replies,
		MediaType:  MediaTypeOf(m.Media),
		Forward:    forwardSource(m.FwdFrom, ents),
	}

	rec.SenderID, rec.SenderName = sender(channelID, m.FromID, ents)

	if m.GroupedID != 0 {
		gid := m.GroupedID
		rec.GroupedID = &gid
	}
	if m.EditDate != 0 {
		edited := unixTime(m.EditDate)
		rec.EditDate = &edited
	}

	return rec, nil
}

func service(channelID int64, m *tg.MessageService, ents *Entities) (models.Message, error) {
	if err := checkRequired(m.ID, m.Date); err != nil {
		return models.Message{}, err
	}

	rec := models.Message{
		ChannelID: channelID,
		MessageID: int64(m.ID),
		Date:      unixTime(m.Date),
		MediaType: models.MediaService,
	}
	rec.SenderID, rec.SenderName = sender(channelID, m.FromID, ents)
	return rec, nil
}

func checkRequired(id, date int) error {
	if id <= 0 {
		return fmt.Errorf("%w: missing id", ErrMalformedInput)
	}
	if date <= 0 {
		return fmt.Errorf("%w: message %d has no date", ErrMalformedInput, id)
	}
	return nil
}

// sender resolves the author; channel posts without from_id belong to the channel itself.
func sender(channelID int64, from tg.PeerClass, ents *Entities) (*int64, string) {
	if from == nil {
		id := channelID
		return &id, ents.ChatTitle(channelID)
	}
	id, name := peer(from, ents)
	return &id, name
}

func peer(p tg.PeerClass, ents *Entities) (int64, string) {
	switch v := p.(type) {
	case *tg.PeerUser:
		return v.UserID, ents.UserName(v.UserID)
	case *tg.PeerChannel:
		return v.ChannelID, ents.ChatTitle(v.ChannelID)
	case *tg.PeerChat:
		return v.ChatID, ents.ChatTitle(v.ChatID)
	default:
		return 0, ""
	}
}

func forwardSource(h tg.MessageFwdHeader, ents *Entities) models.ForwardSource {
	var src models.ForwardSource

	switch v := h.FromID.(type) {
	case *tg.PeerUser:
		id := v.UserID
		src.FromUserID = &id
		src.FromName = ents.UserName(id)
	case *tg.PeerChannel:
		id := v.ChannelID
		src.FromChannelID = &id
		src.FromName = ents.ChatTitle(id)
	case *tg.PeerChat:
		id := v.ChatID
		src.FromChannelID = &id
		src.FromName = ents.ChatTitle(id)
	}

	// hidden accounts only expose a name
	if src.FromName == "" {
		src.FromName = h.FromName
	}
	if h.ChannelPost != 0 {
		post := int64(h.ChannelPost)
		src.MessageID = &post
	}
	if h.Date != 0 {
		date := unixTime(h.Date)
		src.Date = &date
	}
	src.Signature = h.PostAuthor

	return src
}

func unixTime(sec int) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
